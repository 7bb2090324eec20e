package config

import (
	"time"

	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/research"
	"github.com/polymind-ai/polymind/search"
	"github.com/polymind-ai/polymind/store"
	"github.com/polymind-ai/polymind/trade"
	"github.com/polymind-ai/polymind/venue"
)

// Default returns the configuration every knob falls back to.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: store.Config{
			Type: store.TypeMemory,
			Path: "polymind.db",
			Redis: store.RedisConfig{
				Addr:      "localhost:6379",
				DB:        0,
				PoolSize:  10,
				KeyPrefix: "polymind:",
			},
		},
		Market: MarketConfig{
			BaseURL: "https://gamma-api.polymarket.com",
			Scan:    market.DefaultScanConfig(),
		},
		LLM:    llm.DefaultOpenAIConfig(),
		Search: search.DefaultTavilyConfig(),
		Venue: VenueConfig{
			CLOB: venue.DefaultCLOBConfig(),
		},
		Research: research.DefaultConfig(),
		Trade:    trade.DefaultSizingConfig(),
		Pipeline: PipelineConfig{
			MaxAnalysts:      3,
			MaxRegenerations: 3,
			MaxSteps:         100,
		},
	}
}
