// Package config loads the process configuration.
//
// Precedence: defaults, then the YAML file, then environment variables.
// Environment keys are derived from the nested env tags, joined with
// underscores under the loader prefix (POLYMIND by default), e.g.
// POLYMIND_LLM_API_KEY.
package config

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/market"
	"github.com/polymind-ai/polymind/research"
	"github.com/polymind-ai/polymind/search"
	"github.com/polymind-ai/polymind/store"
	"github.com/polymind-ai/polymind/trade"
	"github.com/polymind-ai/polymind/venue"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig       `yaml:"server" env:"SERVER"`
	Log      LogConfig          `yaml:"log" env:"LOG"`
	Store    store.Config       `yaml:"store" env:"STORE"`
	Market   MarketConfig       `yaml:"market" env:"MARKET"`
	LLM      llm.OpenAIConfig   `yaml:"llm" env:"LLM"`
	Search   search.TavilyConfig `yaml:"search" env:"SEARCH"`
	Venue    VenueConfig        `yaml:"venue" env:"VENUE"`
	Research research.Config    `yaml:"research" env:"RESEARCH"`
	Trade    trade.SizingConfig `yaml:"trade" env:"TRADE"`
	Pipeline PipelineConfig     `yaml:"pipeline" env:"PIPELINE"`
}

// ServerConfig configures the run-control HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	MetricsAddr     string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json, console
}

// MarketConfig configures the market-data adapter.
type MarketConfig struct {
	BaseURL string            `yaml:"base_url" env:"BASE_URL"`
	Scan    market.ScanConfig `yaml:"scan" env:"SCAN"`
}

// VenueConfig configures the order venue adapter.
type VenueConfig struct {
	CLOB venue.CLOBConfig `yaml:"clob" env:"CLOB"`
}

// PipelineConfig tunes the outer run graph.
type PipelineConfig struct {
	// MaxAnalysts caps how many interview branches one run spawns.
	MaxAnalysts int `yaml:"max_analysts" env:"MAX_ANALYSTS"`
	// MaxRegenerations bounds analyst-regeneration loops; exceeding it
	// fails the run instead of spinning.
	MaxRegenerations int `yaml:"max_regenerations" env:"MAX_REGENERATIONS"`
	// MaxSteps is the executor's per-run stage ceiling.
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
}

// Loader loads configuration with a builder interface.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the POLYMIND env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "POLYMIND"}
}

// WithConfigPath sets the YAML file path. A missing file is not an error;
// defaults and environment apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		key := prefix + "_" + envTag
		value, present := os.LookupEnv(key)

		// Types with their own text form (decimals) take the raw value.
		if field.CanAddr() {
			if tu, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
				if present {
					if err := tu.UnmarshalText([]byte(value)); err != nil {
						return fmt.Errorf("set %s: %w", key, err)
					}
				}
				continue
			}
		}
		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}
		if !present || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// Validate rejects configurations no run could execute under.
func (c *Config) Validate() error {
	var errs []string
	if c.Pipeline.MaxAnalysts <= 0 {
		errs = append(errs, "pipeline.max_analysts must be positive")
	}
	if c.Pipeline.MaxSteps <= 0 {
		errs = append(errs, "pipeline.max_steps must be positive")
	}
	if c.Pipeline.MaxRegenerations < 0 {
		errs = append(errs, "pipeline.max_regenerations must not be negative")
	}
	if c.Research.MaxTurns <= 0 {
		errs = append(errs, "research.max_turns must be positive")
	}
	if !c.Market.Scan.BandLow.LessThan(c.Market.Scan.BandHigh) {
		errs = append(errs, "market.scan.band_low must be below band_high")
	}
	if c.Trade.SkipBelow > c.Trade.HighAbove {
		errs = append(errs, "trade.skip_below must not exceed high_above")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MustLoad loads configuration or panics; for main() wiring only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
