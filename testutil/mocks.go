// Package testutil provides shared fakes for the pipeline's external
// services: completion, web search, venue, and balance oracle.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/polymind-ai/polymind/llm"
	"github.com/polymind-ai/polymind/search"
	"github.com/polymind-ai/polymind/venue"
)

// MockLLM is a scripted completion client. When Script is set it decides
// each reply from the request; otherwise replies are popped from Replies in
// order.
type MockLLM struct {
	mu      sync.Mutex
	Script  func(req llm.CompletionRequest) (string, error)
	Replies []string
	Calls   []llm.CompletionRequest
}

var _ llm.Client = (*MockLLM)(nil)

func (m *MockLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Script != nil {
		content, err := m.Script(req)
		if err != nil {
			return nil, err
		}
		return &llm.Completion{Content: content}, nil
	}
	if len(m.Replies) == 0 {
		return nil, fmt.Errorf("mock llm: no scripted reply left (call %d)", len(m.Calls))
	}
	content := m.Replies[0]
	m.Replies = m.Replies[1:]
	return &llm.Completion{Content: content}, nil
}

// CallCount returns how many completions were requested.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockSearch returns fixed results for every query.
type MockSearch struct {
	Results []search.Result
	Err     error
	Queries atomic.Int32
}

var _ search.Client = (*MockSearch)(nil)

func (m *MockSearch) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	m.Queries.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Results) > maxResults && maxResults > 0 {
		return m.Results[:maxResults], nil
	}
	return m.Results, nil
}

// MockVenue records submitted orders.
type MockVenue struct {
	mu     sync.Mutex
	Err    error
	Result *venue.OrderResult
	Orders []venue.Order
}

var _ venue.Client = (*MockVenue)(nil)

func (m *MockVenue) PostOrder(ctx context.Context, order venue.Order) (*venue.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders = append(m.Orders, order)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &venue.OrderResult{OrderID: fmt.Sprintf("mock-%d", len(m.Orders)), Status: "live"}, nil
}

// Submissions returns how many orders reached the venue.
func (m *MockVenue) Submissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// MockBalance serves a fixed collateral balance.
type MockBalance struct {
	Collateral decimal.Decimal
	Err        error
	Reads      atomic.Int32
}

var _ venue.BalanceOracle = (*MockBalance)(nil)

func (m *MockBalance) Balance(ctx context.Context) (*venue.Balance, error) {
	m.Reads.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	return &venue.Balance{Collateral: m.Collateral}, nil
}
