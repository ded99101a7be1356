package service

import (
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultTokenRate is the cost charged per 1000 generated tokens.
var DefaultTokenRate = decimal.NewFromFloat(0.002)

var kiloTokens = decimal.NewFromInt(1000)

// UsageMeter accumulates token usage for one session and prices it. Safe for
// concurrent use; the reaper and list handlers read while exchanges write.
type UsageMeter struct {
	mu     sync.Mutex
	rate   decimal.Decimal
	tokens int64
}

// NewUsageMeter creates a meter charging rate per 1000 tokens.
func NewUsageMeter(rate decimal.Decimal, tokens int64) *UsageMeter {
	return &UsageMeter{rate: rate, tokens: tokens}
}

// Add records n consumed tokens.
func (m *UsageMeter) Add(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens += n
}

// Tokens returns the total tokens recorded so far.
func (m *UsageMeter) Tokens() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Cost returns the accumulated cost.
func (m *UsageMeter) Cost() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate.Mul(decimal.NewFromInt(m.tokens)).Div(kiloTokens)
}
