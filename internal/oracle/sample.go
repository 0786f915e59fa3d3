// Package oracle provides the price feeds the vault reads. A feed keeps the
// last few reported rounds per asset and answers with the minimum or the
// maximum of them. Feeds fail closed: a missing or stale price is an error,
// never a default.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// DefaultSampleSpace is the number of recent rounds considered.
const DefaultSampleSpace = 3

// round is one reported price.
type round struct {
	price fixed.Uint
	at    time.Time
}

// SampleFeed is an in-memory feed. Prices are pushed by an operator or an
// upstream aggregator.
type SampleFeed struct {
	mu          sync.RWMutex
	rounds      map[string][]round // newest first
	sampleSpace int
	maxAge      time.Duration
	now         func() time.Time
}

// NewSampleFeed creates a feed answering over the last sampleSpace rounds.
// A maxAge of zero disables the staleness check.
func NewSampleFeed(sampleSpace int, maxAge time.Duration) *SampleFeed {
	if sampleSpace < 1 {
		sampleSpace = DefaultSampleSpace
	}
	return &SampleFeed{
		rounds:      make(map[string][]round),
		sampleSpace: sampleSpace,
		maxAge:      maxAge,
		now:         time.Now,
	}
}

// WithClock replaces the feed's clock. Used by tests.
func (f *SampleFeed) WithClock(now func() time.Time) *SampleFeed {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
	return f
}

// Push records a new round for asset.
func (f *SampleFeed) Push(_ context.Context, asset string, price fixed.Uint) error {
	if price.IsZero() {
		return fmt.Errorf("push %s: %w", asset, model.ErrPriceUnavailable)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rs := append([]round{{price: price, at: f.now()}}, f.rounds[asset]...)
	if len(rs) > f.sampleSpace {
		rs = rs[:f.sampleSpace]
	}
	f.rounds[asset] = rs
	return nil
}

// Price returns the max (maximise) or min of the recent rounds.
func (f *SampleFeed) Price(_ context.Context, asset string, maximise bool) (fixed.Uint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rs := f.rounds[asset]
	if len(rs) == 0 {
		return fixed.Zero, fmt.Errorf("price %s: %w", asset, model.ErrPriceUnavailable)
	}
	if f.maxAge > 0 && f.now().Sub(rs[0].at) > f.maxAge {
		return fixed.Zero, fmt.Errorf("price %s: %w", asset, model.ErrStalePrice)
	}
	prices := make([]fixed.Uint, len(rs))
	for i, r := range rs {
		prices[i] = r.price
	}
	return pick(prices, maximise), nil
}

// pick returns the max or min of a non-empty slice.
func pick(prices []fixed.Uint, maximise bool) fixed.Uint {
	best := prices[0]
	for _, p := range prices[1:] {
		if maximise && p.Gt(best) || !maximise && p.Lt(best) {
			best = p
		}
	}
	return best
}
