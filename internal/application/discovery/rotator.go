// Package discovery keeps the engine trading the current Up/Down market of
// every configured asset and timeframe as periods roll over.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

const DefaultInterval = 30 * time.Second

// Registrar accepts newly discovered markets.
type Registrar interface {
	Track(ctx context.Context, market domain.Market) error
}

// Config lists what to trade.
type Config struct {
	Assets     []string // "btc", "eth", "sol", "xrp"
	Timeframes []string // "15m", "1h"
	Interval   time.Duration
	Now        func() time.Time
}

// Rotator polls the market provider and hands new periods to the engine and
// the price feed.
type Rotator struct {
	cfg      Config
	provider ports.MarketProvider
	engine   Registrar
	feed     ports.PriceFeed

	mu      sync.Mutex
	current map[string]string // asset-timeframe → market id
}

// New creates a Rotator. feed may be nil.
func New(cfg Config, provider ports.MarketProvider, engine Registrar, feed ports.PriceFeed) *Rotator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Rotator{
		cfg:      cfg,
		provider: provider,
		engine:   engine,
		feed:     feed,
		current:  make(map[string]string),
	}
}

// Seed adopts markets restored from storage so that the next period rolls
// them over like any discovered market. Only open markets of a configured
// type that have not ended are watched, the latest one per type. The rest
// stay with the engine until the resolver settles them.
func (r *Rotator) Seed(markets []domain.Market) int {
	now := r.cfg.Now()
	configured := make(map[string]bool)
	for _, asset := range r.cfg.Assets {
		for _, tf := range r.cfg.Timeframes {
			configured[string(domain.NewMarketType(asset, tf))] = true
		}
	}

	latest := make(map[string]domain.Market)
	for _, m := range markets {
		key := string(m.Type)
		if m.Closed || m.Ended(now) || !configured[key] {
			continue
		}
		if prev, ok := latest[key]; ok && !m.EndAt.After(prev.EndAt) {
			continue
		}
		latest[key] = m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, m := range latest {
		r.current[key] = m.ID
		if r.feed != nil {
			r.feed.Watch(m)
		}
	}
	return len(latest)
}

// Run discovers immediately and then every Interval until ctx is done.
func (r *Rotator) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			slog.Warn("discovery: round finished with errors", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce looks up every asset/timeframe pair and returns how many new
// markets were registered.
func (r *Rotator) RunOnce(ctx context.Context) (int, error) {
	now := r.cfg.Now()
	var (
		added int
		errs  []error
	)
	for _, asset := range r.cfg.Assets {
		for _, tf := range r.cfg.Timeframes {
			ok, err := r.rotate(ctx, asset, tf, now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				added++
			}
		}
	}
	return added, errors.Join(errs...)
}

func (r *Rotator) rotate(ctx context.Context, asset, tf string, now time.Time) (bool, error) {
	key := string(domain.NewMarketType(asset, tf))

	m, err := r.provider.FindUpDownMarket(ctx, asset, tf, now)
	if err != nil {
		return false, fmt.Errorf("discovery %s: %w", key, err)
	}

	r.mu.Lock()
	prev := r.current[key]
	r.mu.Unlock()
	if prev == m.ID {
		return false, nil
	}

	if err := r.engine.Track(ctx, m); err != nil {
		return false, fmt.Errorf("discovery %s: %w", key, err)
	}
	if r.feed != nil {
		if prev != "" {
			r.feed.Unwatch(prev)
		}
		r.feed.Watch(m)
	}

	r.mu.Lock()
	r.current[key] = m.ID
	r.mu.Unlock()

	slog.Info("discovery: new period",
		"type", key,
		"market", domain.ShortID(m.ID),
		"slug", m.Slug,
		"ends", m.EndAt.Format(time.RFC3339),
	)
	return true, nil
}

// Current returns the market id traded for an asset and timeframe.
func (r *Rotator) Current(asset, tf string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.current[string(domain.NewMarketType(asset, tf))]
	return id, ok
}
