// Package engine runs one serialized decision loop per market: trend update,
// rule evaluation, order submission and ledger update all happen under the
// market's own lock.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/updownbot/internal/application/ledger"
	"github.com/alejandrodnm/updownbot/internal/application/strategy"
	"github.com/alejandrodnm/updownbot/internal/application/trend"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/metrics"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// Config holds the execution settings that sit outside the rule set.
type Config struct {
	Cooldown       time.Duration                       // minimum gap between buys in one market
	CooldownByType map[domain.MarketType]time.Duration // per market type override
}

// Decider evaluates the rule set for one tick.
type Decider interface {
	Decide(in strategy.Input) (domain.Decision, error)
}

// Manager owns the per-market runners.
type Manager struct {
	cfg      Config
	detector *trend.Detector
	ledger   *ledger.Ledger
	orders   ports.OrderExecutor
	store    ports.TradeStore

	decider atomic.Value // holds deciderBox

	mu      sync.RWMutex
	runners map[string]*runner
}

type deciderBox struct{ Decider }

// New wires a Manager. store may be nil, in which case nothing is persisted.
func New(
	cfg Config,
	detector *trend.Detector,
	ldg *ledger.Ledger,
	decider Decider,
	orders ports.OrderExecutor,
	store ports.TradeStore,
) *Manager {
	m := &Manager{
		cfg:      cfg,
		detector: detector,
		ledger:   ldg,
		orders:   orders,
		store:    store,
		runners:  make(map[string]*runner),
	}
	m.decider.Store(deciderBox{decider})
	return m
}

// SetDecider swaps the rule set. Ticks already being evaluated keep the old one.
func (m *Manager) SetDecider(d Decider) {
	m.decider.Store(deciderBox{d})
}

// SetConfig swaps the execution settings.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Manager) currentDecider() Decider {
	return m.decider.Load().(deciderBox).Decider
}

func (m *Manager) cooldownFor(mt domain.MarketType) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.cfg.CooldownByType[mt]; ok {
		return d
	}
	return m.cfg.Cooldown
}

// Track registers a market. Tracking an already known market is a no-op.
func (m *Manager) Track(ctx context.Context, market domain.Market) error {
	if market.ID == "" {
		return fmt.Errorf("engine.Track: empty market id")
	}
	if !m.add(market) {
		return nil
	}
	if m.store != nil {
		if err := m.store.SaveMarket(ctx, market); err != nil {
			return fmt.Errorf("engine.Track %s: %w", domain.ShortID(market.ID), err)
		}
	}
	slog.Info("engine: tracking market",
		"market", domain.ShortID(market.ID),
		"slug", market.Slug,
		"type", market.Type,
		"ends", market.EndAt.Format(time.RFC3339),
	)
	return nil
}

func (m *Manager) add(market domain.Market) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runners[market.ID]; ok {
		return false
	}
	m.runners[market.ID] = newRunner(market)
	if !market.Closed {
		metrics.OpenMarkets.Inc()
	}
	return true
}

// Restore reloads open markets and their trades from the store.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	markets, err := m.store.GetOpenMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine.Restore: load markets: %w", err)
	}
	for _, mk := range markets {
		trades, err := m.store.GetTrades(ctx, mk.ID)
		if err != nil {
			return 0, fmt.Errorf("engine.Restore: load trades %s: %w", domain.ShortID(mk.ID), err)
		}
		if err := m.ledger.Restore(trades); err != nil {
			return 0, fmt.Errorf("engine.Restore: %w", err)
		}
		m.add(mk)
		slog.Info("engine: restored market",
			"market", domain.ShortID(mk.ID),
			"slug", mk.Slug,
			"trades", len(trades),
		)
	}
	return len(markets), nil
}

func (m *Manager) runner(marketID string) (*runner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[marketID]
	return r, ok
}

// Market returns the current state of a tracked market.
func (m *Manager) Market(marketID string) (domain.Market, bool) {
	r, ok := m.runner(marketID)
	if !ok {
		return domain.Market{}, false
	}
	return r.snapshot(), true
}

// Markets returns every tracked market ordered by end time.
func (m *Manager) Markets() []domain.Market {
	m.mu.RLock()
	runners := make([]*runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.mu.RUnlock()

	out := make([]domain.Market, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndAt.Equal(out[j].EndAt) {
			return out[i].EndAt.Before(out[j].EndAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OpenMarkets returns the tracked markets that are not closed yet.
func (m *Manager) OpenMarkets() []domain.Market {
	all := m.Markets()
	open := all[:0]
	for _, mk := range all {
		if !mk.Closed {
			open = append(open, mk)
		}
	}
	return open
}

// Wave returns the expansion counters of a market.
func (m *Manager) Wave(marketID string) domain.WaveState {
	r, ok := m.runner(marketID)
	if !ok {
		return domain.WaveState{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wave
}

// CloseMarket performs the terminal transition under the market lock and
// returns the final position. closed is false when the market was already
// closed, so callers can stay idempotent.
func (m *Manager) CloseMarket(ctx context.Context, marketID string, winner domain.Side) (market domain.Market, pos domain.Position, closed bool, err error) {
	r, ok := m.runner(marketID)
	if !ok {
		return domain.Market{}, domain.Position{}, false, fmt.Errorf("engine.CloseMarket %s: %w", domain.ShortID(marketID), domain.ErrUnknownMarket)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.market.Closed {
		return r.market, m.ledger.Get(marketID), false, nil
	}
	if !winner.Valid() {
		return r.market, domain.Position{}, false, fmt.Errorf("engine.CloseMarket %s: invalid winner %q", domain.ShortID(marketID), winner)
	}

	r.market.Closed = true
	r.market.Winner = winner
	close(r.done)
	pos = m.ledger.Freeze(marketID)
	m.detector.Forget(marketID)
	metrics.OpenMarkets.Dec()

	if m.store != nil {
		if err := m.store.SaveMarket(ctx, r.market); err != nil {
			slog.Warn("engine: error saving closed market", "market", domain.ShortID(marketID), "err", err)
		}
	}
	return r.market, pos, true, nil
}
