package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/updownbot/internal/application/strategy"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/metrics"
)

// runner is the serialization point of one market. mu guards everything
// except the mailbox.
type runner struct {
	mu       sync.Mutex
	market   domain.Market
	lastTick time.Time
	lastBuy  time.Time
	wave     domain.WaveState

	box  *mailbox
	done chan struct{} // closed on the terminal transition
}

func newRunner(m domain.Market) *runner {
	r := &runner{market: m, box: newMailbox(), done: make(chan struct{})}
	if m.Closed {
		close(r.done)
	}
	return r
}

func (r *runner) snapshot() domain.Market {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.market
}

func (r *runner) closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.market.Closed
}

// HandleTick processes one tick for its market. It returns the decision taken
// and, when the tick produced no trade because of a problem, an error that
// wraps one of the domain sentinels.
func (m *Manager) HandleTick(ctx context.Context, tick domain.PriceTick) (domain.Decision, error) {
	r, ok := m.runner(tick.MarketID)
	if !ok {
		metrics.TicksTotal.WithLabelValues("unknown_market").Inc()
		return domain.Hold(domain.RuleNoProgress, "unknown market"),
			fmt.Errorf("engine.HandleTick %s: %w", domain.ShortID(tick.MarketID), domain.ErrUnknownMarket)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.market.Closed {
		metrics.TicksTotal.WithLabelValues("stale_market").Inc()
		return domain.Hold(domain.RuleAwaitingClose, "market closed"),
			fmt.Errorf("engine.HandleTick %s: %w", domain.ShortID(tick.MarketID), domain.ErrStaleMarket)
	}
	if err := tick.Validate(); err != nil {
		metrics.TicksTotal.WithLabelValues(outcomeOf(err)).Inc()
		return domain.Hold(domain.RuleNoProgress, err.Error()),
			fmt.Errorf("engine.HandleTick %s: %w", domain.ShortID(tick.MarketID), err)
	}
	if !tick.ObservedAt.After(r.lastTick) {
		metrics.TicksTotal.WithLabelValues("stale_tick").Inc()
		return domain.Hold(domain.RuleNoProgress, "duplicate or out-of-order tick"),
			fmt.Errorf("engine.HandleTick %s at %s: %w", domain.ShortID(tick.MarketID),
				tick.ObservedAt.Format(time.RFC3339Nano), domain.ErrStaleTick)
	}
	r.lastTick = tick.ObservedAt

	upTrend, err := m.detector.Observe(tick.MarketID, domain.SideUp, tick.UpAsk)
	if err != nil {
		return domain.Hold(domain.RuleNoProgress, err.Error()), fmt.Errorf("engine.HandleTick: %w", err)
	}
	downTrend, err := m.detector.Observe(tick.MarketID, domain.SideDown, tick.DownAsk)
	if err != nil {
		return domain.Hold(domain.RuleNoProgress, err.Error()), fmt.Errorf("engine.HandleTick: %w", err)
	}

	d, err := m.currentDecider().Decide(strategy.Input{
		Market:    r.market,
		Tick:      tick,
		UpTrend:   upTrend,
		DownTrend: downTrend,
		Wave:      r.wave,
		Now:       tick.ObservedAt,
	})
	if err != nil {
		metrics.TicksTotal.WithLabelValues(outcomeOf(err)).Inc()
		return d, fmt.Errorf("engine.HandleTick: %w", err)
	}
	metrics.TicksTotal.WithLabelValues("decided").Inc()

	if d.Action.IsNone() {
		metrics.DecisionsTotal.WithLabelValues(string(d.Rule), "none").Inc()
		slog.Debug("engine: hold",
			"market", domain.ShortID(tick.MarketID),
			"rule", d.Rule,
			"up_ask", tick.UpAsk,
			"down_ask", tick.DownAsk,
			"up_trend", upTrend,
			"down_trend", downTrend,
		)
		return d, nil
	}

	if cd := m.cooldownFor(r.market.Type); cd > 0 && !r.lastBuy.IsZero() && tick.ObservedAt.Sub(r.lastBuy) < cd {
		metrics.DecisionsTotal.WithLabelValues(string(domain.RuleCooldown), "none").Inc()
		return domain.Hold(domain.RuleCooldown, fmt.Sprintf("%s suppressed by cooldown", d.Action)), nil
	}

	side, _ := d.Action.Side()
	metrics.DecisionsTotal.WithLabelValues(string(d.Rule), string(side)).Inc()
	slog.Info("engine: decision",
		"market", domain.ShortID(tick.MarketID),
		"rule", d.Rule,
		"action", d.Action.String(),
		"legs", d.Legs,
		"reason", d.Reason,
	)

	if err := m.execute(ctx, r, d, tick); err != nil {
		return d, err
	}
	return d, nil
}

// execute submits each leg in order and records every confirmed fill. It
// stops at the first rejection; earlier fills stay recorded.
func (m *Manager) execute(ctx context.Context, r *runner, d domain.Decision, tick domain.PriceTick) error {
	side, _ := d.Action.Side()
	legs := d.Legs
	if legs < 1 {
		legs = 1
	}
	qty := d.LegSize()
	price := tick.Ask(side)

	filled := 0
	defer func() {
		if filled == 0 {
			return
		}
		r.lastBuy = tick.ObservedAt
		switch d.Rule {
		case domain.RuleLock:
			r.wave = domain.WaveState{}
		case domain.RuleExpansion:
			r.wave.ExpansionBuys++
		}
	}()

	for i := 0; i < legs; i++ {
		req := domain.OrderRequest{
			MarketID:   r.market.ID,
			TokenID:    r.market.TokenID(side),
			Side:       side,
			Quantity:   qty,
			LimitPrice: price,
		}

		start := time.Now()
		fill, err := m.orders.PlaceOrder(ctx, req)
		metrics.OrderLatency.Observe(time.Since(start).Seconds())
		if err == nil && fill.Quantity <= 0 {
			err = errors.New("empty fill")
		}
		if err != nil {
			metrics.OrderRejections.Inc()
			if !errors.Is(err, domain.ErrOrderRejected) {
				err = fmt.Errorf("%w: %w", domain.ErrOrderRejected, err)
			}
			slog.Warn("engine: order rejected",
				"market", domain.ShortID(r.market.ID),
				"side", side,
				"qty", qty,
				"price", price,
				"leg", i+1,
				"err", err,
			)
			return fmt.Errorf("engine.execute %s leg %d/%d: %w", side, i+1, legs, err)
		}

		at := fill.FilledAt
		if at.IsZero() {
			at = tick.ObservedAt
		}
		trade, err := m.ledger.RecordTrade(domain.Trade{
			MarketID: r.market.ID,
			Side:     side,
			Quantity: fill.Quantity,
			Price:    fill.Price,
			OrderID:  fill.OrderID,
			FilledAt: at,
		})
		if err != nil {
			slog.Error("engine: fill not recorded",
				"market", domain.ShortID(r.market.ID),
				"order", fill.OrderID,
				"err", err,
			)
			return fmt.Errorf("engine.execute: %w", err)
		}
		filled++
		metrics.ObserveFill(string(side), trade.Quantity)

		pos := m.ledger.Get(r.market.ID)
		slog.Info("engine: filled",
			"market", domain.ShortID(r.market.ID),
			"side", side,
			"qty", fmt.Sprintf("%.2f", trade.Quantity),
			"price", fmt.Sprintf("%.4f", trade.Price),
			"up", fmt.Sprintf("%.2f", pos.UpShares),
			"down", fmt.Sprintf("%.2f", pos.DownShares),
			"pnl_up", fmt.Sprintf("%.2f", pos.PnLIfUpWins()),
			"pnl_down", fmt.Sprintf("%.2f", pos.PnLIfDownWins()),
		)

		if m.store != nil {
			if err := m.store.SaveTrade(ctx, trade); err != nil {
				slog.Warn("engine: error saving trade", "trade", trade.ID, "err", err)
			}
		}
	}
	return nil
}

// outcomeOf maps a tick error to its metrics label.
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoQuote):
		return "no_quote"
	case errors.Is(err, domain.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, domain.ErrStaleMarket):
		return "stale_market"
	case errors.Is(err, domain.ErrStaleTick):
		return "stale_tick"
	}
	return "error"
}
