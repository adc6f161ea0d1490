package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/metrics"
)

// mailbox holds the latest undelivered tick of a market. A newer tick
// replaces an older one that was not picked up yet.
type mailbox struct {
	mu      sync.Mutex
	pending *domain.PriceTick
	signal  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post stores tick and reports whether it replaced an undelivered one.
func (b *mailbox) post(tick domain.PriceTick) (coalesced bool) {
	b.mu.Lock()
	coalesced = b.pending != nil
	b.pending = &tick
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
	return coalesced
}

func (b *mailbox) take() (domain.PriceTick, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return domain.PriceTick{}, false
	}
	t := *b.pending
	b.pending = nil
	return t, true
}

// Run routes ticks to one worker goroutine per market until ctx is done or
// ticks is closed. Markets are processed concurrently; ticks of the same
// market never are. A worker stops when its market closes, and all workers
// have stopped when Run returns.
func (m *Manager) Run(ctx context.Context, ticks <-chan domain.PriceTick) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	workers := make(map[string]bool)
	exited := make(chan string)
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-exited:
			delete(workers, id)
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			r, ok := m.runner(tick.MarketID)
			if !ok {
				metrics.TicksTotal.WithLabelValues("unknown_market").Inc()
				slog.Debug("engine: tick for unknown market", "market", domain.ShortID(tick.MarketID))
				continue
			}
			if r.closed() {
				metrics.TicksTotal.WithLabelValues("stale_market").Inc()
				continue
			}
			if !workers[tick.MarketID] {
				workers[tick.MarketID] = true
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					m.work(ctx, r)
					select {
					case exited <- id:
					case <-ctx.Done():
					}
				}(tick.MarketID)
			}
			if r.box.post(tick) {
				metrics.TicksTotal.WithLabelValues("coalesced").Inc()
			}
		}
	}
}

// work drains a market's mailbox until the market closes or ctx is done.
func (m *Manager) work(ctx context.Context, r *runner) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.box.signal:
			tick, ok := r.box.take()
			if !ok {
				continue
			}
			_, err := m.HandleTick(ctx, tick)
			logTickError(tick, err)
		}
	}
}

func logTickError(tick domain.PriceTick, err error) {
	if err == nil {
		return
	}
	market := domain.ShortID(tick.MarketID)
	switch {
	case errors.Is(err, domain.ErrStaleTick):
		slog.Debug("engine: tick ignored", "market", market, "err", err)
	case errors.Is(err, domain.ErrNoQuote), errors.Is(err, domain.ErrInvalidPrice):
		slog.Warn("engine: tick skipped", "market", market, "err", err)
	case errors.Is(err, domain.ErrOrderRejected):
		// already logged per leg
	case errors.Is(err, domain.ErrStaleMarket):
		slog.Error("engine: tick processed after close", "market", market, "err", err)
	default:
		slog.Error("engine: tick failed", "market", market, "err", err)
	}
}
