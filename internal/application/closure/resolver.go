// Package closure detects resolved markets and settles their positions.
package closure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/metrics"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

const DefaultInterval = 20 * time.Second

// MarketBook is the part of the engine the resolver drives.
type MarketBook interface {
	OpenMarkets() []domain.Market
	// CloseMarket must take the same per-market lock as tick processing.
	CloseMarket(ctx context.Context, marketID string, winner domain.Side) (domain.Market, domain.Position, bool, error)
}

// Config tunes the polling loop.
type Config struct {
	Interval time.Duration
	Now      func() time.Time
}

// Resolver polls market status and settles closed markets exactly once.
type Resolver struct {
	cfg      Config
	book     MarketBook
	status   ports.MarketStatusProvider
	store    ports.SettlementStore
	notifier ports.Notifier

	mu       sync.Mutex
	settled  map[string]domain.SettlementRecord
	totalPnL float64
}

// New wires a Resolver. store and notifier may be nil.
func New(cfg Config, book MarketBook, status ports.MarketStatusProvider, store ports.SettlementStore, notifier ports.Notifier) *Resolver {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		cfg:      cfg,
		book:     book,
		status:   status,
		store:    store,
		notifier: notifier,
		settled:  make(map[string]domain.SettlementRecord),
	}
}

// Load seeds the running total from previously persisted settlements.
func (r *Resolver) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.GetSettlements(ctx)
	if err != nil {
		return fmt.Errorf("closure.Load: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		if _, ok := r.settled[rec.MarketID]; ok {
			continue
		}
		r.settled[rec.MarketID] = rec
		r.totalPnL += rec.ActualPnL
	}
	metrics.RealizedPnL.Set(r.totalPnL)
	return nil
}

// Run polls every Interval until ctx is done.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.Info("closure: resolver started", "interval", r.cfg.Interval)
	for {
		if _, err := r.PollOnce(ctx); err != nil {
			slog.Warn("closure: poll finished with errors", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce checks every open market whose window has elapsed and settles the
// closed ones. Errors of individual markets are joined; the others still run.
func (r *Resolver) PollOnce(ctx context.Context) ([]domain.SettlementRecord, error) {
	now := r.cfg.Now()
	var (
		out  []domain.SettlementRecord
		errs []error
	)
	for _, m := range r.book.OpenMarkets() {
		if m.Closed || (!m.EndAt.IsZero() && now.Before(m.EndAt)) {
			continue
		}
		rec, settled, err := r.Resolve(ctx, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if settled {
			out = append(out, rec)
		}
	}
	return out, errors.Join(errs...)
}

// Resolve settles one market if its status reports it closed with a winner.
// settled is true only for the call that performed the terminal transition;
// repeated calls return the stored record and false.
func (r *Resolver) Resolve(ctx context.Context, m domain.Market) (rec domain.SettlementRecord, settled bool, err error) {
	if rec, ok := r.Settlement(m.ID); ok {
		return rec, false, nil
	}

	st, err := r.status.MarketStatus(ctx, m)
	if err != nil {
		return domain.SettlementRecord{}, false, fmt.Errorf("closure.Resolve %s: status: %w", domain.ShortID(m.ID), err)
	}
	if !st.Closed {
		return domain.SettlementRecord{}, false, nil
	}
	if !st.Winner.Valid() {
		slog.Warn("closure: market closed without winner yet", "market", domain.ShortID(m.ID), "slug", m.Slug)
		return domain.SettlementRecord{}, false, nil
	}

	final, pos, closed, err := r.book.CloseMarket(ctx, m.ID, st.Winner)
	if err != nil {
		return domain.SettlementRecord{}, false, fmt.Errorf("closure.Resolve %s: %w", domain.ShortID(m.ID), err)
	}
	if !closed {
		rec, _ := r.Settlement(m.ID)
		return rec, false, nil
	}

	rec = domain.NewSettlement(final, pos, st.Winner, r.cfg.Now())

	r.mu.Lock()
	r.settled[m.ID] = rec
	r.totalPnL += rec.ActualPnL
	total := r.totalPnL
	r.mu.Unlock()

	metrics.ObserveSettlement(string(rec.Winner), total)
	slog.Info("closure: market settled",
		"market", domain.ShortID(m.ID),
		"slug", m.Slug,
		"winner", rec.Winner,
		"up", fmt.Sprintf("%.2f", rec.UpShares),
		"down", fmt.Sprintf("%.2f", rec.DownShares),
		"cost", fmt.Sprintf("%.2f", rec.TotalCost),
		"pnl", fmt.Sprintf("%.2f", rec.ActualPnL),
		"total_pnl", fmt.Sprintf("%.2f", total),
	)

	if r.store != nil {
		if err := r.store.SaveSettlement(ctx, rec); err != nil {
			slog.Warn("closure: error saving settlement", "market", domain.ShortID(m.ID), "err", err)
		}
	}
	if r.notifier != nil {
		if err := r.notifier.NotifySettlement(ctx, rec, total); err != nil {
			slog.Warn("closure: notifier error", "err", err)
		}
	}
	return rec, true, nil
}

// Settlement returns the record of a market settled by this resolver.
func (r *Resolver) Settlement(marketID string) (domain.SettlementRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.settled[marketID]
	return rec, ok
}

// Settlements returns every record ordered by settlement time.
func (r *Resolver) Settlements() []domain.SettlementRecord {
	r.mu.Lock()
	out := make([]domain.SettlementRecord, 0, len(r.settled))
	for _, rec := range r.settled {
		out = append(out, rec)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SettledAt.Before(out[j].SettledAt) })
	return out
}

// TotalPnL is the realized PnL summed over all settlements.
func (r *Resolver) TotalPnL() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalPnL
}
