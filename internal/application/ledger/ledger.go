// Package ledger is the authoritative per-market inventory. Every position is
// backed by an append-only log of confirmed fills.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

type book struct {
	mu     sync.RWMutex
	trades []domain.Trade
	pos    domain.Position
	frozen bool
}

// Ledger holds one book per market. The map lock only guards book lookup;
// reads and writes of a position take that market's own lock.
type Ledger struct {
	mu    sync.RWMutex
	books map[string]*book
	now   func() time.Time
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{books: make(map[string]*book), now: time.Now}
}

func (l *Ledger) lookup(marketID string) (*book, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.books[marketID]
	return b, ok
}

func (l *Ledger) bookFor(marketID string) *book {
	if b, ok := l.lookup(marketID); ok {
		return b
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.books[marketID]; ok {
		return b
	}
	b := &book{pos: domain.Position{MarketID: marketID}}
	l.books[marketID] = b
	return b
}

// Get returns a snapshot of the market's position. Unknown markets yield an
// empty position.
func (l *Ledger) Get(marketID string) domain.Position {
	b, ok := l.lookup(marketID)
	if !ok {
		return domain.Position{MarketID: marketID}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pos
}

// RecordFill appends a confirmed fill and updates the position atomically.
func (l *Ledger) RecordFill(marketID string, side domain.Side, qty, price float64, at time.Time) (domain.Trade, error) {
	return l.record(domain.Trade{
		MarketID: marketID,
		Side:     side,
		Quantity: qty,
		Price:    price,
		FilledAt: at,
	})
}

// RecordTrade is RecordFill for a trade that already carries an order id.
func (l *Ledger) RecordTrade(t domain.Trade) (domain.Trade, error) {
	return l.record(t)
}

func (l *Ledger) record(t domain.Trade) (domain.Trade, error) {
	if err := validateFill(t.Side, t.Quantity, t.Price); err != nil {
		return domain.Trade{}, fmt.Errorf("ledger.RecordFill %s: %w", domain.ShortID(t.MarketID), err)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.FilledAt.IsZero() {
		t.FilledAt = l.now()
	}

	b := l.bookFor(t.MarketID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return domain.Trade{}, fmt.Errorf("ledger.RecordFill %s: %w", domain.ShortID(t.MarketID), domain.ErrStaleMarket)
	}
	b.trades = append(b.trades, t)
	b.pos = b.pos.Add(t.Side, t.Quantity, t.Price)
	return t, nil
}

func validateFill(side domain.Side, qty, price float64) error {
	if !side.Valid() {
		return fmt.Errorf("side %q: %w", side, domain.ErrInvalidFill)
	}
	if qty <= 0 {
		return fmt.Errorf("quantity %.4f: %w", qty, domain.ErrInvalidFill)
	}
	if !domain.ValidPrice(price) {
		return fmt.Errorf("price %.4f: %w", price, domain.ErrInvalidFill)
	}
	return nil
}

// Project returns the position that would result from buying qty at price.
// The ledger is not modified.
func (l *Ledger) Project(marketID string, side domain.Side, qty, price float64) domain.ProjectedPosition {
	return l.Get(marketID).Project(side, qty, price)
}

// Trades returns a copy of the market's fill log in insertion order.
func (l *Ledger) Trades(marketID string) []domain.Trade {
	b, ok := l.lookup(marketID)
	if !ok {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Freeze marks the market terminal and returns its final position. Later
// fills fail with ErrStaleMarket. Freezing twice is harmless.
func (l *Ledger) Freeze(marketID string) domain.Position {
	b := l.bookFor(marketID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true
	return b.pos
}

// Frozen reports whether Freeze was called for the market.
func (l *Ledger) Frozen(marketID string) bool {
	b, ok := l.lookup(marketID)
	if !ok {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frozen
}

// Restore reloads persisted trades, typically at startup. Trades for a
// market are applied in fill order.
func (l *Ledger) Restore(trades []domain.Trade) error {
	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FilledAt.Before(sorted[j].FilledAt)
	})
	for _, t := range sorted {
		if _, err := l.record(t); err != nil {
			return fmt.Errorf("ledger.Restore trade %s: %w", t.ID, err)
		}
	}
	return nil
}

// Markets lists the ids of every market with a book.
func (l *Ledger) Markets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.books))
	for id := range l.books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Replay rebuilds a position from a fill log. Applied to Trades(id) it must
// equal Get(id).
func Replay(marketID string, trades []domain.Trade) domain.Position {
	pos := domain.Position{MarketID: marketID}
	for _, t := range trades {
		pos = pos.Add(t.Side, t.Quantity, t.Price)
	}
	return pos
}
