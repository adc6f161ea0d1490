package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// DefaultPollInterval es la cadencia por defecto del feed por polling.
const DefaultPollInterval = time.Second

// watchList es el conjunto de mercados observados por un feed.
type watchList struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newWatchList() watchList {
	return watchList{markets: make(map[string]domain.Market)}
}

func (w *watchList) add(m domain.Market) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.markets[m.ID] = m
}

func (w *watchList) remove(id string) (domain.Market, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.markets[id]
	delete(w.markets, id)
	return m, ok
}

// snapshot devuelve los mercados observados ordenados por id.
func (w *watchList) snapshot() []domain.Market {
	w.mu.Lock()
	out := make([]domain.Market, 0, len(w.markets))
	for _, m := range w.markets {
		out = append(out, m)
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PollingFeed consulta POST /books cada Interval y emite un PriceTick por mercado.
// Implementa ports.PriceFeed.
type PollingFeed struct {
	books    ports.BookProvider
	interval time.Duration
	now      func() time.Time
	watched  watchList
}

// NewPollingFeed crea un feed por polling. interval <= 0 usa DefaultPollInterval.
func NewPollingFeed(books ports.BookProvider, interval time.Duration) *PollingFeed {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingFeed{
		books:    books,
		interval: interval,
		now:      time.Now,
		watched:  newWatchList(),
	}
}

// Watch añade un mercado al polling.
func (f *PollingFeed) Watch(m domain.Market) { f.watched.add(m) }

// Unwatch saca un mercado del polling.
func (f *PollingFeed) Unwatch(id string) { f.watched.remove(id) }

// Poll hace una ronda: un fetch batch de todos los tokens y un tick por mercado.
func (f *PollingFeed) Poll(ctx context.Context) ([]domain.PriceTick, error) {
	markets := f.watched.snapshot()
	if len(markets) == 0 {
		return nil, nil
	}

	tokenIDs := make([]string, 0, 2*len(markets))
	for _, m := range markets {
		tokenIDs = append(tokenIDs, m.UpTokenID, m.DownTokenID)
	}

	books, err := f.books.FetchOrderBooks(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("feed.Poll: %w", err)
	}

	at := f.now()
	ticks := make([]domain.PriceTick, 0, len(markets))
	for _, m := range markets {
		ticks = append(ticks, tickFromBooks(m, books, at))
	}
	return ticks, nil
}

// Run hace polling hasta que ctx se cancela.
func (f *PollingFeed) Run(ctx context.Context, out chan<- domain.PriceTick) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	slog.Info("polymarket: polling feed started", "interval", f.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		ticks, err := f.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("polymarket: poll failed", "err", err)
			continue
		}
		for _, t := range ticks {
			select {
			case out <- t:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
