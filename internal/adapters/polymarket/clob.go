package polymarket

// clob.go: adapter de la API CLOB de Polymarket.
//
// FetchOrderBooks lanza un goroutine por batch. El rate limiter de doWithRetry
// marca el ritmo, así que no hace falta semáforo explícito.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"sync"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	marketsPath = "/markets/"
	booksPath   = "/books"
	batchSize   = 20 // máx token_ids por request a /books
)

// FetchOrderBooks obtiene los orderbooks para los token_ids dados usando el
// endpoint batch. Si falla algún batch se devuelven todos los errores juntos.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)
	books := make([]map[string]domain.OrderBook, len(batches))
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			books[i], errs[i] = c.fetchBooksBatch(ctx, batch)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("batch %d/%d: %w", i+1, len(batches), errs[i])
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("clob.FetchOrderBooks: %w", err)
	}

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	for _, b := range books {
		maps.Copy(result, b)
	}
	slog.Debug("polymarket: order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// MarketStatus consulta GET /markets/{condition_id} y devuelve si el mercado
// está cerrado y, si ya se publicó, el lado ganador.
func (c *Client) MarketStatus(ctx context.Context, m domain.Market) (domain.MarketStatus, error) {
	var resp clobMarket
	u := c.clobBase + marketsPath + url.PathEscape(m.ID)
	if err := c.get(ctx, c.clobLimiter, u, &resp); err != nil {
		return domain.MarketStatus{}, fmt.Errorf("clob.MarketStatus %s: %w", domain.ShortID(m.ID), err)
	}
	return mapMarketStatus(resp), nil
}

// splitBatches divide tokenIDs en slices de tamaño máximo size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := min(i+size, len(tokenIDs))
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapOrderBooks(resp), nil
}
