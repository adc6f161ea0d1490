package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// CLOB /books: 500/10s → 300/10s → 30/s
	booksRatePerSec = 30
	// Gamma /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// CLOB /markets/{id}: 9000/10s → 5400/10s → 540/s
	generalRatePerSec = 540

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	maxRetryWait  = 10 * time.Second
)

// ErrNotFound indica un 404 de la API (slug o condition id inexistente).
var ErrNotFound = errors.New("polymarket: not found")

// Client es el HTTP client de Polymarket con rate limiting y retries.
// Implementa ports.BookProvider, ports.MarketProvider y ports.MarketStatusProvider.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	booksLimiter *rate.Limiter
}

// NewClient crea un Client con los base URLs dados.
// Si clobBase o gammaBase están vacíos, usa los URLs de producción.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     clobBase,
		gammaBase:    gammaBase,
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
	}
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
// 429 y 5xx se reintentan; 404 devuelve ErrNotFound; el resto de 4xx falla directo.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.sleep(ctx, backoff(attempt))
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header.Get("Retry-After"), backoff(attempt))
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (429)")
			slog.Warn("polymarket: rate limited by API", "attempt", attempt+1, "wait", wait)
			c.sleep(ctx, wait)
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			c.sleep(ctx, backoff(attempt))
			continue

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

// backoff devuelve la espera exponencial del intento dado.
func backoff(attempt int) time.Duration {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	return min(wait, maxRetryWait)
}

// retryAfter interpreta la cabecera Retry-After en segundos; si falta usa fallback.
func retryAfter(header string, fallback time.Duration) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return min(time.Duration(secs)*time.Second, maxRetryWait)
	}
	return fallback
}

// sleep espera d respetando el contexto.
func (c *Client) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
