package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const gammaMarketsPath = "/markets"

// ErrNoActiveMarket indica que ningún periodo reciente tiene un mercado abierto.
var ErrNoActiveMarket = errors.New("polymarket: no active up/down market")

// FindUpDownMarket busca el mercado Up/Down vigente para asset y timeframe.
// Prueba el slug del periodo actual y, si no existe o ya cerró, los tres anteriores.
func (c *Client) FindUpDownMarket(ctx context.Context, asset, timeframe string, now time.Time) (domain.Market, error) {
	slugs, err := candidateSlugs(asset, timeframe, now)
	if err != nil {
		return domain.Market{}, fmt.Errorf("gamma.FindUpDownMarket: %w", err)
	}

	for _, slug := range slugs {
		gm, err := c.fetchGammaBySlug(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			slog.Debug("polymarket: slug not found", "slug", slug)
			continue
		}
		if err != nil {
			return domain.Market{}, fmt.Errorf("gamma.FindUpDownMarket %s: %w", slug, err)
		}
		if !gm.Active || gm.Closed {
			slog.Debug("polymarket: slug not tradable", "slug", slug, "active", gm.Active, "closed", gm.Closed)
			continue
		}
		m, err := mapGammaMarket(gm, asset, timeframe)
		if err != nil {
			return domain.Market{}, fmt.Errorf("gamma.FindUpDownMarket %s: %w", slug, err)
		}
		return m, nil
	}
	return domain.Market{}, fmt.Errorf("gamma.FindUpDownMarket %s %s: %w", asset, timeframe, ErrNoActiveMarket)
}

// fetchGammaBySlug devuelve el primer mercado de Gamma con ese slug.
func (c *Client) fetchGammaBySlug(ctx context.Context, slug string) (gammaMarket, error) {
	u := fmt.Sprintf("%s%s?slug=%s", c.gammaBase, gammaMarketsPath, url.QueryEscape(slug))

	var resp []gammaMarket
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return gammaMarket{}, err
	}
	if len(resp) == 0 {
		return gammaMarket{}, ErrNotFound
	}
	return resp[0], nil
}
