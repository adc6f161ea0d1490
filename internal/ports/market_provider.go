package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// MarketProvider descubre el mercado Up/Down vigente de un activo y timeframe.
type MarketProvider interface {
	// FindUpDownMarket devuelve el mercado activo para asset ("btc", "eth"...)
	// y timeframe ("15m", "1h") en el instante now.
	FindUpDownMarket(ctx context.Context, asset, timeframe string, now time.Time) (domain.Market, error)
}

// MarketStatusProvider consulta si un mercado está cerrado y quién ganó.
type MarketStatusProvider interface {
	MarketStatus(ctx context.Context, market domain.Market) (domain.MarketStatus, error)
}
