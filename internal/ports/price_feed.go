package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// PriceFeed emite ticks de precio para los mercados observados.
type PriceFeed interface {
	// Watch añade un mercado al conjunto observado.
	Watch(market domain.Market)
	// Unwatch deja de observar un mercado.
	Unwatch(marketID string)
	// Run publica ticks en out hasta que ctx se cancela.
	Run(ctx context.Context, out chan<- domain.PriceTick) error
}
