package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// OrderExecutor submits buy orders and reports the resulting fill.
type OrderExecutor interface {
	// PlaceOrder submits the order and blocks until it is filled or rejected.
	// A rejection is reported as an error wrapping domain.ErrOrderRejected.
	// The returned fill may be partial.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error)
}
