// Package paper simula la ejecución de órdenes sin tocar el CLOB.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Config ajusta la simulación.
type Config struct {
	// Slippage se suma al precio límite en cada fill.
	Slippage float64
	// FillTolerance es el máximo desvío aceptado sobre el precio límite.
	// Si el slippage lo supera, la orden se rechaza.
	FillTolerance float64
}

// Executor llena cada orden de inmediato al precio límite (más slippage).
// Implementa ports.OrderExecutor.
type Executor struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	orders int
	volume float64
}

// NewExecutor crea un Executor de simulación.
func NewExecutor(cfg Config) *Executor {
	return &Executor{cfg: cfg, now: time.Now}
}

// PlaceOrder devuelve un fill completo o un error que envuelve domain.ErrOrderRejected.
func (e *Executor) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderFill{}, fmt.Errorf("paper.PlaceOrder: %w: %w", domain.ErrOrderRejected, err)
	}
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) {
		return domain.OrderFill{}, fmt.Errorf("paper.PlaceOrder: quantity %.4f: %w", req.Quantity, domain.ErrOrderRejected)
	}
	if !domain.ValidPrice(req.LimitPrice) {
		return domain.OrderFill{}, fmt.Errorf("paper.PlaceOrder: limit %.4f: %w", req.LimitPrice, domain.ErrOrderRejected)
	}

	price := req.LimitPrice + e.cfg.Slippage
	if price-req.LimitPrice > e.cfg.FillTolerance || !domain.ValidPrice(price) {
		return domain.OrderFill{}, fmt.Errorf("paper.PlaceOrder: fill %.4f beyond limit %.4f: %w",
			price, req.LimitPrice, domain.ErrOrderRejected)
	}

	fill := domain.OrderFill{
		OrderID:  uuid.New().String(),
		Quantity: req.Quantity,
		Price:    price,
		FilledAt: e.now(),
	}

	e.mu.Lock()
	e.orders++
	e.volume += fill.Quantity * fill.Price
	e.mu.Unlock()

	slog.Debug("paper: order filled",
		"market", domain.ShortID(req.MarketID),
		"side", req.Side,
		"qty", fmt.Sprintf("%.2f", fill.Quantity),
		"price", fmt.Sprintf("%.4f", fill.Price),
		"order", fill.OrderID,
	)
	return fill, nil
}

// Stats devuelve el número de órdenes llenadas y el volumen en USDC.
func (e *Executor) Stats() (orders int, volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders, e.volume
}
