package domain

import "errors"

// Errores del motor de posiciones. Se comparan con errors.Is; las capas
// superiores los envuelven con contexto usando %w.
var (
	// ErrInvalidPrice: precio fuera del rango abierto (0,1).
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidFill: fill con cantidad no positiva o precio inválido.
	ErrInvalidFill = errors.New("invalid fill")
	// ErrNoQuote: falta el ask de un lado requerido en el tick.
	ErrNoQuote = errors.New("no quote")
	// ErrStaleMarket: operación sobre un mercado ya cerrado.
	ErrStaleMarket = errors.New("stale market")
	// ErrOrderRejected: el destino de órdenes rechazó la orden o no hubo fill.
	ErrOrderRejected = errors.New("order rejected")
	// ErrStaleTick: tick duplicado o fuera de orden para el mercado.
	ErrStaleTick = errors.New("stale tick")
	// ErrUnknownMarket: mercado no registrado en el motor.
	ErrUnknownMarket = errors.New("unknown market")
)
