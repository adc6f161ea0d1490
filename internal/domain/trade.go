package domain

import "time"

// Trade es un fill confirmado y registrado en el ledger. Inmutable.
type Trade struct {
	ID       string
	MarketID string
	Side     Side
	Quantity float64
	Price    float64
	OrderID  string
	FilledAt time.Time
}

// Cost devuelve quantity × price.
func (t Trade) Cost() float64 {
	return t.Quantity * t.Price
}

// OrderRequest es una orden de compra enviada al destino de órdenes.
type OrderRequest struct {
	MarketID   string
	TokenID    string
	Side       Side
	Quantity   float64
	LimitPrice float64
}

// OrderFill es la confirmación de ejecución de una orden.
// Quantity puede ser menor que la pedida (fill parcial) y Price puede
// diferir ligeramente del límite.
type OrderFill struct {
	OrderID  string
	Quantity float64
	Price    float64
	FilledAt time.Time
}

// SettlementRecord es el resultado final de un mercado cerrado.
type SettlementRecord struct {
	MarketID   string
	MarketType MarketType
	Slug       string
	Winner     Side
	UpShares   float64
	DownShares float64
	TotalCost  float64
	Payout     float64
	ActualPnL  float64
	SettledAt  time.Time
}

// NewSettlement construye el registro de liquidación de una posición final.
func NewSettlement(m Market, p Position, winner Side, at time.Time) SettlementRecord {
	payout, pnl := p.Settle(winner)
	return SettlementRecord{
		MarketID:   m.ID,
		MarketType: m.Type,
		Slug:       m.Slug,
		Winner:     winner,
		UpShares:   p.UpShares,
		DownShares: p.DownShares,
		TotalCost:  p.TotalCost(),
		Payout:     payout,
		ActualPnL:  pnl,
		SettledAt:  at,
	}
}
