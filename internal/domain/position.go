package domain

import "math"

// Position es el inventario de un mercado: acciones y coste acumulado por lado.
// Los precios medios se derivan siempre de shares/coste, nunca se guardan.
type Position struct {
	MarketID   string
	UpShares   float64
	UpCost     float64
	DownShares float64
	DownCost   float64
}

// IsEmpty indica si no hay acciones en ningún lado.
func (p Position) IsEmpty() bool {
	return p.UpShares == 0 && p.DownShares == 0
}

// Shares devuelve las acciones del lado dado.
func (p Position) Shares(side Side) float64 {
	if side == SideUp {
		return p.UpShares
	}
	return p.DownShares
}

// Cost devuelve el coste acumulado del lado dado.
func (p Position) Cost(side Side) float64 {
	if side == SideUp {
		return p.UpCost
	}
	return p.DownCost
}

// AvgPrice devuelve el precio medio pagado por lado. 0 si no hay acciones.
func (p Position) AvgPrice(side Side) float64 {
	shares := p.Shares(side)
	if shares == 0 {
		return 0
	}
	return p.Cost(side) / shares
}

// TotalCost es lo invertido en ambos lados.
func (p Position) TotalCost() float64 {
	return p.UpCost + p.DownCost
}

// PnLIfUpWins es el resultado si Up paga $1 por acción.
func (p Position) PnLIfUpWins() float64 {
	return p.UpShares - p.TotalCost()
}

// PnLIfDownWins es el resultado si Down paga $1 por acción.
func (p Position) PnLIfDownWins() float64 {
	return p.DownShares - p.TotalCost()
}

// PnLIfWins devuelve el resultado si gana el lado dado.
func (p Position) PnLIfWins(side Side) float64 {
	if side == SideUp {
		return p.PnLIfUpWins()
	}
	return p.PnLIfDownWins()
}

// Pairs es el número de pares Up+Down completos (pagan $1 pase lo que pase).
func (p Position) Pairs() float64 {
	return math.Min(p.UpShares, p.DownShares)
}

// CostPerPair es el coste total dividido entre los pares.
// ok=false si no hay pares (valor indefinido).
func (p Position) CostPerPair() (float64, bool) {
	pairs := p.Pairs()
	if pairs <= 0 {
		return 0, false
	}
	return p.TotalCost() / pairs, true
}

// Overweight devuelve el lado con más acciones. ok=false si están equilibrados.
func (p Position) Overweight() (Side, bool) {
	switch {
	case p.UpShares > p.DownShares:
		return SideUp, true
	case p.DownShares > p.UpShares:
		return SideDown, true
	}
	return "", false
}

// Add devuelve una copia con una compra adicional aplicada.
func (p Position) Add(side Side, qty, price float64) Position {
	if side == SideUp {
		p.UpShares += qty
		p.UpCost += qty * price
	} else {
		p.DownShares += qty
		p.DownCost += qty * price
	}
	return p
}

// Settle calcula el pago y el PnL realizado si gana winner.
func (p Position) Settle(winner Side) (payout, pnl float64) {
	payout = p.Shares(winner)
	return payout, payout - p.TotalCost()
}

// ProjectedPosition es una posición hipotética tras una compra candidata,
// con sus métricas derivadas ya calculadas.
type ProjectedPosition struct {
	Position      Position
	CostPerPair   float64
	HasPairs      bool
	PnLIfUpWins   float64
	PnLIfDownWins float64
}

// Project aplica una compra hipotética sin mutar p.
func (p Position) Project(side Side, qty, price float64) ProjectedPosition {
	next := p.Add(side, qty, price)
	cpp, ok := next.CostPerPair()
	return ProjectedPosition{
		Position:      next,
		CostPerPair:   cpp,
		HasPairs:      ok,
		PnLIfUpWins:   next.PnLIfUpWins(),
		PnLIfDownWins: next.PnLIfDownWins(),
	}
}
