package domain

import (
	"fmt"
	"math"
	"time"
)

// PriceTick es una observación de los mejores asks de ambos lados de un mercado.
type PriceTick struct {
	MarketID   string
	UpAsk      float64
	DownAsk    float64
	ObservedAt time.Time
}

// Ask devuelve el ask del lado dado.
func (t PriceTick) Ask(side Side) float64 {
	if side == SideUp {
		return t.UpAsk
	}
	return t.DownAsk
}

// Validate comprueba ambos asks. Un ask ausente (0 o NaN) es ErrNoQuote;
// uno fuera de (0,1) es ErrInvalidPrice.
func (t PriceTick) Validate() error {
	for _, side := range Sides {
		ask := t.Ask(side)
		if ask == 0 || math.IsNaN(ask) {
			return fmt.Errorf("%s ask missing: %w", side, ErrNoQuote)
		}
		if !ValidPrice(ask) {
			return fmt.Errorf("%s ask %.4f: %w", side, ask, ErrInvalidPrice)
		}
	}
	return nil
}

// ValidPrice indica si p está en el rango abierto (0,1).
func ValidPrice(p float64) bool {
	return p > 0 && p < 1 && !math.IsNaN(p)
}
