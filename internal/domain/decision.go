package domain

import "fmt"

// Trend es la clasificación de la dirección reciente del precio de un lado.
type Trend int

const (
	TrendNoProgress Trend = iota
	TrendRising
	TrendFalling
)

func (t Trend) String() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	default:
		return "no_progress"
	}
}

// ActionKind distingue las variantes de Action.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionBuyUp
	ActionBuyDown
)

// Action es la salida del motor para un tick: no hacer nada, o comprar
// Quantity acciones de un lado.
type Action struct {
	Kind     ActionKind
	Quantity float64
}

// NoAction devuelve la acción nula.
func NoAction() Action { return Action{} }

// Buy devuelve la acción de compra para el lado dado.
func Buy(side Side, qty float64) Action {
	if side == SideUp {
		return Action{Kind: ActionBuyUp, Quantity: qty}
	}
	return Action{Kind: ActionBuyDown, Quantity: qty}
}

// IsNone indica si la acción no compra nada.
func (a Action) IsNone() bool {
	return a.Kind == ActionNone || a.Quantity <= 0
}

// Side devuelve el lado comprado. ok=false para NoAction.
func (a Action) Side() (Side, bool) {
	switch a.Kind {
	case ActionBuyUp:
		return SideUp, true
	case ActionBuyDown:
		return SideDown, true
	}
	return "", false
}

func (a Action) String() string {
	side, ok := a.Side()
	if !ok {
		return "NoAction"
	}
	return fmt.Sprintf("Buy%s(%.2f)", side, a.Quantity)
}

// Rule identifica la regla que produjo una decisión.
type Rule string

const (
	RuleNoPosition    Rule = "no_position"
	RuleLock          Rule = "lock"
	RuleExpansion     Rule = "expansion"
	RuleRide          Rule = "ride"
	RuleNoProgress    Rule = "no_progress"
	RuleAwaitingClose Rule = "awaiting_close"
	RuleCooldown      Rule = "cooldown"
)

// Decision es el resultado de evaluar las reglas para un tick.
// La compra se ejecuta en Legs fills consecutivos del mismo tamaño.
type Decision struct {
	Action Action
	Rule   Rule
	Legs   int
	Reason string
}

// LegSize devuelve el tamaño de cada fill de la acción.
func (d Decision) LegSize() float64 {
	if d.Legs <= 1 {
		return d.Action.Quantity
	}
	return d.Action.Quantity / float64(d.Legs)
}

// Hold construye una decisión sin compra.
func Hold(rule Rule, reason string) Decision {
	return Decision{Action: NoAction(), Rule: rule, Reason: reason}
}

// WaveState cuenta las compras de expansión desde el último lock.
type WaveState struct {
	ExpansionBuys int
}
