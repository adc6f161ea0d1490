package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side es uno de los dos resultados de un mercado Up/Down.
type Side string

const (
	SideUp   Side = "Up"
	SideDown Side = "Down"
)

// Sides enumera ambos lados en orden estable (Up primero).
var Sides = [2]Side{SideUp, SideDown}

// Opposite devuelve el lado contrario.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// Valid indica si s es Up o Down.
func (s Side) Valid() bool {
	return s == SideUp || s == SideDown
}

// ParseSide interpreta el outcome de la API ("Up", "down", "UP"...).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return SideUp, nil
	case "down":
		return SideDown, nil
	}
	return "", fmt.Errorf("domain.ParseSide: unknown side %q", s)
}

// MarketType identifica el activo y el timeframe de un mercado, p.ej. "btc-15m".
// Determina el tamaño base de las órdenes.
type MarketType string

// NewMarketType construye el tipo a partir del activo y el timeframe.
func NewMarketType(asset, timeframe string) MarketType {
	return MarketType(strings.ToLower(asset) + "-" + strings.ToLower(timeframe))
}

// Timeframe devuelve la parte de timeframe del tipo ("15m", "1h").
func (t MarketType) Timeframe() string {
	if i := strings.LastIndexByte(string(t), '-'); i >= 0 {
		return string(t)[i+1:]
	}
	return ""
}

// Market representa un mercado binario Up/Down con ventana temporal fija.
// Ciclo de vida: Open → Closed(winner). Closed es terminal.
type Market struct {
	ID          string // condition id
	Type        MarketType
	Asset       string
	Slug        string
	UpTokenID   string
	DownTokenID string
	StartAt     time.Time
	EndAt       time.Time
	Closed      bool
	Winner      Side // solo tiene sentido si Closed
}

// Key devuelve la clave compuesta condition_id:period usada en logs y persistencia.
func (m Market) Key() string {
	if m.StartAt.IsZero() {
		return m.ID
	}
	return fmt.Sprintf("%s:%d", m.ID, m.StartAt.Unix())
}

// TimeToClose devuelve el tiempo restante hasta EndAt. Nunca negativo.
// Devuelve 0 si EndAt no está definido.
func (m Market) TimeToClose(now time.Time) time.Duration {
	if m.EndAt.IsZero() {
		return 0
	}
	d := m.EndAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Window devuelve la duración total del mercado.
func (m Market) Window() time.Duration {
	if m.StartAt.IsZero() || m.EndAt.IsZero() {
		return 0
	}
	return m.EndAt.Sub(m.StartAt)
}

// Ended indica si el mercado ya llegó a su hora de cierre (aunque no esté resuelto).
func (m Market) Ended(now time.Time) bool {
	return !m.EndAt.IsZero() && !now.Before(m.EndAt)
}

// TokenID devuelve el token del lado dado.
func (m Market) TokenID(side Side) string {
	if side == SideUp {
		return m.UpTokenID
	}
	return m.DownTokenID
}

// SideOfToken devuelve el lado al que pertenece un token id.
func (m Market) SideOfToken(tokenID string) (Side, bool) {
	switch tokenID {
	case m.UpTokenID:
		return SideUp, tokenID != ""
	case m.DownTokenID:
		return SideDown, tokenID != ""
	}
	return "", false
}

// MarketStatus es la respuesta del proveedor de estado de mercado.
// Winner vacío significa que el ganador todavía no está publicado.
type MarketStatus struct {
	Closed bool
	Winner Side
}

// ShortID recorta un id largo para logs.
func ShortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
