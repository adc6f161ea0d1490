// Package sizing decides how many shares each buy leg uses.
package sizing

import (
	"math"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	DefaultBase        = 24.0
	DefaultReduceAfter = 300 * time.Second
	DefaultMinRatio    = 0.5
	DefaultMinShares   = 5.0
)

// DefaultBaseSizes are the per-market-type leg sizes used when no override is set.
func DefaultBaseSizes() map[domain.MarketType]float64 {
	return map[domain.MarketType]float64{
		"btc-15m": 24,
		"eth-15m": 14,
		"btc-1h":  26,
		"eth-1h":  16,
	}
}

// Config tunes the policy. Zero values fall back to the defaults above,
// except ReduceAfter: zero disables the decay.
type Config struct {
	BaseSizes        map[domain.MarketType]float64
	DefaultBase      float64
	Override         float64       // fixed base for every market when > 0
	ReduceAfter      time.Duration // start shrinking when time to close drops below this
	MinRatio         float64       // fraction of base kept at the close
	MinShares        float64       // floor for every quantity
	MaxSharesPerSide float64       // 0 disables the cap
}

// Policy is stateless; a copy can be shared across markets.
type Policy struct {
	cfg Config
}

// New returns a Policy with defaults applied.
func New(cfg Config) Policy {
	if cfg.BaseSizes == nil {
		cfg.BaseSizes = DefaultBaseSizes()
	}
	if cfg.DefaultBase <= 0 {
		cfg.DefaultBase = DefaultBase
	}
	if cfg.ReduceAfter < 0 {
		cfg.ReduceAfter = 0
	}
	if cfg.MinRatio <= 0 || cfg.MinRatio > 1 {
		cfg.MinRatio = DefaultMinRatio
	}
	if cfg.MinShares <= 0 {
		cfg.MinShares = DefaultMinShares
	}
	return Policy{cfg: cfg}
}

// Base returns the undecayed leg size for a market type.
func (p Policy) Base(mt domain.MarketType) float64 {
	if p.cfg.Override > 0 {
		return p.cfg.Override
	}
	if b, ok := p.cfg.BaseSizes[mt]; ok && b > 0 {
		return b
	}
	return p.cfg.DefaultBase
}

// SizeFor returns the quantity for one leg. Near the close the base shrinks
// linearly towards MinRatio×base. With a per-side cap the size is limited
// to the remaining room. The result is never below MinShares.
func (p Policy) SizeFor(mt domain.MarketType, timeToClose time.Duration, sharesSoFar float64) float64 {
	size := p.Base(mt)

	if p.cfg.ReduceAfter > 0 && timeToClose < p.cfg.ReduceAfter {
		if timeToClose < 0 {
			timeToClose = 0
		}
		frac := float64(timeToClose) / float64(p.cfg.ReduceAfter)
		ratio := p.cfg.MinRatio + (1-p.cfg.MinRatio)*frac
		size = roundCents(size * ratio)
	}

	if p.cfg.MaxSharesPerSide > 0 {
		if room := p.cfg.MaxSharesPerSide - sharesSoFar; room < size {
			size = roundCents(room)
		}
	}

	return math.Max(size, p.cfg.MinShares)
}

// Exhausted reports whether a side already holds the per-side cap.
func (p Policy) Exhausted(sharesSoFar float64) bool {
	return p.cfg.MaxSharesPerSide > 0 && sharesSoFar >= p.cfg.MaxSharesPerSide
}

// MinShares exposes the configured floor.
func (p Policy) MinShares() float64 {
	return p.cfg.MinShares
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
