// Package strategy turns a price tick and the current inventory of a market
// into at most one buy action.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	DefaultCostPerPairMax   = 0.99
	DefaultEntryLegs        = 2
	DefaultLockLegs         = 2
	DefaultExpansionMaxBuys = 8
	DefaultMinSidePrice     = 0.05
	DefaultMaxSidePrice     = 0.99

	// noDeadline stands in for time to close on markets without an end time.
	noDeadline = time.Duration(math.MaxInt64)
)

// Config holds the rule thresholds.
type Config struct {
	CostPerPairMax   float64 // lock fires when held avg + opposing ask is strictly below this
	EntryLegs        int     // legs for a No-Position entry
	LockLegs         int     // legs for a Lock
	ExpansionMaxBuys int     // expansion increments allowed between two locks
	MinSidePrice     float64 // never buy a side quoted below this
	MaxSidePrice     float64 // never buy a side quoted above this
}

// WithDefaults fills zero-valued fields.
func (c Config) WithDefaults() Config {
	if c.CostPerPairMax <= 0 {
		c.CostPerPairMax = DefaultCostPerPairMax
	}
	if c.EntryLegs <= 0 {
		c.EntryLegs = DefaultEntryLegs
	}
	if c.LockLegs <= 0 {
		c.LockLegs = DefaultLockLegs
	}
	if c.ExpansionMaxBuys <= 0 {
		c.ExpansionMaxBuys = DefaultExpansionMaxBuys
	}
	if c.MinSidePrice <= 0 {
		c.MinSidePrice = DefaultMinSidePrice
	}
	if c.MaxSidePrice <= 0 || c.MaxSidePrice >= 1 {
		c.MaxSidePrice = DefaultMaxSidePrice
	}
	return c
}

// PositionProjector is the read side of the ledger.
type PositionProjector interface {
	Get(marketID string) domain.Position
	Project(marketID string, side domain.Side, qty, price float64) domain.ProjectedPosition
}

// Sizer decides leg quantities.
type Sizer interface {
	SizeFor(mt domain.MarketType, timeToClose time.Duration, sharesSoFar float64) float64
	Exhausted(sharesSoFar float64) bool
}

// Input is everything the rules look at besides the ledger.
type Input struct {
	Market    domain.Market
	Tick      domain.PriceTick
	UpTrend   domain.Trend
	DownTrend domain.Trend
	Wave      domain.WaveState
	Now       time.Time
}

func (in Input) trend(side domain.Side) domain.Trend {
	if side == domain.SideUp {
		return in.UpTrend
	}
	return in.DownTrend
}

// Engine evaluates the rules. It never mutates the ledger.
type Engine struct {
	cfg       Config
	positions PositionProjector
	sizer     Sizer
}

// New creates an Engine with defaults applied to cfg.
func New(cfg Config, positions PositionProjector, sizer Sizer) *Engine {
	return &Engine{cfg: cfg.WithDefaults(), positions: positions, sizer: sizer}
}

// Config returns the effective thresholds.
func (e *Engine) Config() Config {
	return e.cfg
}

// Decide applies the rules in priority order and returns the first that fires.
func (e *Engine) Decide(in Input) (domain.Decision, error) {
	if in.Market.Closed {
		return domain.Hold(domain.RuleAwaitingClose, "market closed"),
			fmt.Errorf("strategy.Decide %s: %w", domain.ShortID(in.Market.ID), domain.ErrStaleMarket)
	}
	if err := in.Tick.Validate(); err != nil {
		return domain.Hold(domain.RuleNoProgress, err.Error()),
			fmt.Errorf("strategy.Decide %s: %w", domain.ShortID(in.Market.ID), err)
	}
	if in.Market.Ended(in.Now) {
		return domain.Hold(domain.RuleAwaitingClose, "window elapsed, waiting for resolution"), nil
	}

	ttc := noDeadline
	if !in.Market.EndAt.IsZero() {
		ttc = in.Market.TimeToClose(in.Now)
	}

	pos := e.positions.Get(in.Market.ID)
	if pos.IsEmpty() {
		return e.noPosition(in, ttc), nil
	}
	if d, ok := e.lock(in, pos, ttc); ok {
		return d, nil
	}
	if d, ok := e.expansion(in, pos, ttc); ok {
		return d, nil
	}
	return e.ride(in, pos), nil
}

// eligible applies the price band and the per-side cap.
func (e *Engine) eligible(pos domain.Position, side domain.Side, ask float64) bool {
	if ask < e.cfg.MinSidePrice || ask > e.cfg.MaxSidePrice {
		return false
	}
	return !e.sizer.Exhausted(pos.Shares(side))
}

func (e *Engine) noPosition(in Input, ttc time.Duration) domain.Decision {
	var rising []domain.Side
	for _, side := range domain.Sides {
		if in.trend(side) == domain.TrendRising {
			rising = append(rising, side)
		}
	}
	// The market favourite goes first when both sides rise.
	if len(rising) == 2 && in.Tick.DownAsk > in.Tick.UpAsk {
		rising[0], rising[1] = rising[1], rising[0]
	}

	var empty domain.Position
	for _, side := range rising {
		ask := in.Tick.Ask(side)
		if !e.eligible(empty, side, ask) {
			continue
		}
		size := e.sizer.SizeFor(in.Market.Type, ttc, 0)
		return domain.Decision{
			Action: domain.Buy(side, size*float64(e.cfg.EntryLegs)),
			Rule:   domain.RuleNoPosition,
			Legs:   e.cfg.EntryLegs,
			Reason: fmt.Sprintf("%s rising at %.3f", side, ask),
		}
	}
	return domain.Hold(domain.RuleNoProgress, "no position and no rising side")
}

type lockCandidate struct {
	side        domain.Side
	ask         float64
	qty         float64
	matched     float64 // held avg + ask
	proj        domain.ProjectedPosition
	underweight bool
}

// lock only considers the side whose opposite holds strictly more shares, so at
// most one candidate survives the loop. preferLock matters only if that guard
// is relaxed.
func (e *Engine) lock(in Input, pos domain.Position, ttc time.Duration) (domain.Decision, bool) {
	var best *lockCandidate
	for _, side := range domain.Sides {
		held := side.Opposite()
		if pos.Shares(held) <= pos.Shares(side) {
			continue
		}
		ask := in.Tick.Ask(side)
		matched := pos.AvgPrice(held) + ask
		if matched >= e.cfg.CostPerPairMax {
			continue
		}
		if !e.eligible(pos, side, ask) {
			continue
		}
		qty := e.sizer.SizeFor(in.Market.Type, ttc, pos.Shares(side)) * float64(e.cfg.LockLegs)
		c := lockCandidate{
			side:        side,
			ask:         ask,
			qty:         qty,
			matched:     matched,
			proj:        e.positions.Project(in.Market.ID, side, qty, ask),
			underweight: true,
		}
		if best == nil {
			best = &c
			continue
		}
		pick := preferLock(*best, c)
		best = &pick
	}
	if best == nil {
		return domain.Decision{}, false
	}
	return domain.Decision{
		Action: domain.Buy(best.side, best.qty),
		Rule:   domain.RuleLock,
		Legs:   e.cfg.LockLegs,
		Reason: fmt.Sprintf("held avg + %s ask = %.4f < %.4f", best.side, best.matched, e.cfg.CostPerPairMax),
	}, true
}

// preferLock breaks ties between two lock candidates: lower resulting cost
// per pair, then the underweight side, then Up.
func preferLock(a, b lockCandidate) lockCandidate {
	const eps = 1e-9
	ca, cb := cppOrInf(a.proj), cppOrInf(b.proj)
	switch {
	case ca < cb-eps:
		return a
	case cb < ca-eps:
		return b
	}
	if a.underweight != b.underweight {
		if a.underweight {
			return a
		}
		return b
	}
	if b.side == domain.SideUp {
		return b
	}
	return a
}

func cppOrInf(p domain.ProjectedPosition) float64 {
	if !p.HasPairs {
		return math.Inf(1)
	}
	return p.CostPerPair
}

func (e *Engine) expansion(in Input, pos domain.Position, ttc time.Duration) (domain.Decision, bool) {
	over, ok := pos.Overweight()
	if !ok {
		return domain.Decision{}, false
	}
	side := over.Opposite()
	ask := in.Tick.Ask(side)

	if pos.AvgPrice(over)+ask < e.cfg.CostPerPairMax {
		return domain.Decision{}, false
	}
	if in.trend(side) != domain.TrendRising {
		return domain.Decision{}, false
	}
	if pos.PnLIfWins(side) >= pos.PnLIfWins(over) {
		return domain.Decision{}, false
	}
	if in.Wave.ExpansionBuys >= e.cfg.ExpansionMaxBuys {
		return domain.Decision{}, false
	}
	if !e.eligible(pos, side, ask) {
		return domain.Decision{}, false
	}

	size := e.sizer.SizeFor(in.Market.Type, ttc, pos.Shares(side))
	proj := e.positions.Project(in.Market.ID, side, size, ask)
	return domain.Decision{
		Action: domain.Buy(side, size),
		Rule:   domain.RuleExpansion,
		Legs:   1,
		Reason: fmt.Sprintf("%s rising, pnl if %s wins %.2f -> %.2f",
			side, side, pos.PnLIfWins(side), pnlIf(proj, side)),
	}, true
}

func pnlIf(p domain.ProjectedPosition, side domain.Side) float64 {
	if side == domain.SideUp {
		return p.PnLIfUpWins
	}
	return p.PnLIfDownWins
}

func (e *Engine) ride(in Input, pos domain.Position) domain.Decision {
	if over, ok := pos.Overweight(); ok && in.trend(over) == domain.TrendRising {
		return domain.Hold(domain.RuleRide, fmt.Sprintf("riding %s", over))
	}
	return domain.Hold(domain.RuleNoProgress, "no rule fired")
}
