package strategy_test

import (
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/updownbot/internal/application/ledger"
	"github.com/alejandrodnm/updownbot/internal/application/sizing"
	"github.com/alejandrodnm/updownbot/internal/application/strategy"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1_700_000_000, 0)

func btcMarket() domain.Market {
	return domain.Market{
		ID:      "0xbtc",
		Type:    "btc-15m",
		StartAt: now.Add(-5 * time.Minute),
		EndAt:   now.Add(10 * time.Minute),
	}
}

func newEngine(t *testing.T, cfg strategy.Config) (*strategy.Engine, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	return strategy.New(cfg, l, sizing.New(sizing.Config{})), l
}

func fill(t *testing.T, l *ledger.Ledger, side domain.Side, qty, price float64) {
	t.Helper()
	_, err := l.RecordFill("0xbtc", side, qty, price, now)
	require.NoError(t, err)
}

func input(up, down float64, upTrend, downTrend domain.Trend) strategy.Input {
	return strategy.Input{
		Market:    btcMarket(),
		Tick:      domain.PriceTick{MarketID: "0xbtc", UpAsk: up, DownAsk: down, ObservedAt: now},
		UpTrend:   upTrend,
		DownTrend: downTrend,
		Now:       now,
	}
}

// Sin posición y Up subiendo: dos compras de 24 Up.
func TestDecide_NoPositionEntersRisingSide(t *testing.T) {
	e, _ := newEngine(t, strategy.Config{})
	d, err := e.Decide(input(0.52, 0.49, domain.TrendRising, domain.TrendNoProgress))
	require.NoError(t, err)

	assert.Equal(t, domain.RuleNoPosition, d.Rule)
	assert.Equal(t, domain.Buy(domain.SideUp, 48), d.Action)
	assert.Equal(t, 2, d.Legs)
	assert.InDelta(t, 24, d.LegSize(), 1e-9)
}

func TestDecide_NoPositionWithoutTrendHolds(t *testing.T) {
	e, _ := newEngine(t, strategy.Config{})
	d, err := e.Decide(input(0.52, 0.49, domain.TrendFalling, domain.TrendNoProgress))
	require.NoError(t, err)
	assert.True(t, d.Action.IsNone())
}

func TestDecide_NoPositionBothRisingPrefersFavourite(t *testing.T) {
	e, _ := newEngine(t, strategy.Config{})
	d, err := e.Decide(input(0.45, 0.56, domain.TrendRising, domain.TrendRising))
	require.NoError(t, err)
	side, ok := d.Action.Side()
	require.True(t, ok)
	assert.Equal(t, domain.SideDown, side)
}

func TestDecide_NoPositionRespectsPriceBand(t *testing.T) {
	e, _ := newEngine(t, strategy.Config{MinSidePrice: 0.05, MaxSidePrice: 0.95})
	d, err := e.Decide(input(0.97, 0.03, domain.TrendRising, domain.TrendNoProgress))
	require.NoError(t, err)
	assert.True(t, d.Action.IsNone())
}

// 48 Up @0.52 y Down a 0.44: lock de 24+24 Down, coste por par 0.96.
func TestDecide_LockPairsHeldSide(t *testing.T) {
	e, l := newEngine(t, strategy.Config{CostPerPairMax: 0.99})
	fill(t, l, domain.SideUp, 48, 0.52)

	d, err := e.Decide(input(0.55, 0.44, domain.TrendNoProgress, domain.TrendNoProgress))
	require.NoError(t, err)
	assert.Equal(t, domain.RuleLock, d.Rule)
	assert.Equal(t, domain.Buy(domain.SideDown, 48), d.Action)
	assert.Equal(t, 2, d.Legs)

	fill(t, l, domain.SideDown, 24, 0.44)
	fill(t, l, domain.SideDown, 24, 0.44)
	p := l.Get("0xbtc")
	cpp, ok := p.CostPerPair()
	require.True(t, ok)
	assert.InDelta(t, 0.96, cpp, 1e-9)
	assert.InDelta(t, 1.92, p.PnLIfUpWins(), 1e-9)
	assert.InDelta(t, 1.92, p.PnLIfDownWins(), 1e-9)
}

// Con ambos lados cargados solo el infraponderado es candidato a lock, aunque
// el otro también quedaría bajo el umbral.
func TestDecide_LockOnlyOnUnderweightSide(t *testing.T) {
	e, l := newEngine(t, strategy.Config{CostPerPairMax: 0.99})
	fill(t, l, domain.SideUp, 48, 0.40)
	fill(t, l, domain.SideDown, 24, 0.40)

	d, err := e.Decide(input(0.45, 0.45, domain.TrendNoProgress, domain.TrendNoProgress))
	require.NoError(t, err)
	assert.Equal(t, domain.RuleLock, d.Rule)
	side, ok := d.Action.Side()
	require.True(t, ok)
	assert.Equal(t, domain.SideDown, side)
}

// El umbral es estricto: held_avg + ask == max no dispara el lock.
func TestDecide_LockBoundaryIsStrict(t *testing.T) {
	e, l := newEngine(t, strategy.Config{CostPerPairMax: 0.75})
	fill(t, l, domain.SideUp, 24, 0.5)

	d, err := e.Decide(input(0.5, 0.25, domain.TrendNoProgress, domain.TrendNoProgress))
	require.NoError(t, err)
	assert.NotEqual(t, domain.RuleLock, d.Rule)
	assert.True(t, d.Action.IsNone())

	d, err = e.Decide(input(0.5, 0.2, domain.TrendNoProgress, domain.TrendNoProgress))
	require.NoError(t, err)
	assert.Equal(t, domain.RuleLock, d.Rule)
}

// Si el lock está disponible nunca se usa expansión, aunque el lado opuesto suba.
func TestDecide_LockBeatsExpansion(t *testing.T) {
	e, l := newEngine(t, strategy.Config{})
	fill(t, l, domain.SideUp, 48, 0.52)

	d, err := e.Decide(input(0.55, 0.44, domain.TrendNoProgress, domain.TrendRising))
	require.NoError(t, err)
	assert.Equal(t, domain.RuleLock, d.Rule)
}

// Down a 0.54 subiendo y sin lock posible: expansión de 24 Down.
func TestDecide_ExpansionBuysRisingOpposingSide(t *testing.T) {
	e, l := newEngine(t, strategy.Config{CostPerPairMax: 0.99})
	fill(t, l, domain.SideUp, 48, 0.52)

	d, err := e.Decide(input(0.47, 0.54, domain.TrendFalling, domain.TrendRising))
	require.NoError(t, err)
	assert.Equal(t, domain.RuleExpansion, d.Rule)
	assert.Equal(t, domain.Buy(domain.SideDown, 24), d.Action)
	assert.Equal(t, 1, d.Legs)

	fill(t, l, domain.SideDown, 24, 0.54)
	p := l.Get("0xbtc")
	assert.Less(t, p.PnLIfUpWins(), 23.04)
	assert.Greater(t, p.PnLIfDownWins(), -24.96)
}

func TestDecide_ExpansionStopsWhenBalanced(t *testing.T) {
	e, l := newEngine(t, strategy.Config{})
	fill(t, l, domain.SideUp, 48, 0.52)
	fill(t, l, domain.SideDown, 48, 0.54)

	d, err := e.Decide(input(0.47, 0.56, domain.TrendFalling, domain.TrendRising))
	require.NoError(t, err)
	assert.True(t, d.Action.IsNone())
}

func TestDecide_ExpansionCapSinceLastLock(t *testing.T) {
	e, l := newEngine(t, strategy.Config{ExpansionMaxBuys: 2})
	fill(t, l, domain.SideUp, 48, 0.52)

	in := input(0.47, 0.54, domain.TrendFalling, domain.TrendRising)
	in.Wave = domain.WaveState{ExpansionBuys: 2}
	d, err := e.Decide(in)
	require.NoError(t, err)
	assert.True(t, d.Action.IsNone())
}

func TestDecide_ExpansionNeedsRisingTrend(t *testing.T) {
	e, l := newEngine(t, strategy.Config{})
	fill(t, l, domain.SideUp, 48, 0.52)

	d, err := e.Decide(input(0.47, 0.54, domain.TrendRising, domain.TrendNoProgress))
	require.NoError(t, err)
	assert.True(t, d.Action.IsNone())
	assert.Equal(t, domain.RuleRide, d.Rule)
}

func TestDecide_RideAndNoProgress(t *testing.T) {
	e, l := newEngine(t, strategy.Config{})
	fill(t, l, domain.SideUp, 48, 0.52)

	d, err := e.Decide(input(0.60, 0.50, domain.TrendRising, domain.TrendFalling))
	require.NoError(t, err)
	assert.Equal(t, domain.RuleRide, d.Rule)

	d, err = e.Decide(input(0.60, 0.50, domain.TrendNoProgress, domain.TrendFalling))
	require.NoError(t, err)
	assert.Equal(t, domain.RuleNoProgress, d.Rule)
}

func TestDecide_Errors(t *testing.T) {
	e, _ := newEngine(t, strategy.Config{})

	_, err := e.Decide(input(0.5, 0, domain.TrendRising, domain.TrendRising))
	assert.True(t, errors.Is(err, domain.ErrNoQuote))

	_, err = e.Decide(input(1.3, 0.4, domain.TrendRising, domain.TrendRising))
	assert.True(t, errors.Is(err, domain.ErrInvalidPrice))

	in := input(0.5, 0.4, domain.TrendRising, domain.TrendRising)
	in.Market.Closed = true
	d, err := e.Decide(in)
	assert.True(t, errors.Is(err, domain.ErrStaleMarket))
	assert.True(t, d.Action.IsNone())
}

func TestDecide_WindowElapsedHolds(t *testing.T) {
	e, _ := newEngine(t, strategy.Config{})
	in := input(0.52, 0.49, domain.TrendRising, domain.TrendNoProgress)
	in.Now = in.Market.EndAt
	d, err := e.Decide(in)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleAwaitingClose, d.Rule)
	assert.True(t, d.Action.IsNone())
}

func TestDecide_SizeShrinksNearClose(t *testing.T) {
	l := ledger.New()
	e := strategy.New(strategy.Config{}, l, sizing.New(sizing.Config{ReduceAfter: 300 * time.Second}))

	in := input(0.52, 0.49, domain.TrendRising, domain.TrendNoProgress)
	in.Now = in.Market.EndAt.Add(-150 * time.Second)
	d, err := e.Decide(in)
	require.NoError(t, err)
	assert.InDelta(t, 18, d.LegSize(), 1e-9)
}
