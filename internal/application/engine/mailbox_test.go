package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/updownbot/internal/application/ledger"
	"github.com/alejandrodnm/updownbot/internal/application/sizing"
	"github.com/alejandrodnm/updownbot/internal/application/strategy"
	"github.com/alejandrodnm/updownbot/internal/application/trend"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_LatestTickWins(t *testing.T) {
	b := newMailbox()
	base := time.Unix(1_700_000_000, 0)

	assert.False(t, b.post(domain.PriceTick{MarketID: "m", UpAsk: 0.40, ObservedAt: base}))
	assert.True(t, b.post(domain.PriceTick{MarketID: "m", UpAsk: 0.45, ObservedAt: base.Add(time.Second)}))

	select {
	case <-b.signal:
	default:
		t.Fatal("expected a pending signal")
	}

	got, ok := b.take()
	require.True(t, ok)
	assert.InDelta(t, 0.45, got.UpAsk, 1e-9)

	_, ok = b.take()
	assert.False(t, ok)
}

func TestWork_StopsWhenMarketCloses(t *testing.T) {
	ldg := ledger.New()
	decider := strategy.New(strategy.Config{}, ldg, sizing.New(sizing.Config{}))
	m := New(Config{}, trend.NewDetector(trend.Config{}), ldg, decider, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Track(ctx, domain.Market{ID: "0xm", Type: "btc-15m"}))
	r, ok := m.runner("0xm")
	require.True(t, ok)

	stopped := make(chan struct{})
	go func() {
		m.work(ctx, r)
		close(stopped)
	}()

	// sin ticks pendientes: el cierre por sí solo debe liberar el worker
	_, _, closed, err := m.CloseMarket(ctx, "0xm", domain.SideUp)
	require.NoError(t, err)
	require.True(t, closed)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker still running after the market closed")
	}
}

func TestNewRunner_ClosedMarketStartsDone(t *testing.T) {
	r := newRunner(domain.Market{ID: "0xm", Closed: true, Winner: domain.SideDown})
	select {
	case <-r.done:
	default:
		t.Fatal("runner of a closed market must start done")
	}
}
