package ledger_test

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/updownbot/internal/application/ledger"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0)

func TestLedger_GetUnknownIsEmpty(t *testing.T) {
	l := ledger.New()
	p := l.Get("0xnone")
	assert.True(t, p.IsEmpty())
	assert.Equal(t, "0xnone", p.MarketID)
}

func TestLedger_RecordFillUpdatesPosition(t *testing.T) {
	l := ledger.New()
	tr, err := l.RecordFill("0xm", domain.SideUp, 24, 0.52, t0)
	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID)
	_, err = l.RecordFill("0xm", domain.SideUp, 24, 0.52, t0.Add(time.Second))
	require.NoError(t, err)

	p := l.Get("0xm")
	assert.InDelta(t, 48, p.UpShares, 1e-9)
	assert.InDelta(t, 24.96, p.UpCost, 1e-9)
	assert.InDelta(t, 0.52, p.AvgPrice(domain.SideUp), 1e-9)
	assert.Len(t, l.Trades("0xm"), 2)
}

func TestLedger_InvalidFillRejectedWithoutMutation(t *testing.T) {
	l := ledger.New()
	_, err := l.RecordFill("0xm", domain.SideUp, 10, 0.5, t0)
	require.NoError(t, err)

	cases := []struct {
		name  string
		side  domain.Side
		qty   float64
		price float64
	}{
		{"zero qty", domain.SideUp, 0, 0.5},
		{"negative qty", domain.SideDown, -3, 0.5},
		{"price one", domain.SideUp, 5, 1},
		{"price zero", domain.SideUp, 5, 0},
		{"bad side", domain.Side("Yes"), 5, 0.5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := l.RecordFill("0xm", c.side, c.qty, c.price, t0)
			assert.True(t, errors.Is(err, domain.ErrInvalidFill))
		})
	}

	p := l.Get("0xm")
	assert.InDelta(t, 10, p.UpShares, 1e-9)
	assert.Len(t, l.Trades("0xm"), 1)
}

func TestLedger_ProjectIsPure(t *testing.T) {
	l := ledger.New()
	_, err := l.RecordFill("0xm", domain.SideUp, 48, 0.52, t0)
	require.NoError(t, err)

	proj := l.Project("0xm", domain.SideDown, 48, 0.44)
	assert.True(t, proj.HasPairs)
	assert.InDelta(t, 0.96, proj.CostPerPair, 1e-9)

	assert.InDelta(t, 0, l.Get("0xm").DownShares, 1e-9)
}

func TestLedger_FreezeRejectsLaterFills(t *testing.T) {
	l := ledger.New()
	_, err := l.RecordFill("0xm", domain.SideUp, 5, 0.5, t0)
	require.NoError(t, err)

	final := l.Freeze("0xm")
	assert.InDelta(t, 5, final.UpShares, 1e-9)
	assert.True(t, l.Frozen("0xm"))

	_, err = l.RecordFill("0xm", domain.SideDown, 5, 0.4, t0)
	assert.True(t, errors.Is(err, domain.ErrStaleMarket))
	assert.Equal(t, final, l.Freeze("0xm"))
}

// El log de trades reproduce exactamente la posición tras cualquier secuencia.
func TestLedger_ReplayMatchesPosition(t *testing.T) {
	l := ledger.New()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		side := domain.SideUp
		if rng.Intn(2) == 0 {
			side = domain.SideDown
		}
		qty := float64(1 + rng.Intn(30))
		price := 0.01 + rng.Float64()*0.98
		_, err := l.RecordFill("0xm", side, qty, price, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	got := l.Get("0xm")
	replayed := ledger.Replay("0xm", l.Trades("0xm"))
	assert.InDelta(t, got.UpShares, replayed.UpShares, 1e-9)
	assert.InDelta(t, got.UpCost, replayed.UpCost, 1e-9)
	assert.InDelta(t, got.DownShares, replayed.DownShares, 1e-9)
	assert.InDelta(t, got.DownCost, replayed.DownCost, 1e-9)
	assert.InDelta(t, got.UpShares-got.DownShares, got.PnLIfUpWins()-got.PnLIfDownWins(), 1e-6)
}

func TestLedger_RestoreOrdersByFillTime(t *testing.T) {
	l := ledger.New()
	trades := []domain.Trade{
		{ID: "b", MarketID: "0xm", Side: domain.SideDown, Quantity: 10, Price: 0.4, FilledAt: t0.Add(time.Minute)},
		{ID: "a", MarketID: "0xm", Side: domain.SideUp, Quantity: 10, Price: 0.5, FilledAt: t0},
		{ID: "c", MarketID: "0xn", Side: domain.SideUp, Quantity: 3, Price: 0.3, FilledAt: t0},
	}
	require.NoError(t, l.Restore(trades))

	got := l.Trades("0xm")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, []string{"0xm", "0xn"}, l.Markets())
	assert.InDelta(t, 9.0, l.Get("0xm").TotalCost(), 1e-9)
}

func TestLedger_ConcurrentFillsAcrossMarkets(t *testing.T) {
	l := ledger.New()
	var wg sync.WaitGroup
	for _, id := range []string{"0xa", "0xb", "0xc"} {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, _ = l.RecordFill(id, domain.SideUp, 1, 0.5, t0)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range []string{"0xa", "0xb", "0xc"} {
		assert.InDelta(t, 50, l.Get(id).UpShares, 1e-9)
		assert.Len(t, l.Trades(id), 50)
	}
}

func TestLedger_ConcurrentGetNeverSeesHalfAFill(t *testing.T) {
	l := ledger.New()
	const writers, fills = 4, 100

	var (
		writersWG sync.WaitGroup
		readersWG sync.WaitGroup
		torn      atomic.Int32
	)
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		readersWG.Add(1)
		go func() {
			defer readersWG.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p := l.Get("0xm")
				// precios exactos en binario: coste y acciones deben cuadrar siempre
				if p.UpCost != p.UpShares*0.5 || p.DownCost != p.DownShares*0.25 {
					torn.Add(1)
				}
			}
		}()
	}

	for w := 0; w < writers; w++ {
		writersWG.Add(1)
		go func(w int) {
			defer writersWG.Done()
			for i := 0; i < fills; i++ {
				side, price := domain.SideUp, 0.5
				if (w+i)%2 == 1 {
					side, price = domain.SideDown, 0.25
				}
				_, err := l.RecordFill("0xm", side, 1, price, t0)
				assert.NoError(t, err)
			}
		}(w)
	}
	writersWG.Wait()
	close(stop)
	readersWG.Wait()

	assert.Zero(t, torn.Load())
	p := l.Get("0xm")
	assert.InDelta(t, writers*fills, p.UpShares+p.DownShares, 1e-9)
	assert.Len(t, l.Trades("0xm"), writers*fills)
	assert.Equal(t, p.UpShares, ledger.Replay("0xm", l.Trades("0xm")).UpShares)
}
