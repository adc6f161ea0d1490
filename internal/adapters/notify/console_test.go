package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/updownbot/internal/adapters/notify"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var settled = time.Date(2024, 11, 14, 20, 16, 0, 0, time.UTC)

func makeRecord(id, slug string, pnl float64) domain.SettlementRecord {
	return domain.SettlementRecord{
		MarketID:   id,
		MarketType: "btc-15m",
		Slug:       slug,
		Winner:     domain.SideUp,
		UpShares:   48,
		DownShares: 48,
		TotalCost:  46.08,
		Payout:     48,
		ActualPnL:  pnl,
		SettledAt:  settled,
	}
}

func TestConsole_NotifySettlement(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	err := n.NotifySettlement(context.Background(), makeRecord("0xabc", "btc-updown-15m-1731614400", 1.92), -3.5)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "MARKET CLOSED btc-updown-15m-1731614400")
	assert.Contains(t, out, "winner: Up")
	assert.Contains(t, out, "period PnL: +$1.92")
	assert.Contains(t, out, "total PnL: -$3.50")
}

func TestConsole_PrintSettlements(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintSettlements([]domain.SettlementRecord{
		makeRecord("0xaaa", "btc-updown-15m-1731614400", 1.92),
		makeRecord("0x0123456789abcdef0123", "", -0.5),
	})

	out := buf.String()
	assert.Contains(t, out, "btc-updown-15m-1731614400")
	assert.Contains(t, out, "0x0123456789abcd", "sin slug se usa el id recortado")
	assert.Contains(t, out, "2 markets")
	assert.Contains(t, out, "win rate 50%")
	assert.Contains(t, out, "total PnL +$1.42")
}

func TestConsole_PrintSettlements_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintSettlements(nil)
	assert.Contains(t, buf.String(), "no settlements recorded")
}

func TestConsole_PrintPositions(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	m := domain.Market{
		ID:    "0xaaa",
		Type:  "eth-1h",
		Slug:  "ethereum-up-or-down-november-14-3pm-et",
		EndAt: settled,
	}
	pos := domain.Position{MarketID: "0xaaa"}.
		Add(domain.SideUp, 48, 0.52).
		Add(domain.SideDown, 48, 0.44)

	n.PrintPositions([]notify.PositionRow{{Market: m, Position: pos, Now: settled.Add(-90 * time.Second)}})

	out := buf.String()
	assert.Contains(t, out, "ethereum-up-or-down-november-14-3pm-et")
	assert.Contains(t, out, "0.9600") // cost per pair
	assert.Contains(t, out, "+$1.92")
	assert.Contains(t, out, "1m30s")
}

func TestConsole_PrintPositions_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintPositions(nil)
	assert.Contains(t, buf.String(), "no open positions")
}
