package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Console implementa ports.Notifier escribiendo en texto plano.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador sobre w (tests, ficheros).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifySettlement imprime el resultado del mercado cerrado y el PnL acumulado.
func (c *Console) NotifySettlement(_ context.Context, rec domain.SettlementRecord, totalPnL float64) error {
	fmt.Fprintf(c.out, "\n[%s] MARKET CLOSED %s (%s)\n",
		rec.SettledAt.Local().Format("15:04:05"), marketLabel(rec.Slug, rec.MarketID), rec.MarketType)
	fmt.Fprintf(c.out, "  winner: %s | up %.2f | down %.2f | cost $%.2f | payout $%.2f\n",
		rec.Winner, rec.UpShares, rec.DownShares, rec.TotalCost, rec.Payout)
	fmt.Fprintf(c.out, "  period PnL: %s | total PnL: %s\n\n", signed(rec.ActualPnL), signed(totalPnL))
	return nil
}

// PositionRow es una fila del resumen de posiciones abiertas.
type PositionRow struct {
	Market   domain.Market
	Position domain.Position
	Now      time.Time
}

// PrintPositions imprime la tabla de posiciones abiertas con sus PnL por escenario.
func (c *Console) PrintPositions(rows []PositionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "no open positions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Type", "Up", "Down", "Avg Up", "Avg Down", "Cost", "Cost/Pair", "PnL Up", "PnL Down", "Closes in")

	for _, r := range rows {
		p := r.Position
		cpp := "-"
		if v, ok := p.CostPerPair(); ok {
			cpp = fmt.Sprintf("%.4f", v)
		}
		table.Append(
			marketLabel(r.Market.Slug, r.Market.ID),
			string(r.Market.Type),
			fmt.Sprintf("%.2f", p.UpShares),
			fmt.Sprintf("%.2f", p.DownShares),
			avgLabel(p, domain.SideUp),
			avgLabel(p, domain.SideDown),
			fmt.Sprintf("$%.2f", p.TotalCost()),
			cpp,
			signed(p.PnLIfUpWins()),
			signed(p.PnLIfDownWins()),
			r.Market.TimeToClose(r.Now).Round(time.Second).String(),
		)
	}
	table.Render()
}

// PrintSettlements imprime el informe de liquidaciones y el total realizado.
func (c *Console) PrintSettlements(recs []domain.SettlementRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "no settlements recorded")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Settled", "Market", "Type", "Winner", "Up", "Down", "Cost", "Payout", "PnL")

	var total, wins float64
	for i, r := range recs {
		total += r.ActualPnL
		if r.ActualPnL > 0 {
			wins++
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			r.SettledAt.UTC().Format("2006-01-02 15:04"),
			marketLabel(r.Slug, r.MarketID),
			string(r.MarketType),
			string(r.Winner),
			fmt.Sprintf("%.2f", r.UpShares),
			fmt.Sprintf("%.2f", r.DownShares),
			fmt.Sprintf("$%.2f", r.TotalCost),
			fmt.Sprintf("$%.2f", r.Payout),
			signed(r.ActualPnL),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  %d markets | win rate %.0f%% | total PnL %s\n",
		len(recs), 100*wins/float64(len(recs)), signed(total))
}

// --- helpers ---

func marketLabel(slug, id string) string {
	if slug != "" {
		return truncate(slug, 40)
	}
	return domain.ShortID(id)
}

func avgLabel(p domain.Position, side domain.Side) string {
	if p.Shares(side) == 0 {
		return "-"
	}
	return fmt.Sprintf("%.4f", p.AvgPrice(side))
}

func signed(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
