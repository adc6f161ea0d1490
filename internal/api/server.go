// Package api exposes a read-only HTTP view of the engine: tracked markets,
// their positions and the settlement history, plus health and metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/metrics"
)

// MarketView is the engine side the server reads.
type MarketView interface {
	Markets() []domain.Market
	Market(marketID string) (domain.Market, bool)
	Wave(marketID string) domain.WaveState
}

// PositionView is the ledger side the server reads.
type PositionView interface {
	Get(marketID string) domain.Position
	Trades(marketID string) []domain.Trade
}

// SettlementView is the resolver side the server reads.
type SettlementView interface {
	Settlements() []domain.SettlementRecord
	TotalPnL() float64
}

// Server serves the status API.
type Server struct {
	markets     MarketView
	positions   PositionView
	settlements SettlementView
	now         func() time.Time
}

// NewServer creates a Server.
func NewServer(markets MarketView, positions PositionView, settlements SettlementView) *Server {
	return &Server{
		markets:     markets,
		positions:   positions,
		settlements: settlements,
		now:         time.Now,
	}
}

// Routes builds the router with the standard middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "updownbot"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/markets", s.ListMarkets)
		r.Get("/markets/{marketID}", s.GetMarket)
		r.Get("/markets/{marketID}/trades", s.GetTrades)
		r.Get("/settlements", s.ListSettlements)
	})
	return r
}

type positionResponse struct {
	UpShares      float64  `json:"up_shares"`
	UpCost        float64  `json:"up_cost"`
	DownShares    float64  `json:"down_shares"`
	DownCost      float64  `json:"down_cost"`
	AvgUp         float64  `json:"avg_up"`
	AvgDown       float64  `json:"avg_down"`
	TotalCost     float64  `json:"total_cost"`
	Pairs         float64  `json:"pairs"`
	CostPerPair   *float64 `json:"cost_per_pair"`
	PnLIfUpWins   float64  `json:"pnl_if_up_wins"`
	PnLIfDownWins float64  `json:"pnl_if_down_wins"`
}

type marketResponse struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	Slug           string           `json:"slug,omitempty"`
	StartAt        time.Time        `json:"start_at"`
	EndAt          time.Time        `json:"end_at"`
	SecondsToClose float64          `json:"seconds_to_close"`
	Closed         bool             `json:"closed"`
	Winner         string           `json:"winner,omitempty"`
	ExpansionBuys  int              `json:"expansion_buys"`
	Position       positionResponse `json:"position"`
}

type tradeResponse struct {
	ID       string    `json:"id"`
	Side     string    `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	OrderID  string    `json:"order_id,omitempty"`
	FilledAt time.Time `json:"filled_at"`
}

type settlementResponse struct {
	MarketID   string    `json:"market_id"`
	Type       string    `json:"type"`
	Slug       string    `json:"slug,omitempty"`
	Winner     string    `json:"winner"`
	UpShares   float64   `json:"up_shares"`
	DownShares float64   `json:"down_shares"`
	TotalCost  float64   `json:"total_cost"`
	Payout     float64   `json:"payout"`
	PnL        float64   `json:"pnl"`
	SettledAt  time.Time `json:"settled_at"`
}

type settlementsResponse struct {
	Settlements []settlementResponse `json:"settlements"`
	TotalPnL    float64              `json:"total_pnl"`
}

// ListMarkets handles GET /api/v1/markets
func (s *Server) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.markets.Markets()
	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, s.marketResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Server) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, ok := s.markets.Market(chi.URLParam(r, "marketID"))
	if !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.marketResponse(m))
}

// GetTrades handles GET /api/v1/markets/{marketID}/trades
func (s *Server) GetTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "marketID")
	if _, ok := s.markets.Market(id); !ok {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	trades := s.positions.Trades(id)
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeResponse{
			ID:       t.ID,
			Side:     string(t.Side),
			Quantity: t.Quantity,
			Price:    t.Price,
			OrderID:  t.OrderID,
			FilledAt: t.FilledAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListSettlements handles GET /api/v1/settlements
func (s *Server) ListSettlements(w http.ResponseWriter, r *http.Request) {
	recs := s.settlements.Settlements()
	out := settlementsResponse{
		Settlements: make([]settlementResponse, 0, len(recs)),
		TotalPnL:    s.settlements.TotalPnL(),
	}
	for _, rec := range recs {
		out.Settlements = append(out.Settlements, settlementResponse{
			MarketID:   rec.MarketID,
			Type:       string(rec.MarketType),
			Slug:       rec.Slug,
			Winner:     string(rec.Winner),
			UpShares:   rec.UpShares,
			DownShares: rec.DownShares,
			TotalCost:  rec.TotalCost,
			Payout:     rec.Payout,
			PnL:        rec.ActualPnL,
			SettledAt:  rec.SettledAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) marketResponse(m domain.Market) marketResponse {
	p := s.positions.Get(m.ID)
	pr := positionResponse{
		UpShares:      p.UpShares,
		UpCost:        p.UpCost,
		DownShares:    p.DownShares,
		DownCost:      p.DownCost,
		AvgUp:         p.AvgPrice(domain.SideUp),
		AvgDown:       p.AvgPrice(domain.SideDown),
		TotalCost:     p.TotalCost(),
		Pairs:         p.Pairs(),
		PnLIfUpWins:   p.PnLIfUpWins(),
		PnLIfDownWins: p.PnLIfDownWins(),
	}
	if cpp, ok := p.CostPerPair(); ok {
		pr.CostPerPair = &cpp
	}
	return marketResponse{
		ID:             m.ID,
		Type:           string(m.Type),
		Slug:           m.Slug,
		StartAt:        m.StartAt,
		EndAt:          m.EndAt,
		SecondsToClose: m.TimeToClose(s.now()).Seconds(),
		Closed:         m.Closed,
		Winner:         string(m.Winner),
		ExpansionBuys:  s.markets.Wave(m.ID).ExpansionBuys,
		Position:       pr,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
