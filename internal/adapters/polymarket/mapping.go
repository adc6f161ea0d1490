package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// mapGammaMarket convierte un gammaMarket a domain.Market.
// Falla si no se pueden identificar los tokens Up y Down.
func mapGammaMarket(gm gammaMarket, asset, timeframe string) (domain.Market, error) {
	var ids, outcomes []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &ids); err != nil {
		return domain.Market{}, fmt.Errorf("clobTokenIds %q: %w", gm.ClobTokenIDs, err)
	}
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("outcomes %q: %w", gm.Outcomes, err)
	}
	if len(ids) != 2 || len(outcomes) != 2 {
		return domain.Market{}, fmt.Errorf("market %s: expected 2 tokens, got %d/%d", gm.Slug, len(ids), len(outcomes))
	}

	m := domain.Market{
		ID:     gm.ConditionID,
		Type:   domain.NewMarketType(asset, timeframe),
		Asset:  strings.ToLower(asset),
		Slug:   gm.Slug,
		EndAt:  parseTime(gm.EndDate),
		Closed: gm.Closed,
	}
	// eventStartTime es el inicio real del periodo; startDate es cuándo se creó el mercado
	m.StartAt = parseTime(gm.EventStartTime)
	if m.StartAt.IsZero() {
		m.StartAt = parseTime(gm.StartDate)
	}

	for i, o := range outcomes {
		side, err := domain.ParseSide(o)
		if err != nil {
			return domain.Market{}, fmt.Errorf("market %s: %w", gm.Slug, err)
		}
		if side == domain.SideUp {
			m.UpTokenID = ids[i]
		} else {
			m.DownTokenID = ids[i]
		}
	}
	if m.UpTokenID == "" || m.DownTokenID == "" {
		return domain.Market{}, fmt.Errorf("market %s: missing Up or Down token", gm.Slug)
	}
	return m, nil
}

// mapMarketStatus extrae cierre y ganador de un clobMarket.
func mapMarketStatus(cm clobMarket) domain.MarketStatus {
	st := domain.MarketStatus{Closed: cm.Closed}
	for _, t := range cm.Tokens {
		if !t.Winner {
			continue
		}
		if side, err := domain.ParseSide(t.Outcome); err == nil {
			st.Winner = side
		}
	}
	return st
}

// parseTime acepta los formatos de fecha que devuelve Polymarket.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05-07",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = mapOrderBook(r.AssetID, r.Bids, r.Asks)
	}
	return result
}

func mapOrderBook(tokenID string, bids, asks []bookEntryRaw) domain.OrderBook {
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    mapBookEntries(bids, false),
		Asks:    mapBookEntries(asks, true),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}

// tickFromBooks arma un PriceTick con los mejores asks de ambos tokens.
// Un lado sin asks queda en 0 y el motor lo trata como sin cotización.
func tickFromBooks(m domain.Market, books map[string]domain.OrderBook, at time.Time) domain.PriceTick {
	return domain.PriceTick{
		MarketID:   m.ID,
		UpAsk:      books[m.UpTokenID].BestAsk(),
		DownAsk:    books[m.DownTokenID].BestAsk(),
		ObservedAt: at,
	}
}
