package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// TradeStore persiste mercados y el log de trades del ledger.
type TradeStore interface {
	SaveMarket(ctx context.Context, m domain.Market) error
	SaveTrade(ctx context.Context, t domain.Trade) error
	GetOpenMarkets(ctx context.Context) ([]domain.Market, error)
	GetTrades(ctx context.Context, marketID string) ([]domain.Trade, error)
}

// SettlementStore persiste las liquidaciones. Guardar dos veces el mismo
// mercado no crea un segundo registro.
type SettlementStore interface {
	SaveSettlement(ctx context.Context, rec domain.SettlementRecord) error
	GetSettlements(ctx context.Context) ([]domain.SettlementRecord, error)
}
