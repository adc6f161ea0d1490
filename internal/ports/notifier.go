package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Notifier informa de las liquidaciones y del PnL acumulado.
type Notifier interface {
	NotifySettlement(ctx context.Context, rec domain.SettlementRecord, totalPnL float64) error
}
