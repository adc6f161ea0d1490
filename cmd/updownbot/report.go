package main

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/updownbot/internal/adapters/notify"
	"github.com/alejandrodnm/updownbot/internal/adapters/storage"
)

func runReport(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console) error {
	recs, err := store.GetSettlements(ctx)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	console.PrintSettlements(recs)
	return nil
}
