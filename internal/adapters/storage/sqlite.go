package storage

// sqlite.go: persistencia del ledger y de las liquidaciones.
//
// Estrategia:
//   - `markets`: una fila por mercado (UPSERT). Al arrancar se recargan los abiertos.
//   - `trades`: log append-only de fills confirmados. Es la fuente de verdad de la
//     posición; nunca se guardan medias ni totales derivados.
//   - `settlements`: una fila por mercado cerrado. Guardar dos veces no duplica.
//   - Prune al arrancar: mercados liquidados hace más de 30 días y sus trades.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS markets (
    condition_id  TEXT PRIMARY KEY,
    market_type   TEXT NOT NULL,
    asset         TEXT,
    slug          TEXT,
    up_token_id   TEXT,
    down_token_id TEXT,
    start_at      TEXT,
    end_at        TEXT,
    closed        INTEGER NOT NULL DEFAULT 0,
    winner        TEXT,
    updated_at    TEXT NOT NULL
);

-- Log append-only de fills
CREATE TABLE IF NOT EXISTS trades (
    id           TEXT PRIMARY KEY,
    condition_id TEXT NOT NULL,
    side         TEXT NOT NULL,
    quantity     REAL NOT NULL,
    price        REAL NOT NULL,
    order_id     TEXT,
    filled_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settlements (
    condition_id TEXT PRIMARY KEY,
    market_type  TEXT NOT NULL,
    slug         TEXT,
    winner       TEXT NOT NULL,
    up_shares    REAL NOT NULL,
    down_shares  REAL NOT NULL,
    total_cost   REAL NOT NULL,
    payout       REAL NOT NULL,
    actual_pnl   REAL NOT NULL,
    settled_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_market  ON trades(condition_id, filled_at);
CREATE INDEX IF NOT EXISTS idx_markets_closed ON markets(closed);
CREATE INDEX IF NOT EXISTS idx_settled_at     ON settlements(settled_at);
`

const retentionSettled = 30 * 24 * time.Hour

// timeLayout tiene ancho fijo para que el orden textual coincida con el
// cronológico; los trades se ordenan por filled_at.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStorage implementa ports.TradeStore y ports.SettlementStore usando
// SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background(), time.Now().UTC())
	return s, nil
}

// SaveMarket inserta o actualiza un mercado.
func (s *SQLiteStorage) SaveMarket(ctx context.Context, m domain.Market) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (condition_id, market_type, asset, slug, up_token_id, down_token_id,
		                     start_at, end_at, closed, winner, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
		    market_type   = excluded.market_type,
		    asset         = excluded.asset,
		    slug          = excluded.slug,
		    up_token_id   = excluded.up_token_id,
		    down_token_id = excluded.down_token_id,
		    start_at      = excluded.start_at,
		    end_at        = excluded.end_at,
		    closed        = MAX(markets.closed, excluded.closed),
		    winner        = COALESCE(NULLIF(excluded.winner, ''), markets.winner),
		    updated_at    = excluded.updated_at
	`,
		m.ID, string(m.Type), m.Asset, m.Slug, m.UpTokenID, m.DownTokenID,
		formatTime(m.StartAt), formatTime(m.EndAt), boolToInt(m.Closed), string(m.Winner),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveMarket %s: %w", domain.ShortID(m.ID), err)
	}
	return nil
}

// SaveTrade añade un trade al log. Un id repetido se ignora.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades (id, condition_id, side, quantity, price, order_id, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.MarketID, string(t.Side), t.Quantity, t.Price, t.OrderID, t.FilledAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("storage.SaveTrade %s: %w", domain.ShortID(t.MarketID), err)
	}
	return nil
}

// GetOpenMarkets devuelve los mercados no cerrados, por hora de cierre.
func (s *SQLiteStorage) GetOpenMarkets(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, market_type, asset, slug, up_token_id, down_token_id,
		       start_at, end_at, closed, winner
		FROM markets
		WHERE closed = 0
		ORDER BY end_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenMarkets: query: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var (
			m                                                 domain.Market
			mtype                                             string
			asset, slug, upTok, downTok, start, endAt, winner sql.NullString
			closed                                            int
		)
		if err := rows.Scan(&m.ID, &mtype, &asset, &slug, &upTok, &downTok, &start, &endAt, &closed, &winner); err != nil {
			return nil, fmt.Errorf("storage.GetOpenMarkets: scan row: %w", err)
		}
		m.Type = domain.MarketType(mtype)
		m.Asset = asset.String
		m.Slug = slug.String
		m.UpTokenID = upTok.String
		m.DownTokenID = downTok.String
		m.StartAt = parseTime(start.String)
		m.EndAt = parseTime(endAt.String)
		m.Closed = closed == 1
		m.Winner = domain.Side(winner.String)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// GetTrades devuelve el log de un mercado en orden de fill.
func (s *SQLiteStorage) GetTrades(ctx context.Context, marketID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, condition_id, side, quantity, price, order_id, filled_at
		FROM trades
		WHERE condition_id = ?
		ORDER BY filled_at ASC, rowid ASC
	`, marketID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t        domain.Trade
			side     string
			orderID  sql.NullString
			filledAt string
		)
		if err := rows.Scan(&t.ID, &t.MarketID, &side, &t.Quantity, &t.Price, &orderID, &filledAt); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: scan row: %w", err)
		}
		t.Side = domain.Side(side)
		t.OrderID = orderID.String
		t.FilledAt = parseTime(filledAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveSettlement guarda la liquidación y marca el mercado como cerrado.
// Repetirla para el mismo mercado no cambia nada.
func (s *SQLiteStorage) SaveSettlement(ctx context.Context, rec domain.SettlementRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSettlement: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO settlements (condition_id, market_type, slug, winner, up_shares, down_shares,
		                                   total_cost, payout, actual_pnl, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.MarketID, string(rec.MarketType), rec.Slug, string(rec.Winner), rec.UpShares, rec.DownShares,
		rec.TotalCost, rec.Payout, rec.ActualPnL, rec.SettledAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("storage.SaveSettlement: insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE markets SET closed = 1, winner = ?, updated_at = ? WHERE condition_id = ?`,
		string(rec.Winner), time.Now().UTC().Format(timeLayout), rec.MarketID,
	); err != nil {
		return fmt.Errorf("storage.SaveSettlement: close market: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSettlement: commit: %w", err)
	}
	return nil
}

// GetSettlements devuelve todas las liquidaciones en orden cronológico.
func (s *SQLiteStorage) GetSettlements(ctx context.Context) ([]domain.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, market_type, slug, winner, up_shares, down_shares,
		       total_cost, payout, actual_pnl, settled_at
		FROM settlements
		ORDER BY settled_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetSettlements: query: %w", err)
	}
	defer rows.Close()

	var recs []domain.SettlementRecord
	for rows.Next() {
		var (
			r                 domain.SettlementRecord
			mtype, winner, at string
			slug              sql.NullString
		)
		if err := rows.Scan(&r.MarketID, &mtype, &slug, &winner, &r.UpShares, &r.DownShares,
			&r.TotalCost, &r.Payout, &r.ActualPnL, &at); err != nil {
			return nil, fmt.Errorf("storage.GetSettlements: scan row: %w", err)
		}
		r.MarketType = domain.MarketType(mtype)
		r.Slug = slug.String
		r.Winner = domain.Side(winner)
		r.SettledAt = parseTime(at)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina mercados liquidados hace tiempo junto con sus trades.
// Las filas de settlements se conservan para el informe.
func (s *SQLiteStorage) pruneOld(ctx context.Context, now time.Time) {
	cutoff := now.Add(-retentionSettled).Format(timeLayout)
	s.db.ExecContext(ctx, `
		DELETE FROM trades WHERE condition_id IN (
		    SELECT condition_id FROM settlements WHERE settled_at < ?)`, cutoff)
	s.db.ExecContext(ctx, `
		DELETE FROM markets WHERE closed = 1 AND condition_id IN (
		    SELECT condition_id FROM settlements WHERE settled_at < ?)`, cutoff)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
