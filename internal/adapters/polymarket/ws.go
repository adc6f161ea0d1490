package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	// DefaultMarketWSURL es el canal market público del CLOB.
	DefaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	reconnectWait = 2 * time.Second
	pingInterval  = 10 * time.Second
	writeTimeout  = 5 * time.Second
)

// StreamFeed recibe los eventos book y price_change del canal market por
// websocket y emite un PriceTick cuando cambia el mejor ask de un mercado.
// Implementa ports.PriceFeed.
type StreamFeed struct {
	url    string
	dialer *websocket.Dialer
	now    func() time.Time

	watched watchList

	mu     sync.Mutex
	tokens map[string]string  // token id → market id
	asks   map[string]float64 // token id → mejor ask conocido
	conn   *websocket.Conn
	// writeMu serializa las escrituras; gorilla no admite escritores concurrentes
	writeMu sync.Mutex
}

// NewStreamFeed crea un feed websocket. url vacío usa DefaultMarketWSURL.
func NewStreamFeed(url string) *StreamFeed {
	if url == "" {
		url = DefaultMarketWSURL
	}
	return &StreamFeed{
		url:     url,
		dialer:  websocket.DefaultDialer,
		now:     time.Now,
		watched: newWatchList(),
		tokens:  make(map[string]string),
		asks:    make(map[string]float64),
	}
}

// Watch suscribe los tokens del mercado. Si aún no hay conexión, la
// suscripción se envía al conectar.
func (f *StreamFeed) Watch(m domain.Market) {
	f.watched.add(m)
	f.mu.Lock()
	f.tokens[m.UpTokenID] = m.ID
	f.tokens[m.DownTokenID] = m.ID
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		msg := wsSubscribe{AssetsIDs: []string{m.UpTokenID, m.DownTokenID}, Operation: "subscribe"}
		if err := f.write(conn, msg); err != nil {
			slog.Warn("polymarket: ws subscribe failed", "market", domain.ShortID(m.ID), "err", err)
		}
	}
}

// Unwatch deja de seguir un mercado.
func (f *StreamFeed) Unwatch(id string) {
	m, ok := f.watched.remove(id)
	if !ok {
		return
	}
	f.mu.Lock()
	for _, tok := range []string{m.UpTokenID, m.DownTokenID} {
		delete(f.tokens, tok)
		delete(f.asks, tok)
	}
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		msg := wsSubscribe{AssetsIDs: []string{m.UpTokenID, m.DownTokenID}, Operation: "unsubscribe"}
		if err := f.write(conn, msg); err != nil {
			slog.Debug("polymarket: ws unsubscribe failed", "market", domain.ShortID(id), "err", err)
		}
	}
}

// Run mantiene la conexión abierta, reconectando tras cada caída, hasta que
// ctx se cancela.
func (f *StreamFeed) Run(ctx context.Context, out chan<- domain.PriceTick) error {
	for {
		err := f.session(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("polymarket: ws session ended, reconnecting", "err", err, "wait", reconnectWait)

		t := time.NewTimer(reconnectWait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session abre una conexión, suscribe todos los tokens y lee hasta un error.
func (f *StreamFeed) session(ctx context.Context, out chan<- domain.PriceTick) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}

	f.mu.Lock()
	f.conn = conn
	ids := make([]string, 0, len(f.tokens))
	for tok := range f.tokens {
		ids = append(ids, tok)
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		conn.Close()
	}()

	if err := f.write(conn, wsSubscribe{AssetsIDs: ids, Type: "market"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	slog.Info("polymarket: ws connected", "url", f.url, "tokens", len(ids))

	done := make(chan struct{})
	defer close(done)
	go f.keepAlive(ctx, conn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		for _, t := range f.handleMessage(msg) {
			select {
			case out <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// keepAlive manda pings periódicos y cierra la conexión al cancelar ctx,
// lo que desbloquea ReadMessage.
func (f *StreamFeed) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			f.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			f.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (f *StreamFeed) write(conn *websocket.Conn, payload any) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}

// handleMessage aplica un mensaje del canal y devuelve un tick por cada
// mercado cuyo mejor ask cambió y tiene cotización en ambos lados.
func (f *StreamFeed) handleMessage(msg []byte) []domain.PriceTick {
	events, err := decodeEvents(msg)
	if err != nil {
		slog.Debug("polymarket: ws message ignored", "err", err)
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	touched := make(map[string]bool)
	update := func(tokenID string, ask float64) {
		marketID, ok := f.tokens[tokenID]
		if !ok || ask <= 0 {
			return
		}
		if f.asks[tokenID] != ask {
			f.asks[tokenID] = ask
			touched[marketID] = true
		}
	}

	for _, ev := range events {
		switch ev.EventType {
		case "book":
			book := mapOrderBook(ev.AssetID, ev.Bids, ev.Asks)
			update(ev.AssetID, book.BestAsk())
		case "price_change":
			for _, pc := range ev.PriceChanges {
				update(pc.AssetID, domain.ParsePrice(pc.BestAsk))
			}
		}
	}

	if len(touched) == 0 {
		return nil
	}
	at := f.now()
	var ticks []domain.PriceTick
	for _, m := range f.watched.snapshot() {
		if !touched[m.ID] {
			continue
		}
		up, down := f.asks[m.UpTokenID], f.asks[m.DownTokenID]
		if up == 0 || down == 0 {
			continue
		}
		ticks = append(ticks, domain.PriceTick{MarketID: m.ID, UpAsk: up, DownAsk: down, ObservedAt: at})
	}
	return ticks
}

// decodeEvents acepta tanto un evento suelto como un array de eventos.
func decodeEvents(msg []byte) ([]wsEvent, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return nil, errors.New("empty message")
	}
	if msg[0] == '[' {
		var evs []wsEvent
		if err := json.Unmarshal(msg, &evs); err != nil {
			return nil, err
		}
		return evs, nil
	}
	var ev wsEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return nil, err
	}
	return []wsEvent{ev}, nil
}
