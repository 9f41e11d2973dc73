// Package feed ingests real-time broker ticks over WebSocket and publishes
// last traded prices into the price cache consumed by the monitor loop.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/awsshrinath/autotrade/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// resubscribePeriod re-checks the live symbol set against the current
	// subscription.
	resubscribePeriod = 10 * time.Second
)

// PriceSink receives each decoded tick. Implemented by the Redis LTP cache.
type PriceSink interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
}

// SymbolSource reports the symbols worth subscribing to, typically the
// position table's live symbol set.
type SymbolSource func() []string

// tickMessage is the broker bridge tick wire format.
type tickMessage struct {
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	TS     int64   `json:"ts"` // Unix milliseconds
}

type subscribeCommand struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// TickerFeed maintains a WebSocket connection to the broker tick stream,
// keeps its subscription aligned with the live symbol set, and writes every
// tick into the price sink. It reconnects with exponential backoff.
type TickerFeed struct {
	wsURL   string
	sink    PriceSink
	symbols SymbolSource
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed for the given tick stream URL.
func NewTickerFeed(wsURL string, sink PriceSink, symbols SymbolSource, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		wsURL:   wsURL,
		sink:    sink,
		symbols: symbols,
		logger:  logger.With(slog.String("component", "ticker_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and streams ticks until ctx is cancelled or Close is called.
// Each disconnect is retried with exponential backoff; the backoff resets
// after every successful connection.
func (f *TickerFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			if err := f.runConnection(ctx); err != nil {
				if ctx.Err() != nil {
					return struct{}{}, backoff.Permanent(err)
				}
				f.logger.Warn("tick stream disconnected, reconnecting",
					slog.String("error", err.Error()),
				)
				return struct{}{}, err
			}
			return struct{}{}, nil
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: %w", err)
		}

		select {
		case <-f.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Clean connection close without shutdown; reconnect fresh.
		}
	}
}

// Close stops the feed.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *TickerFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var writeMu sync.Mutex
	send := func(cmd subscribeCommand) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(cmd)
	}

	subscribed := f.currentSymbols()
	if len(subscribed) > 0 {
		if err := send(subscribeCommand{Action: "subscribe", Symbols: subscribed}); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	f.logger.Info("tick stream connected", slog.Int("symbols", len(subscribed)))

	connDone := make(chan struct{})
	defer close(connDone)
	go f.keepalive(ctx, conn, &writeMu, connDone, send, &subscribed)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w: %v", domain.ErrWSDisconnect, err)
		}

		var tick tickMessage
		if err := json.Unmarshal(raw, &tick); err != nil {
			f.logger.Debug("unparseable tick dropped", slog.String("error", err.Error()))
			continue
		}
		if tick.Symbol == "" || tick.LTP <= 0 {
			continue
		}

		ts := time.UnixMilli(tick.TS)
		if tick.TS == 0 {
			ts = time.Now().UTC()
		}
		if err := f.sink.SetPrice(ctx, tick.Symbol, tick.LTP, ts); err != nil {
			f.logger.Warn("price sink write failed",
				slog.String("symbol", tick.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// keepalive pings the peer and realigns the subscription with the live
// symbol set while the connection lasts.
func (f *TickerFeed) keepalive(
	ctx context.Context,
	conn *websocket.Conn,
	writeMu *sync.Mutex,
	connDone <-chan struct{},
	send func(subscribeCommand) error,
	subscribed *[]string,
) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	resub := time.NewTicker(resubscribePeriod)
	defer resub.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-connDone:
			return
		case <-ping.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				// Read loop will observe the broken connection.
				return
			}
		case <-resub.C:
			want := f.currentSymbols()
			if symbolsEqual(want, *subscribed) {
				continue
			}
			if err := send(subscribeCommand{Action: "subscribe", Symbols: want}); err != nil {
				return
			}
			*subscribed = want
			f.logger.Info("tick subscription updated", slog.Int("symbols", len(want)))
		}
	}
}

func (f *TickerFeed) currentSymbols() []string {
	if f.symbols == nil {
		return nil
	}
	syms := f.symbols()
	sort.Strings(syms)
	return syms
}

func symbolsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
