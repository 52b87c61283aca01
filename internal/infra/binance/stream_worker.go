package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// DefaultWSURL is the Binance combined-stream websocket endpoint.
const DefaultWSURL = "wss://stream.binance.com:9443"

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsMaxRetries       = 10
)

// PriceUpdate is a last-price tick from the miniTicker stream.
type PriceUpdate struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// StreamWorker maintains a miniTicker websocket subscription with automatic
// reconnection. Ticks are delivered to the inbox; a full inbox drops ticks
// rather than stalling the read loop.
type StreamWorker struct {
	wsURL   string
	symbols []string
	inbox   chan<- PriceUpdate

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewStreamWorker creates a worker for the given symbols.
func NewStreamWorker(wsURL string, symbols []string, inbox chan<- PriceUpdate) *StreamWorker {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &StreamWorker{
		wsURL:   strings.TrimRight(wsURL, "/"),
		symbols: symbols,
		inbox:   inbox,
	}
}

// Connect starts the connection loop.
func (w *StreamWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

func (w *StreamWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ticker stream panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("ticker stream connection loop stopped")
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("ticker stream connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := backoffDelay(retryCount)
			retryCount++
			if retryCount > wsMaxRetries {
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		w.readLoop(ctx)
	}
}

func backoffDelay(retryCount int) time.Duration {
	if retryCount > 6 {
		retryCount = 6
	}
	return time.Duration(1<<retryCount) * time.Second
}

// streamPath builds the combined-stream URL for the subscribed symbols.
func (w *StreamWorker) streamPath() string {
	streams := make([]string, 0, len(w.symbols))
	for _, s := range w.symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	return w.wsURL + "/stream?streams=" + strings.Join(streams, "/")
}

func (w *StreamWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, w.streamPath(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	// Binance pings every few minutes; answer and push the deadline out.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	slog.Info("ticker stream connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

func (w *StreamWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ticker stream read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		w.handleMessage(message)
	}
}

func (w *StreamWorker) handleMessage(message []byte) {
	update, ok := parseMiniTicker(message)
	if !ok {
		return
	}

	if w.inbox != nil {
		select {
		case w.inbox <- update:
		default:
			slog.Warn("ticker inbox full, dropping tick", slog.String("symbol", update.Symbol))
		}
	}
}

// parseMiniTicker extracts a price update from a combined-stream message.
func parseMiniTicker(message []byte) (PriceUpdate, bool) {
	var msg combinedStreamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return PriceUpdate{}, false
	}
	if msg.Data.EventType != "24hrMiniTicker" || msg.Data.Symbol == "" {
		return PriceUpdate{}, false
	}

	price, err := decimal.NewFromString(msg.Data.Close)
	if err != nil {
		return PriceUpdate{}, false
	}

	return PriceUpdate{
		Symbol: msg.Data.Symbol,
		Price:  price,
		At:     time.UnixMilli(msg.Data.EventTime).UTC(),
	}, true
}

func (w *StreamWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect closes the connection and stops the loops.
func (w *StreamWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	slog.Info("ticker stream disconnected")
}

// IsConnected returns connection status.
func (w *StreamWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
