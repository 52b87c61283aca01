package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"swing_go/internal/domain"
	"swing_go/internal/infra/binance"

	"github.com/shopspring/decimal"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (n *recordingNotifier) Notify(a domain.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *recordingNotifier) all() []domain.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Alert(nil), n.alerts...)
}

type staticPosition struct{ pos *domain.Position }

func (s staticPosition) Position() *domain.Position { return s.pos }

func tick(symbol, price string) binance.PriceUpdate {
	return binance.PriceUpdate{
		Symbol: symbol,
		Price:  decimal.RequireFromString(price),
		At:     time.Now().UTC(),
	}
}

func TestMonitorFiresPriceAlertOnce(t *testing.T) {
	inbox := make(chan binance.PriceUpdate, 8)
	n := &recordingNotifier{}
	m := NewMonitor(inbox, n, nil)
	m.AddAlert(domain.NewPriceAlert("BTCUSDT",
		decimal.NewFromInt(110), decimal.NewFromInt(100)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); m.Run(ctx) }()

	inbox <- tick("BTCUSDT", "105") // below target
	inbox <- tick("ETHUSDT", "120") // wrong symbol
	inbox <- tick("BTCUSDT", "111") // fires
	inbox <- tick("BTCUSDT", "112") // already disarmed

	deadline := time.After(time.Second)
	for len(n.all()) == 0 {
		select {
		case <-deadline:
			t.Fatal("alert never fired")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	alerts := n.all()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1 (alert must disarm after firing)", len(alerts))
	}
	if alerts[0].Kind != domain.AlertPriceTarget || alerts[0].Symbol != "BTCUSDT" {
		t.Errorf("alert = %+v", alerts[0])
	}
}

func TestForwardTicksTapsAndForwards(t *testing.T) {
	in := make(chan binance.PriceUpdate, 2)
	out := make(chan binance.PriceUpdate, 2)

	var tapped []string
	var mu sync.Mutex
	tap := func(u binance.PriceUpdate) {
		mu.Lock()
		tapped = append(tapped, u.Symbol)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); ForwardTicks(ctx, in, out, tap) }()

	in <- tick("BTCUSDT", "100")

	select {
	case u := <-out:
		if u.Symbol != "BTCUSDT" {
			t.Errorf("forwarded symbol = %s", u.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("tick never forwarded")
	}
	mu.Lock()
	if len(tapped) != 1 || tapped[0] != "BTCUSDT" {
		t.Errorf("tapped = %v", tapped)
	}
	mu.Unlock()

	cancel()
	<-done
	if _, ok := <-out; ok {
		t.Error("out must be closed after the forwarder stops")
	}
}

func TestForwardTicksShutdownWithBlockedOutput(t *testing.T) {
	in := make(chan binance.PriceUpdate, 1)
	out := make(chan binance.PriceUpdate) // unbuffered, nobody reading

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); ForwardTicks(ctx, in, out, nil) }()

	// The forwarder blocks on the send; cancellation must still stop it.
	in <- tick("BTCUSDT", "100")
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder hung on a full output channel during shutdown")
	}
}

func TestMonitorTracksLastPrice(t *testing.T) {
	inbox := make(chan binance.PriceUpdate, 2)
	m := NewMonitor(inbox, nil, map[string]PositionSource{
		"BTCUSDT": staticPosition{&domain.Position{
			Symbol:     "BTCUSDT",
			EntryPrice: decimal.NewFromInt(100),
			Qty:        decimal.NewFromInt(1),
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); m.Run(ctx) }()

	inbox <- tick("BTCUSDT", "102")

	deadline := time.After(time.Second)
	for {
		if p, ok := m.LastPrice("BTCUSDT"); ok && p.Price.Equal(decimal.NewFromInt(102)) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("tick never recorded")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	if _, ok := m.LastPrice("ETHUSDT"); ok {
		t.Error("unseen symbol must have no last price")
	}
}
