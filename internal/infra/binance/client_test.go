package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"swing_go/internal/domain"
)

const klinesBody = `[
  [1700000000000,"100.0","110.0","95.0","105.0","12.5",1700014399999,"0","10","0","0","0"],
  [1700014400000,"105.0","120.0","104.0","118.0","20.0",1700028799999,"0","10","0","0","0"]
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, NewSigner("test-key", "test-secret")), srv
}

func TestClient_Klines(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %s", got)
		}
		w.Write([]byte(klinesBody))
	})

	candles, err := client.Klines(context.Background(), "BTCUSDT", "4h", 6, time.Time{})
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if candles[0].OpenTime != time.UnixMilli(1700000000000).UTC() {
		t.Errorf("open time = %s", candles[0].OpenTime)
	}
	if candles[1].Close.String() != "118" {
		t.Errorf("close = %s, want 118", candles[1].Close)
	}
}

func TestClient_Klines_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty array", `[]`},
		{"not an array", `{"oops":true}`},
		{"short row", `[[1700000000000,"1.0"]]`},
		{"bad number", `[[1700000000000,"x","2","1","2","10",0,"0","0","0","0","0"]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			_, err := client.Klines(context.Background(), "BTCUSDT", "4h", 6, time.Time{})
			if !errors.Is(err, domain.ErrDataUnavailable) {
				t.Fatalf("want ErrDataUnavailable, got %v", err)
			}
		})
	}
}

func TestClient_PlaceOrder_SignsRequest(t *testing.T) {
	var gotHeader, gotQuery, gotSig string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-MBX-APIKEY")
		q := r.URL.Query()
		gotSig = q.Get("signature")
		raw := r.URL.RawQuery
		// Binance signs everything before the signature parameter.
		gotQuery = raw[:len(raw)-len("&signature=")-len(gotSig)]
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"transactTime":1700000000000,"status":"NEW"}`))
	})

	handle, err := client.PlaceOrder(context.Background(), domain.OrderIntent{
		Symbol: "BTCUSDT",
		Side:   domain.SideBuy,
		Kind:   domain.KindLimit,
		Qty:    dec("0.5"),
		Price:  dec("100"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if handle.OrderID != "42" {
		t.Errorf("order id = %s, want 42", handle.OrderID)
	}
	if gotHeader != "test-key" {
		t.Errorf("api key header = %s", gotHeader)
	}

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(gotQuery))
	if want := hex.EncodeToString(mac.Sum(nil)); gotSig != want {
		t.Errorf("signature = %s, want %s", gotSig, want)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"http 429", http.StatusTooManyRequests, `{"code":-1003,"msg":"slow down"}`, domain.ErrRateLimited},
		{"teapot ban", 418, ``, domain.ErrRateLimited},
		{"server error", http.StatusInternalServerError, ``, domain.ErrNetwork},
		{"insufficient balance", http.StatusBadRequest, `{"code":-2010,"msg":"Account has insufficient balance for requested action."}`, domain.ErrInsufficientBalance},
		{"rejected", http.StatusBadRequest, `{"code":-2010,"msg":"Stop price would trigger immediately."}`, domain.ErrOrderRejected},
		{"filter failure", http.StatusBadRequest, `{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`, domain.ErrOrderRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := client.PlaceOrder(context.Background(), domain.OrderIntent{
				Symbol: "BTCUSDT", Side: domain.SideBuy, Kind: domain.KindLimit,
				Qty: dec("1"), Price: dec("100"),
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_CancelRaceIsAlreadyFilled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2011,"msg":"Unknown order sent."}`))
	})

	err := client.CancelOrder(context.Background(), domain.OrderHandle{OrderID: "42", Symbol: "BTCUSDT"})
	if !errors.Is(err, domain.ErrAlreadyFilled) {
		t.Fatalf("want ErrAlreadyFilled, got %v", err)
	}
}

func TestClient_OrderStatusMapping(t *testing.T) {
	tests := []struct {
		exchange string
		want     domain.OrderStatus
	}{
		{"NEW", domain.StatusOpen},
		{"PARTIALLY_FILLED", domain.StatusOpen},
		{"FILLED", domain.StatusFilled},
		{"CANCELED", domain.StatusCanceled},
		{"EXPIRED", domain.StatusCanceled},
		{"REJECTED", domain.StatusRejected},
		{"SOMETHING_NEW", domain.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.exchange, func(t *testing.T) {
			if got := mapOrderStatus(tt.exchange); got != tt.want {
				t.Errorf("mapOrderStatus(%s) = %s, want %s", tt.exchange, got, tt.want)
			}
		})
	}
}

func TestClient_Balance(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balances":[{"asset":"BTC","free":"0.5","locked":"0.1"},{"asset":"USDT","free":"1000","locked":"0"}]}`))
	})

	b, err := client.Balance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if b.Free.String() != "1000" {
		t.Errorf("free = %s, want 1000", b.Free)
	}

	missing, err := client.Balance(context.Background(), "DOGE")
	if err != nil {
		t.Fatalf("Balance missing asset: %v", err)
	}
	if !missing.Free.IsZero() {
		t.Errorf("missing asset free = %s, want 0", missing.Free)
	}
}
