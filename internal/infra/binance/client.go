package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"swing_go/internal/domain"
	"swing_go/internal/infra"

	"github.com/shopspring/decimal"
)

// DefaultRestURL is the Binance spot REST endpoint.
const DefaultRestURL = "https://api.binance.com"

const recvWindowMS = 5000

// Client talks to the Binance spot REST API. The market path (klines, ticker)
// is public; the trade path (account, order) is signed. All trade-path calls
// go through a rate limiter and a circuit breaker; retry policy lives one
// layer up, in the gateway decorator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	breaker    *infra.CircuitBreaker

	orderLimiter   *infra.RateLimiter
	accountLimiter *infra.RateLimiter
	marketLimiter  *infra.RateLimiter
}

// NewClient creates a REST client. signer may be nil for market-data-only use;
// trade-path calls will then fail fast.
func NewClient(baseURL string, signer *Signer) *Client {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		signer:         signer,
		breaker:        infra.NewDefaultCircuitBreaker("binance-trade"),
		orderLimiter:   infra.OrderLimiter(),
		accountLimiter: infra.AccountLimiter(),
		marketLimiter:  infra.MarketLimiter(),
	}
}

// Close wipes credentials.
func (c *Client) Close() error {
	c.signer.Wipe()
	return nil
}

// ---- market path ----

// Klines fetches recent OHLCV candles. No internal retry: a market data
// failure is not urgent and the trading loop simply skips the cycle.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int, since time.Time) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if !since.IsZero() {
		q.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}

	body, err := c.do(ctx, http.MethodGet, "/api/v3/klines", q, false, c.marketLimiter)
	if err != nil {
		return nil, err
	}

	candles, err := parseKlines(body)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateSeries(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// parseKlines converts the 12-field kline tuples into candles.
func parseKlines(body []byte) ([]domain.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty kline response", domain.ErrDataUnavailable)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%w: kline %d has %d fields", domain.ErrDataUnavailable, i, len(row))
		}

		var openTimeMS int64
		if err := json.Unmarshal(row[0], &openTimeMS); err != nil {
			return nil, fmt.Errorf("%w: kline %d open time: %v", domain.ErrDataUnavailable, i, err)
		}

		var c domain.Candle
		c.OpenTime = time.UnixMilli(openTimeMS).UTC()

		fields := []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		for j, dst := range fields {
			var s string
			if err := json.Unmarshal(row[j+1], &s); err != nil {
				return nil, fmt.Errorf("%w: kline %d field %d: %v", domain.ErrDataUnavailable, i, j+1, err)
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("%w: kline %d field %d: %v", domain.ErrDataUnavailable, i, j+1, err)
			}
			*dst = d
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// LastPrice fetches the current ticker price for a symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/api/v3/ticker/price", q, false, c.marketLimiter)
	if err != nil {
		return decimal.Zero, err
	}

	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ticker price %q", domain.ErrDataUnavailable, resp.Price)
	}
	return price, nil
}

// ---- trade path ----

// Balance fetches the available balance for one asset.
func (c *Client) Balance(ctx context.Context, asset string) (domain.Balance, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true, c.accountLimiter)
	if err != nil {
		return domain.Balance{}, err
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("%w: account: %v", domain.ErrNetwork, err)
	}

	for _, b := range resp.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return domain.Balance{}, fmt.Errorf("%w: balance free %q", domain.ErrNetwork, b.Free)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return domain.Balance{}, fmt.Errorf("%w: balance locked %q", domain.ErrNetwork, b.Locked)
		}
		return domain.Balance{Asset: asset, Free: free, Locked: locked}, nil
	}
	return domain.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}, nil
}

// PlaceOrder submits an order and returns its exchange handle.
func (c *Client) PlaceOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderHandle, error) {
	q := url.Values{}
	q.Set("symbol", intent.Symbol)
	q.Set("side", string(intent.Side))
	q.Set("type", string(intent.Kind))
	q.Set("quantity", intent.Qty.String())
	if intent.Kind != domain.KindMarket {
		q.Set("price", intent.Price.String())
		q.Set("timeInForce", "GTC")
	}
	if intent.Kind == domain.KindStopLimit {
		q.Set("stopPrice", intent.StopPrice.String())
	}
	if intent.ClientID != "" {
		q.Set("newClientOrderId", intent.ClientID)
	}

	body, err := c.do(ctx, http.MethodPost, "/api/v3/order", q, true, c.orderLimiter)
	if err != nil {
		return domain.OrderHandle{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderHandle{}, fmt.Errorf("%w: order response: %v", domain.ErrNetwork, err)
	}
	if resp.OrderID == 0 {
		return domain.OrderHandle{}, fmt.Errorf("%w: no order id in response", domain.ErrOrderRejected)
	}

	return domain.OrderHandle{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol:      resp.Symbol,
		SubmittedAt: time.UnixMilli(resp.TransactTime).UTC(),
	}, nil
}

// Order looks up the exchange's view of an order. A well-formed response
// with an unrecognized status string maps to StatusUnknown, which callers
// must never treat as filled.
func (c *Client) Order(ctx context.Context, h domain.OrderHandle) (domain.OrderInfo, error) {
	q := url.Values{}
	q.Set("symbol", h.Symbol)
	q.Set("orderId", h.OrderID)

	body, err := c.do(ctx, http.MethodGet, "/api/v3/order", q, true, c.orderLimiter)
	if err != nil {
		return domain.OrderInfo{Handle: h, Status: domain.StatusUnknown}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderInfo{Handle: h, Status: domain.StatusUnknown},
			fmt.Errorf("%w: order lookup: %v", domain.ErrNetwork, err)
	}

	info := domain.OrderInfo{Handle: h, Status: mapOrderStatus(resp.Status)}
	if resp.Price != "" {
		info.Price, _ = decimal.NewFromString(resp.Price)
	}
	if resp.OrigQty != "" {
		info.Qty, _ = decimal.NewFromString(resp.OrigQty)
	}
	return info, nil
}

// OrderStatus polls the confirmed state of an order.
func (c *Client) OrderStatus(ctx context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	info, err := c.Order(ctx, h)
	return info.Status, err
}

// CancelOrder cancels a live order. If the order filled before the cancel
// landed, ErrAlreadyFilled is returned so callers can take the fill path.
func (c *Client) CancelOrder(ctx context.Context, h domain.OrderHandle) error {
	q := url.Values{}
	q.Set("symbol", h.Symbol)
	q.Set("orderId", h.OrderID)

	_, err := c.do(ctx, http.MethodDelete, "/api/v3/order", q, true, c.orderLimiter)
	return err
}

// OpenOrders lists live orders for a symbol. Used for restart reconciliation:
// the exchange's open-order listing is the source of truth.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]domain.OrderHandle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/api/v3/openOrders", q, true, c.orderLimiter)
	if err != nil {
		return nil, err
	}

	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: open orders: %v", domain.ErrNetwork, err)
	}

	handles := make([]domain.OrderHandle, 0, len(resp))
	for _, o := range resp {
		handles = append(handles, domain.OrderHandle{
			OrderID:     strconv.FormatInt(o.OrderID, 10),
			Symbol:      o.Symbol,
			SubmittedAt: time.UnixMilli(o.Time).UTC(),
		})
	}
	return handles, nil
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW", "PARTIALLY_FILLED":
		return domain.StatusOpen
	case "FILLED":
		return domain.StatusFilled
	case "CANCELED", "PENDING_CANCEL", "EXPIRED", "EXPIRED_IN_MATCH":
		return domain.StatusCanceled
	case "REJECTED":
		return domain.StatusRejected
	default:
		return domain.StatusUnknown
	}
}

// ---- transport ----

// do performs one HTTP request. Signed requests get timestamp, recvWindow and
// signature appended plus the API key header, and are guarded by the breaker.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, signed bool, limiter *infra.RateLimiter) ([]byte, error) {
	if signed {
		if c.signer == nil {
			return nil, fmt.Errorf("%w: no credentials configured", domain.ErrOrderRejected)
		}
		if !c.breaker.Allow() {
			return nil, fmt.Errorf("%w: circuit breaker open", domain.ErrNetwork)
		}
		q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		q.Set("recvWindow", strconv.Itoa(recvWindowMS))
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := q.Encode()
	if signed {
		query += "&signature=" + c.signer.Sign(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if signed {
			c.breaker.RecordFailure()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if signed {
			c.breaker.RecordFailure()
		}
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := classifyHTTPError(method, resp.StatusCode, body)
		if signed && domain.Retryable(err) {
			c.breaker.RecordFailure()
		}
		return nil, err
	}

	if signed {
		c.breaker.RecordSuccess()
	}
	return body, nil
}

// classifyHTTPError maps transport and application failures onto the core's
// error taxonomy.
func classifyHTTPError(method string, status int, body []byte) error {
	if status == http.StatusTooManyRequests || status == 418 {
		return fmt.Errorf("%w: http %d", domain.ErrRateLimited, status)
	}
	if status >= 500 {
		return fmt.Errorf("%w: http %d", domain.ErrNetwork, status)
	}

	var apiErr apiError
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr != nil || apiErr.Code == 0 {
		return fmt.Errorf("%w: http %d: %s", domain.ErrNetwork, status, body)
	}

	switch apiErr.Code {
	case codeTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Msg)
	case codeNewOrderRejected:
		if strings.Contains(strings.ToLower(apiErr.Msg), "insufficient balance") {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientBalance, apiErr.Msg)
		}
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, apiErr.Msg)
	case codeCancelRejected, codeOrderNotFound:
		if method == http.MethodDelete {
			// Cancel raced the fill.
			return fmt.Errorf("%w: %s", domain.ErrAlreadyFilled, apiErr.Msg)
		}
		return fmt.Errorf("%w: code %d: %s", domain.ErrOrderRejected, apiErr.Code, apiErr.Msg)
	case codeFilterFailure:
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, apiErr.Msg)
	default:
		return fmt.Errorf("%w: code %d: %s", domain.ErrOrderRejected, apiErr.Code, apiErr.Msg)
	}
}
