package binance

// apiError is Binance's error envelope, e.g. {"code":-2010,"msg":"..."}.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Binance application error codes the core needs to tell apart.
const (
	codeTooManyRequests  = -1003
	codeFilterFailure    = -1013
	codeNewOrderRejected = -2010
	codeCancelRejected   = -2011
	codeOrderNotFound    = -2013
)

// tickerPriceResponse is GET /api/v3/ticker/price.
type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// accountResponse is GET /api/v3/account (balances only).
type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// orderResponse covers POST /api/v3/order and GET /api/v3/order.
type orderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Time          int64  `json:"time"`
}

// miniTickerEvent is the payload of a <symbol>@miniTicker stream message.
type miniTickerEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
}

// combinedStreamMessage wraps events on the combined stream endpoint.
type combinedStreamMessage struct {
	Stream string          `json:"stream"`
	Data   miniTickerEvent `json:"data"`
}
