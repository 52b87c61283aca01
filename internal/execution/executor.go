package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"swing_go/internal/domain"
	"swing_go/internal/infra"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State of the executor's order lifecycle.
type State int

const (
	StateIdle State = iota
	StateReconciling
	StateSizing
	StateEntrySubmitted
	StateEntryPolling
	StateEntryFilled
	StateExitSubmitted
	StateExitPolling
	StateClosed
	StateEntryCanceled
	StateEntryFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateReconciling:
		return "RECONCILING"
	case StateSizing:
		return "SIZING"
	case StateEntrySubmitted:
		return "ENTRY_SUBMITTED"
	case StateEntryPolling:
		return "ENTRY_POLLING"
	case StateEntryFilled:
		return "ENTRY_FILLED"
	case StateExitSubmitted:
		return "EXIT_SUBMITTED"
	case StateExitPolling:
		return "EXIT_POLLING"
	case StateClosed:
		return "CLOSED"
	case StateEntryCanceled:
		return "ENTRY_CANCELED"
	case StateEntryFailed:
		return "ENTRY_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state releases the one-position-per-symbol lock.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateEntryCanceled || s == StateEntryFailed
}

// Config holds per-symbol execution parameters.
type Config struct {
	Symbol         string
	QuoteAsset     string
	RiskPct        decimal.Decimal // stop distance, percent of entry
	RewardRatio    decimal.Decimal
	RiskFraction   decimal.Decimal // fraction of free balance per trade
	MinQty         decimal.Decimal // exchange minimum order size
	QtyPrecision   int32           // decimal places for quantity
	PollInterval   time.Duration
	MaxWait        time.Duration
	MaxExitRetries int
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxWait == 0 {
		c.MaxWait = 10 * time.Minute
	}
	if c.MaxExitRetries == 0 {
		c.MaxExitRetries = 10
	}
	if c.QtyPrecision == 0 {
		c.QtyPrecision = 8
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
}

// Executor owns the order lifecycle for a single symbol: sizing, entry
// submission, fill polling, bracket-exit submission, failure recovery.
// One executor per symbol; the executor itself enforces the one-position
// invariant, so concurrent Execute calls are safe no-ops.
type Executor struct {
	cfg      Config
	gateway  Gateway
	journal  Journal  // may be nil
	notifier Notifier // may be nil, falls back to slog

	// sleep is the backoff hook for exit-leg resubmission.
	sleep func(ctx context.Context, attempt int) error

	mu       sync.Mutex
	state    State
	entry    domain.OrderHandle
	position *domain.Position
}

// NewExecutor creates an executor for one symbol.
func NewExecutor(cfg Config, gateway Gateway, journal Journal, notifier Notifier) *Executor {
	cfg.applyDefaults()
	return &Executor{
		cfg:      cfg,
		gateway:  gateway,
		journal:  journal,
		notifier: notifier,
		sleep:    infra.SleepBackoff,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position returns a copy of the open position, or nil.
func (e *Executor) Position() *domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.position == nil {
		return nil
	}
	p := *e.position
	return &p
}

// Execute runs one trade attempt to a terminal state. If the executor is
// already busy or a position is open for the symbol, it is a no-op returning
// StateIdle: the caller simply skips the cycle.
func (e *Executor) Execute(ctx context.Context) (State, error) {
	if !e.begin() {
		return StateIdle, nil
	}
	st, err := e.run(ctx)
	e.settle(st)
	return st, err
}

// Resume reconciles in-flight orders after a restart. The exchange's
// open-order listing is the source of truth: if a live order exists for the
// symbol, the executor resumes polling it rather than assuming a clean slate
// (and risking a duplicate entry). While the listing cannot be confirmed the
// executor stays in StateReconciling with the symbol lock held — Execute is
// a no-op until a later Resume succeeds, so no entry can stack on top of an
// unverified live order.
func (e *Executor) Resume(ctx context.Context) (State, error) {
	if !e.beginResume() {
		return StateIdle, nil
	}

	handles, err := e.gateway.OpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		e.settle(StateReconciling)
		return StateReconciling, fmt.Errorf("reconciliation: %w", err)
	}
	if len(handles) == 0 {
		e.settle(StateIdle)
		return StateIdle, nil
	}

	h := handles[0]
	e.mu.Lock()
	e.entry = h
	e.mu.Unlock()

	info, err := e.gateway.Order(ctx, h)
	if err != nil {
		e.settle(StateReconciling)
		return StateReconciling, fmt.Errorf("reconciliation: order lookup: %w", err)
	}
	if info.Price.IsZero() || info.Qty.IsZero() {
		// Polling with a zero quantity would later submit zero-qty exits;
		// better to hold the lock and let the caller retry the lookup.
		e.settle(StateReconciling)
		return StateReconciling, fmt.Errorf("reconciliation: order %s has empty price or qty", h.OrderID)
	}

	slog.Info("resuming in-flight order after restart",
		slog.String("symbol", e.cfg.Symbol),
		slog.String("order_id", h.OrderID))

	st, err := e.trackEntry(ctx, h, info.Price, info.Qty)
	e.settle(st)
	return st, err
}

// begin takes the per-symbol lock: Idle with no open position.
func (e *Executor) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle || e.position != nil {
		return false
	}
	e.state = StateSizing
	return true
}

// beginResume takes the lock for reconciliation. Unlike begin it may re-enter
// from StateReconciling, so a failed reconciliation can be retried.
func (e *Executor) beginResume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if (e.state != StateIdle && e.state != StateReconciling) || e.position != nil {
		return false
	}
	e.state = StateReconciling
	return true
}

// settle records the outcome. Terminal states release the lock; anything else
// (shutdown mid-poll, unprotected position) keeps it held so no new entry can
// be opened on this symbol.
func (e *Executor) settle(st State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = st
	if st.Terminal() || st == StateIdle {
		e.state = StateIdle
		e.position = nil
		e.entry = domain.OrderHandle{}
	}
}

func (e *Executor) setState(st State) {
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
}

// run drives Sizing through a terminal state.
func (e *Executor) run(ctx context.Context) (State, error) {
	price, qty, err := e.size(ctx)
	if err != nil {
		return StateEntryFailed, err
	}

	intent := domain.OrderIntent{
		Symbol:   e.cfg.Symbol,
		Side:     domain.SideBuy,
		Kind:     domain.KindLimit,
		Qty:      qty,
		Price:    price,
		ClientID: uuid.NewString(),
	}

	e.setState(StateEntrySubmitted)
	handle, err := e.gateway.PlaceOrder(ctx, intent)
	if err != nil {
		return StateEntryFailed, fmt.Errorf("entry submission: %w", err)
	}

	// The handle must be tracked before anything else, logging included:
	// no in-flight order may exist without a tracked handle.
	e.mu.Lock()
	e.entry = handle
	e.mu.Unlock()

	slog.Info("entry order submitted",
		slog.String("symbol", e.cfg.Symbol),
		slog.String("order_id", handle.OrderID),
		slog.String("price", price.String()),
		slog.String("qty", qty.String()))
	e.record(func(j Journal) error { return j.RecordOrder(ctx, intent, handle) })

	return e.trackEntry(ctx, handle, price, qty)
}

// size computes the entry price and quantity from the current balance.
func (e *Executor) size(ctx context.Context) (price, qty decimal.Decimal, err error) {
	price, err = e.gateway.LastPrice(ctx, e.cfg.Symbol)
	if err != nil {
		return price, qty, fmt.Errorf("sizing: %w", err)
	}

	// Balance is fetched fresh every attempt, never cached across cycles.
	bal, err := e.gateway.Balance(ctx, e.cfg.QuoteAsset)
	if err != nil {
		return price, qty, fmt.Errorf("sizing: %w", err)
	}

	qty = bal.Free.Mul(e.cfg.RiskFraction).Div(price).Truncate(e.cfg.QtyPrecision)
	if qty.LessThan(e.cfg.MinQty) {
		return price, qty, fmt.Errorf("%w: computed qty %s below exchange minimum %s",
			domain.ErrInsufficientBalance, qty, e.cfg.MinQty)
	}
	return price, qty, nil
}

// trackEntry polls the entry order to a terminal status and, on fill,
// establishes the bracket. Also the resume path after a restart.
func (e *Executor) trackEntry(ctx context.Context, handle domain.OrderHandle, price, qty decimal.Decimal) (State, error) {
	e.setState(StateEntryPolling)

	deadline := time.Now().Add(e.cfg.MaxWait)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status := e.confirmStatus(ctx, handle)
		switch status {
		case domain.StatusFilled:
			e.record(func(j Journal) error { return j.RecordOrderStatus(ctx, handle, status) })
			return e.openPosition(ctx, handle, price, qty)
		case domain.StatusCanceled:
			e.record(func(j Journal) error { return j.RecordOrderStatus(ctx, handle, status) })
			slog.Info("entry order canceled externally", slog.String("order_id", handle.OrderID))
			return StateEntryCanceled, nil
		case domain.StatusRejected:
			e.record(func(j Journal) error { return j.RecordOrderStatus(ctx, handle, status) })
			return StateEntryFailed, fmt.Errorf("entry order rejected: %w", domain.ErrOrderRejected)
		}

		if time.Now().After(deadline) {
			// Bounded wait: cancel rather than lock up capital indefinitely.
			slog.Warn("entry fill wait exceeded, canceling",
				slog.String("order_id", handle.OrderID),
				slog.Duration("max_wait", e.cfg.MaxWait))
			if err := e.gateway.CancelOrder(ctx, handle); err != nil {
				if errors.Is(err, domain.ErrAlreadyFilled) {
					return e.openPosition(ctx, handle, price, qty)
				}
				return StateEntryCanceled, fmt.Errorf("entry cancel: %w", err)
			}
			e.record(func(j Journal) error { return j.RecordOrderStatus(ctx, handle, domain.StatusCanceled) })
			return StateEntryCanceled, nil
		}

		select {
		case <-ctx.Done():
			// Shutdown abandons polling but never auto-cancels the live
			// order; restart reconciliation picks it back up.
			return StateEntryPolling, ctx.Err()
		case <-ticker.C:
		}
	}
}

// confirmStatus polls once, re-polling immediately on an ambiguous answer.
// Unknown falls back to Open — never to Filled — so the executor cannot act
// on an unconfirmed fill.
func (e *Executor) confirmStatus(ctx context.Context, handle domain.OrderHandle) domain.OrderStatus {
	status, err := e.gateway.OrderStatus(ctx, handle)
	if err != nil {
		slog.Warn("status poll failed", slog.String("order_id", handle.OrderID), slog.Any("error", err))
		return domain.StatusOpen
	}
	if status != domain.StatusUnknown {
		return status
	}

	status, err = e.gateway.OrderStatus(ctx, handle)
	if err == nil && status != domain.StatusUnknown {
		return status
	}
	slog.Warn("order status unconfirmed, treating as still open",
		slog.String("order_id", handle.OrderID))
	return domain.StatusOpen
}

// openPosition records the filled entry and submits the bracket.
func (e *Executor) openPosition(ctx context.Context, entry domain.OrderHandle, price, qty decimal.Decimal) (State, error) {
	e.setState(StateEntryFilled)

	pos := &domain.Position{
		Symbol:     e.cfg.Symbol,
		Entry:      entry,
		EntryPrice: price,
		Qty:        qty,
		OpenedAt:   time.Now().UTC(),
	}
	e.mu.Lock()
	e.position = pos
	e.mu.Unlock()

	slog.Info("entry filled, opening position",
		slog.String("symbol", e.cfg.Symbol),
		slog.String("entry_price", price.String()),
		slog.String("qty", qty.String()))
	e.record(func(j Journal) error { return j.RecordPositionOpened(ctx, pos) })

	takeProfit, stopLoss := domain.BracketPrices(price, e.cfg.RiskPct, e.cfg.RewardRatio)

	e.setState(StateExitSubmitted)
	tpHandle := e.submitExitWithRetry(ctx, domain.OrderIntent{
		Symbol:   e.cfg.Symbol,
		Side:     domain.SideSell,
		Kind:     domain.KindLimit,
		Qty:      qty,
		Price:    takeProfit,
		ClientID: uuid.NewString(),
	})
	slHandle := e.submitExitWithRetry(ctx, domain.OrderIntent{
		Symbol:    e.cfg.Symbol,
		Side:      domain.SideSell,
		Kind:      domain.KindStopLimit,
		Qty:       qty,
		Price:     stopLoss,
		StopPrice: stopLoss,
		ClientID:  uuid.NewString(),
	})

	e.mu.Lock()
	pos.TakeProfit = tpHandle
	pos.StopLoss = slHandle
	e.mu.Unlock()

	if tpHandle.Zero() && slHandle.Zero() {
		e.flagUnprotected(ctx, pos)
		return StateExitSubmitted, fmt.Errorf("bracket submission failed for %s", e.cfg.Symbol)
	}
	if tpHandle.Zero() || slHandle.Zero() {
		// One leg live, one missing: still unbounded risk on one side.
		e.flagUnprotected(ctx, pos)
	}

	slog.Info("bracket submitted",
		slog.String("symbol", e.cfg.Symbol),
		slog.String("take_profit", takeProfit.String()),
		slog.String("stop_loss", stopLoss.String()))

	return e.pollExits(ctx, pos, tpHandle, slHandle)
}

// submitExitWithRetry retries a protective exit leg with backoff up to the
// configured cap. A filled entry with no exit order is unbounded financial
// risk, so every error kind is retried here; giving up is the alerting path,
// not the default.
func (e *Executor) submitExitWithRetry(ctx context.Context, intent domain.OrderIntent) domain.OrderHandle {
	for attempt := 0; attempt <= e.cfg.MaxExitRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying exit submission",
				slog.String("symbol", intent.Symbol),
				slog.String("kind", string(intent.Kind)),
				slog.Int("attempt", attempt))
			if err := e.sleep(ctx, attempt-1); err != nil {
				return domain.OrderHandle{}
			}
		}

		handle, err := e.gateway.PlaceOrder(ctx, intent)
		if err == nil {
			e.record(func(j Journal) error { return j.RecordOrder(ctx, intent, handle) })
			return handle
		}
		slog.Error("exit submission failed",
			slog.String("symbol", intent.Symbol),
			slog.String("kind", string(intent.Kind)),
			slog.Any("error", err))
	}
	return domain.OrderHandle{}
}

// pollExits watches both bracket legs and cancels the sibling when either
// fills. The exchange has no one-cancels-other primitive here, so the
// executor is the OCO.
func (e *Executor) pollExits(ctx context.Context, pos *domain.Position, tpHandle, slHandle domain.OrderHandle) (State, error) {
	e.setState(StateExitPolling)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if !tpHandle.Zero() {
			switch e.confirmStatus(ctx, tpHandle) {
			case domain.StatusFilled:
				e.closePosition(ctx, pos, tpHandle, slHandle, "take_profit")
				return StateClosed, nil
			case domain.StatusCanceled, domain.StatusRejected:
				slog.Warn("take-profit leg gone without fill", slog.String("order_id", tpHandle.OrderID))
				tpHandle = domain.OrderHandle{}
			}
		}
		if !slHandle.Zero() {
			switch e.confirmStatus(ctx, slHandle) {
			case domain.StatusFilled:
				e.closePosition(ctx, pos, slHandle, tpHandle, "stop_loss")
				return StateClosed, nil
			case domain.StatusCanceled, domain.StatusRejected:
				slog.Warn("stop-loss leg gone without fill", slog.String("order_id", slHandle.OrderID))
				slHandle = domain.OrderHandle{}
			}
		}

		if tpHandle.Zero() && slHandle.Zero() {
			e.flagUnprotected(ctx, pos)
			return StateExitPolling, fmt.Errorf("both bracket legs lost for %s", e.cfg.Symbol)
		}

		select {
		case <-ctx.Done():
			return StateExitPolling, ctx.Err()
		case <-ticker.C:
		}
	}
}

// closePosition cancels the surviving sibling and records the outcome.
func (e *Executor) closePosition(ctx context.Context, pos *domain.Position, filled, sibling domain.OrderHandle, outcome string) {
	if !sibling.Zero() {
		if err := e.gateway.CancelOrder(ctx, sibling); err != nil {
			if errors.Is(err, domain.ErrAlreadyFilled) {
				// Both legs filled in the same window; nothing left to cancel.
				slog.Warn("sibling exit filled before cancel", slog.String("order_id", sibling.OrderID))
			} else {
				slog.Error("sibling cancel failed, manual cleanup may be needed",
					slog.String("order_id", sibling.OrderID), slog.Any("error", err))
			}
		}
	}

	slog.Info("position closed",
		slog.String("symbol", pos.Symbol),
		slog.String("outcome", outcome),
		slog.String("filled_order", filled.OrderID))
	e.record(func(j Journal) error { return j.RecordOrderStatus(ctx, filled, domain.StatusFilled) })
	e.record(func(j Journal) error { return j.RecordPositionClosed(ctx, pos, outcome) })
}

// flagUnprotected marks the position and alerts the operator. The position
// lock stays held: trading more on a symbol with an unprotected position
// would compound the risk.
func (e *Executor) flagUnprotected(ctx context.Context, pos *domain.Position) {
	e.mu.Lock()
	pos.Unprotected = true
	e.mu.Unlock()

	alert := domain.Alert{
		Kind:    domain.AlertUnprotectedPosition,
		Symbol:  pos.Symbol,
		Message: fmt.Sprintf("position %s qty %s has no protective exit", pos.Symbol, pos.Qty),
		At:      time.Now().UTC(),
	}
	if e.notifier != nil {
		e.notifier.Notify(alert)
	} else {
		slog.Error("UNPROTECTED POSITION",
			slog.String("symbol", alert.Symbol),
			slog.String("message", alert.Message))
	}
	e.record(func(j Journal) error { return j.RecordAlert(ctx, alert) })
}

// record runs a journal write, logging instead of failing the trade.
func (e *Executor) record(fn func(Journal) error) {
	if e.journal == nil {
		return
	}
	if err := fn(e.journal); err != nil {
		slog.Warn("journal write failed", slog.Any("error", err))
	}
}
