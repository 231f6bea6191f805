// Package watcher runs the per-position liquidation control loops.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farshadfahimi/sellerbot/internal/alerting"
	"github.com/farshadfahimi/sellerbot/internal/broker"
	"github.com/farshadfahimi/sellerbot/internal/decision"
	"github.com/farshadfahimi/sellerbot/internal/execution"
	"github.com/farshadfahimi/sellerbot/internal/ledger"
	"github.com/farshadfahimi/sellerbot/internal/metrics"
	"github.com/farshadfahimi/sellerbot/internal/persistence"
	"github.com/farshadfahimi/sellerbot/internal/session"
	"github.com/farshadfahimi/sellerbot/internal/types"
)

// State is the lifecycle state of a watcher.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateStopped:
		return "STOPPED"
	default:
		return "IDLE"
	}
}

// Config holds the per-watcher settings.
type Config struct {
	Account string
	Broker  string
	ISIN    string

	// MinBuyVolume is the queued-market demand threshold.
	MinBuyVolume int64
	// SellDiscount is the factor applied to last price in a normal market.
	SellDiscount decimal.Decimal
	// PollInterval is the tick cadence, the same in every phase.
	PollInterval time.Duration

	// RepriceTolerance absorbs rounding when comparing resting order
	// prices against the current target.
	RepriceTolerance decimal.Decimal

	// SellQueueRatio and WeakBuyVolume tune the panic-market detection.
	SellQueueRatio int64
	WeakBuyVolume  int64
}

// Key returns the unique watcher key: account@broker:isin.
func (c Config) Key() string {
	return fmt.Sprintf("%s@%s:%s", c.Account, c.Broker, c.ISIN)
}

// Validate reports fatal configuration errors. A watcher with an invalid
// config never enters Running.
func (c Config) Validate() error {
	if c.Account == "" {
		return fmt.Errorf("%w: account is required", types.ErrInvalidConfig)
	}
	if c.ISIN == "" {
		return fmt.Errorf("%w: isin is required", types.ErrInvalidConfig)
	}
	if c.SellDiscount.LessThanOrEqual(decimal.Zero) || c.SellDiscount.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: sell_discount must be in (0, 1], got %s", types.ErrInvalidConfig, c.SellDiscount)
	}
	if c.MinBuyVolume <= 0 {
		return fmt.Errorf("%w: min_buy_volume must be positive", types.ErrInvalidConfig)
	}
	return nil
}

// Status is a point-in-time snapshot of a watcher for external callers.
type Status struct {
	Key           string
	ISIN          string
	Account       string
	State         State
	Phase         session.Phase
	Target        int64
	SoldSoFar     int64
	PendingOrders int
}

// Running reports whether the watcher loop is active.
func (s Status) Running() bool {
	return s.State == StateRunning
}

// Watcher liquidates one position: it polls the market and the account,
// decides sell actions, executes them and reconciles the results, until the
// position is gone or it is stopped.
type Watcher struct {
	cfg         Config
	runID       string
	clock       *session.Clock
	client      broker.Client
	engine      *decision.Engine
	ledger      *ledger.Ledger
	coordinator *execution.Coordinator
	alerter     alerting.Alerter
	journal     persistence.Journal
	logger      *slog.Logger
	recorder    *metrics.Recorder

	// Loop-owned state, touched only from run().
	target        int64
	lastPhase     session.Phase
	phaseSeen     bool
	freezeAlerted bool
	limits        *types.InstrumentLimits

	// status is the only state shared with other goroutines.
	statusMu sync.RWMutex
	status   Status

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher. The journal may be nil; the alerter may be nil.
func New(cfg Config, clock *session.Clock, client broker.Client, alerter alerting.Alerter, journal persistence.Journal, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("watcher", cfg.Key())
	if alerter == nil {
		alerter = alerting.NewConsoleAlerter(logger)
	}

	dcfg := decision.DefaultConfig()
	if cfg.MinBuyVolume > 0 {
		dcfg.MinBuyVolume = cfg.MinBuyVolume
	}
	if cfg.SellDiscount.IsPositive() {
		dcfg.SellDiscount = cfg.SellDiscount
	}
	if cfg.SellQueueRatio > 0 {
		dcfg.SellQueueRatio = cfg.SellQueueRatio
	}
	if cfg.WeakBuyVolume > 0 {
		dcfg.WeakBuyVolume = cfg.WeakBuyVolume
	}

	ldg := ledger.New(logger)
	engine := decision.NewEngine(dcfg)

	return &Watcher{
		cfg:         cfg,
		runID:       uuid.NewString(),
		clock:       clock,
		client:      client,
		engine:      engine,
		ledger:      ldg,
		coordinator: execution.NewCoordinator(client, ldg, cfg.RepriceTolerance, logger),
		alerter:     alerter,
		journal:     journal,
		logger:      logger,
		recorder:    metrics.NewRecorder(),
		status: Status{
			Key:     cfg.Key(),
			ISIN:    cfg.ISIN,
			Account: cfg.Account,
			State:   StateIdle,
		},
		done: make(chan struct{}),
	}
}

// Key returns the watcher key.
func (w *Watcher) Key() string {
	return w.cfg.Key()
}

// Start begins the tick loop. It fails if the watcher already ran.
func (w *Watcher) Start(ctx context.Context) error {
	w.statusMu.Lock()
	if w.status.State != StateIdle {
		w.statusMu.Unlock()
		return fmt.Errorf("watcher %s already started", w.cfg.Key())
	}
	w.status.State = StateRunning
	w.statusMu.Unlock()

	w.logger.Info("watcher starting",
		"isin", w.cfg.ISIN,
		"min_buy_volume", w.cfg.MinBuyVolume,
		"sell_discount", w.cfg.SellDiscount,
		"poll_interval", w.cfg.PollInterval,
	)

	w.notify(ctx, alerting.EventWatcherStarted, "Watching position",
		"isin", w.cfg.ISIN,
		"account", w.cfg.Account+"@"+w.cfg.Broker,
		"phase", w.clock.Phase().String(),
	)

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop requests a cooperative stop. The loop observes it at the next tick
// boundary; a call in flight is never preempted.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

// Status returns a snapshot of the watcher state.
func (w *Watcher) Status() Status {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	return w.status
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finish(ctx, StateStopped)
			return
		case <-w.done:
			w.finish(ctx, StateStopped)
			return
		case <-ticker.C:
			if done := w.tick(ctx); done {
				w.finish(ctx, StateCompleted)
				return
			}
		}
	}
}

// tick runs one control-loop iteration. It returns true once the position is
// fully liquidated. Any transient broker failure aborts the tick without
// mutating state; the next tick is the retry.
func (w *Watcher) tick(ctx context.Context) bool {
	timer := metrics.NewTimer()
	defer timer.ObserveTick()

	phase := w.clock.Phase()
	w.notePhase(ctx, phase)

	if phase == session.PhaseClosed {
		return false
	}

	pos, err := w.client.GetPosition(ctx, w.cfg.ISIN)
	switch {
	case errors.Is(err, types.ErrPositionNotFound):
		pos = types.Position{ISIN: w.cfg.ISIN}
	case err != nil:
		w.transient(ctx, "get position", err)
		return false
	}

	// Fold broker-reported order state in before judging progress, so fills
	// that emptied the position are credited on this same tick.
	open, err := w.client.GetOpenOrders(ctx)
	if err != nil {
		w.transient(ctx, "get open orders", err)
		return false
	}
	w.reconcile(ctx, open)

	sold := w.ledger.TotalExecuted()

	if pos.Quantity <= 0 {
		if w.target > 0 && sold >= w.target {
			return true
		}
		w.publishStatus(phase)
		return false
	}

	switch {
	case w.target == 0:
		// First observation fixes the liquidation target.
		w.target = pos.Quantity
		w.logger.Info("tracking position", "quantity", w.target)
		w.notify(ctx, alerting.EventWatcherStarted, "Tracking position",
			"isin", w.cfg.ISIN,
			"quantity", w.target,
		)
	case pos.Quantity+sold > w.target:
		// External top-up: the held quantity grew beyond what the
		// original target accounts for.
		w.target = pos.Quantity + sold
		w.logger.Info("liquidation target reset", "target", w.target)
	}

	snap, err := w.client.GetMarketSnapshot(ctx, w.cfg.ISIN)
	if err != nil {
		w.transient(ctx, "get market snapshot", err)
		return false
	}

	if phase == session.PhaseOrderFreeze {
		// Exchange-enforced freeze: monitoring only, no mutations.
		if !w.freezeAlerted {
			w.freezeAlerted = true
			w.notify(ctx, alerting.EventOrderFreeze, "Order freeze",
				"isin", w.cfg.ISIN,
				"position", pos.Quantity,
				"pending_orders", w.ledger.ActiveCount(),
				"wait", w.clock.UntilModifiable(w.clock.Now()).String(),
			)
		}
		w.publishStatus(phase)
		return false
	}
	w.freezeAlerted = false

	w.reprice(ctx, phase, snap)

	dec, ok := w.engine.Decide(pos, snap, phase)
	if ok {
		w.execute(ctx, phase, pos, dec)
	}

	w.publishStatus(phase)
	return false
}

// reprice cancels resting orders that a normal market has moved away from.
func (w *Watcher) reprice(ctx context.Context, phase session.Phase, snap types.MarketSnapshot) {
	if w.ledger.ActiveCount() == 0 || snap.BuyQueued {
		return
	}
	target := w.engine.TargetPrice(snap)
	canceled, err := w.coordinator.Reprice(ctx, phase, snap, target)
	if err != nil {
		w.logger.Warn("reprice failed", "err", err)
		return
	}
	if canceled > 0 {
		w.notify(ctx, alerting.EventRepricing, "Repricing orders",
			"isin", w.cfg.ISIN,
			"canceled", canceled,
			"new_target", target.StringFixed(0),
		)
	}
}

// execute sizes and submits the decided sell action.
func (w *Watcher) execute(ctx context.Context, phase session.Phase, pos types.Position, dec decision.Decision) {
	remaining := pos.Quantity - w.ledger.RemainingVolume()
	if remaining <= 0 {
		return
	}

	limits, err := w.instrumentLimits(ctx)
	if err != nil {
		w.transient(ctx, "get instrument limits", err)
		return
	}

	event := alerting.EventSelling
	switch dec.Reason {
	case decision.ReasonSellQueuePanic, decision.ReasonSellQueuePanicPreMarket:
		event = alerting.EventSellQueuePanic
	}

	w.recorder.RecordDecision(string(dec.Reason))
	w.notify(ctx, event, "Selling",
		"isin", w.cfg.ISIN,
		"reason", string(dec.Reason),
		"price", dec.Price.StringFixed(0),
		"quantity", remaining,
	)

	result, err := w.coordinator.Submit(ctx, phase, w.cfg.ISIN, dec.Price, remaining, limits.MaxOrderSize)
	if err != nil {
		w.logger.Error("submit failed", "err", err)
		w.recorder.RecordError("submit")
		return
	}
	if result.Failed > 0 {
		w.notify(ctx, alerting.EventOrderError, "Some orders failed",
			"isin", w.cfg.ISIN,
			"failed", result.Failed,
			"placed", len(result.Placed),
		)
	}

	for _, order := range result.Placed {
		w.journalOrder(ctx, order, string(dec.Reason))
	}
}

// reconcile folds broker-reported order state into the ledger and reacts to
// fills and failures.
func (w *Watcher) reconcile(ctx context.Context, open []broker.OrderStatus) {
	events := w.ledger.Reconcile(open)
	for _, ev := range events {
		if ev.Executed > 0 {
			w.recorder.RecordSoldVolume(w.cfg.ISIN, ev.Executed)
		}
		switch ev.Order.State {
		case types.OrderStateError, types.OrderStateRejectedByEngine:
			w.notify(ctx, alerting.EventOrderError, "Order error",
				"isin", w.cfg.ISIN,
				"serial", ev.Order.Serial,
				"state", ev.Order.State.String(),
			)
		case types.OrderStateExecuted:
			w.notify(ctx, alerting.EventOrderExecuted, "Order executed",
				"isin", w.cfg.ISIN,
				"serial", ev.Order.Serial,
				"volume", ev.Order.Volume,
			)
		}
		w.journalOrder(ctx, ev.Order, "")
	}
}

// instrumentLimits fetches and caches the exchange limits for the run.
func (w *Watcher) instrumentLimits(ctx context.Context) (types.InstrumentLimits, error) {
	if w.limits != nil {
		return *w.limits, nil
	}
	limits, err := w.client.GetInstrumentLimits(ctx, w.cfg.ISIN)
	if err != nil {
		return types.InstrumentLimits{}, err
	}
	w.limits = &limits
	return limits, nil
}

// notePhase emits the edge-triggered phase-change notification.
func (w *Watcher) notePhase(ctx context.Context, phase session.Phase) {
	if w.phaseSeen && phase == w.lastPhase {
		return
	}
	first := !w.phaseSeen
	w.phaseSeen = true
	w.lastPhase = phase
	w.freezeAlerted = false
	w.recorder.RecordPhase(w.cfg.Key(), int(phase))

	if !first && phase != session.PhaseClosed {
		w.notify(ctx, alerting.EventPhaseChanged, "Market phase changed",
			"isin", w.cfg.ISIN,
			"phase", phase.String(),
		)
	}
}

// transient handles a recoverable broker failure: log, count, move on.
func (w *Watcher) transient(ctx context.Context, op string, err error) {
	w.logger.Warn("tick aborted", "op", op, "err", err)
	w.recorder.RecordError(op)
}

func (w *Watcher) publishStatus(phase session.Phase) {
	w.statusMu.Lock()
	w.status.Phase = phase
	w.status.Target = w.target
	w.status.SoldSoFar = w.ledger.TotalExecuted()
	w.status.PendingOrders = w.ledger.ActiveCount()
	w.statusMu.Unlock()

	w.recorder.RecordPendingOrders(w.cfg.Key(), w.ledger.ActiveCount())
}

// finish records the terminal state and sends the final notification.
func (w *Watcher) finish(ctx context.Context, state State) {
	w.statusMu.Lock()
	if w.status.State == StateRunning {
		w.status.State = state
	}
	state = w.status.State
	w.status.SoldSoFar = w.ledger.TotalExecuted()
	w.status.PendingOrders = w.ledger.ActiveCount()
	w.statusMu.Unlock()

	sold := w.ledger.TotalExecuted()
	w.logger.Info("watcher finished", "state", state.String(), "sold", sold)

	if state == StateCompleted {
		w.notify(ctx, alerting.EventWatcherCompleted, "All shares sold",
			"isin", w.cfg.ISIN,
			"total_sold", sold,
		)
	}

	if w.journal != nil {
		rec := persistence.WatcherRun{
			RunID:      w.runID,
			Key:        w.cfg.Key(),
			Account:    w.cfg.Account,
			Broker:     w.cfg.Broker,
			ISIN:       w.cfg.ISIN,
			Target:     w.target,
			Sold:       sold,
			State:      state.String(),
			FinishedAt: w.clock.Now(),
		}
		if err := w.journal.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
			w.logger.Warn("failed to journal run", "err", err)
		}
	}
}

// notify sends a best-effort typed alert: failure is logged, never blocks
// the loop. Event-aware alerters apply the configured event filter.
func (w *Watcher) notify(ctx context.Context, event alerting.AlertEvent, message string, fields ...any) {
	if w.alerter == nil {
		return
	}
	if err := alerting.Emit(ctx, w.alerter, event, message, fields...); err != nil {
		w.logger.Warn("failed to send alert", "message", message, "err", err)
	}
}

// journalOrder persists one order record, best-effort.
func (w *Watcher) journalOrder(ctx context.Context, order types.PendingOrder, reason string) {
	if w.journal == nil {
		return
	}
	rec := persistence.OrderRecord{
		RunID:          w.runID,
		Account:        w.cfg.Account,
		Broker:         w.cfg.Broker,
		ISIN:           order.ISIN,
		Serial:         order.Serial,
		Price:          order.Price,
		Volume:         order.Volume,
		ExecutedVolume: order.ExecutedVolume,
		State:          order.State.String(),
		Reason:         reason,
		RecordedAt:     w.clock.Now(),
	}
	if err := w.journal.RecordOrder(ctx, rec); err != nil {
		w.logger.Warn("failed to journal order", "serial", order.Serial, "err", err)
	}
}
