// Package ledger tracks the outstanding sell orders of one watcher.
package ledger

import (
	"log/slog"

	"github.com/farshadfahimi/sellerbot/internal/broker"
	"github.com/farshadfahimi/sellerbot/internal/types"
)

// Ledger owns the set of non-terminal orders for a single watcher and the
// cumulative executed total. It is not safe for concurrent use: each watcher
// loop owns its ledger exclusively.
type Ledger struct {
	logger *slog.Logger

	active map[int64]*types.PendingOrder

	// lastExecuted records the executed volume already credited per serial,
	// so reconciliation credits deltas and never double-counts.
	lastExecuted map[int64]int64

	totalExecuted int64
}

// New creates an empty ledger.
func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		logger:       logger,
		active:       make(map[int64]*types.PendingOrder),
		lastExecuted: make(map[int64]int64),
	}
}

// Add starts tracking an acknowledged order.
func (l *Ledger) Add(order types.PendingOrder) {
	o := order
	o.RemainingVolume = o.Volume - o.ExecutedVolume
	l.active[o.Serial] = &o
}

// Remove drops an order from the active set without crediting executed
// volume. Used after a successful cancellation.
func (l *Ledger) Remove(serial int64) {
	delete(l.active, serial)
	delete(l.lastExecuted, serial)
}

// ReconcileEvent describes what happened to one order during reconciliation.
type ReconcileEvent struct {
	Order    types.PendingOrder
	Executed int64 // executed volume credited by this reconciliation
}

// Reconcile maps broker-reported open orders onto the tracked set.
//
// An order absent from the report is treated as fully executed: the broker
// stops listing orders once they are done. Partially executed orders credit
// only the delta since the last observation and stay active. Canceled and
// errored orders leave the active set without credit. Calling Reconcile twice
// with the same broker state is a no-op for the executed total.
func (l *Ledger) Reconcile(open []broker.OrderStatus) []ReconcileEvent {
	bySerial := make(map[int64]broker.OrderStatus, len(open))
	for _, st := range open {
		bySerial[st.Serial] = st
	}

	var events []ReconcileEvent

	for serial, order := range l.active {
		st, found := bySerial[serial]
		if !found {
			delta := l.credit(serial, order.Volume)
			order.State = types.OrderStateExecuted
			order.ExecutedVolume = order.Volume
			order.RemainingVolume = 0
			l.logger.Info("order executed",
				"serial", serial,
				"isin", order.ISIN,
				"volume", order.Volume,
			)
			events = append(events, ReconcileEvent{Order: *order, Executed: delta})
			l.drop(serial)
			continue
		}

		order.State = st.State
		order.ExecutedVolume = st.ExecutedVolume
		order.RemainingVolume = order.Volume - st.ExecutedVolume

		switch st.State {
		case types.OrderStateExecuted:
			delta := l.credit(serial, order.Volume)
			events = append(events, ReconcileEvent{Order: *order, Executed: delta})
			l.drop(serial)
		case types.OrderStatePartiallyExecuted:
			delta := l.credit(serial, st.ExecutedVolume)
			if delta > 0 {
				l.logger.Info("order partially executed",
					"serial", serial,
					"executed", st.ExecutedVolume,
					"remaining", order.RemainingVolume,
				)
				events = append(events, ReconcileEvent{Order: *order, Executed: delta})
			}
		case types.OrderStateCanceled:
			l.logger.Info("order canceled", "serial", serial, "isin", order.ISIN)
			events = append(events, ReconcileEvent{Order: *order})
			l.drop(serial)
		case types.OrderStateError, types.OrderStateRejectedByEngine, types.OrderStateSuperseded:
			l.logger.Warn("order failed",
				"serial", serial,
				"isin", order.ISIN,
				"state", st.State.String(),
			)
			events = append(events, ReconcileEvent{Order: *order})
			l.drop(serial)
		default:
			// Transient state, re-poll next tick.
		}
	}

	return events
}

// credit adds the delta between executedNow and the already-credited volume
// for this serial to the cumulative total, returning the delta.
func (l *Ledger) credit(serial, executedNow int64) int64 {
	delta := executedNow - l.lastExecuted[serial]
	if delta <= 0 {
		return 0
	}
	l.lastExecuted[serial] = executedNow
	l.totalExecuted += delta
	return delta
}

func (l *Ledger) drop(serial int64) {
	delete(l.active, serial)
	delete(l.lastExecuted, serial)
}

// RemainingVolume returns the sum of remaining volume over all active orders.
func (l *Ledger) RemainingVolume() int64 {
	var total int64
	for _, o := range l.active {
		total += o.RemainingVolume
	}
	return total
}

// TotalExecuted returns the cumulative executed volume. Monotonically
// non-decreasing over the life of the ledger.
func (l *Ledger) TotalExecuted() int64 {
	return l.totalExecuted
}

// ActiveCount returns the number of tracked non-terminal orders.
func (l *Ledger) ActiveCount() int {
	return len(l.active)
}

// Active returns a copy of the tracked orders.
func (l *Ledger) Active() []types.PendingOrder {
	out := make([]types.PendingOrder, 0, len(l.active))
	for _, o := range l.active {
		out = append(out, *o)
	}
	return out
}
