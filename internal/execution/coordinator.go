// Package execution turns sell decisions into broker order operations.
package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/farshadfahimi/sellerbot/internal/broker"
	"github.com/farshadfahimi/sellerbot/internal/ledger"
	"github.com/farshadfahimi/sellerbot/internal/metrics"
	"github.com/farshadfahimi/sellerbot/internal/session"
	"github.com/farshadfahimi/sellerbot/internal/types"
)

// Coordinator submits, splits and cancels sell orders on behalf of one
// watcher, keeping its ledger in sync.
type Coordinator struct {
	client   broker.Client
	ledger   *ledger.Ledger
	logger   *slog.Logger
	recorder *metrics.Recorder

	// tolerance absorbs price rounding when deciding whether a resting
	// order is priced above the current target.
	tolerance decimal.Decimal
}

// NewCoordinator creates an order execution coordinator.
func NewCoordinator(client broker.Client, ldg *ledger.Ledger, tolerance decimal.Decimal, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		client:    client,
		ledger:    ldg,
		logger:    logger,
		recorder:  metrics.NewRecorder(),
		tolerance: tolerance,
	}
}

// SubmitResult reports the outcome of one (possibly split) submission.
type SubmitResult struct {
	Placed []types.PendingOrder
	Failed int
}

// PlacedVolume returns the total volume across the placed orders.
func (r SubmitResult) PlacedVolume() int64 {
	var total int64
	for _, o := range r.Placed {
		total += o.Volume
	}
	return total
}

// Submit places sell orders for quantity at price, splitting into orders of
// at most maxOrderSize each. Acknowledged orders are added to the ledger. A
// failed split order is logged and skipped; the remaining splits are still
// submitted. During the exchange order freeze no submission may happen: that
// is an exchange rule, not a policy choice.
func (c *Coordinator) Submit(ctx context.Context, phase session.Phase, isin string, price decimal.Decimal, quantity, maxOrderSize int64) (SubmitResult, error) {
	if phase == session.PhaseOrderFreeze {
		return SubmitResult{}, types.ErrOrderFreeze
	}
	if quantity <= 0 {
		return SubmitResult{}, nil
	}
	if maxOrderSize <= 0 {
		return SubmitResult{}, fmt.Errorf("max order size must be positive, got %d", maxOrderSize)
	}

	splits := int((quantity + maxOrderSize - 1) / maxOrderSize)
	c.recorder.RecordOrderSplit(splits)

	c.logger.Info("submitting sell orders",
		"isin", isin,
		"price", price,
		"quantity", quantity,
		"splits", splits,
	)

	var result SubmitResult
	remaining := quantity
	for i := 0; i < splits; i++ {
		volume := remaining
		if volume > maxOrderSize {
			volume = maxOrderSize
		}

		serial, err := c.client.SubmitSellOrder(ctx, isin, price, volume)
		if err != nil {
			// Do not retry within the tick and do not block the
			// sibling split orders.
			c.logger.Error("sell order failed",
				"isin", isin,
				"split", fmt.Sprintf("%d/%d", i+1, splits),
				"volume", volume,
				"err", err,
			)
			c.recorder.RecordOrder(isin, "rejected")
			result.Failed++
			remaining -= volume
			continue
		}

		order := types.NewPendingOrder(isin, price, volume, serial)
		c.ledger.Add(order)
		result.Placed = append(result.Placed, order)
		c.recorder.RecordOrder(isin, "submitted")

		c.logger.Info("sell order placed",
			"isin", isin,
			"serial", serial,
			"split", fmt.Sprintf("%d/%d", i+1, splits),
			"volume", volume,
			"price", price,
		)
		remaining -= volume
	}

	return result, nil
}

// Reprice cancels active orders priced above target plus the rounding
// tolerance, so the next tick can resubmit at the new competitive price.
// Only meaningful in a non-queued market while modification is permitted;
// in a queued market the resting order keeps its queue priority.
func (c *Coordinator) Reprice(ctx context.Context, phase session.Phase, snap types.MarketSnapshot, target decimal.Decimal) (int, error) {
	if phase == session.PhaseOrderFreeze {
		return 0, types.ErrOrderFreeze
	}
	if !phase.CanModify() || snap.BuyQueued {
		return 0, nil
	}

	limit := target.Add(c.tolerance)
	canceled := 0

	for _, order := range c.ledger.Active() {
		switch order.State {
		case types.OrderStateSubmitting, types.OrderStateAccepted, types.OrderStatePartiallyExecuted:
		default:
			continue
		}
		if !order.Price.GreaterThan(limit) {
			continue
		}

		if err := c.client.CancelOrder(ctx, order.Serial); err != nil {
			// The order stays in the ledger and is re-evaluated on
			// the next tick.
			c.logger.Warn("cancel failed",
				"serial", order.Serial,
				"isin", order.ISIN,
				"err", err,
			)
			c.recorder.RecordCancellation(order.ISIN, false)
			continue
		}

		c.ledger.Remove(order.Serial)
		canceled++
		c.recorder.RecordCancellation(order.ISIN, true)
		c.logger.Info("order canceled for repricing",
			"serial", order.Serial,
			"isin", order.ISIN,
			"old_price", order.Price,
			"target", target,
		)
	}

	return canceled, nil
}
