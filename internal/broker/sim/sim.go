// Package sim provides a simulated broker for dry runs and tests.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/farshadfahimi/sellerbot/internal/broker"
	"github.com/farshadfahimi/sellerbot/internal/types"
)

// Client implements broker.Client against in-memory state. Positions,
// snapshots and limits are settable from outside, so tests and dry runs can
// script market conditions. Every mutating call is counted.
type Client struct {
	logger *slog.Logger

	mu        sync.RWMutex
	positions map[string]types.Position
	snapshots map[string]types.MarketSnapshot
	limits    map[string]types.InstrumentLimits
	orders    map[int64]*broker.OrderStatus

	// Failure injection. When set, the next matching call fails once.
	submitErr error
	cancelErr error

	nextSerial atomic.Int64

	// Mutation counters, for asserting that no order traffic happened.
	submitCalls atomic.Int64
	cancelCalls atomic.Int64
}

// New creates an empty simulated broker.
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		logger:    logger,
		positions: make(map[string]types.Position),
		snapshots: make(map[string]types.MarketSnapshot),
		limits:    make(map[string]types.InstrumentLimits),
		orders:    make(map[int64]*broker.OrderStatus),
	}
	c.nextSerial.Store(1000)
	return c
}

// SetPosition sets the held position for an instrument.
func (c *Client) SetPosition(pos types.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[pos.ISIN] = pos
}

// SetSnapshot sets the current market snapshot for an instrument.
func (c *Client) SetSnapshot(snap types.MarketSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snap.ISIN] = snap
}

// SetLimits sets the exchange limits for an instrument.
func (c *Client) SetLimits(isin string, limits types.InstrumentLimits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits[isin] = limits
}

// FailNextSubmit makes the next SubmitSellOrder call return err.
func (c *Client) FailNextSubmit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// FailNextCancel makes the next CancelOrder call return err.
func (c *Client) FailNextCancel(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelErr = err
}

// GetPosition returns the held position for isin.
func (c *Client) GetPosition(ctx context.Context, isin string) (types.Position, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.positions[isin]
	if !ok {
		return types.Position{}, fmt.Errorf("%w: %s", types.ErrPositionNotFound, isin)
	}
	return pos, nil
}

// GetMarketSnapshot returns the scripted snapshot for isin.
func (c *Client) GetMarketSnapshot(ctx context.Context, isin string) (types.MarketSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[isin]
	if !ok {
		return types.MarketSnapshot{}, fmt.Errorf("%w: %s", types.ErrInstrumentNotFound, isin)
	}
	return snap, nil
}

// GetInstrumentLimits returns the scripted limits for isin.
func (c *Client) GetInstrumentLimits(ctx context.Context, isin string) (types.InstrumentLimits, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	limits, ok := c.limits[isin]
	if !ok {
		return types.InstrumentLimits{}, fmt.Errorf("%w: %s", types.ErrInstrumentNotFound, isin)
	}
	return limits, nil
}

// SubmitSellOrder records a simulated sell order and returns its serial.
func (c *Client) SubmitSellOrder(ctx context.Context, isin string, price decimal.Decimal, volume int64) (int64, error) {
	c.submitCalls.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitErr != nil {
		err := c.submitErr
		c.submitErr = nil
		return 0, err
	}

	serial := c.nextSerial.Add(1)
	c.orders[serial] = &broker.OrderStatus{
		Serial:         serial,
		ISIN:           isin,
		Price:          price,
		Volume:         volume,
		RemainedVolume: volume,
		State:          types.OrderStateAccepted,
	}

	c.logger.Debug("simulated sell order",
		"isin", isin,
		"serial", serial,
		"price", price,
		"volume", volume,
	)
	return serial, nil
}

// CancelOrder marks a simulated order canceled.
func (c *Client) CancelOrder(ctx context.Context, serial int64) error {
	c.cancelCalls.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelErr != nil {
		err := c.cancelErr
		c.cancelErr = nil
		return err
	}

	order, ok := c.orders[serial]
	if !ok {
		return fmt.Errorf("%w: unknown serial %d", types.ErrCancelFailed, serial)
	}
	if order.State.IsTerminal() {
		return fmt.Errorf("%w: order %d is %s", types.ErrCancelFailed, serial, order.State)
	}
	order.State = types.OrderStateCanceled
	order.IsDone = true
	return nil
}

// GetOpenOrders returns all orders the broker still reports. Executed orders
// disappear from the listing, matching real broker behavior.
func (c *Client) GetOpenOrders(ctx context.Context) ([]broker.OrderStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]broker.OrderStatus, 0, len(c.orders))
	for _, o := range c.orders {
		if o.State == types.OrderStateExecuted {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

// Fill executes volume shares of an order and reduces the position
// accordingly. A fill that exhausts the order marks it Executed and drops it
// from the open-orders listing.
func (c *Client) Fill(serial, volume int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[serial]
	if !ok {
		return fmt.Errorf("unknown serial %d", serial)
	}
	if order.State.IsTerminal() {
		return fmt.Errorf("order %d is %s", serial, order.State)
	}
	if volume > order.RemainedVolume {
		volume = order.RemainedVolume
	}

	order.ExecutedVolume += volume
	order.RemainedVolume -= volume
	if order.RemainedVolume == 0 {
		order.State = types.OrderStateExecuted
		order.IsDone = true
	} else {
		order.State = types.OrderStatePartiallyExecuted
	}

	if pos, ok := c.positions[order.ISIN]; ok {
		pos.Quantity -= volume
		if pos.Quantity < 0 {
			pos.Quantity = 0
		}
		c.positions[order.ISIN] = pos
	}
	return nil
}

// FillAll executes every non-terminal order completely.
func (c *Client) FillAll() {
	c.mu.RLock()
	serials := make([]int64, 0, len(c.orders))
	for serial, o := range c.orders {
		if !o.State.IsTerminal() {
			serials = append(serials, serial)
		}
	}
	c.mu.RUnlock()

	for _, serial := range serials {
		c.mu.RLock()
		remaining := c.orders[serial].RemainedVolume
		c.mu.RUnlock()
		_ = c.Fill(serial, remaining)
	}
}

// Orders returns a copy of all simulated orders, terminal included.
func (c *Client) Orders() []broker.OrderStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]broker.OrderStatus, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, *o)
	}
	return out
}

// SubmitCalls returns how many SubmitSellOrder calls were made.
func (c *Client) SubmitCalls() int64 {
	return c.submitCalls.Load()
}

// CancelCalls returns how many CancelOrder calls were made.
func (c *Client) CancelCalls() int64 {
	return c.cancelCalls.Load()
}

// MutationCalls returns the total number of order-mutating calls.
func (c *Client) MutationCalls() int64 {
	return c.submitCalls.Load() + c.cancelCalls.Load()
}
