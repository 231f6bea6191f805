// Package types defines shared types used across the liquidation engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState represents the state of an order as reported by the broker.
type OrderState int

const (
	OrderStateUnknown OrderState = iota
	OrderStateSubmitting
	OrderStateAccepted
	OrderStateExecuted
	OrderStateCanceled
	OrderStateError
	OrderStatePartiallyExecuted
	OrderStateModified
	OrderStateCanceling
	OrderStateModifying
	OrderStateRejectedByEngine
	OrderStateSuperseded
)

// wireStates maps the broker's integer order-state codes to OrderState.
// Anything outside the known range maps to OrderStateUnknown.
var wireStates = map[int]OrderState{
	1:  OrderStateSubmitting,
	2:  OrderStateAccepted,
	3:  OrderStateExecuted,
	4:  OrderStateCanceled,
	5:  OrderStateError,
	6:  OrderStatePartiallyExecuted,
	7:  OrderStateModified,
	8:  OrderStateCanceling,
	9:  OrderStateModifying,
	10: OrderStateRejectedByEngine,
	11: OrderStateSuperseded,
}

// OrderStateFromWire maps a broker-reported integer to an OrderState.
func OrderStateFromWire(code int) OrderState {
	if s, ok := wireStates[code]; ok {
		return s
	}
	return OrderStateUnknown
}

func (s OrderState) String() string {
	switch s {
	case OrderStateSubmitting:
		return "SUBMITTING"
	case OrderStateAccepted:
		return "ACCEPTED"
	case OrderStateExecuted:
		return "EXECUTED"
	case OrderStateCanceled:
		return "CANCELED"
	case OrderStateError:
		return "ERROR"
	case OrderStatePartiallyExecuted:
		return "PARTIALLY_EXECUTED"
	case OrderStateModified:
		return "MODIFIED"
	case OrderStateCanceling:
		return "CANCELING"
	case OrderStateModifying:
		return "MODIFYING"
	case OrderStateRejectedByEngine:
		return "REJECTED_BY_ENGINE"
	case OrderStateSuperseded:
		return "SUPERSEDED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true if the order will never change state again.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateExecuted, OrderStateCanceled, OrderStateError, OrderStateSuperseded:
		return true
	default:
		return false
	}
}

// Position represents a stock position held in a brokerage account. The
// portfolio endpoint reports holdings only; current prices come from the
// market snapshot.
type Position struct {
	ISIN         string
	Symbol       string
	Quantity     int64
	AveragePrice decimal.Decimal
}

// BookRow is a single depth level of the order book. Rank 1 is the best level.
type BookRow struct {
	Rank           int
	BuyVolume      int64
	BuyOrderCount  int
	BuyPrice       decimal.Decimal
	SellVolume     int64
	SellOrderCount int
	SellPrice      decimal.Decimal
}

// MarketSnapshot captures the order book and price limits for one instrument
// at one instant. Rows are sorted rank-ascending.
type MarketSnapshot struct {
	ISIN            string
	Symbol          string
	LastPrice       decimal.Decimal
	PriceCeiling    decimal.Decimal
	PriceFloor      decimal.Decimal
	Rows            []BookRow
	TotalBuyVolume  int64
	TotalSellVolume int64

	// BuyQueued is true when resting sell interest is absent or pinned at
	// the ceiling: buyers are competing and a seller benefits from staying
	// queued.
	BuyQueued bool

	Timestamp time.Time
}

// BestBuyPrice returns the buy price at the best row, or zero.
func (m MarketSnapshot) BestBuyPrice() decimal.Decimal {
	if len(m.Rows) > 0 && m.Rows[0].BuyPrice.IsPositive() {
		return m.Rows[0].BuyPrice
	}
	return decimal.Zero
}

// BestSellPrice returns the sell price at the best row, or zero.
func (m MarketSnapshot) BestSellPrice() decimal.Decimal {
	if len(m.Rows) > 0 && m.Rows[0].SellPrice.IsPositive() {
		return m.Rows[0].SellPrice
	}
	return decimal.Zero
}

// FirstRowBuyVolume returns the buy volume at the best row.
func (m MarketSnapshot) FirstRowBuyVolume() int64 {
	if len(m.Rows) > 0 {
		return m.Rows[0].BuyVolume
	}
	return 0
}

// DeriveBuyQueued computes whether the market is buy-side queued: there is no
// resting sell interest at all, or the best resting sell sits at the session
// price ceiling.
func (m MarketSnapshot) DeriveBuyQueued() bool {
	if m.TotalSellVolume == 0 {
		return true
	}
	if len(m.Rows) == 0 {
		return false
	}
	best := m.Rows[0]
	return best.SellVolume > 0 && best.SellPrice.GreaterThanOrEqual(m.PriceCeiling)
}

// SellQueued reports a panic/dump condition: the best resting sell sits at the
// session price floor while sell interest heavily outweighs buy interest
// (ratio) or buy interest is below the weak-market threshold. With no book
// rows the condition cannot be determined and is false.
func (m MarketSnapshot) SellQueued(ratio, weakBuyVolume int64) bool {
	if len(m.Rows) == 0 {
		return false
	}
	best := m.Rows[0]
	if best.SellVolume <= 0 || !best.SellPrice.LessThanOrEqual(m.PriceFloor) {
		return false
	}
	if m.TotalBuyVolume < weakBuyVolume {
		return true
	}
	return m.TotalSellVolume >= ratio*m.TotalBuyVolume
}

// PendingOrder is a sell order submitted by the engine and tracked until it
// reaches a terminal state.
type PendingOrder struct {
	ISIN            string
	Price           decimal.Decimal
	Volume          int64
	Serial          int64 // broker-assigned, zero until acknowledged
	State           OrderState
	ExecutedVolume  int64
	RemainingVolume int64
}

// NewPendingOrder creates a pending order with remaining volume derived from
// the submitted and executed volumes.
func NewPendingOrder(isin string, price decimal.Decimal, volume, serial int64) PendingOrder {
	return PendingOrder{
		ISIN:            isin,
		Price:           price,
		Volume:          volume,
		Serial:          serial,
		State:           OrderStateSubmitting,
		RemainingVolume: volume,
	}
}

// InstrumentLimits holds exchange-imposed limits for one instrument.
type InstrumentLimits struct {
	MaxOrderSize int64
	PriceFloor   decimal.Decimal
	PriceCeiling decimal.Decimal
}
