// Package decision implements the sell decision engine.
//
// The engine is a pure function from (position, snapshot, phase, config) to
// an optional sell action. It never talks to the broker and holds no state,
// which keeps every pricing rule unit-testable in isolation.
package decision

import (
	"github.com/shopspring/decimal"

	"github.com/farshadfahimi/sellerbot/internal/session"
	"github.com/farshadfahimi/sellerbot/internal/types"
)

// Reason identifies which rule produced a sell decision.
type Reason string

const (
	ReasonSellQueuePanic          Reason = "sell_queue_panic"
	ReasonSellQueuePanicPreMarket Reason = "sell_queue_panic_premarket"
	ReasonQueueDemandLow          Reason = "queue_demand_low"
	ReasonQueueDemandLowPreMarket Reason = "queue_demand_low_premarket"
	ReasonNormalMarketSell        Reason = "normal_market_sell"
	ReasonPreMarketNormalUrgent   Reason = "premarket_normal_urgent"
)

// Config holds the per-watcher decision thresholds. The sell-queue detection
// numbers are empirically tuned policy, so they stay configurable.
type Config struct {
	// MinBuyVolume is the first-row buy volume below which a queued market
	// is judged to be losing demand.
	MinBuyVolume int64

	// SellDiscount is applied to the last price in a non-queued market,
	// 0 < SellDiscount <= 1.
	SellDiscount decimal.Decimal

	// SellQueueRatio: total sell volume at least this many times total buy
	// volume counts as heavy selling.
	SellQueueRatio int64

	// WeakBuyVolume: total buy volume below this counts as a weak market
	// regardless of the ratio.
	WeakBuyVolume int64
}

// DefaultConfig returns decision thresholds matching typical TSE liquidity.
func DefaultConfig() Config {
	return Config{
		MinBuyVolume:   30_000_000,
		SellDiscount:   decimal.RequireFromString("0.99"),
		SellQueueRatio: 10,
		WeakBuyVolume:  1_000_000,
	}
}

// Decision is a sell action: submit at Price for the given Reason. Quantity
// is decided by the caller from position and pending order state.
type Decision struct {
	Price  decimal.Decimal
	Reason Reason
}

// Engine decides whether and at what price to sell.
type Engine struct {
	cfg Config
}

// NewEngine creates a decision engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Decide evaluates the priority-ordered sell rules and returns a decision,
// or false when the right move is to hold.
//
// Rule order matters: a dumping market must preempt the normal-market rule
// even when both could textually apply.
func (e *Engine) Decide(pos types.Position, snap types.MarketSnapshot, phase session.Phase) (Decision, bool) {
	if phase == session.PhaseClosed || phase == session.PhaseOrderFreeze {
		return Decision{}, false
	}
	if pos.Quantity <= 0 {
		return Decision{}, false
	}

	// Rule 1: sell-queue panic. The market is dumping at the floor; any
	// delay loses execution priority.
	if snap.SellQueued(e.cfg.SellQueueRatio, e.cfg.WeakBuyVolume) {
		reason := ReasonSellQueuePanic
		if phase == session.PhasePreMarket {
			reason = ReasonSellQueuePanicPreMarket
		}
		return Decision{Price: snap.PriceFloor, Reason: reason}, true
	}

	if snap.BuyQueued {
		// Rule 2: healthy demand behind the queue, hold.
		if snap.FirstRowBuyVolume() >= e.cfg.MinBuyVolume {
			return Decision{}, false
		}

		// Rule 3: the queue is about to break; crystallize the best buy
		// price before it disappears.
		if best := snap.BestBuyPrice(); best.IsPositive() {
			reason := ReasonQueueDemandLow
			if phase == session.PhasePreMarket {
				reason = ReasonQueueDemandLowPreMarket
			}
			return Decision{Price: best, Reason: reason}, true
		}
		return Decision{}, false
	}

	// Rule 4: normal market, compete with the other sellers at a discount.
	// The floor is applied after the discount so a deep discount can never
	// push the order below the tradable range.
	price := e.TargetPrice(snap)

	reason := ReasonNormalMarketSell
	if phase == session.PhasePreMarket {
		reason = ReasonPreMarketNormalUrgent
	}
	return Decision{Price: price, Reason: reason}, true
}

// TargetPrice returns the competitive price for a non-queued market:
// last price times the discount, floored at the session minimum.
func (e *Engine) TargetPrice(snap types.MarketSnapshot) decimal.Decimal {
	price := snap.LastPrice.Mul(e.cfg.SellDiscount)
	if price.LessThan(snap.PriceFloor) {
		price = snap.PriceFloor
	}
	return price
}
