// Package broker defines the brokerage client contract the engine depends on.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/farshadfahimi/sellerbot/internal/types"
)

// OrderStatus is one open-order record as reported by the broker.
type OrderStatus struct {
	Serial         int64
	ISIN           string
	Price          decimal.Decimal
	Volume         int64
	ExecutedVolume int64
	RemainedVolume int64
	State          types.OrderState
	IsDone         bool
}

// Client is a per-account brokerage session. All calls are blocking and
// synchronous from the caller's point of view; a slow call delays only the
// watcher making it.
type Client interface {
	// GetPosition returns the account's position in one instrument.
	// Returns types.ErrPositionNotFound if the instrument is not held.
	GetPosition(ctx context.Context, isin string) (types.Position, error)

	// GetMarketSnapshot returns order-book and price-limit state.
	GetMarketSnapshot(ctx context.Context, isin string) (types.MarketSnapshot, error)

	// SubmitSellOrder places a day sell order and returns the broker's
	// serial number. Returns types.ErrOrderRejected on broker-side
	// validation failure.
	SubmitSellOrder(ctx context.Context, isin string, price decimal.Decimal, volume int64) (int64, error)

	// CancelOrder cancels an open order by serial number.
	CancelOrder(ctx context.Context, serial int64) error

	// GetOpenOrders returns all currently open orders for the account.
	GetOpenOrders(ctx context.Context) ([]OrderStatus, error)

	// GetInstrumentLimits returns the exchange limits for one instrument.
	GetInstrumentLimits(ctx context.Context, isin string) (types.InstrumentLimits, error)
}

// Account identifies one brokerage login.
type Account struct {
	Username string
	Broker   string
}

// Factory builds a Client for an account. The supervisor uses it to give
// every watcher its own authenticated session.
type Factory func(ctx context.Context, account Account) (Client, error)
