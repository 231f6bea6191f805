// Package persistence provides the liquidation journal.
package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Journal records what the engine did during a session, for audit and
// post-mortem. All writes are best-effort from the caller's point of view:
// a journal failure never blocks trading.
type Journal interface {
	// Order operations
	RecordOrder(ctx context.Context, rec OrderRecord) error
	GetOrders(ctx context.Context, runID string) ([]OrderRecord, error)

	// Run operations
	RecordRun(ctx context.Context, rec WatcherRun) error
	GetRuns(ctx context.Context, from, to time.Time) ([]WatcherRun, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// OrderRecord is a persisted snapshot of one order's state.
type OrderRecord struct {
	ID             int64
	RunID          string
	Account        string
	Broker         string
	ISIN           string
	Serial         int64
	Price          decimal.Decimal
	Volume         int64
	ExecutedVolume int64
	State          string
	Reason         string
	RecordedAt     time.Time
}

// WatcherRun is the persisted outcome of one watcher run.
type WatcherRun struct {
	ID         int64
	RunID      string
	Key        string
	Account    string
	Broker     string
	ISIN       string
	Target     int64
	Sold       int64
	State      string
	FinishedAt time.Time
}
