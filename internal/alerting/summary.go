package alerting

import (
	"time"

	"github.com/shopspring/decimal"
)

// WatcherSummary is the per-position slice of a session summary.
type WatcherSummary struct {
	Key       string
	ISIN      string
	Target    int64
	Sold      int64
	Remaining int64
	AvgPrice  decimal.Decimal
	State     string
}

// SessionSummary contains end-of-session liquidation statistics.
type SessionSummary struct {
	Date        time.Time
	Watchers    []WatcherSummary
	TotalTarget int64
	TotalSold   int64
	TotalValue  decimal.Decimal
	Completed   int
	Incomplete  int
}

// NewSessionSummary aggregates per-watcher results into a session summary.
func NewSessionSummary(date time.Time, watchers []WatcherSummary) SessionSummary {
	s := SessionSummary{
		Date:     date,
		Watchers: watchers,
	}

	for _, w := range watchers {
		s.TotalTarget += w.Target
		s.TotalSold += w.Sold
		s.TotalValue = s.TotalValue.Add(w.AvgPrice.Mul(decimal.NewFromInt(w.Sold)))
		if w.Remaining <= 0 && w.Target > 0 {
			s.Completed++
		} else {
			s.Incomplete++
		}
	}

	return s
}

// CompletionPct returns the sold fraction of the total target, in percent.
func (s SessionSummary) CompletionPct() decimal.Decimal {
	if s.TotalTarget == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(s.TotalSold).
		Div(decimal.NewFromInt(s.TotalTarget)).
		Mul(decimal.NewFromInt(100))
}
