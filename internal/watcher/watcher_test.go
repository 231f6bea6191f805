package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/farshadfahimi/sellerbot/internal/alerting"
	"github.com/farshadfahimi/sellerbot/internal/broker/sim"
	"github.com/farshadfahimi/sellerbot/internal/session"
	"github.com/farshadfahimi/sellerbot/internal/types"
)

const testISIN = "IRO1FOLD0001"

func testConfig() Config {
	return Config{
		Account:          "user1",
		Broker:           "gs",
		ISIN:             testISIN,
		MinBuyVolume:     30_000_000,
		SellDiscount:     decimal.RequireFromString("0.99"),
		PollInterval:     time.Millisecond,
		RepriceTolerance: decimal.NewFromInt(1),
	}
}

// clockAt returns a clock pinned to the given local time of day, plus a
// setter to move it.
func clockAt(t *testing.T, hour, min, sec int) (*session.Clock, func(h, m, s int)) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2025, 3, 10, hour, min, sec, 0, loc)
	clock := session.NewClock(session.DefaultBoundaries(), loc,
		session.WithNow(func() time.Time { return now }))
	return clock, func(h, m, s int) {
		now = time.Date(2025, 3, 10, h, m, s, 0, loc)
	}
}

func normalMarket(client *sim.Client, last, floor int64) {
	client.SetSnapshot(types.MarketSnapshot{
		ISIN:       testISIN,
		LastPrice:  decimal.NewFromInt(last),
		PriceFloor: decimal.NewFromInt(floor),
		Rows: []types.BookRow{
			{
				BuyVolume:  500_000,
				BuyPrice:   decimal.NewFromInt(last - 10),
				SellVolume: 400_000,
				SellPrice:  decimal.NewFromInt(last),
			},
		},
		TotalBuyVolume:  500_000,
		TotalSellVolume: 400_000,
		Timestamp:       time.Now(),
	})
}

func newSimClient(t *testing.T) *sim.Client {
	t.Helper()
	client := sim.New(nil)
	client.SetPosition(types.Position{ISIN: testISIN, Quantity: 1_000_000})
	client.SetLimits(testISIN, types.InstrumentLimits{
		MaxOrderSize: 400_000,
		PriceFloor:   decimal.NewFromInt(4500),
	})
	normalMarket(client, 5000, 4500)
	return client
}

func newTestWatcher(t *testing.T, clock *session.Clock) (*Watcher, *sim.Client, *alerting.MockAlerter) {
	t.Helper()
	client := newSimClient(t)
	mock := alerting.NewMockAlerter()
	return New(testConfig(), clock, client, mock, nil, nil), client, mock
}

func TestWatcher_SellsFullPositionInSplits(t *testing.T) {
	clock, _ := clockAt(t, 10, 0, 0)
	w, client, mock := newTestWatcher(t, clock)

	if done := w.tick(context.Background()); done {
		t.Fatal("tick reported completion with an open position")
	}

	orders := client.Orders()
	if len(orders) != 3 {
		t.Fatalf("placed %d orders, want 3", len(orders))
	}
	var total int64
	for _, o := range orders {
		// Last 5000 at 0.99 discount: every split priced 4950.
		if !o.Price.Equal(decimal.NewFromInt(4950)) {
			t.Errorf("order price = %s, want 4950", o.Price)
		}
		if o.Volume > 400_000 {
			t.Errorf("order volume %d exceeds the exchange cap", o.Volume)
		}
		total += o.Volume
	}
	if total != 1_000_000 {
		t.Errorf("total submitted volume = %d, want 1000000", total)
	}

	if !mock.HasAlertContaining("Selling") {
		t.Error("expected a selling notification")
	}

	// Position covered by pending orders: the next tick must not resubmit.
	if done := w.tick(context.Background()); done {
		t.Fatal("unexpected completion")
	}
	if got := client.SubmitCalls(); got != 3 {
		t.Errorf("submit calls after second tick = %d, want 3", got)
	}
}

func TestWatcher_CompletesAfterFills(t *testing.T) {
	clock, _ := clockAt(t, 10, 0, 0)
	w, client, mock := newTestWatcher(t, clock)

	w.tick(context.Background())
	client.FillAll()

	done := w.tick(context.Background())
	if !done {
		t.Fatal("expected completion after all fills")
	}
	w.finish(context.Background(), StateCompleted)

	st := w.Status()
	if st.State != StateCompleted {
		t.Errorf("state = %v, want StateCompleted", st.State)
	}
	if st.SoldSoFar != 1_000_000 {
		t.Errorf("sold = %d, want 1000000", st.SoldSoFar)
	}
	if !mock.HasAlertContaining("All shares sold") {
		t.Error("expected completion notification")
	}
}

func TestWatcher_FreezeWindowNoMutations(t *testing.T) {
	clock, _ := clockAt(t, 8, 57, 0)
	w, client, mock := newTestWatcher(t, clock)

	for i := 0; i < 5; i++ {
		if done := w.tick(context.Background()); done {
			t.Fatal("unexpected completion during freeze")
		}
	}

	if got := client.MutationCalls(); got != 0 {
		t.Fatalf("broker saw %d order mutations during the freeze window", got)
	}
	if !mock.HasAlertContaining("Order freeze") {
		t.Error("expected a freeze notification")
	}

	// The freeze notification fires once, not per tick.
	count := 0
	for _, a := range mock.Alerts() {
		if a.Message == "Order freeze" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("freeze notifications = %d, want 1", count)
	}
}

func TestWatcher_ClosedMarketNoAction(t *testing.T) {
	clock, _ := clockAt(t, 14, 0, 0)
	w, client, _ := newTestWatcher(t, clock)

	w.tick(context.Background())
	if got := client.MutationCalls(); got != 0 {
		t.Errorf("closed market produced %d mutations", got)
	}
}

func TestWatcher_PreMarketSells(t *testing.T) {
	clock, _ := clockAt(t, 8, 50, 0)
	w, client, _ := newTestWatcher(t, clock)

	w.tick(context.Background())
	if got := client.SubmitCalls(); got != 3 {
		t.Errorf("premarket submit calls = %d, want 3", got)
	}
}

func TestWatcher_RepricesWhenMarketMoves(t *testing.T) {
	clock, _ := clockAt(t, 10, 0, 0)
	w, client, _ := newTestWatcher(t, clock)

	w.tick(context.Background())
	if client.SubmitCalls() != 3 {
		t.Fatalf("initial submit calls = %d, want 3", client.SubmitCalls())
	}

	// Price drops to 4800: new target 4752, the resting 4950 orders are
	// stale beyond the tolerance.
	normalMarket(client, 4800, 4500)
	w.tick(context.Background())

	if got := client.CancelCalls(); got != 3 {
		t.Errorf("cancel calls = %d, want 3", got)
	}
	if got := client.SubmitCalls(); got != 6 {
		t.Errorf("submit calls after reprice = %d, want 6", got)
	}

	var active int64
	for _, o := range client.Orders() {
		if o.State.IsTerminal() {
			continue
		}
		if !o.Price.Equal(decimal.NewFromInt(4752)) {
			t.Errorf("repriced order at %s, want 4752", o.Price)
		}
		active += o.Volume
	}
	if active != 1_000_000 {
		t.Errorf("active volume after reprice = %d, want 1000000", active)
	}
}

func TestWatcher_TopUpResetsTarget(t *testing.T) {
	clock, _ := clockAt(t, 10, 0, 0)
	w, client, _ := newTestWatcher(t, clock)

	w.tick(context.Background())
	if w.target != 1_000_000 {
		t.Fatalf("target = %d, want 1000000", w.target)
	}

	// More shares land in the account mid-session.
	client.SetPosition(types.Position{ISIN: testISIN, Quantity: 1_200_000})
	w.tick(context.Background())

	if w.target != 1_200_000 {
		t.Errorf("target after top-up = %d, want 1200000", w.target)
	}
}

func TestWatcher_PartialFillTracksProgress(t *testing.T) {
	clock, _ := clockAt(t, 10, 0, 0)
	w, client, _ := newTestWatcher(t, clock)

	w.tick(context.Background())

	orders := client.Orders()
	if err := client.Fill(orders[0].Serial, 150_000); err != nil {
		t.Fatal(err)
	}

	w.tick(context.Background())
	st := w.Status()
	if st.SoldSoFar != 150_000 {
		t.Errorf("sold = %d, want 150000", st.SoldSoFar)
	}
	if st.PendingOrders != 3 {
		t.Errorf("pending orders = %d, want 3", st.PendingOrders)
	}
}

func TestWatcher_AlertEventFilter(t *testing.T) {
	clock, _ := clockAt(t, 10, 0, 0)
	client := newSimClient(t)

	mock := alerting.NewMockAlerter()
	multi := alerting.NewMultiAlerter(nil, mock)
	multi.SetEventFilter(func(event alerting.AlertEvent) bool {
		return event != alerting.EventSelling
	})

	w := New(testConfig(), clock, client, multi, nil, nil)
	w.tick(context.Background())

	// Orders still go out; only the notification is suppressed.
	if got := client.SubmitCalls(); got != 3 {
		t.Fatalf("submit calls = %d, want 3", got)
	}
	if mock.HasAlertContaining("Selling") {
		t.Error("disabled selling event must not reach the channels")
	}
	if !mock.HasAlertContaining("Tracking position") {
		t.Error("enabled events should still be delivered")
	}
}

func TestWatcher_StartStopLifecycle(t *testing.T) {
	clock, _ := clockAt(t, 14, 0, 0)
	w, _, _ := newTestWatcher(t, clock)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	w.Stop()
	if st := w.Status(); st.State != StateStopped {
		t.Errorf("state after Stop = %v, want StateStopped", st.State)
	}

	// Stop is idempotent.
	w.Stop()
}

func TestConfig_Validate(t *testing.T) {
	valid := testConfig()
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing account", func(c *Config) { c.Account = "" }},
		{"missing isin", func(c *Config) { c.ISIN = "" }},
		{"zero discount", func(c *Config) { c.SellDiscount = decimal.Zero }},
		{"discount above one", func(c *Config) { c.SellDiscount = decimal.NewFromInt(2) }},
		{"zero min buy volume", func(c *Config) { c.MinBuyVolume = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_Key(t *testing.T) {
	cfg := testConfig()
	if got := cfg.Key(); got != "user1@gs:IRO1FOLD0001" {
		t.Errorf("Key() = %q, want user1@gs:IRO1FOLD0001", got)
	}
}
