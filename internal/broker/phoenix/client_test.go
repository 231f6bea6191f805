package phoenix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/farshadfahimi/sellerbot/internal/types"
)

const testISIN = "IRO1FOLD0001"

// testClient builds a client whose endpoints all point at the given server.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Code:              CodeGanjine,
		Username:          "user1",
		Tokens:            StaticToken("test-token"),
		RequestsPerSecond: 1000,
		Burst:             1000,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.endpoints = Endpoints{
		Order:       srv.URL + "/order",
		CancelOrder: srv.URL + "/cancel",
		OpenOrders:  srv.URL + "/open",
		Portfolio:   srv.URL + "/portfolio",
		MarketData:  srv.URL + "/mdapi",
	}
	return c
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{Code: "bogus", Tokens: StaticToken("x")}, nil); !errors.Is(err, types.ErrInvalidBroker) {
		t.Errorf("bad code error = %v, want ErrInvalidBroker", err)
	}
	if _, err := NewClient(Config{Code: CodeGanjine}, nil); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("missing tokens error = %v, want ErrInvalidConfig", err)
	}
}

func TestGetMarketSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		// Rows arrive out of order; the client sorts them by rank.
		_, _ = w.Write([]byte(`[{
			"i": {"isin": "IRO1FOLD0001", "s": "فولاد", "maxeq": 400000, "mineq": 1},
			"t": {"cup": 5000, "maxap": 5250, "minap": 4500},
			"bl": [
				{"r": 2, "bv": 200000, "boc": 5, "bp": 4980, "sv": 100000, "soc": 2, "sp": 5010},
				{"r": 1, "bv": 300000, "boc": 12, "bp": 4990, "sv": 150000, "soc": 4, "sp": 5000}
			]
		}]`))
	}))
	defer srv.Close()
	c := testClient(t, srv)

	snap, err := c.GetMarketSnapshot(context.Background(), testISIN)
	if err != nil {
		t.Fatalf("GetMarketSnapshot() error = %v", err)
	}

	if !snap.LastPrice.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("LastPrice = %s, want 5000", snap.LastPrice)
	}
	if !snap.PriceFloor.Equal(decimal.NewFromInt(4500)) {
		t.Errorf("PriceFloor = %s, want 4500", snap.PriceFloor)
	}
	if !snap.PriceCeiling.Equal(decimal.NewFromInt(5250)) {
		t.Errorf("PriceCeiling = %s, want 5250", snap.PriceCeiling)
	}
	if len(snap.Rows) != 2 || snap.Rows[0].Rank != 1 {
		t.Fatalf("rows = %+v, want rank 1 first", snap.Rows)
	}
	if snap.Rows[0].BuyVolume != 300_000 || !snap.Rows[0].BuyPrice.Equal(decimal.NewFromInt(4990)) {
		t.Errorf("first row = %+v", snap.Rows[0])
	}
	if snap.TotalBuyVolume != 500_000 || snap.TotalSellVolume != 250_000 {
		t.Errorf("totals = %d/%d, want 500000/250000", snap.TotalBuyVolume, snap.TotalSellVolume)
	}
	if snap.BuyQueued {
		t.Error("sell interest below the ceiling must not read as buy-queued")
	}
}

func TestGetMarketSnapshot_NoTradingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"i": {"isin": "IRO1FOLD0001"}, "t": {"cup": 0, "maxap": 0, "minap": 0}}]`))
	}))
	defer srv.Close()
	c := testClient(t, srv)

	_, err := c.GetMarketSnapshot(context.Background(), testISIN)
	if !errors.Is(err, types.ErrSnapshotIncomplete) {
		t.Errorf("error = %v, want ErrSnapshotIncomplete", err)
	}
}

func TestGetMarketSnapshot_UnknownInstrument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	c := testClient(t, srv)

	_, err := c.GetMarketSnapshot(context.Background(), testISIN)
	if !errors.Is(err, types.ErrInstrumentNotFound) {
		t.Errorf("error = %v, want ErrInstrumentNotFound", err)
	}
}

func TestGetInstrumentLimits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{
			"i": {"isin": "IRO1FOLD0001", "maxeq": 400000, "mineq": 1},
			"t": {"cup": 5000, "maxap": 5250, "minap": 4500}
		}]`))
	}))
	defer srv.Close()
	c := testClient(t, srv)

	limits, err := c.GetInstrumentLimits(context.Background(), testISIN)
	if err != nil {
		t.Fatalf("GetInstrumentLimits() error = %v", err)
	}
	if limits.MaxOrderSize != 400_000 {
		t.Errorf("MaxOrderSize = %d, want 400000", limits.MaxOrderSize)
	}
	if !limits.PriceFloor.Equal(decimal.NewFromInt(4500)) {
		t.Errorf("PriceFloor = %s, want 4500", limits.PriceFloor)
	}
}

func TestGetPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("portfolio method = %s, want POST", r.Method)
		}
		_, _ = w.Write([]byte(`[
			{"isin": "IRO1KHOD0001", "symbol": "خودرو", "quantity": 5000, "averagePrice": 2000},
			{"isin": "IRO1FOLD0001", "symbol": "فولاد", "quantity": 1000000, "averagePrice": 4800}
		]`))
	}))
	defer srv.Close()
	c := testClient(t, srv)

	pos, err := c.GetPosition(context.Background(), testISIN)
	if err != nil {
		t.Fatalf("GetPosition() error = %v", err)
	}
	if pos.Quantity != 1_000_000 {
		t.Errorf("Quantity = %d, want 1000000", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(decimal.NewFromInt(4800)) {
		t.Errorf("AveragePrice = %s, want 4800", pos.AveragePrice)
	}

	_, err = c.GetPosition(context.Background(), "IRO1MISSING1")
	if !errors.Is(err, types.ErrPositionNotFound) {
		t.Errorf("error = %v, want ErrPositionNotFound", err)
	}
}

func TestSubmitSellOrder(t *testing.T) {
	var received newOrderPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := jsonDecode(r, &received); err != nil {
			t.Errorf("decode order payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"serialNumber": 987654, "isSuccessful": true}`))
	}))
	defer srv.Close()
	c := testClient(t, srv)

	serial, err := c.SubmitSellOrder(context.Background(), testISIN, decimal.NewFromInt(4950), 400_000)
	if err != nil {
		t.Fatalf("SubmitSellOrder() error = %v", err)
	}
	if serial != 987654 {
		t.Errorf("serial = %d, want 987654", serial)
	}

	if received.Side != sideSell {
		t.Errorf("side = %d, want %d", received.Side, sideSell)
	}
	if received.Validity != validityDay {
		t.Errorf("validity = %d, want %d", received.Validity, validityDay)
	}
	if received.Price != 4950 || received.Volume != 400_000 {
		t.Errorf("payload = %+v", received)
	}
}

func TestSubmitSellOrder_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serialNumber": 0, "isSuccessful": false, "message": "insufficient inventory"}`))
	}))
	defer srv.Close()
	c := testClient(t, srv)

	_, err := c.SubmitSellOrder(context.Background(), testISIN, decimal.NewFromInt(4950), 400_000)
	if !errors.Is(err, types.ErrOrderRejected) {
		t.Errorf("error = %v, want ErrOrderRejected", err)
	}
}

func TestCancelOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("serialNumber"); got != "987654" {
			t.Errorf("serialNumber = %q, want 987654", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c := testClient(t, srv)

	if err := c.CancelOrder(context.Background(), 987654); err != nil {
		t.Errorf("CancelOrder() error = %v", err)
	}
}

func TestCancelOrder_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "order already executed", http.StatusBadRequest)
	}))
	defer srv.Close()
	c := testClient(t, srv)

	if err := c.CancelOrder(context.Background(), 1); !errors.Is(err, types.ErrCancelFailed) {
		t.Errorf("error = %v, want ErrCancelFailed", err)
	}
}

func TestGetOpenOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "1" {
			t.Errorf("type = %q, want 1", got)
		}
		_, _ = w.Write([]byte(`[
			{"serialNumber": 1, "isin": "IRO1FOLD0001", "price": 4950, "volume": 400000, "executedVolume": 150000, "remainedVolume": 250000, "state": 6},
			{"serialNumber": 2, "isin": "IRO1FOLD0001", "price": 4950, "volume": 200000, "executedVolume": 200000, "remainedVolume": 0, "state": 3},
			{"serialNumber": 3, "isin": "IRO1FOLD0001", "price": 4950, "volume": 100000, "executedVolume": 0, "remainedVolume": 100000, "state": 4}
		]`))
	}))
	defer srv.Close()
	c := testClient(t, srv)

	orders, err := c.GetOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOpenOrders() error = %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("got %d orders, want 3", len(orders))
	}

	if orders[0].State != types.OrderStatePartiallyExecuted || orders[0].IsDone {
		t.Errorf("order 1 = %+v, want partially executed and live", orders[0])
	}
	if orders[0].ExecutedVolume != 150_000 || orders[0].RemainedVolume != 250_000 {
		t.Errorf("order 1 volumes = %+v", orders[0])
	}
	if orders[1].State != types.OrderStateExecuted || !orders[1].IsDone {
		t.Errorf("order 2 = %+v, want executed and done", orders[1])
	}
	if orders[2].State != types.OrderStateCanceled || !orders[2].IsDone {
		t.Errorf("order 3 = %+v, want canceled and done", orders[2])
	}
}

func TestDo_RateLimitedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := testClient(t, srv)

	_, err := c.GetOpenOrders(context.Background())
	if !errors.Is(err, types.ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("Token() = %q, %v", tok, err)
	}
	if _, err := StaticToken("").Token(context.Background()); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("empty token error = %v, want ErrNotConnected", err)
	}
}

func jsonDecode(r *http.Request, out any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(out)
}
