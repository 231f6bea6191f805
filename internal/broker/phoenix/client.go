package phoenix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/farshadfahimi/sellerbot/internal/broker"
	"github.com/farshadfahimi/sellerbot/internal/types"
)

// TokenSource yields a valid bearer token for one account. Implementations
// handle login and caching; the client only asks for a usable token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token. Useful when the
// token is provisioned out of band.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("%w: empty token", types.ErrNotConnected)
	}
	return string(t), nil
}

// Config holds the Phoenix client settings.
type Config struct {
	Code     Code
	Username string
	Tokens   TokenSource
	Timeout  time.Duration

	// RequestsPerSecond caps the API call rate. The platform throttles
	// aggressive polling per account.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the ephoenix.ir APIs for a single account and implements
// broker.Client.
type Client struct {
	cfg       Config
	endpoints Endpoints
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient creates a Phoenix API client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if _, err := ParseCode(string(cfg.Code)); err != nil {
		return nil, err
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("%w: token source is required", types.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 2
	}

	return &Client{
		cfg:       cfg,
		endpoints: cfg.Code.Endpoints(),
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		logger:    logger.With("broker", string(cfg.Code), "user", cfg.Username),
	}, nil
}

// instrumentPayload is the market-data response per instrument. The API uses
// short keys throughout.
type instrumentPayload struct {
	Instrument struct {
		ISIN   string `json:"isin"`
		Symbol string `json:"s"`
		Title  string `json:"t"`
		MaxEq  int64  `json:"maxeq"`
		MinEq  int64  `json:"mineq"`
	} `json:"i"`
	Trading struct {
		LastPrice float64 `json:"cup"`
		MaxPrice  float64 `json:"maxap"`
		MinPrice  float64 `json:"minap"`
	} `json:"t"`
	BestLimits []bestLimitPayload `json:"bl"`
}

type bestLimitPayload struct {
	Row            int     `json:"r"`
	BuyVolume      int64   `json:"bv"`
	BuyOrderCount  int     `json:"boc"`
	BuyPrice       float64 `json:"bp"`
	SellVolume     int64   `json:"sv"`
	SellOrderCount int     `json:"soc"`
	SellPrice      float64 `json:"sp"`
}

type positionPayload struct {
	ISIN         string  `json:"isin"`
	Symbol       string  `json:"symbol"`
	Quantity     int64   `json:"quantity"`
	AveragePrice float64 `json:"averagePrice"`
}

type openOrderPayload struct {
	SerialNumber   int64   `json:"serialNumber"`
	ISIN           string  `json:"isin"`
	Price          float64 `json:"price"`
	Volume         int64   `json:"volume"`
	ExecutedVolume int64   `json:"executedVolume"`
	RemainedVolume int64   `json:"remainedVolume"`
	State          int     `json:"state"`
	StateDesc      string  `json:"stateDesc"`
}

type newOrderPayload struct {
	ISIN         string  `json:"isin"`
	Side         int     `json:"side"`
	Validity     int     `json:"validity"`
	AccountType  int     `json:"accountType"`
	Price        float64 `json:"price"`
	Volume       int64   `json:"volume"`
	ValidityDate *string `json:"validityDate"`
	SerialNumber int64   `json:"serialNumber"`
}

type newOrderResponse struct {
	SerialNumber int64  `json:"serialNumber"`
	IsSuccessful bool   `json:"isSuccessful"`
	Message      string `json:"message"`
}

const (
	sideSell    = 2
	validityDay = 1
)

// GetPosition returns the held position for isin.
func (c *Client) GetPosition(ctx context.Context, isin string) (types.Position, error) {
	var payload []positionPayload
	if err := c.do(ctx, http.MethodPost, c.endpoints.Portfolio, map[string]any{"entity": true}, &payload); err != nil {
		return types.Position{}, fmt.Errorf("get portfolio: %w", err)
	}

	for _, p := range payload {
		if p.ISIN != isin {
			continue
		}
		return types.Position{
			ISIN:         p.ISIN,
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			AveragePrice: decimal.NewFromFloat(p.AveragePrice),
		}, nil
	}
	return types.Position{}, fmt.Errorf("%w: %s", types.ErrPositionNotFound, isin)
}

// GetMarketSnapshot fetches the order book and trading state for isin.
func (c *Client) GetMarketSnapshot(ctx context.Context, isin string) (types.MarketSnapshot, error) {
	payload, err := c.fetchInstrument(ctx, isin)
	if err != nil {
		return types.MarketSnapshot{}, err
	}

	if payload.Trading.LastPrice <= 0 || payload.Trading.MinPrice <= 0 {
		return types.MarketSnapshot{}, fmt.Errorf("%w: %s has no trading data", types.ErrSnapshotIncomplete, isin)
	}

	snap := types.MarketSnapshot{
		ISIN:         isin,
		Symbol:       payload.Instrument.Symbol,
		LastPrice:    decimal.NewFromFloat(payload.Trading.LastPrice),
		PriceCeiling: decimal.NewFromFloat(payload.Trading.MaxPrice),
		PriceFloor:   decimal.NewFromFloat(payload.Trading.MinPrice),
		Timestamp:    time.Now(),
	}

	rows := make([]types.BookRow, 0, len(payload.BestLimits))
	for _, bl := range payload.BestLimits {
		rows = append(rows, types.BookRow{
			Rank:           bl.Row,
			BuyVolume:      bl.BuyVolume,
			BuyOrderCount:  bl.BuyOrderCount,
			BuyPrice:       decimal.NewFromFloat(bl.BuyPrice),
			SellVolume:     bl.SellVolume,
			SellOrderCount: bl.SellOrderCount,
			SellPrice:      decimal.NewFromFloat(bl.SellPrice),
		})
		snap.TotalBuyVolume += bl.BuyVolume
		snap.TotalSellVolume += bl.SellVolume
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
	snap.Rows = rows
	snap.BuyQueued = snap.DeriveBuyQueued()

	return snap, nil
}

// GetInstrumentLimits returns the exchange limits for isin.
func (c *Client) GetInstrumentLimits(ctx context.Context, isin string) (types.InstrumentLimits, error) {
	payload, err := c.fetchInstrument(ctx, isin)
	if err != nil {
		return types.InstrumentLimits{}, err
	}
	if payload.Instrument.MaxEq <= 0 {
		return types.InstrumentLimits{}, fmt.Errorf("%w: %s has no volume limits", types.ErrSnapshotIncomplete, isin)
	}
	return types.InstrumentLimits{
		MaxOrderSize: payload.Instrument.MaxEq,
		PriceFloor:   decimal.NewFromFloat(payload.Trading.MinPrice),
		PriceCeiling: decimal.NewFromFloat(payload.Trading.MaxPrice),
	}, nil
}

// SubmitSellOrder places a day-validity sell order and returns its serial.
func (c *Client) SubmitSellOrder(ctx context.Context, isin string, price decimal.Decimal, volume int64) (int64, error) {
	payload := newOrderPayload{
		ISIN:        isin,
		Side:        sideSell,
		Validity:    validityDay,
		AccountType: 1,
		Price:       price.InexactFloat64(),
		Volume:      volume,
	}

	var resp newOrderResponse
	if err := c.do(ctx, http.MethodPost, c.endpoints.Order, payload, &resp); err != nil {
		return 0, fmt.Errorf("new order: %w", err)
	}
	if !resp.IsSuccessful || resp.SerialNumber == 0 {
		return 0, fmt.Errorf("%w: %s", types.ErrOrderRejected, resp.Message)
	}

	c.logger.Info("sell order accepted",
		"isin", isin,
		"serial", resp.SerialNumber,
		"price", price,
		"volume", volume,
	)
	return resp.SerialNumber, nil
}

// CancelOrder cancels the order with the given serial.
func (c *Client) CancelOrder(ctx context.Context, serial int64) error {
	url := fmt.Sprintf("%s?serialNumber=%d", c.endpoints.CancelOrder, serial)
	if err := c.do(ctx, http.MethodPost, url, nil, nil); err != nil {
		return fmt.Errorf("%w: serial %d: %v", types.ErrCancelFailed, serial, err)
	}
	return nil
}

// GetOpenOrders lists the account's open orders.
func (c *Client) GetOpenOrders(ctx context.Context) ([]broker.OrderStatus, error) {
	var payload []openOrderPayload
	url := c.endpoints.OpenOrders + "?type=1"
	if err := c.do(ctx, http.MethodGet, url, nil, &payload); err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	out := make([]broker.OrderStatus, 0, len(payload))
	for _, o := range payload {
		state := types.OrderStateFromWire(o.State)
		out = append(out, broker.OrderStatus{
			Serial:         o.SerialNumber,
			ISIN:           o.ISIN,
			Price:          decimal.NewFromFloat(o.Price),
			Volume:         o.Volume,
			ExecutedVolume: o.ExecutedVolume,
			RemainedVolume: o.RemainedVolume,
			State:          state,
			IsDone:         state.IsTerminal(),
		})
	}
	return out, nil
}

func (c *Client) fetchInstrument(ctx context.Context, isin string) (instrumentPayload, error) {
	var payload []instrumentPayload
	body := map[string]any{"isinList": []string{isin}}
	if err := c.do(ctx, http.MethodPost, c.endpoints.MarketData, body, &payload); err != nil {
		return instrumentPayload{}, fmt.Errorf("get market data: %w", err)
	}
	if len(payload) == 0 {
		return instrumentPayload{}, fmt.Errorf("%w: %s", types.ErrInstrumentNotFound, isin)
	}
	return payload[0], nil
}

// do performs one rate-limited, authenticated API call.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrRateLimited, err)
	}

	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return types.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
