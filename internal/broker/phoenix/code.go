// Package phoenix implements the broker client for the ephoenix.ir trading
// platform used by Iranian brokerages.
package phoenix

import (
	"fmt"

	"github.com/farshadfahimi/sellerbot/internal/types"
)

// Code identifies a brokerage on the ephoenix.ir platform. The code is part
// of the per-broker API hostnames.
type Code string

const (
	CodeGanjine Code = "gs"    // Ghadir Shahr (Ganjine)
	CodeShahr   Code = "shahr" // Shahr
	CodeBBI     Code = "bbi"   // Bourse Bazar Iran
	CodeKaramad Code = "karamad"
	CodeTejarat Code = "tejarat"
	CodeEBB     Code = "ebb" // Eghtesad Bidar
)

var brokerNames = map[Code]string{
	CodeGanjine: "Ghadir Shahr (Ganjine)",
	CodeShahr:   "Shahr",
	CodeBBI:     "Bourse Bazar Iran",
	CodeKaramad: "Karamad",
	CodeTejarat: "Tejarat",
	CodeEBB:     "EBB",
}

// ParseCode validates a broker code string.
func ParseCode(s string) (Code, error) {
	code := Code(s)
	if _, ok := brokerNames[code]; !ok {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidBroker, s)
	}
	return code, nil
}

// Name returns the human-readable brokerage name.
func (c Code) Name() string {
	if name, ok := brokerNames[c]; ok {
		return name
	}
	return string(c)
}

// Endpoints holds the API URLs for one brokerage. Market data is served from
// a shared host; everything else is per-broker.
type Endpoints struct {
	Login       string
	Order       string
	EditOrder   string
	CancelOrder string
	OpenOrders  string
	TradingBook string
	Portfolio   string
	MarketData  string
}

// Endpoints returns the API endpoints for this brokerage.
func (c Code) Endpoints() Endpoints {
	return Endpoints{
		Login:       fmt.Sprintf("https://identity-%s.ephoenix.ir/api/v2/accounts/login", c),
		Order:       fmt.Sprintf("https://api-%s.ephoenix.ir/api/v2/orders/NewOrder", c),
		EditOrder:   fmt.Sprintf("https://api-%s.ephoenix.ir/api/v2/orders/EditOrder", c),
		CancelOrder: fmt.Sprintf("https://api-%s.ephoenix.ir/api/v2/orders/CancelOrder", c),
		OpenOrders:  fmt.Sprintf("https://api-%s.ephoenix.ir/api/v2/orders/GetOpenOrders", c),
		TradingBook: fmt.Sprintf("https://api-%s.ephoenix.ir/api/v2/tradingbook/GetLastTradingBook", c),
		Portfolio:   fmt.Sprintf("https://backofficeexternal-%s.ephoenix.ir/api/portfolio/getrealsecuritypositionbydate", c),
		MarketData:  "https://mdapi1.ephoenix.ir/api/v2/instruments/full",
	}
}
