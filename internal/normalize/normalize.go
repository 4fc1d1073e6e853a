// Package normalize maps human-friendly aliases to the venue's canonical codes.
// Lookups are exact and case-sensitive; unknown aliases pass through unchanged so
// new upstream codes work without a release.
package normalize

import "github.com/GoPolymarket/neogate/internal/model"

type Category string

const (
	Segment   Category = "segment"
	Product   Category = "product"
	OrderType Category = "order_type"
	Side      Category = "side"
)

var tables = map[Category]map[string]string{
	Segment: {
		"nse_cm": "nse_cm",
		"NSE":    "nse_cm",
		"nse":    "nse_cm",
		"BSE":    "bse_cm",
		"bse":    "bse_cm",
		"bse_cm": "bse_cm",
		"NFO":    "nse_fo",
		"nse_fo": "nse_fo",
		"nfo":    "nse_fo",
		"BFO":    "bse_fo",
		"bse_fo": "bse_fo",
		"bfo":    "bse_fo",
		"CDS":    "cde_fo",
		"cde_fo": "cde_fo",
		"cds":    "cde_fo",
		"BCD":    "bcs-fo",
		"bcs-fo": "bcs-fo",
		"bcd":    "bcs-fo",
		"MCX":    "mcx",
		"mcx":    "mcx",
		"mcx_fo": "mcx",
	},
	Product: {
		"Normal":         "NRML",
		"NRML":           "NRML",
		"CNC":            "CNC",
		"cnc":            "CNC",
		"Cash and Carry": "CNC",
		"MIS":            "MIS",
		"mis":            "MIS",
		"INTRADAY":       "INTRADAY",
		"intraday":       "INTRADAY",
		"Cover Order":    "CO",
		"co":             "CO",
		"CO":             "CO",
		"BO":             "BO",
		"Bracket Order":  "BO",
		"bo":             "BO",
	},
	OrderType: {
		"Limit":            model.OrderTypeLimit,
		"L":                model.OrderTypeLimit,
		"l":                model.OrderTypeLimit,
		"MKT":              model.OrderTypeMarket,
		"mkt":              model.OrderTypeMarket,
		"Market":           model.OrderTypeMarket,
		"sl":               model.OrderTypeStopLoss,
		"SL":               model.OrderTypeStopLoss,
		"Stop loss limit":  model.OrderTypeStopLoss,
		"Stop loss market": model.OrderTypeStopLossMarket,
		"SL-M":             model.OrderTypeStopLossMarket,
		"sl-m":             model.OrderTypeStopLossMarket,
		"Spread":           "SP",
		"SP":               "SP",
		"sp":               "SP",
		"2L":               "2L",
		"2l":               "2L",
		"Two Leg":          "2L",
		"3L":               "3L",
		"3l":               "3L",
		"Three leg":        "3L",
	},
	Side: {
		"B":    model.SideBuy,
		"b":    model.SideBuy,
		"BUY":  model.SideBuy,
		"Buy":  model.SideBuy,
		"buy":  model.SideBuy,
		"S":    model.SideSell,
		"s":    model.SideSell,
		"SELL": model.SideSell,
		"Sell": model.SideSell,
		"sell": model.SideSell,
	},
}

// Normalize returns the canonical code for alias, or alias itself when the
// category or alias is unknown.
func Normalize(category Category, alias string) string {
	if code, ok := tables[category][alias]; ok {
		return code
	}
	return alias
}

// Known reports whether alias has an entry in category.
func Known(category Category, alias string) bool {
	_, ok := tables[category][alias]
	return ok
}

// Order returns a copy of req with every aliased field normalized.
func Order(req model.OrderRequest) model.OrderRequest {
	req.Segment = Normalize(Segment, req.Segment)
	req.Product = Normalize(Product, req.Product)
	req.OrderType = Normalize(OrderType, req.OrderType)
	req.Side = Normalize(Side, req.Side)
	return req
}
