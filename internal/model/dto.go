package model

import "github.com/shopspring/decimal"

// OrderInput is the gateway's POST /v1/orders body. Field names follow the CLI flags.
type OrderInput struct {
	Segment   string           `json:"segment"`
	Symbol    string           `json:"symbol"`
	Side      string           `json:"tt"`
	Product   string           `json:"product"`
	OrderType string           `json:"order"`
	Quantity  int64            `json:"qty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Trigger   *decimal.Decimal `json:"trigger,omitempty"`
	Tag       string           `json:"tag,omitempty"`
}

// ToRequest builds the canonical request. An empty product falls back to
// defaultProduct.
func (in OrderInput) ToRequest(defaultProduct, idempotencyKey string) OrderRequest {
	product := in.Product
	if product == "" {
		product = defaultProduct
	}
	return OrderRequest{
		Segment:        in.Segment,
		Symbol:         in.Symbol,
		Side:           in.Side,
		Product:        product,
		OrderType:      in.OrderType,
		Quantity:       in.Quantity,
		LimitPrice:     in.Price,
		TriggerPrice:   in.Trigger,
		ClientTag:      in.Tag,
		IdempotencyKey: idempotencyKey,
	}
}
