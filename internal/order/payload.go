package order

import (
	"encoding/json"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

// wireOrder is the jData document. Field order matches what the venue documents.
type wireOrder struct {
	AfterMarket      string `json:"am"`
	DisclosedQty     string `json:"dq"`
	Exchange         string `json:"es"`
	MarketProtection string `json:"mp"`
	Product          string `json:"pc"`
	PriceFlag        string `json:"pf"`
	Price            string `json:"pr"`
	OrderType        string `json:"pt"`
	Quantity         string `json:"qt"`
	Validity         string `json:"rt"`
	Trigger          string `json:"tp"`
	Symbol           string `json:"ts"`
	Side             string `json:"tt"`
	Tag              string `json:"ig"`
	Source           string `json:"os"`
}

// BuildPayload encodes req once. The idempotency key travels as the ig tag so
// the venue can recognise retries of the same intent.
func (e *Engine) BuildPayload(req model.OrderRequest) ([]byte, error) {
	w := wireOrder{
		AfterMarket:      e.cfg.AfterMarket,
		DisclosedQty:     "0",
		Exchange:         req.Segment,
		MarketProtection: "0",
		Product:          req.Product,
		PriceFlag:        "N",
		Price:            "0",
		OrderType:        req.OrderType,
		Quantity:         decimal.NewFromInt(req.Quantity).String(),
		Validity:         e.cfg.Validity,
		Trigger:          "0",
		Symbol:           req.Symbol,
		Side:             req.Side,
		Tag:              req.IdempotencyKey,
		Source:           e.cfg.Source,
	}

	switch req.OrderType {
	case model.OrderTypeMarket:
	case model.OrderTypeStopLossMarket:
		w.Trigger = stopLevel(req)
	case model.OrderTypeStopLoss:
		w.Price = req.LimitPrice.String()
		w.Trigger = stopLevel(req)
	default:
		if req.LimitPrice != nil {
			w.Price = req.LimitPrice.String()
		}
		if req.TriggerPrice != nil {
			w.Trigger = req.TriggerPrice.String()
		}
	}

	b, err := json.Marshal(w)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "encode order payload", err).WithPhase(apperrors.PhasePlaceOrder)
	}
	return b, nil
}

// stopLevel is the trigger when given, else the limit price.
func stopLevel(req model.OrderRequest) string {
	if req.TriggerPrice != nil {
		return req.TriggerPrice.String()
	}
	if req.LimitPrice != nil {
		return req.LimitPrice.String()
	}
	return "0"
}

// Preview is the dry-run view of req after normalization.
func Preview(req model.OrderRequest) model.OrderPreview {
	return model.OrderPreview{
		Segment: req.Segment,
		Symbol:  req.Symbol,
		Side:    req.Side,
		Product: req.Product,
		Order:   req.OrderType,
		Qty:     req.Quantity,
		Price:   req.LimitPrice,
		Trigger: req.TriggerPrice,
		Tag:     req.IdempotencyKey,
	}
}
