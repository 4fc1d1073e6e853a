package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "B"
	SideSell = "S"

	OrderTypeLimit          = "L"
	OrderTypeMarket         = "MKT"
	OrderTypeStopLoss       = "SL"
	OrderTypeStopLossMarket = "SL-M"
)

// OrderRequest is the canonical order. Segment, product, order type and side may be
// aliases; the engine normalizes them before validation.
type OrderRequest struct {
	Segment        string           `json:"segment" validate:"required"`
	Symbol         string           `json:"symbol" validate:"required"`
	Side           string           `json:"tt" validate:"required,oneof=B S"`
	Product        string           `json:"product" validate:"required"`
	OrderType      string           `json:"order" validate:"required"`
	Quantity       int64            `json:"qty" validate:"gt=0"`
	LimitPrice     *decimal.Decimal `json:"price,omitempty"`
	TriggerPrice   *decimal.Decimal `json:"trigger,omitempty"`
	ClientTag      string           `json:"tag,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"required,max=64"`
}

// OrderPreview is what a dry run prints.
type OrderPreview struct {
	Segment string           `json:"segment"`
	Symbol  string           `json:"symbol"`
	Side    string           `json:"tt"`
	Product string           `json:"product"`
	Order   string           `json:"order"`
	Qty     int64            `json:"qty"`
	Price   *decimal.Decimal `json:"price"`
	Trigger *decimal.Decimal `json:"trigger,omitempty"`
	Tag     string           `json:"tag"`
}

type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeUnknown  Outcome = "unknown"
)

// OrderResult is the classified outcome of a submission. Unknown means the order
// may have reached the venue and must not be read as "not placed".
type OrderResult struct {
	Outcome        Outcome         `json:"outcome"`
	VenueOrderID   string          `json:"venue_order_id,omitempty"`
	ReasonCode     string          `json:"reason_code,omitempty"`
	Message        string          `json:"message,omitempty"`
	LastHTTPStatus int             `json:"last_http_status,omitempty"`
	RequestSent    bool            `json:"request_sent"`
	SessionExpired bool            `json:"session_expired,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Attempts       int             `json:"attempts"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

func Accepted(venueOrderID string) *OrderResult {
	return &OrderResult{Outcome: OutcomeAccepted, VenueOrderID: venueOrderID}
}

func Rejected(reasonCode, message string) *OrderResult {
	return &OrderResult{Outcome: OutcomeRejected, ReasonCode: reasonCode, Message: message}
}

func Unknown(lastHTTPStatus int, message string) *OrderResult {
	return &OrderResult{Outcome: OutcomeUnknown, LastHTTPStatus: lastHTTPStatus, Message: message}
}

func (r *OrderResult) IsAccepted() bool { return r != nil && r.Outcome == OutcomeAccepted }
func (r *OrderResult) IsRejected() bool { return r != nil && r.Outcome == OutcomeRejected }
func (r *OrderResult) IsUnknown() bool  { return r != nil && r.Outcome == OutcomeUnknown }
