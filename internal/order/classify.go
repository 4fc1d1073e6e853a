package order

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/GoPolymarket/neogate/internal/broker"
	"github.com/GoPolymarket/neogate/internal/model"
)

const ReasonSessionExpired = "SESSION_EXPIRED"

// Classify maps one HTTP exchange onto Accepted, Rejected or Unknown.
//
//	2xx, success status, order id   -> Accepted
//	2xx, success status, no id      -> Unknown (venue said yes but we cannot prove which order)
//	2xx, failure status             -> Rejected
//	2xx, unparseable                -> Unknown
//	non-2xx, parseable JSON         -> Rejected (401/403 also flag SessionExpired)
//	non-2xx, unparseable            -> Unknown
func Classify(resp *broker.Response) *model.OrderResult {
	body, err := broker.Decode(resp.Body)
	var result *model.OrderResult
	switch {
	case err != nil:
		result = model.Unknown(resp.StatusCode, fmt.Sprintf("unparseable response (http %d)", resp.StatusCode))
	case resp.OK() && broker.IsSuccess(body):
		id, ok := broker.LookupAny([]map[string]any{body, broker.Data(body)}, broker.OrderIDKeys...)
		if ok {
			result = model.Accepted(id)
		} else {
			result = model.Unknown(resp.StatusCode, "success status without an order id")
		}
	case resp.OK():
		code, msg := broker.Describe(body)
		if code == "" {
			code = broker.Status(body)
		}
		result = model.Rejected(code, msg)
	default:
		code, msg := broker.Describe(body)
		expired := resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
			if expired {
				code = ReasonSessionExpired
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		result = model.Rejected(code, msg)
		result.SessionExpired = expired
	}

	result.LastHTTPStatus = resp.StatusCode
	if json.Valid(resp.Body) {
		result.Raw = json.RawMessage(resp.Body)
	}
	return result
}
