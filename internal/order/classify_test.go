package order

import (
	"net/http"
	"testing"

	"github.com/GoPolymarket/neogate/internal/broker"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome model.Outcome
		id      string
		code    string
		expired bool
	}{
		{"accepted stat ok", 200, `{"stat":"Ok","nOrdNo":"240101000001"}`, model.OutcomeAccepted, "240101000001", "", false},
		{"accepted data envelope", 200, `{"data":{"status":"success","orderId":"77"}}`, model.OutcomeAccepted, "77", "", false},
		{"success without id", 200, `{"stat":"Ok"}`, model.OutcomeUnknown, "", "", false},
		{"body failure", 200, `{"stat":"Not_Ok","stCode":1009,"errMsg":"Insufficient margin"}`, model.OutcomeRejected, "", "1009", false},
		{"body failure no code", 200, `{"stat":"Not_Ok","errMsg":"RMS"}`, model.OutcomeRejected, "", "Not_Ok", false},
		{"2xx garbage", 200, `OK`, model.OutcomeUnknown, "", "", false},
		{"4xx parseable", 400, `{"code":"900","message":"Invalid symbol"}`, model.OutcomeRejected, "", "900", false},
		{"5xx parseable", 503, `{"message":"maintenance"}`, model.OutcomeRejected, "", "HTTP_503", false},
		{"401 expired", 401, `{"message":"Unauthorized"}`, model.OutcomeRejected, "", ReasonSessionExpired, true},
		{"403 with code", 403, `{"error":[{"code":"10403","message":"forbidden"}]}`, model.OutcomeRejected, "", "10403", true},
		{"5xx html", 502, `<html>bad gateway</html>`, model.OutcomeUnknown, "", "", false},
		{"empty body", 504, ``, model.OutcomeUnknown, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(&broker.Response{StatusCode: tt.status, Body: []byte(tt.body)})
			assert.Equal(t, tt.outcome, r.Outcome)
			assert.Equal(t, tt.id, r.VenueOrderID)
			assert.Equal(t, tt.code, r.ReasonCode)
			assert.Equal(t, tt.expired, r.SessionExpired)
			assert.Equal(t, tt.status, r.LastHTTPStatus)
		})
	}
}

func TestClassifyKeepsRawJSON(t *testing.T) {
	r := Classify(&broker.Response{StatusCode: http.StatusOK, Body: []byte(`{"stat":"Ok","nOrdNo":"1"}`)})
	assert.JSONEq(t, `{"stat":"Ok","nOrdNo":"1"}`, string(r.Raw))

	r = Classify(&broker.Response{StatusCode: http.StatusBadGateway, Body: []byte(`<html/>`)})
	assert.Nil(t, r.Raw)
}
