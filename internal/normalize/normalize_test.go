package normalize

import (
	"testing"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		category Category
		alias    string
		want     string
	}{
		{Product, "MIS", "MIS"},
		{Product, "Normal", "NRML"},
		{Product, "Bracket Order", "BO"},
		{Segment, "NFO", "nse_fo"},
		{Segment, "mcx_fo", "mcx"},
		{Segment, "XYZ", "XYZ"},
		{OrderType, "Stop loss market", "SL-M"},
		{OrderType, "Market", "MKT"},
		{Side, "SELL", "S"},
		{Category("exchange"), "NSE", "NSE"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.category, tc.alias), "%s/%s", tc.category, tc.alias)
	}
}

func TestNormalizeIsCaseSensitive(t *testing.T) {
	assert.Equal(t, "nse_fo", Normalize(Segment, "nfo"))
	assert.Equal(t, "Nfo", Normalize(Segment, "Nfo"))
	assert.False(t, Known(Segment, "Nfo"))
	assert.True(t, Known(Segment, "NFO"))
}

func TestOrder(t *testing.T) {
	req := model.OrderRequest{Segment: "NFO", Product: "Normal", OrderType: "Limit", Side: "Buy", Symbol: "NIFTY25NOVFUT"}
	got := Order(req)

	assert.Equal(t, "nse_fo", got.Segment)
	assert.Equal(t, "NRML", got.Product)
	assert.Equal(t, "L", got.OrderType)
	assert.Equal(t, "B", got.Side)
	assert.Equal(t, "NFO", req.Segment)
}
