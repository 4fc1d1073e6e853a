package handler

import (
	"context"
	"net/http"

	"github.com/GoPolymarket/neogate/internal/middleware"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/order"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// TradingAPI 由 service.TradingService 实现
type TradingAPI interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error)
	SessionStatus() model.SessionStatus
	Login(ctx context.Context) (model.SessionStatus, error)
	Logout(ctx context.Context) error
}

const gatewayTagPrefix = "NEOGATE"

type OrderHandler struct {
	svc            TradingAPI
	defaultProduct string
}

func NewOrderHandler(svc TradingAPI, defaultProduct string) *OrderHandler {
	return &OrderHandler{svc: svc, defaultProduct: defaultProduct}
}

// PlaceOrder answers 200 for Accepted, 422 for Rejected and 504 for Unknown.
// The idempotency key is X-Idempotency-Key, else the tag, else a fresh key.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var in model.OrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(apperrors.New(apperrors.ErrValidation, "invalid order body", err).WithPhase(apperrors.PhasePlaceOrder))
		return
	}

	key := c.GetHeader(middleware.HeaderIdempotencyKey)
	if key == "" {
		key = in.Tag
	}
	if key == "" {
		key = order.NewIdempotencyKey(gatewayTagPrefix)
	}
	middleware.AddAuditContext(c, "idempotency_key", key)

	result, err := h.svc.PlaceOrder(c.Request.Context(), in.ToRequest(h.defaultProduct, key))
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "outcome", string(result.Outcome))
	middleware.AddAuditContext(c, "attempts", result.Attempts)

	status := http.StatusOK
	switch result.Outcome {
	case model.OutcomeAccepted:
		middleware.AddAuditContext(c, "venue_order_id", result.VenueOrderID)
	case model.OutcomeRejected:
		status = http.StatusUnprocessableEntity
		middleware.AddAuditContext(c, "reason_code", result.ReasonCode)
	default:
		status = http.StatusGatewayTimeout
		if !result.RequestSent {
			// 请求从未发出，允许客户端用同一个 key 重试
			c.Set(middleware.ContextRetrySafe, true)
		}
	}
	c.JSON(status, result)
}
