package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

type AuditLister interface {
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error)
}

type AuditHandler struct {
	svc AuditLister
}

func NewAuditHandler(svc AuditLister) *AuditHandler {
	return &AuditHandler{svc: svc}
}

func (h *AuditHandler) List(c *gin.Context) {
	filter := model.AuditFilter{
		IdempotencyKey: c.Query("key"),
		Limit:          100,
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.Limit = parsed
		}
	}
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewValidation(err.Error()))
			return
		}
		filter.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewValidation(err.Error()))
			return
		}
		filter.To = &t
	}

	records, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format %q", raw)
}
