package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	svc TradingAPI
}

func NewSessionHandler(svc TradingAPI) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.SessionStatus())
}

// Login authenticates now instead of on the first order.
func (h *SessionHandler) Login(c *gin.Context) {
	status, err := h.svc.Login(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
