package model

import (
	"log/slog"
	"time"

	"github.com/GoPolymarket/neogate/internal/pkg/logger"
)

// Session is the authenticated session produced by the validate phase. Its expiry
// is not known in advance; a 401/403 on an order call is how it is discovered.
type Session struct {
	EditToken     string    `json:"edit_token"`
	EditSessionID string    `json:"edit_session_id"`
	ServerID      string    `json:"server_id,omitempty"`
	BaseURL       string    `json:"base_url"`
	RoutingKey    string    `json:"routing_key,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}

func (s *Session) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("edit_token", logger.Mask(s.EditToken)),
		slog.String("edit_sid", logger.Mask(s.EditSessionID)),
		slog.String("server_id", s.ServerID),
		slog.String("base_url", s.BaseURL),
		slog.Time("issued_at", s.IssuedAt),
	)
}

// SessionStatus is the public view of the current session.
type SessionStatus struct {
	Authenticated bool      `json:"authenticated"`
	BaseURL       string    `json:"base_url,omitempty"`
	ServerID      string    `json:"server_id,omitempty"`
	IssuedAt      time.Time `json:"issued_at,omitempty"`
	AgeSeconds    int64     `json:"age_seconds,omitempty"`
}
