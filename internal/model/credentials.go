package model

import (
	"fmt"
	"log/slog"

	"github.com/GoPolymarket/neogate/internal/pkg/logger"
)

// Credentials are the account secrets. Immutable for the process lifetime; the
// String and LogValue forms never expose the pin or shared secret.
type Credentials struct {
	IdentityKey  string
	MobileNumber string
	AccountID    string
	PIN          string
	SharedSecret string
	RoutingKey   string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{identity:%s account:%s mobile:%s routing:%s}",
		logger.Mask(c.IdentityKey), c.AccountID, logger.Mask(c.MobileNumber), c.RoutingKey)
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("identity_key", logger.Mask(c.IdentityKey)),
		slog.String("account_id", c.AccountID),
		slog.String("mobile", logger.Mask(c.MobileNumber)),
		slog.String("routing_key", c.RoutingKey),
	)
}
