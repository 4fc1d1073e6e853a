package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultTagPrefix = "ORDER_CLI"

// NewIdempotencyKey returns prefix_YYYYMMDD_HHMMSS_micro_rand. The clock part
// orders keys, the random suffix (from a UUIDv7's random bits) separates keys
// minted in the same microsecond.
func NewIdempotencyKey(prefix string) string {
	return newKey(prefix, time.Now())
}

func newKey(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultTagPrefix
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	hex := strings.ReplaceAll(id.String(), "-", "")
	stamp := strings.Replace(now.Format("20060102_150405.000000"), ".", "_", 1)
	return prefix + "_" + stamp + "_" + hex[len(hex)-8:]
}
