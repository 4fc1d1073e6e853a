package model

import (
	"time"
)

// AuditLog is one gateway request as recorded by the audit middleware.
type AuditLog struct {
	ID        string `json:"id" gorm:"primaryKey;type:text"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	// bodies are stored after secret redaction
	RequestBody    string `json:"request_body"`
	IdempotencyKey string `json:"idempotency_key" gorm:"index"`

	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// order outcome, venue order id, upstream error details
	Context map[string]interface{} `json:"context" gorm:"serializer:json;type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditFilter selects audit records. Zero fields match everything.
type AuditFilter struct {
	IdempotencyKey string
	From           *time.Time
	To             *time.Time
	Limit          int
}

func (f AuditFilter) Match(e *AuditLog) bool {
	if f.IdempotencyKey != "" && e.IdempotencyKey != f.IdempotencyKey {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// IdempotencyEntry is a stored gateway response keyed by X-Idempotency-Key.
type IdempotencyEntry struct {
	Key        string    `gorm:"primaryKey;type:text"`
	Status     int       `gorm:"not null;default:0"`
	Body       []byte    `gorm:"type:bytea"`
	Processing bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index"`
}

func (IdempotencyEntry) TableName() string {
	return "idempotency_keys"
}
