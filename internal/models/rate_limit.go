package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RateLimitCounter is one fixed window for one (identifier, action) pair.
// Rows are ephemeral and garbage-collected once past ExpiresAt.
type RateLimitCounter struct {
	bun.BaseModel `bun:"table:rate_limit_counters"`

	ID          string    `bun:"id,pk" json:"id"`
	Identifier  string    `bun:"identifier,notnull" json:"identifier"`
	Action      string    `bun:"action,notnull" json:"action"`
	Counter     int64     `bun:"counter,notnull,default:1" json:"counter"`
	WindowStart time.Time `bun:"window_start,notnull" json:"window_start"`
	ExpiresAt   time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
