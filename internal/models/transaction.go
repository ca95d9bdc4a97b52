package models

import (
	"time"
)

// Transaction status values.
const (
	TxStatusPending   = "pending"
	TxStatusCommitted = "committed"
	TxStatusRejected  = "rejected"
)

// Transaction is one append-only record of a balance delta and its provenance.
// Only committed rows contribute to an account's balance.
type Transaction struct {
	ID             int64     `json:"id" db:"id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Amount         int64     `json:"amount" db:"amount"`
	Description    string    `json:"description" db:"description"` // e.g. "offer:777", "registration"
	IdempotencyKey string    `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Delta is the input tuple for a single balance mutation. UserID is the only
// hard requirement; IdempotencyKey is optional but must be supplied whenever
// the event source can derive a natural dedup key for the observed event.
type Delta struct {
	UserID         int64  `json:"user_id" validate:"required"`
	DisplayName    string `json:"display_name" validate:"max=128"`
	Username       string `json:"username" validate:"max=64"`
	Amount         int64  `json:"amount"`
	Description    string `json:"description" validate:"max=256"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
}
