package models

import "time"

// Account is the durable balance + profile record for one user identity.
type Account struct {
	UserID      int64     `json:"user_id" db:"user_id" example:"123456789"` // Telegram user ID
	DisplayName string    `json:"display_name" db:"display_name" example:"Ann"`
	Username    string    `json:"username" db:"username" example:"ann"`
	Balance     int64     `json:"balance" db:"balance" example:"50"` // accrued coins
	Frozen      bool      `json:"frozen" db:"frozen"`                // set when a conservation check fails
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
