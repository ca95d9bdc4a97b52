package models

// WebAppEvent is the typed payload delivered by the companion mini-app.
// Unrecognized Type values are ignored, never miscoded as rewards.
type WebAppEvent struct {
	Type    string `json:"type" validate:"required,max=64" example:"complete_offer"`
	Reward  int64  `json:"reward" validate:"gte=0" example:"50"`
	OfferID string `json:"offer_id" validate:"max=64" example:"777"`
}

// UserRef identifies the user an inbound event belongs to, as reported by the
// chat platform. UserID is opaque to this service beyond being stable.
type UserRef struct {
	UserID      int64  `json:"user_id" validate:"required" example:"123456789"`
	DisplayName string `json:"display_name" validate:"max=128" example:"Ann"`
	Username    string `json:"username" validate:"max=64" example:"ann"`
}

// Adjustment is an administrative correction, applied through the ledger as an
// ordinary transaction so the conservation invariant keeps holding.
type Adjustment struct {
	UserID    int64  `json:"user_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=200"`
	Reference string `json:"reference" validate:"max=128"` // optional dedup key; generated when absent
}
