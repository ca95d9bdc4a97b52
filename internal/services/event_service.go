package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/coinearn/backend/internal/models"
)

// Recognized web-app event types. Anything else is ignored, never rewarded.
const (
	EventTypeCompleteOffer = "complete_offer"
)

// EventOutcome reports how an inbound event was handled.
type EventOutcome string

const (
	EventApplied   EventOutcome = "applied"
	EventDuplicate EventOutcome = "duplicate"
	EventIgnored   EventOutcome = "ignored"
)

// DeltaApplier is the ledger surface the event layer needs.
type DeltaApplier interface {
	ApplyDelta(ctx context.Context, d models.Delta) (int64, Outcome, error)
}

// EventService translates observed user events into ledger deltas. It owns the
// idempotency-key derivation: the upstream notification channel may redeliver
// the same completion more than once, so every reward event carries a key the
// ledger can recognize.
type EventService struct {
	ledger DeltaApplier
}

func NewEventService(ledger DeltaApplier) *EventService {
	return &EventService{ledger: ledger}
}

// HandleWebAppEvent dispatches a typed mini-app payload. Unrecognized types
// are reported as EventIgnored with no mutation.
func (s *EventService) HandleWebAppEvent(ctx context.Context, user models.UserRef, ev models.WebAppEvent) (int64, EventOutcome, error) {
	switch ev.Type {
	case EventTypeCompleteOffer:
		if ev.OfferID == "" {
			return 0, "", fmt.Errorf("%w: offer_id is required for %s events", ErrInvalidInput, EventTypeCompleteOffer)
		}
		offerKey := "offer:" + ev.OfferID
		balance, outcome, err := s.ledger.ApplyDelta(ctx, models.Delta{
			UserID:         user.UserID,
			DisplayName:    user.DisplayName,
			Username:       user.Username,
			Amount:         ev.Reward,
			Description:    offerKey,
			IdempotencyKey: offerKey,
		})
		if err != nil {
			return 0, "", err
		}
		return balance, EventOutcome(outcome), nil
	default:
		log.Printf("[EVENT] Ignoring unrecognized event type %q from user %d", ev.Type, user.UserID)
		return 0, EventIgnored, nil
	}
}

// RegisterTouch records contact with the bot: a zero-amount delta that creates
// the account on first sight and refreshes the profile on every later one.
// Distinct contacts are distinct events, so no idempotency key is attached;
// the zero amount keeps repeated touches balance-neutral.
func (s *EventService) RegisterTouch(ctx context.Context, user models.UserRef) (int64, Outcome, error) {
	return s.ledger.ApplyDelta(ctx, models.Delta{
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
		Username:    user.Username,
		Amount:      0,
		Description: "registration",
	})
}

// AdminAdjust applies an administrative correction as an ordinary transaction,
// never by writing balances directly. A reference is generated when the caller
// did not supply one so a retried submission cannot double-apply.
func (s *EventService) AdminAdjust(ctx context.Context, adj models.Adjustment) (int64, Outcome, error) {
	ref := adj.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	return s.ledger.ApplyDelta(ctx, models.Delta{
		UserID:         adj.UserID,
		Amount:         adj.Amount,
		Description:    "admin:" + adj.Reason,
		IdempotencyKey: "adjust:" + ref,
	})
}
