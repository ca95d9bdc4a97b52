package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/coinearn/backend/internal/models"
	"github.com/coinearn/backend/internal/services"
)

// EventHandler receives balance-changing events from the bot server: mini-app
// payloads, registration touches, and administrative corrections.
type EventHandler struct {
	service   *services.EventService
	validator *services.ValidationHelper
}

func NewEventHandler(service *services.EventService) *EventHandler {
	return &EventHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// EventRequest wraps an observed mini-app event with the user it came from
// @Description Inbound event envelope
type EventRequest struct {
	User  models.UserRef     `json:"user" validate:"required"`
	Event models.WebAppEvent `json:"event" validate:"required"`
}

// ApplyResponse reports the post-event balance and how the event was handled
// @Description Apply outcome
type ApplyResponse struct {
	Balance int64  `json:"balance" example:"50"`
	Outcome string `json:"outcome" example:"applied"` // applied | duplicate | ignored
}

// HandleEvent processes one mini-app event
// @Summary Apply a mini-app event
// @Description Apply a typed web-app event to the ledger. Redelivered events come back as outcome "duplicate"; unrecognized types as "ignored". Both are successes.
// @Tags events
// @Accept json
// @Produce json
// @Param request body EventRequest true "Event envelope"
// @Success 200 {object} ApplyResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /events [post]
func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	balance, outcome, err := h.service.HandleWebAppEvent(r.Context(), req.User, req.Event)
	if err != nil {
		log.Printf("[EVENT] Failed to apply %q event for user %d: %v", req.Event.Type, req.User.UserID, err)
		respondLedgerError(w, err)
		return
	}

	services.WriteJSON(w, http.StatusOK, ApplyResponse{Balance: balance, Outcome: string(outcome)})
}

// Register records first contact with the bot
// @Summary Registration touch
// @Description Create the account (balance zero) on first contact and capture the profile. Safe to repeat.
// @Tags events
// @Accept json
// @Produce json
// @Param request body models.UserRef true "User reference"
// @Success 200 {object} ApplyResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /events/registration [post]
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserRef
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	balance, outcome, err := h.service.RegisterTouch(r.Context(), req)
	if err != nil {
		log.Printf("[EVENT] Registration touch failed for user %d: %v", req.UserID, err)
		respondLedgerError(w, err)
		return
	}

	services.WriteJSON(w, http.StatusOK, ApplyResponse{Balance: balance, Outcome: string(outcome)})
}

// AdminAdjust applies an administrative correction
// @Summary Admin adjustment
// @Description Apply a correction as an ordinary ledger transaction (e.g. a negative amount to claw back a miscredited reward).
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.Adjustment true "Adjustment"
// @Success 200 {object} ApplyResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /admin/adjustments [post]
func (h *EventHandler) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	var req models.Adjustment
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	balance, outcome, err := h.service.AdminAdjust(r.Context(), req)
	if err != nil {
		log.Printf("[EVENT] Adjustment failed for user %d: %v", req.UserID, err)
		respondLedgerError(w, err)
		return
	}

	services.WriteJSON(w, http.StatusOK, ApplyResponse{Balance: balance, Outcome: string(outcome)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}
