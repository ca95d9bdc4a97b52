package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coinearn/backend/internal/models"
	"github.com/coinearn/backend/internal/services"
)

type LedgerHandler struct {
	service *services.LedgerService
}

func NewLedgerHandler(service *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// GetAccount returns balance and profile for an account
// @Summary Get account
// @Description Read the current balance and profile for a user. 404 means the user has never transacted; callers should render it as balance zero.
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param userID path int true "User ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/{userID} [get]
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if !authorizedFor(w, r, userID) {
		return
	}

	acct, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	services.WriteJSON(w, http.StatusOK, acct)
}

// ListTransactions returns the committed history for an account
// @Summary List transactions
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param userID path int true "User ID"
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {array} models.Transaction
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/{userID}/transactions [get]
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if !authorizedFor(w, r, userID) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.service.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}

	services.WriteJSON(w, http.StatusOK, txs)
}

// VerifyAccount audits the conservation invariant for an account
// @Summary Verify account conservation
// @Description Recompute the committed sum and compare it with the stored balance; freezes the account on mismatch.
// @Tags admin
// @Produce json
// @Param userID path int true "User ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/accounts/{userID}/verify [post]
func (h *LedgerHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.VerifyConservation(r.Context(), userID); err != nil {
		respondLedgerError(w, err)
		return
	}

	services.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID == 0 {
		services.SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return 0, false
	}
	return userID, true
}

// authorizedFor lets a signed-in user read only their own account. Requests
// that arrived through the service-token routes carry no user in the context
// and pass through.
func authorizedFor(w http.ResponseWriter, r *http.Request, userID int64) bool {
	ctxUserID, ok := r.Context().Value("userID").(int64)
	if ok && ctxUserID != userID {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return false
	}
	return true
}

func respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrAccountNotFound):
		services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrStorageUnavailable):
		services.SendErrorResponse(w, "Please try again", http.StatusServiceUnavailable, nil)
	case errors.Is(err, services.ErrStorageCorruption):
		services.SendErrorResponse(w, "Ledger integrity failure", http.StatusInternalServerError, nil)
	default:
		services.SendErrorResponse(w, "Internal error", http.StatusInternalServerError, nil)
	}
}
