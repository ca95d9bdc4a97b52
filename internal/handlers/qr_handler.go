package handlers

import (
	"net/http"

	"github.com/coinearn/backend/internal/services"
)

type QRHandler struct {
	service *services.QRService
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{service: service}
}

// InviteQR renders the bot invite link as a QR image
// @Summary Invite QR code
// @Description Return the signed-in user's referral deep link and a base64 PNG QR code for it
// @Tags qr
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{link=string,qrImage=string}
// @Failure 401 {object} services.ErrorResponse
// @Router /qr/invite [get]
func (h *QRHandler) InviteQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok || userID == 0 {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	link, qrImage, err := h.service.InviteQR(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	services.WriteJSON(w, http.StatusOK, map[string]string{
		"link":    link,
		"qrImage": qrImage,
	})
}
