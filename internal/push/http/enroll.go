package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/pushmfa/internal/push/service"
	"github.com/aussiebroadwan/pushmfa/pkg/httpx"
	"github.com/aussiebroadwan/pushmfa/pkg/pushsdk"
	"github.com/aussiebroadwan/pushmfa/pkg/slogx"
)

// EnrollHandler mints device tokens for users starting enrollment.
type EnrollHandler struct {
	DeviceService *service.DeviceService
}

// HandleEnroll handles POST /v1/enroll
//
//	@Summary		Start device enrollment
//	@Description	Mints a short-lived device token for a user. The raw token is returned exactly once;
//	@Description	hand it to the device out of band (QR code, deep link). The device redeems it at registration.
//	@Tags			Enrollment
//	@Accept			json
//	@Produce		json
//	@Param			request	body		pushsdk.EnrollRequest	true	"User to enroll"
//	@Success		200		{object}	pushsdk.EnrollResponse	"Device token (shown once)"
//	@Failure		400		{object}	pushsdk.ErrorResponse	"Missing user id"
//	@Failure		500		{object}	pushsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/enroll [post].
func (h *EnrollHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req pushsdk.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		pushsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	raw, expiresAt, err := h.DeviceService.EnrollStart(ctx, req.UserID)
	if err != nil {
		log.Error("failed to mint device token", "user_id", req.UserID, "err", err)
		pushsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, pushsdk.EnrollResponse{
		Token:     raw,
		ExpiresAt: expiresAt,
	})
}
