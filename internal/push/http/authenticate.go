package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/pushmfa/internal/push/service"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
	"github.com/aussiebroadwan/pushmfa/pkg/httpx"
	"github.com/aussiebroadwan/pushmfa/pkg/pushsdk"
	"github.com/aussiebroadwan/pushmfa/pkg/slogx"
)

// AuthenticateHandler starts push challenges on behalf of an authenticating
// application.
type AuthenticateHandler struct {
	Coordinator *service.CoordinatorService
}

// HandleAuthenticate handles POST /v1/authenticate
//
//	@Summary		Run a push challenge
//	@Description	Builds a challenge for the device, pushes it and blocks until the device accepts,
//	@Description	denies or the attempt times out. The transaction leaves no record either way.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		pushsdk.AuthenticateRequest		true	"Device to challenge"
//	@Success		200		{object}	pushsdk.AuthenticateResponse	"accept or deny"
//	@Failure		400		{object}	pushsdk.ErrorResponse			"Missing device id"
//	@Failure		404		{object}	pushsdk.ErrorResponse			"Device not enrolled"
//	@Failure		502		{object}	pushsdk.ErrorResponse			"Storage failure"
//	@Failure		504		{object}	pushsdk.ErrorResponse			"Device did not respond in time"
//	@Router			/v1/authenticate [post].
func (h *AuthenticateHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req pushsdk.AuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		pushsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	status, err := h.Coordinator.Authenticate(ctx, req.DeviceID)
	switch {
	case errors.Is(err, service.ErrTimeout):
		pushsdk.ErrAuthenticationTimeout.WriteError(w)
	case errors.Is(err, store.ErrNotFound):
		pushsdk.ErrNotFound.WriteError(w)
	case errors.Is(err, context.Canceled):
		// Caller went away; nothing useful left to write.
	case err != nil:
		log.Error("authentication attempt failed", "device_id", req.DeviceID, "err", err)
		pushsdk.NewAPIError(http.StatusBadGateway, pushsdk.ErrorCodeServerError,
			"storage failure during authentication").WriteError(w)
	default:
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, pushsdk.AuthenticateResponse{Result: string(status)})
	}
}
