package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/pushmfa/internal/push/service"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
	"github.com/aussiebroadwan/pushmfa/pkg/httpx"
	"github.com/aussiebroadwan/pushmfa/pkg/pushsdk"
	"github.com/aussiebroadwan/pushmfa/pkg/slogx"
)

// DeviceHandler handles device registration, checkin and unenrollment.
type DeviceHandler struct {
	DeviceService *service.DeviceService
}

// HandleRegister handles POST /v1/devices
//
//	@Summary		Register a device
//	@Description	The device presents its enrollment token and self-registers with its opaque device id,
//	@Description	push address and state blob. The token is bound to the device; it can only register one.
//	@Tags			Devices
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		pushsdk.RegisterDeviceRequest	true	"Device details"
//	@Success		201		{object}	pushsdk.DeviceResponse			"Registered device"
//	@Failure		400		{object}	pushsdk.ErrorResponse			"Malformed request"
//	@Failure		401		{object}	pushsdk.ErrorResponse			"Invalid or missing device token"
//	@Failure		409		{object}	pushsdk.ErrorResponse			"Device id already enrolled"
//	@Router			/v1/devices [post].
func (h *DeviceHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	tokenID, _ := ctx.Value(httpx.CtxKeyTokenID).(string)
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)
	if tokenID == "" || userID == "" {
		pushsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req pushsdk.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" || req.PushToken == "" {
		pushsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	device, err := h.DeviceService.RegisterDevice(ctx, tokenID, req.DeviceID, userID, req.PushToken, req.State)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			pushsdk.ErrDeviceExists.WriteError(w)
			return
		}
		log.Error("failed to register device", "device_id", req.DeviceID, "err", err)
		pushsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, pushsdk.DeviceResponse{
		DeviceID:    device.ID,
		UserID:      device.UserID,
		PushToken:   device.PushToken,
		State:       device.State,
		LastCheckin: device.LastCheckin,
		CreatedAt:   device.CreatedAt,
	})
}

// HandleListByUser handles GET /v1/users/{id}/devices
//
//	@Summary		List a user's devices
//	@Description	Returns the devices enrolled for a user, newest first. Operator-facing,
//	@Description	like enroll and authenticate.
//	@Tags			Devices
//	@Produce		json
//	@Param			id	path		string					true	"User id"
//	@Success		200	{object}	pushsdk.ListDevicesResponse	"Enrolled devices"
//	@Failure		500	{object}	pushsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/users/{id}/devices [get].
func (h *DeviceHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := r.PathValue("id")

	devices, err := h.DeviceService.ListDevices(ctx, userID)
	if err != nil {
		log.Error("failed to list devices", "user_id", userID, "err", err)
		pushsdk.ErrServerError.WriteError(w)
		return
	}

	out := pushsdk.ListDevicesResponse{
		Devices: make([]pushsdk.DeviceResponse, 0, len(devices)),
	}
	for _, d := range devices {
		out.Devices = append(out.Devices, pushsdk.DeviceResponse{
			DeviceID:    d.ID,
			UserID:      d.UserID,
			PushToken:   d.PushToken,
			State:       d.State,
			LastCheckin: d.LastCheckin,
			CreatedAt:   d.CreatedAt,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleCheckin handles POST /v1/devices/checkin
//
//	@Summary		Device checkin
//	@Description	Refreshes the device's push address and state blob and bumps its last-checkin time.
//	@Description	The device id must be the one the presented token is bound to.
//	@Tags			Devices
//	@Security		BearerAuth
//	@Accept			json
//	@Success		204	"Checked in"
//	@Failure		400	{object}	pushsdk.ErrorResponse	"Malformed request"
//	@Failure		401	{object}	pushsdk.ErrorResponse	"Invalid or missing device token"
//	@Failure		403	{object}	pushsdk.ErrorResponse	"Token not bound to this device"
//	@Failure		404	{object}	pushsdk.ErrorResponse	"Device not enrolled"
//	@Router			/v1/devices/checkin [post].
func (h *DeviceHandler) HandleCheckin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	boundDeviceID, _ := ctx.Value(httpx.CtxKeyDeviceID).(string)

	var req pushsdk.CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" || req.PushToken == "" {
		pushsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	err := h.DeviceService.Checkin(ctx, boundDeviceID, req.DeviceID, req.PushToken, req.State)
	switch {
	case errors.Is(err, service.ErrDeviceMismatch):
		pushsdk.ErrAccessDenied.WriteError(w)
	case errors.Is(err, store.ErrNotFound):
		pushsdk.ErrNotFound.WriteError(w)
	case err != nil:
		log.Error("failed to check in device", "device_id", req.DeviceID, "err", err)
		pushsdk.ErrServerError.WriteError(w)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleUnenroll handles DELETE /v1/devices/{id}
//
//	@Summary		Unenroll a device
//	@Description	Removes a device. Pending transactions for it are discarded, so any waiting
//	@Description	authentication attempt times out. Only the device's own token may unenroll it.
//	@Tags			Devices
//	@Security		BearerAuth
//	@Success		204	"Unenrolled"
//	@Failure		401	{object}	pushsdk.ErrorResponse	"Invalid or missing device token"
//	@Failure		403	{object}	pushsdk.ErrorResponse	"Token not bound to this device"
//	@Failure		404	{object}	pushsdk.ErrorResponse	"Device not enrolled"
//	@Router			/v1/devices/{id} [delete].
func (h *DeviceHandler) HandleUnenroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	deviceID := r.PathValue("id")
	boundDeviceID, _ := ctx.Value(httpx.CtxKeyDeviceID).(string)
	if boundDeviceID == "" || boundDeviceID != deviceID {
		pushsdk.ErrAccessDenied.WriteError(w)
		return
	}

	err := h.DeviceService.Unenroll(ctx, deviceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		pushsdk.ErrNotFound.WriteError(w)
	case err != nil:
		log.Error("failed to unenroll device", "device_id", deviceID, "err", err)
		pushsdk.ErrServerError.WriteError(w)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
