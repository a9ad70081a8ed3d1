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

// RespondHandler records a device's answer to a pending challenge.
type RespondHandler struct {
	Responder *service.ResponderService
}

// HandleList handles GET /v1/transactions
//
//	@Summary		List pending challenges
//	@Description	Returns the undecided challenges targeting the device the token is bound to,
//	@Description	oldest first. This is the device's poll fallback when a push never arrives.
//	@Tags			Authentication
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	pushsdk.ListTransactionsResponse	"Pending challenges"
//	@Failure		401	{object}	pushsdk.ErrorResponse				"Invalid or missing device token"
//	@Failure		403	{object}	pushsdk.ErrorResponse				"Token not bound to a device"
//	@Router			/v1/transactions [get].
func (h *RespondHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	boundDeviceID, _ := ctx.Value(httpx.CtxKeyDeviceID).(string)

	txs, err := h.Responder.Pending(ctx, boundDeviceID)
	switch {
	case errors.Is(err, service.ErrDeviceMismatch):
		pushsdk.ErrAccessDenied.WriteError(w)
		return
	case err != nil:
		log.Error("failed to list pending transactions", "device_id", boundDeviceID, "err", err)
		pushsdk.ErrServerError.WriteError(w)
		return
	}

	out := pushsdk.ListTransactionsResponse{
		Transactions: make([]pushsdk.TransactionResponse, 0, len(txs)),
	}
	for _, tx := range txs {
		out.Transactions = append(out.Transactions, pushsdk.TransactionResponse{
			TransactionID: tx.ID,
			DecisionItems: tx.DecisionItems,
			CreatedAt:     tx.CreatedAt,
			ExpiresAt:     tx.ExpiresAt,
		})
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRespond handles POST /v1/transactions/{id}/respond
//
//	@Summary		Answer a push challenge
//	@Description	Records the device's selected item for a pending transaction. The first response wins
//	@Description	and wakes the blocked authentication attempt; later responses conflict.
//	@Tags			Authentication
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string					true	"Transaction id"
//	@Param			request	body	pushsdk.RespondRequest	true	"Selected item"
//	@Success		204	"Selection recorded"
//	@Failure		400	{object}	pushsdk.ErrorResponse	"Missing selected item"
//	@Failure		401	{object}	pushsdk.ErrorResponse	"Invalid or missing device token"
//	@Failure		403	{object}	pushsdk.ErrorResponse	"Transaction targets another device"
//	@Failure		404	{object}	pushsdk.ErrorResponse	"Transaction unknown or expired"
//	@Failure		409	{object}	pushsdk.ErrorResponse	"Transaction already decided"
//	@Router			/v1/transactions/{id}/respond [post].
func (h *RespondHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	txID := r.PathValue("id")
	boundDeviceID, _ := ctx.Value(httpx.CtxKeyDeviceID).(string)

	var req pushsdk.RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pushsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	err := h.Responder.Respond(ctx, boundDeviceID, txID, req.SelectedItem)
	switch {
	case errors.Is(err, service.ErrInvalidSelection):
		pushsdk.ErrInvalidRequest.WriteError(w)
	case errors.Is(err, service.ErrDeviceMismatch):
		pushsdk.ErrAccessDenied.WriteError(w)
	case errors.Is(err, store.ErrAlreadyDecided):
		pushsdk.ErrAlreadyDecided.WriteError(w)
	case errors.Is(err, store.ErrNotFound):
		pushsdk.ErrNotFound.WriteError(w)
	case err != nil:
		log.Error("failed to record selection", "tx_id", txID, "err", err)
		pushsdk.ErrServerError.WriteError(w)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
