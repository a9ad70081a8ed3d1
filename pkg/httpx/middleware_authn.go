package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/pushmfa/pkg/cryptox"
	"github.com/aussiebroadwan/pushmfa/pkg/slogx"
)

// DeviceTokenInfo is what a successful token validation yields: the token's
// own id, the user it was minted for and, once the token has been bound to a
// registered device, that device's id.
type DeviceTokenInfo struct {
	TokenID  string
	UserID   string
	DeviceID string // empty until the token has been bound to a device
}

// DeviceTokenValidator validates an opaque device token presented as a bearer
// credential. Expired or unknown tokens return an error.
type DeviceTokenValidator interface {
	ValidateDeviceToken(ctx context.Context, raw string) (DeviceTokenInfo, error)
}

// AuthnMiddleware authenticates requests carrying a device token as a bearer
// credential and injects the token's identity into the request context.
func AuthnMiddleware(v DeviceTokenValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			info, err := v.ValidateDeviceToken(ctx, raw)
			if err != nil {
				writeBearerError(w, "token verification failed")
				log.Warn("device token verify failed",
					"token_fp", cryptox.FingerprintToken(raw), "err", err)
				return
			}

			// Inject into context for downstream handlers.
			ctx = contextWithAuth(ctx, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithAuth(ctx context.Context, info DeviceTokenInfo) context.Context {
	ctx = context.WithValue(ctx, CtxKeyTokenID, info.TokenID)
	ctx = context.WithValue(ctx, CtxKeyUserID, info.UserID)
	ctx = context.WithValue(ctx, CtxKeyDeviceID, info.DeviceID)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
