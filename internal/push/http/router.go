package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/service"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
	"github.com/aussiebroadwan/pushmfa/pkg/httpx"
	"github.com/aussiebroadwan/pushmfa/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	DeviceService *service.DeviceService
	Coordinator   *service.CoordinatorService
	Responder     *service.ResponderService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerEnrollment()
	r.registerDevices()
	r.registerAuthentication()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerEnrollment() {
	h := &EnrollHandler{DeviceService: r.DeviceService}

	// POST /enroll - moderate rate limit (token minting)
	r.Mux.Handle("POST /v1/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerDevices() {
	h := &DeviceHandler{DeviceService: r.DeviceService}
	authn := httpx.AuthnMiddleware(r.DeviceService)

	r.Mux.Handle("POST /v1/devices",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			authn,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/devices/checkin",
		httpx.Chain(http.HandlerFunc(h.HandleCheckin),
			authn,
			httpx.RateLimitByDevice(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("GET /v1/users/{id}/devices",
		httpx.Chain(http.HandlerFunc(h.HandleListByUser),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("DELETE /v1/devices/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleUnenroll),
			authn,
			httpx.RateLimitByDevice(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAuthentication() {
	authHandler := &AuthenticateHandler{Coordinator: r.Coordinator}
	r.Mux.Handle("POST /v1/authenticate",
		httpx.Chain(http.HandlerFunc(authHandler.HandleAuthenticate),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	respondHandler := &RespondHandler{Responder: r.Responder}
	authn := httpx.AuthnMiddleware(r.DeviceService)

	r.Mux.Handle("GET /v1/transactions",
		httpx.Chain(http.HandlerFunc(respondHandler.HandleList),
			authn,
			httpx.RateLimitByDevice(httpx.ModerateLimit),
		),
	)

	// POST /respond - strict rate limit (guessing prevention on number matching)
	r.Mux.Handle("POST /v1/transactions/{id}/respond",
		httpx.Chain(http.HandlerFunc(respondHandler.HandleRespond),
			authn,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
