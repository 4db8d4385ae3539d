// Package httpapi is the HTTP layer: identity resolution middleware,
// access-control gates, the terminal error pipeline and the crisis fast
// path. Every inbound request passes through here before business logic.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/audit"
	"mindhaven.org/internal/auth"
	"mindhaven.org/internal/crisis"
	"mindhaven.org/internal/obs"
	"mindhaven.org/internal/session"
)

// Mode selects error verbosity. Everything else is mode independent.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode normalizes the environment flag; anything but "production" is
// treated as development.
func ParseMode(s string) Mode {
	if Mode(s) == ModeProduction {
		return ModeProduction
	}
	return ModeDevelopment
}

// ReadyProbe checks readiness (DB ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. All collaborators are injected at construction.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	mode       Mode

	verifier   *auth.Verifier
	resolver   *auth.Resolver
	users      auth.Directory
	sessions   session.Directory
	dispatcher *crisis.Dispatcher
	classifier crisis.Classifier
	feed       *crisis.Feed
	log        *audit.Logger

	slowThreshold time.Duration
	limiter       *rateLimiter
}

// Config carries the API's collaborators.
type Config struct {
	ReadyProbe ReadyProbe
	Version    string
	Mode       Mode
	Verifier   *auth.Verifier
	Resolver   *auth.Resolver
	Users      auth.Directory
	Sessions   session.Directory
	Dispatcher *crisis.Dispatcher
	Classifier crisis.Classifier
	Feed       *crisis.Feed
	Log        *audit.Logger

	// SlowThreshold is the latency past which accessLog emits a
	// slow_operation audit event. Zero keeps the 1s default.
	SlowThreshold time.Duration
}

// New wires routes and gate chains.
func New(cfg Config) *API {
	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    cfg.ReadyProbe,
		version:       cfg.Version,
		mode:          cfg.Mode,
		verifier:      cfg.Verifier,
		resolver:      cfg.Resolver,
		users:         cfg.Users,
		sessions:      cfg.Sessions,
		dispatcher:    cfg.Dispatcher,
		classifier:    cfg.Classifier,
		feed:          cfg.Feed,
		log:           cfg.Log,
		slowThreshold: cfg.SlowThreshold,
		limiter:       newRateLimiter(),
	}
	if a.slowThreshold == 0 {
		a.slowThreshold = 1000 * time.Millisecond
	}
	if a.mode == "" {
		a.mode = ModeDevelopment
	}
	if a.classifier == nil {
		a.classifier = crisis.KeywordClassifier{}
	}
	if a.dispatcher == nil {
		a.dispatcher = crisis.NewDispatcher(nil, cfg.Log)
	}

	// health/ready/info/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/v1/info", a.optionalAuth(http.HandlerFunc(a.Info)))
	a.mux.Handle("/metrics", obs.Handler())

	// token issuance (public)
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/auth/anonymous", a.handleAnonymousToken)

	// gated surface
	a.mux.Handle("/v1/sessions", a.chain(
		http.HandlerFunc(a.handleSessionsCollection),
		a.allowAnonymous, a.requireGoodStanding, a.withRatePolicy, a.enforceRatePolicy, a.requirePermission(auth.Perm(auth.ResourceSession, auth.ActionCreate)),
	))
	a.mux.Handle("/v1/sessions/", a.chain(
		http.HandlerFunc(a.handleSessionResource),
		a.allowAnonymous, a.requireGoodStanding, a.withRatePolicy, a.enforceRatePolicy, a.requireSessionParticipant,
	))
	a.mux.Handle("/v1/users/", a.chain(
		http.HandlerFunc(a.handleUserResource),
		a.requireAuth, a.requireGoodStanding, a.withRatePolicy, a.enforceRatePolicy,
		a.requireOwnershipOrRole(profileOwnerID, auth.RoleCounselor, auth.RoleAdmin),
	))
	a.mux.Handle("/v1/crisis/alerts", a.chain(
		http.HandlerFunc(a.handleCrisisAlerts),
		a.requireAuth, a.requireGoodStanding, a.withRatePolicy, a.enforceRatePolicy, a.requireCrisisAccess,
	))
	a.mux.Handle("/v1/crisis/alerts/stream", a.chain(
		http.HandlerFunc(a.handleCrisisStream),
		a.requireAuth, a.requireGoodStanding, a.withRatePolicy, a.enforceRatePolicy, a.requireCrisisAccess,
	))
	a.mux.Handle("/v1/admin/permissions", a.chain(
		http.HandlerFunc(a.handlePermissionTable),
		a.requireAuth, a.requireGoodStanding, a.withRatePolicy, a.enforceRatePolicy, a.requireRole(auth.RoleAdmin),
	))

	// unmatched routes funnel through a synthetic NotFound
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		a.respondError(w, r, apperr.NotFound(apperr.CodeNotFound, "resource not found"))
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.recoverPanics(h)
	h = a.accessLog(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// chain applies gates right to left, so the first one listed runs first.
// Each gate short-circuits: on denial no downstream handler executes.
func (a *API) chain(h http.Handler, gates ...func(http.Handler) http.Handler) http.Handler {
	for i := len(gates) - 1; i >= 0; i-- {
		h = gates[i](h)
	}
	return h
}
