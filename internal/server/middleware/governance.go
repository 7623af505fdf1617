package middleware

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumenchat/governor/internal/httperr"
	"github.com/lumenchat/governor/internal/identity"
	"github.com/lumenchat/governor/internal/ratelimit"
)

// RouteRule maps a path prefix to the named rate-limit policies governing it.
type RouteRule struct {
	Prefix   string
	Policies []string
}

// MaintenanceSettings controls the maintenance-mode short circuit.
type MaintenanceSettings struct {
	Enabled     bool
	ExemptPaths []string
	RetryAfter  time.Duration
}

// GovernorSettings configures the request-governance gate.
type GovernorSettings struct {
	Maintenance    MaintenanceSettings
	AllowedOrigins []string
	Rules          []RouteRule
	// CheckTimeout bounds the whole limiter evaluation so a slow counter
	// store cannot stall request processing; overrun fails open.
	CheckTimeout time.Duration
}

// Governor is the gate every inbound request passes before business logic:
// maintenance mode, origin validation for mutations, then every applicable
// rate-limit policy. It short-circuits on the first blocking condition.
type Governor struct {
	settings GovernorSettings
	limiter  *ratelimit.Limiter
	resolver identity.Resolver
	logger   *zap.Logger
}

// NewGovernor builds the gate.
func NewGovernor(settings GovernorSettings, limiter *ratelimit.Limiter, logger *zap.Logger) *Governor {
	if settings.CheckTimeout <= 0 {
		settings.CheckTimeout = 2 * time.Second
	}
	if settings.Maintenance.RetryAfter <= 0 {
		settings.Maintenance.RetryAfter = 5 * time.Minute
	}
	return &Governor{
		settings: settings,
		limiter:  limiter,
		logger:   logger,
	}
}

// Handler wraps next with the governance sequence.
func (g *Governor) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.maintenanceBlocked(r) {
			w.Header().Set("Retry-After", strconv.Itoa(int(g.settings.Maintenance.RetryAfter.Seconds())))
			httperr.Respond(w, http.StatusServiceUnavailable,
				httperr.Maintenance("service is under maintenance, retry later"),
				GetRequestID(r.Context()))
			return
		}

		if !g.originAllowed(r) {
			httperr.Respond(w, http.StatusForbidden,
				httperr.Forbidden("cross-origin request rejected"),
				GetRequestID(r.Context()))
			return
		}

		if denied := g.enforceLimits(w, r); denied {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Governor) maintenanceBlocked(r *http.Request) bool {
	if !g.settings.Maintenance.Enabled {
		return false
	}
	for _, exempt := range g.settings.Maintenance.ExemptPaths {
		if r.URL.Path == exempt {
			return false
		}
	}
	return true
}

// originAllowed rejects state-changing requests whose browser origin is not
// ours. Requests without Origin or Referer (curl, server-to-server) pass:
// origin validation guards browsers, auth guards everything else.
func (g *Governor) originAllowed(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}

	origin := requestOrigin(r)
	if origin == "" {
		return true
	}

	for _, allowed := range g.settings.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// requestOrigin returns the scheme://host origin from the Origin header, or
// derived from Referer when Origin is absent.
func requestOrigin(r *http.Request) string {
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && origin != "null" {
		return strings.TrimSuffix(origin, "/")
	}
	referer := strings.TrimSpace(r.Header.Get("Referer"))
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// enforceLimits evaluates every policy the route rules select, in declared
// order, and writes the 429 for the first denial. On allow, the response
// carries the quota headers of the tightest policy.
func (g *Governor) enforceLimits(w http.ResponseWriter, r *http.Request) bool {
	policies := g.selectPolicies(r.URL.Path)
	if len(policies) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.settings.CheckTimeout)
	defer cancel()

	var binding *ratelimit.Decision
	for _, name := range policies {
		policy, err := g.limiter.Policies().Get(name)
		if err != nil {
			// Route rules referencing unknown policies are rejected at
			// startup; reaching this means a wiring bug. Fail open.
			g.logger.Error("route rule references unknown policy", zap.String("policy", name), zap.Error(err))
			continue
		}

		id := g.resolver.Resolve(r, policy.Scope)
		decision, err := g.limiter.Check(ctx, name, id)
		if err != nil {
			g.logger.Error("rate limit evaluation failed", zap.String("policy", name), zap.Error(err))
			continue
		}

		if !decision.Allowed {
			writeLimitHeaders(w, decision)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.ResetAt)))
			httperr.Respond(w, http.StatusTooManyRequests,
				httperr.RateLimited("rate limit exceeded for this route, retry after reset", decision.ResetAt),
				GetRequestID(r.Context()))
			return true
		}

		if binding == nil || decision.Remaining < binding.Remaining {
			d := decision
			binding = &d
		}
	}

	if binding != nil {
		writeLimitHeaders(w, *binding)
	}
	return false
}

// selectPolicies unions the policies of every rule whose prefix matches path,
// preserving rule order and dropping duplicates.
func (g *Governor) selectPolicies(path string) []string {
	var selected []string
	seen := make(map[string]struct{})
	for _, rule := range g.settings.Rules {
		if !strings.HasPrefix(path, rule.Prefix) {
			continue
		}
		for _, name := range rule.Policies {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			selected = append(selected, name)
		}
	}
	return selected
}

func writeLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func retryAfterSeconds(resetAt time.Time) int {
	secs := int(math.Ceil(time.Until(resetAt).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
