// Package identity derives the rate-limit identity for an inbound request.
package identity

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/lumenchat/governor/internal/ratelimit"
)

// Anonymous is the shared bucket for requests carrying no usable signal.
// Falling back here fails open into a common quota rather than rejecting.
const Anonymous = "anonymous"

type userContextKey struct{}

// WithUser records the authenticated user ID on the context. The auth layer
// in front of the business handlers is expected to call this.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext returns the authenticated user ID, if any.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userContextKey{}).(string)
	return id
}

// Resolver turns request metadata into a single stable identity string.
// It never fails: absent all signal it returns Anonymous.
type Resolver struct{}

// Resolve produces the identity for the given policy scope.
//
//   - user scope with an authenticated user: "user:<id>"
//   - otherwise: "ip:" + first public forwarded-for hop, or the peer address
//   - no signal at all: Anonymous
func (Resolver) Resolve(r *http.Request, scope ratelimit.Scope) string {
	if scope == ratelimit.ScopeUser {
		if userID := UserFromContext(r.Context()); userID != "" {
			return "user:" + userID
		}
	}

	if ip := firstPublicIP(r.Header.Get("X-Forwarded-For")); ip != "" {
		return "ip:" + ip
	}
	if ip := remoteIP(r.RemoteAddr); ip != "" {
		return "ip:" + ip
	}
	return Anonymous
}

// firstPublicIP walks the forwarded-for chain left to right and returns the
// first globally routable address. Private and loopback hops are proxies in
// front of us, not the client; malformed entries are skipped.
func firstPublicIP(chain string) string {
	if chain == "" {
		return ""
	}
	for _, part := range strings.Split(chain, ",") {
		addr, err := netip.ParseAddr(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
			continue
		}
		return addr.String()
	}
	return ""
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err == nil && host != "" {
		return host
	}
	// RemoteAddr without a port, e.g. from tests.
	if addr, err := netip.ParseAddr(strings.TrimSpace(remoteAddr)); err == nil {
		return addr.String()
	}
	return ""
}
