package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/chenjf2025/BookQuoteApp/internal/auth"
)

// ClientIdentity returns the network identity that free-tier usage is
// counted against: the first X-Forwarded-For hop, else X-Real-IP, else the
// host part of RemoteAddr.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Identity resolves the client identity once and stores it in the request
// context for handlers and later middleware.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.ContextWithIdentity(r.Context(), ClientIdentity(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityOf prefers the context value set by Identity.
func identityOf(r *http.Request) string {
	if id := auth.IdentityFromContext(r.Context()); id != "" {
		return id
	}
	return ClientIdentity(r)
}
