package middleware

import (
	"net"
	"net/http"
	"strings"

	bookingApp "github.com/cassiomorais/bookings/internal/application/booking"
)

// UserIDHeader carries the caller's user ID, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

// Actor attaches the caller identity and address to the request context so
// booking commands can record who issued them. Run it after chi's RealIP.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var actor bookingApp.Actor
			if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
				actor.UserID = &id
			}
			if ip := remoteIP(r.RemoteAddr); ip != "" {
				actor.IP = &ip
			}
			next.ServeHTTP(w, r.WithContext(bookingApp.WithActor(r.Context(), actor)))
		})
	}
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
