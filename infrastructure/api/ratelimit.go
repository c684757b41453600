package api

import (
	"chat-relay/errors"
	"math"
	"net"
	"net/http"
	"strconv"
)

// rateLimit counts every request against the quota of its client address.
// The limiter failing lets the request through, the relay stays usable without it.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/up" {
			next.ServeHTTP(w, r)
			return
		}
		client := clientAddress(r)
		allowed, retryAfter, err := h.limiter.Allow(r.Context(), client)
		if err != nil {
			h.log.Warn("Rate limiter unavailable", "client", client, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			h.fail(w, r, errors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
