package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/simplestruct/internal/core"
)

// WithRequestMetadata records the client IP and User-Agent on ctx so run
// logs and results can name who asked for them.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithRequester(ctx, core.Requester{
		IP:        clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
	})
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already rewritten for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
