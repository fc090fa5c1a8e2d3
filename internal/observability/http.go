package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta carries per-request correlation metadata extracted from the
// websocket handshake or a REST call.
type RequestMeta struct {
	DeviceID  string
	RequestID string
	ClientIP  string
}

// MetaFromRequest pulls correlation headers and the caller address out of
// an incoming request. X-Forwarded-For wins over RemoteAddr when present.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		ClientIP:  clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		return strings.TrimSpace(forwarded)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
