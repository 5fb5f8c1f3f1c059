package http

import (
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
)

// Fingerprint derives an advisory client fingerprint from stable request
// attributes: user agent, a truncated client IP, and the accept headers.
// It is attached to refresh token rows and surfaced in audit logs; it is
// never an authentication factor, because proxies and browser updates make
// it drift.
func Fingerprint(r *http.Request) string {
	h := sha256.New()
	h.Write([]byte(r.UserAgent()))
	h.Write([]byte{0})
	h.Write([]byte(partialIP(clientIP(r))))
	h.Write([]byte{0})
	h.Write([]byte(r.Header.Get("Accept-Language")))
	h.Write([]byte{0})
	h.Write([]byte(r.Header.Get("Accept-Encoding")))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:16])
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// partialIP keeps only the network prefix (/24 for IPv4, /48 for IPv6) so a
// user hopping addresses inside one provider keeps a stable fingerprint.
func partialIP(s string) string {
	ip := net.ParseIP(s)
	if ip == nil {
		return s
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}
