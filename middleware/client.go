package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/procuregov/authcore"
)

// ParseTrustedProxies parses CIDRs or bare addresses into prefixes.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// ClientMetadata resolves the client IP and User-Agent and attaches them
// with [authcore.WithClientIP] and [authcore.WithUserAgent]. Forwarding
// headers are honored only when the direct peer is inside trustedProxies.
func ClientMetadata(trustedProxies []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, trustedProxies)
			noteClientIP(r.Context(), ip)
			ctx := authcore.WithClientIP(r.Context(), ip)
			ctx = authcore.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the best-effort client address of r.
//
// Forwarding headers are read only when the direct peer is trusted. The
// X-Forwarded-For chain (then the Forwarded "for=" chain) is walked from the
// right, skipping hops inside trustedProxies, and the first untrusted hop is
// the client. Entries left of it are client-supplied and never consulted.
// X-Real-IP and finally RemoteAddr are the fallbacks.
func ClientIP(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	if !peerTrusted(remoteIP, trustedProxies) {
		return remoteIP
	}

	if ip, ok := rightmostUntrusted(forwardedFor(r.Header.Values("X-Forwarded-For")), trustedProxies); ok {
		return ip
	}
	if ip, ok := rightmostUntrusted(forwardedParams(r.Header.Values("Forwarded")), trustedProxies); ok {
		return ip
	}

	if ip, ok := parseIPCandidate(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	return remoteIP
}

// rightmostUntrusted walks hops from the nearest proxy outwards. When every
// hop is trusted the outermost valid one is returned.
func rightmostUntrusted(hops []string, trusted []netip.Prefix) (string, bool) {
	outermost := ""
	for i := len(hops) - 1; i >= 0; i-- {
		ip, ok := parseIPCandidate(hops[i])
		if !ok {
			// A garbled hop ends the chain of custody.
			break
		}
		if !peerTrusted(ip, trusted) {
			return ip, true
		}
		outermost = ip
	}
	return outermost, outermost != ""
}

func forwardedFor(values []string) []string {
	var hops []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				hops = append(hops, part)
			}
		}
	}
	return hops
}

func forwardedParams(values []string) []string {
	var hops []string
	for _, v := range values {
		for _, elem := range strings.Split(v, ",") {
			for _, param := range strings.Split(elem, ";") {
				param = strings.TrimSpace(param)
				if len(param) > 4 && strings.EqualFold(param[:4], "for=") {
					hops = append(hops, param[4:])
				}
			}
		}
	}
	return hops
}

func peerTrusted(remoteIP string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 || remoteIP == "" {
		return false
	}
	addr, err := netip.ParseAddr(remoteIP)
	if err != nil {
		return false
	}
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "\"")
	if s == "" {
		return "", false
	}

	// [::1]:1234 and 10.0.0.1:80
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
