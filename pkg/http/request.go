package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds the parsed trusted proxy ranges used for client IP extraction
type IPConfig struct {
	trusted []*net.IPNet
}

// NewIPConfig parses CIDR ranges of trusted proxies. Invalid entries are skipped.
func NewIPConfig(trustedProxies []string) *IPConfig {
	cfg := &IPConfig{}
	for _, cidr := range trustedProxies {
		if _, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr)); err == nil {
			cfg.trusted = append(cfg.trusted, ipNet)
		}
	}
	return cfg
}

// ExtractClientIP returns the client address. X-Forwarded-For and X-Real-IP
// are honoured only when the direct peer is a trusted proxy.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && config.isTrusted(remoteIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" && isValidIP(xri) {
			return xri
		}
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

func (c *IPConfig) isTrusted(ip string) bool {
	if len(c.trusted) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, ipNet := range c.trusted {
		if ipNet.Contains(clientIP) {
			return true
		}
	}
	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// HeaderMap flattens request headers into lower-case keys, first value only.
func HeaderMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

// Geo is the coarse location supplied by the edge network, if any.
type Geo struct {
	Country string
	City    string
}

// GeoFromHeaders reads country and city from common CDN headers.
func GeoFromHeaders(h http.Header) Geo {
	country := h.Get("X-Vercel-IP-Country")
	if country == "" {
		country = h.Get("CF-IPCountry")
	}
	return Geo{
		Country: country,
		City:    h.Get("X-Vercel-IP-City"),
	}
}
