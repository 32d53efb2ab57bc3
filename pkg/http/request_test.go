package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/stretchr/testify/assert"
)

// X-Forwarded-For and X-Real-IP are only trusted from configured proxies

func TestExtractClientIP_DirectConnection_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"

	// Attacker tries to spoof their IP
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "172.16.0.0/12", "127.0.0.1/32"})

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_UsesXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_SkipsInvalidEntries(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "garbage, 198.51.100.7")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "198.51.100.7", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Real-IP", "198.51.100.9")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "198.51.100.9", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_InvalidCIDRIgnored(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42")

	config := pkghttp.NewIPConfig([]string{"not-a-cidr"})

	assert.Equal(t, "10.0.0.5", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_NilConfig(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10"

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, nil))
}

func TestHeaderMap_LowercasesKeys(t *testing.T) {
	h := http.Header{}
	h.Set("Via", "1.1 proxy")
	h.Add("X-Forwarded-For", "a")
	h.Add("X-Forwarded-For", "b")

	m := pkghttp.HeaderMap(h)

	assert.Equal(t, "1.1 proxy", m["via"])
	assert.Equal(t, "a", m["x-forwarded-for"])
}

func TestGeoFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("CF-IPCountry", "DE")
	assert.Equal(t, pkghttp.Geo{Country: "DE"}, pkghttp.GeoFromHeaders(h))

	h.Set("X-Vercel-IP-Country", "US")
	h.Set("X-Vercel-IP-City", "Austin")
	assert.Equal(t, pkghttp.Geo{Country: "US", City: "Austin"}, pkghttp.GeoFromHeaders(h))
}
