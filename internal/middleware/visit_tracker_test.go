package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingVisitLogger struct {
	mu   sync.Mutex
	reqs []models.VisitRequest
}

func (l *recordingVisitLogger) LogVisit(ctx context.Context, req models.VisitRequest) (*models.Visitor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reqs = append(l.reqs, req)
	return &models.Visitor{SessionID: req.SessionID}, nil
}

func (l *recordingVisitLogger) all() []models.VisitRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.VisitRequest(nil), l.reqs...)
}

func newTestTracker(svc VisitLogger) *VisitTracker {
	return NewVisitTracker(svc, VisitTrackerConfig{
		ExcludedPrefixes: []string{"/health", "/api/", "/auth/"},
	}, discardLogger())
}

func TestVisitTracker_AssignsSessionAndLogs(t *testing.T) {
	svc := &recordingVisitLogger{}
	tracker := newTestTracker(svc)
	called := false
	h := tracker.Middleware(okHandler(&called))

	req := httptest.NewRequest("GET", "/pricing", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", "https://example.org/")
	req.Header.Set("CF-IPCountry", "DE")
	req.RemoteAddr = "198.51.100.9:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	tracker.Wait()

	assert.True(t, called)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.VisitorCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	_, err := uuid.Parse(cookie.Value)
	assert.NoError(t, err)

	reqs := svc.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, cookie.Value, reqs[0].SessionID)
	assert.Equal(t, "/pricing", reqs[0].Path)
	assert.Equal(t, "198.51.100.9", reqs[0].IP)
	assert.Equal(t, "Mozilla/5.0", reqs[0].UserAgent)
	assert.Equal(t, "https://example.org/", reqs[0].Referrer)
	assert.Equal(t, "DE", reqs[0].Country)
}

func TestVisitTracker_ReusesValidSession(t *testing.T) {
	svc := &recordingVisitLogger{}
	tracker := newTestTracker(svc)
	called := false
	h := tracker.Middleware(okHandler(&called))

	existing := uuid.NewString()
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.VisitorCookieName, Value: existing})
	h.ServeHTTP(httptest.NewRecorder(), req)
	tracker.Wait()

	reqs := svc.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, existing, reqs[0].SessionID)
}

func TestVisitTracker_ReplacesMalformedSession(t *testing.T) {
	svc := &recordingVisitLogger{}
	tracker := newTestTracker(svc)
	called := false
	h := tracker.Middleware(okHandler(&called))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.VisitorCookieName, Value: "'; drop table"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	tracker.Wait()

	reqs := svc.all()
	require.Len(t, reqs, 1)
	_, err := uuid.Parse(reqs[0].SessionID)
	assert.NoError(t, err)
}

func TestVisitTracker_SkipsExcluded(t *testing.T) {
	svc := &recordingVisitLogger{}
	tracker := newTestTracker(svc)

	cases := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/api/alerts"},
		{"POST", "/auth/login"},
		{"POST", "/contact"},
		{"GET", "/static/app.js"},
		{"GET", "/favicon.ico"},
	}

	for _, c := range cases {
		called := false
		w := httptest.NewRecorder()
		tracker.Middleware(okHandler(&called)).ServeHTTP(w, httptest.NewRequest(c.method, c.path, nil))
		assert.True(t, called, c.path)
		assert.Empty(t, w.Result().Cookies(), c.path)
	}
	tracker.Wait()

	assert.Empty(t, svc.all())
}
