package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/handlers"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/stretchr/testify/assert"
)

func visitBody() models.VisitRequest {
	return models.VisitRequest{
		SessionID: "sess-1",
		IP:        "198.51.100.4",
		UserAgent: "Mozilla/5.0",
		Path:      "/pricing",
		Method:    "GET",
	}
}

func TestLogVisit_Success(t *testing.T) {
	svc := &handlers.MockVisitService{
		LogVisitFunc: func(ctx context.Context, req models.VisitRequest) (*models.Visitor, error) {
			return &models.Visitor{ID: "v-1", SessionID: req.SessionID, Score: 42, IsHot: true}, nil
		},
	}
	handler := handlers.NewVisitHandler(svc, nil, nil, "s3cret", testLogger())

	req := handlers.NewTestRequest(t, "POST", "/internal/log-visit", visitBody())
	req.Header.Set("X-Internal-Secret", "s3cret")
	w := httptest.NewRecorder()
	handler.LogVisit(w, req)

	var resp struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
		Score   int    `json:"score"`
		IsHot   bool   `json:"is_hot"`
	}
	handlers.AssertJSONResponse(t, w, 201, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "v-1", resp.ID)
	assert.Equal(t, 42, resp.Score)
	assert.True(t, resp.IsHot)
}

func TestLogVisit_WrongSecret(t *testing.T) {
	called := false
	svc := &handlers.MockVisitService{
		LogVisitFunc: func(ctx context.Context, req models.VisitRequest) (*models.Visitor, error) {
			called = true
			return &models.Visitor{}, nil
		},
	}
	handler := handlers.NewVisitHandler(svc, nil, nil, "s3cret", testLogger())

	for _, secret := range []string{"", "wrong"} {
		req := handlers.NewTestRequest(t, "POST", "/internal/log-visit", visitBody())
		if secret != "" {
			req.Header.Set("X-Internal-Secret", secret)
		}
		w := httptest.NewRecorder()
		handler.LogVisit(w, req)

		handlers.AssertErrorResponse(t, w, 401, "unauthorized")
	}
	assert.False(t, called)
}

func TestLogVisit_NoSecretConfigured(t *testing.T) {
	handler := handlers.NewVisitHandler(&handlers.MockVisitService{}, nil, nil, "", testLogger())

	req := handlers.NewTestRequest(t, "POST", "/internal/log-visit", visitBody())
	w := httptest.NewRecorder()
	handler.LogVisit(w, req)

	assert.Equal(t, 201, w.Code)
}

func TestLogVisit_MissingPath(t *testing.T) {
	handler := handlers.NewVisitHandler(&handlers.MockVisitService{}, nil, nil, "", testLogger())

	body := visitBody()
	body.Path = ""
	req := handlers.NewTestRequest(t, "POST", "/internal/log-visit", body)
	w := httptest.NewRecorder()
	handler.LogVisit(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestLogVisit_RejectedRequestsDoNotCountAgainstPolicy(t *testing.T) {
	throttle := &handlers.MockVisitThrottle{}
	handler := handlers.NewVisitHandler(&handlers.MockVisitService{}, throttle, pkghttp.NewIPConfig(nil), "s3cret", testLogger())

	// wrong secret
	req := handlers.NewTestRequest(t, "POST", "/internal/log-visit", visitBody())
	req.Header.Set("X-Internal-Secret", "wrong")
	w := httptest.NewRecorder()
	handler.LogVisit(w, req)
	assert.Equal(t, 401, w.Code)

	// malformed body
	body := visitBody()
	body.Path = ""
	req = handlers.NewTestRequest(t, "POST", "/internal/log-visit", body)
	req.Header.Set("X-Internal-Secret", "s3cret")
	w = httptest.NewRecorder()
	handler.LogVisit(w, req)
	assert.Equal(t, 400, w.Code)

	assert.Empty(t, throttle.Calls)

	req = handlers.NewTestRequest(t, "POST", "/internal/log-visit", visitBody())
	req.Header.Set("X-Internal-Secret", "s3cret")
	req.RemoteAddr = "203.0.113.9:4000"
	w = httptest.NewRecorder()
	handler.LogVisit(w, req)
	assert.Equal(t, 201, w.Code)
	assert.Equal(t, []string{ratelimit.PolicyLogVisit + ":203.0.113.9"}, throttle.Calls)
}

func TestLogVisit_Throttled(t *testing.T) {
	called := false
	svc := &handlers.MockVisitService{
		LogVisitFunc: func(ctx context.Context, req models.VisitRequest) (*models.Visitor, error) {
			called = true
			return &models.Visitor{}, nil
		},
	}
	throttle := &handlers.MockVisitThrottle{
		AllowFunc: func(context.Context, string, string) (ratelimit.Decision, error) {
			return ratelimit.Decision{Allowed: false, RetryAfter: 30 * time.Second}, nil
		},
	}
	handler := handlers.NewVisitHandler(svc, throttle, pkghttp.NewIPConfig(nil), "", testLogger())

	req := handlers.NewTestRequest(t, "POST", "/internal/log-visit", visitBody())
	w := httptest.NewRecorder()
	handler.LogVisit(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.False(t, called)
}

func TestLogVisit_ThrottleErrorFailsOpen(t *testing.T) {
	throttle := &handlers.MockVisitThrottle{
		AllowFunc: func(context.Context, string, string) (ratelimit.Decision, error) {
			return ratelimit.Decision{}, errors.New("unknown policy")
		},
	}
	handler := handlers.NewVisitHandler(&handlers.MockVisitService{}, throttle, pkghttp.NewIPConfig(nil), "", testLogger())

	req := handlers.NewTestRequest(t, "POST", "/internal/log-visit", visitBody())
	w := httptest.NewRecorder()
	handler.LogVisit(w, req)

	assert.Equal(t, 201, w.Code)
}

func TestLogVisit_ServiceError(t *testing.T) {
	svc := &handlers.MockVisitService{
		LogVisitFunc: func(ctx context.Context, req models.VisitRequest) (*models.Visitor, error) {
			return nil, errors.New("insert failed")
		},
	}
	handler := handlers.NewVisitHandler(svc, nil, nil, "", testLogger())

	req := handlers.NewTestRequest(t, "POST", "/internal/log-visit", visitBody())
	w := httptest.NewRecorder()
	handler.LogVisit(w, req)

	handlers.AssertErrorResponse(t, w, 500, "internal_error")
}

func TestConsent(t *testing.T) {
	var gotSession string
	var gotConsent bool
	svc := &handlers.MockVisitService{
		SetConsentFunc: func(ctx context.Context, sessionID string, consent bool) error {
			gotSession, gotConsent = sessionID, consent
			return nil
		},
	}
	handler := handlers.NewVisitHandler(svc, nil, nil, "", testLogger())

	consent := true
	req := handlers.NewTestRequest(t, "POST", "/api/consent", models.ConsentRequest{Consent: &consent})
	req.AddCookie(&http.Cookie{Name: auth.VisitorCookieName, Value: "sess-9"})
	w := httptest.NewRecorder()
	handler.Consent(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "sess-9", gotSession)
	assert.True(t, gotConsent)
}

func TestConsent_Errors(t *testing.T) {
	consent := false

	t.Run("no cookie", func(t *testing.T) {
		handler := handlers.NewVisitHandler(&handlers.MockVisitService{}, nil, nil, "", testLogger())
		req := handlers.NewTestRequest(t, "POST", "/api/consent", models.ConsentRequest{Consent: &consent})
		w := httptest.NewRecorder()
		handler.Consent(w, req)
		handlers.AssertErrorResponse(t, w, 400, "bad_request")
	})

	t.Run("missing consent field", func(t *testing.T) {
		handler := handlers.NewVisitHandler(&handlers.MockVisitService{}, nil, nil, "", testLogger())
		req := handlers.NewTestRequest(t, "POST", "/api/consent", map[string]string{})
		req.AddCookie(&http.Cookie{Name: auth.VisitorCookieName, Value: "sess-9"})
		w := httptest.NewRecorder()
		handler.Consent(w, req)
		handlers.AssertErrorResponse(t, w, 400, "bad_request")
	})

	t.Run("unknown session", func(t *testing.T) {
		svc := &handlers.MockVisitService{
			SetConsentFunc: func(ctx context.Context, sessionID string, consent bool) error {
				return models.ErrNotFound
			},
		}
		handler := handlers.NewVisitHandler(svc, nil, nil, "", testLogger())
		req := handlers.NewTestRequest(t, "POST", "/api/consent", models.ConsentRequest{Consent: &consent})
		req.AddCookie(&http.Cookie{Name: auth.VisitorCookieName, Value: "gone"})
		w := httptest.NewRecorder()
		handler.Consent(w, req)
		handlers.AssertErrorResponse(t, w, 404, "not_found")
	})
}
