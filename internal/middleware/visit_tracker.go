package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/models"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/google/uuid"
)

// VisitLogger is satisfied by *services.VisitService.
type VisitLogger interface {
	LogVisit(ctx context.Context, req models.VisitRequest) (*models.Visitor, error)
}

type VisitTrackerConfig struct {
	IPConfig   *pkghttp.IPConfig
	Cookies    auth.CookieConfig
	SessionTTL time.Duration
	Timeout    time.Duration
	// ExcludedPrefixes are never logged (health, metrics, API and auth routes).
	ExcludedPrefixes []string
}

// Edge providers put the resolved location in these headers.
var (
	countryHeaders = []string{"X-Vercel-IP-Country", "CF-IPCountry"}
	cityHeaders    = []string{"X-Vercel-IP-City"}
)

var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".map": true, ".ico": true, ".png": true, ".jpg": true,
	".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".woff": true, ".woff2": true,
	".txt": true, ".xml": true,
}

// VisitTracker assigns the sliding visitor session cookie and logs page views
// off the request path.
type VisitTracker struct {
	service VisitLogger
	config  VisitTrackerConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewVisitTracker(service VisitLogger, config VisitTrackerConfig, logger *slog.Logger) *VisitTracker {
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &VisitTracker{service: service, config: config, logger: logger}
}

// Middleware records every GET/HEAD page view that is not excluded.
// The response never waits on the visit being stored.
func (t *VisitTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.shouldTrack(r) {
			next.ServeHTTP(w, r)
			return
		}

		sessionID := auth.GetCookie(r, auth.VisitorCookieName)
		if _, err := uuid.Parse(sessionID); err != nil {
			sessionID = uuid.NewString()
		}
		auth.SetVisitorCookie(w, sessionID, t.config.SessionTTL, t.config.Cookies)

		req := t.visitRequest(r, sessionID)

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), t.config.Timeout)
			defer cancel()

			if _, err := t.service.LogVisit(ctx, req); err != nil {
				t.logger.Warn("failed to log visit",
					slog.String("path", req.Path),
					slog.Any("error", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Wait blocks until in-flight visit writes finish.
func (t *VisitTracker) Wait() {
	t.wg.Wait()
}

func (t *VisitTracker) shouldTrack(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	for _, prefix := range t.config.ExcludedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return !staticExtensions[strings.ToLower(path.Ext(r.URL.Path))]
}

func (t *VisitTracker) visitRequest(r *http.Request, sessionID string) models.VisitRequest {
	headers := make(map[string]string, 2)
	for _, name := range []string{"Via", "X-Forwarded-For"} {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}

	return models.VisitRequest{
		SessionID: sessionID,
		IP:        pkghttp.ExtractClientIP(r, t.config.IPConfig),
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Method:    r.Method,
		Referrer:  r.Referer(),
		Country:   firstHeader(r, countryHeaders),
		City:      firstHeader(r, cityHeaders),
		Headers:   headers,
	}
}

func firstHeader(r *http.Request, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
