//go:build integration

package integration

import (
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/google/uuid"
)

const (
	humanUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	aiUA    = "Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; GPTBot/1.1; +https://openai.com/gptbot)"
)

// TestVisit builds a forwarded visit for a fresh session
func TestVisit(userAgent, path string) models.VisitRequest {
	return models.VisitRequest{
		SessionID: uuid.NewString(),
		IP:        "198.51.100.23",
		UserAgent: userAgent,
		Path:      path,
		Method:    "GET",
	}
}

func internalHeaders() map[string]string {
	return map[string]string{"X-Internal-Secret": testInternalSecret}
}
