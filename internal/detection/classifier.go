// Package detection classifies requesters as human, automated crawler or AI agent
// from the User-Agent and proxy headers. Classification is heuristic and pure.
package detection

import (
	"regexp"
	"strings"

	"github.com/mssola/useragent"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Result is the verdict for a single request.
type Result struct {
	IsBot          bool   `json:"is_bot"`
	IsAI           bool   `json:"is_ai"`
	MatchedLabel   string `json:"matched_label,omitempty"`
	DeviceCategory string `json:"device_category"`
	BrowserName    string `json:"browser_name,omitempty"`
	OSName         string `json:"os_name,omitempty"`
}

// Verdict collapses the result into a single metric label.
func (r Result) Verdict() string {
	switch {
	case r.IsAI:
		return "ai"
	case r.IsBot:
		return "bot"
	default:
		return "human"
	}
}

type matcher struct {
	pattern *regexp.Regexp
}

func compile(patterns ...string) []matcher {
	out := make([]matcher, len(patterns))
	for i, p := range patterns {
		out[i] = matcher{pattern: regexp.MustCompile(`(?i)` + p)}
	}
	return out
}

// Order matters: first match wins and its text becomes the label.
var aiMatchers = compile(
	`openai`,
	`anthropic`,
	`claude`,
	`gpt`,
	`chatgpt`,
	`perplexity`,
	`cohere`,
	`ai21`,
	`character\.ai`,
	`you\.com`,
	`phind`,
	`bingchat`,
	`copilot`,
)

var botMatchers = compile(
	`bot`,
	`crawler`,
	`spider`,
	`scraper`,
	`curl`,
	`wget`,
	`python`,
	`java`,
	`go-http`,
	`httpclient`,
	`okhttp`,
	`scrapy`,
	`facebookexternalhit`,
	`twitterbot`,
	`linkedinbot`,
	`slackbot`,
	`whatsapp`,
	`telegrambot`,
	`discordbot`,
	`googlebot`,
	`bingbot`,
	`yandexbot`,
	`baiduspider`,
	`duckduckbot`,
	`applebot`,
	`semrushbot`,
	`ahrefsbot`,
	`mj12bot`,
	`dotbot`,
)

var proxyChainPattern = regexp.MustCompile(`(?i)bot|crawler|spider`)

var tabletPattern = regexp.MustCompile(`(?i)ipad|tablet|kindle|silk|playbook`)

func firstMatch(matchers []matcher, ua string) (string, bool) {
	for _, m := range matchers {
		if loc := m.pattern.FindStringIndex(ua); loc != nil {
			return ua[loc[0]:loc[1]], true
		}
	}
	return "", false
}

// Classifier holds no state; the zero value is ready to use.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the verdict for the given User-Agent and request headers.
// Header names are matched case-insensitively; a nil map is allowed.
func (c *Classifier) Classify(userAgent string, headers map[string]string) Result {
	var res Result

	if label, ok := firstMatch(aiMatchers, userAgent); ok {
		res.IsAI = true
		res.IsBot = true
		res.MatchedLabel = label
	} else if label, ok := firstMatch(botMatchers, userAgent); ok {
		res.IsBot = true
		res.MatchedLabel = label
	} else if chain := proxyChain(headers); chain != "" && proxyChainPattern.MatchString(chain) {
		res.IsBot = true
	}

	res.DeviceCategory, res.BrowserName, res.OSName = describe(userAgent)
	return res
}

// proxyChain returns the Via header, or X-Forwarded-For when Via is absent.
func proxyChain(headers map[string]string) string {
	if v := header(headers, "via"); v != "" {
		return v
	}
	return header(headers, "x-forwarded-for")
}

func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func describe(userAgent string) (device, browser, os string) {
	device = DeviceDesktop
	if userAgent == "" {
		return device, "", ""
	}

	ua := useragent.New(userAgent)

	switch {
	case tabletPattern.MatchString(userAgent):
		device = DeviceTablet
	case ua.Mobile():
		device = DeviceMobile
	}

	if name, version := ua.Browser(); name != "" {
		browser = strings.TrimSpace(name + " " + version)
	}

	info := ua.OSInfo()
	if info.Name != "" {
		os = strings.TrimSpace(info.Name + " " + info.Version)
	}

	return device, browser, os
}
