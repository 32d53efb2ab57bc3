package models

import "time"

// Visitor is one logged request.
type Visitor struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	IPHash      string    `json:"ip_hash"`
	UAHash      string    `json:"ua_hash"`
	Path        string    `json:"path"`
	Method      string    `json:"method"`
	Referrer    string    `json:"referrer,omitempty"`
	Country     string    `json:"country,omitempty"`
	City        string    `json:"city,omitempty"`
	Device      string    `json:"device"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
	IsBot       bool      `json:"is_bot"`
	IsAI        bool      `json:"is_ai"`
	BotLabel    string    `json:"bot_label,omitempty"`
	Score       int       `json:"score"`
	IsHot       bool      `json:"is_hot"`
	HasConsent  bool      `json:"has_consent"`
	IsReturning bool      `json:"is_returning"`
	CreatedAt   time.Time `json:"created_at"`
}

// VisitRequest is the metadata forwarded to the internal log-visit endpoint.
type VisitRequest struct {
	SessionID string            `json:"session_id" validate:"required,max=64"`
	IP        string            `json:"ip" validate:"max=64"`
	UserAgent string            `json:"user_agent" validate:"max=1024"`
	Path      string            `json:"path" validate:"required,max=2048"`
	Method    string            `json:"method" validate:"omitempty,max=10"`
	Referrer  string            `json:"referrer" validate:"max=2048"`
	Country   string            `json:"country" validate:"max=64"`
	City      string            `json:"city" validate:"max=128"`
	Headers   map[string]string `json:"headers"`
}

type ConsentRequest struct {
	Consent *bool `json:"consent" validate:"required"`
}
