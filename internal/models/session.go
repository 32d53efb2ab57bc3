package models

import "time"

// Session aggregates the engagement state of one browsing session.
type Session struct {
	ID                string    `json:"id"`
	IPHash            string    `json:"ip_hash"`
	UAHash            string    `json:"ua_hash"`
	Country           string    `json:"country,omitempty"`
	Device            string    `json:"device"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
	PageViews         int       `json:"page_views"`
	UniquePages       int       `json:"unique_pages"`
	TimeOnSiteSeconds int       `json:"time_on_site_seconds"`
	Score             int       `json:"score"`
	IsHot             bool      `json:"is_hot"`
	IsBot             bool      `json:"is_bot"`
	IsAI              bool      `json:"is_ai"`
	HasConsent        bool      `json:"has_consent"`
	IsReturning       bool      `json:"is_returning"`
}
