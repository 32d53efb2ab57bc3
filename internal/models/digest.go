package models

import "time"

// DailyDigest summarises one UTC day of traffic.
type DailyDigest struct {
	Day            time.Time   `json:"day"`
	TotalVisits    int         `json:"total_visits"`
	UniqueVisitors int         `json:"unique_visitors"`
	BotVisits      int         `json:"bot_visits"`
	AIVisits       int         `json:"ai_visits"`
	HotSessions    int         `json:"hot_sessions"`
	TopPages       []PageCount `json:"top_pages"`
	CreatedAt      time.Time   `json:"created_at"`
}

type PageCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}
