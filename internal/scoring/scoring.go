// Package scoring computes the engagement score of a browsing session.
package scoring

import "time"

const (
	MaxScore = 300

	pageViewPoints   = 10
	pageViewCap      = 50
	uniquePagePoints = 15
	uniquePageCap    = 60

	returningBonus = 30
	consentBonus   = 25
	hotBonus       = 40

	hotScoreThreshold    = 150
	hotPageViewThreshold = 10
	hotTimeOnSiteSeconds = 600
)

// timeBonuses are cumulative: a session past 600s earns all three.
var timeBonuses = []struct {
	afterSeconds int
	points       int
}{
	{60, 20},
	{300, 30},
	{600, 50},
}

type Factors struct {
	PageViews         int
	UniquePages       int
	TimeOnSiteSeconds int
	HasConsent        bool
	IsReturning       bool
	IsHotAlready      bool
}

// Score is a pure function of f, capped at MaxScore.
func Score(f Factors) int {
	score := min(f.PageViews*pageViewPoints, pageViewCap)

	for _, b := range timeBonuses {
		if f.TimeOnSiteSeconds > b.afterSeconds {
			score += b.points
		}
	}

	if f.IsReturning {
		score += returningBonus
	}
	if f.HasConsent {
		score += consentBonus
	}
	if f.IsHotAlready {
		score += hotBonus
	}

	score += min(f.UniquePages*uniquePagePoints, uniquePageCap)

	return min(score, MaxScore)
}

// IsHotSession reports whether a session qualifies as hot.
func IsHotSession(score, pageViews, timeOnSiteSeconds int) bool {
	return score > hotScoreThreshold ||
		pageViews > hotPageViewThreshold ||
		timeOnSiteSeconds > hotTimeOnSiteSeconds
}

// Visit is the part of a logged visit that scoring looks at.
type Visit struct {
	Path    string
	At      time.Time
	Consent bool
}

// Collect derives the counting factors from the session history (newest first)
// plus the visit being recorded. IsReturning and IsHotAlready are left to the caller.
func Collect(history []Visit, current Visit) Factors {
	pages := make(map[string]struct{}, len(history)+1)
	pages[current.Path] = struct{}{}

	consent := current.Consent
	for _, v := range history {
		pages[v.Path] = struct{}{}
		consent = consent || v.Consent
	}

	timeOnSite := 0
	if len(history) > 0 {
		first := history[len(history)-1].At
		if d := current.At.Sub(first); d > 0 {
			timeOnSite = int(d / time.Second)
		}
	}

	return Factors{
		PageViews:         len(history) + 1,
		UniquePages:       len(pages),
		TimeOnSiteSeconds: timeOnSite,
		HasConsent:        consent,
	}
}
