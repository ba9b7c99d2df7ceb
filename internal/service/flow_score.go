package service

import "flowbar/backend/internal/model"

type siteCategory int

const (
	siteNeutral siteCategory = iota
	siteDistraction
	siteFocus
)

// categorize places a domain on the site lists. A domain on both lists is
// treated as a distraction.
func categorize(domain string, distraction, focus model.SiteList) siteCategory {
	switch {
	case distraction.Contains(domain):
		return siteDistraction
	case focus.Contains(domain):
		return siteFocus
	default:
		return siteNeutral
	}
}

// ComputeFlowScore derives the 0-100 flow score of domain from its focus
// sessions and the configured site lists. It is pure.
func ComputeFlowScore(domain string, history []model.Session, distraction, focus model.SiteList) int {
	target := model.NormalizeDomain(domain)
	if target == "" {
		return 0
	}
	category := categorize(target, distraction, focus)

	var focusTime, distractionTime int
	for _, session := range history {
		if session.Type != model.SessionFocus || !model.SameSite(session.Domain, target) {
			continue
		}
		if session.Duration <= 0 {
			continue
		}
		if category == siteDistraction {
			distractionTime += session.Duration
		} else {
			focusTime += session.Duration
		}
	}
	return scoreFromTotals(focusTime, distractionTime, category)
}

func scoreFromTotals(focusTime, distractionTime int, category siteCategory) int {
	total := focusTime + distractionTime
	if total <= 0 {
		return 0
	}
	hours := float64(total) / 3600

	switch category {
	case siteDistraction:
		switch {
		case hours > 2:
			return 5
		case hours > 1:
			return 10
		case hours > 0.5:
			return 20
		case hours > 0.25:
			return 35
		default:
			return 50
		}
	case siteFocus:
		switch {
		case hours > 2:
			return 95
		case hours > 1:
			return 85
		case hours > 0.5:
			return 75
		case hours > 0.25:
			return 65
		default:
			return 60
		}
	}

	percentage := float64(focusTime) * 100 / float64(total)
	var score int
	switch {
	case percentage >= 90:
		score = 90
	case percentage >= 70:
		score = 75
	case percentage >= 50:
		score = 60
	case percentage >= 30:
		score = 45
	case percentage > 0:
		score = 30
	default:
		score = 15
	}

	switch {
	case hours > 2:
		score += 20
	case hours > 1:
		score += 10
	case hours > 0.5:
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}
