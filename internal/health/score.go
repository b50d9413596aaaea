// Package health derives a display score from a diagnosis.
package health

import (
	"strings"

	"github.com/lucasnoah/repobrain/internal/artifacts"
)

const (
	base             = 50
	greenBonus       = 40
	autoFixBonus     = 20
	redPenalty       = 30
	ciBonus          = 10
	perLanguage      = 5
	maxLanguageBonus = 20
)

// Score maps a diagnosis to an integer in [0,100]. It is pure: the same
// record always yields the same score.
func Score(d artifacts.DiagnosisRecord) int {
	score := base

	switch d.Status {
	case artifacts.StatusGreen:
		score += greenBonus
	case artifacts.StatusAutoFixable:
		score += autoFixBonus
	case artifacts.StatusRed:
		score -= redPenalty
	}

	if d.CI != artifacts.CINone {
		score += ciBonus
	}

	score += min(perLanguage*distinct(d.Languages), maxLanguageBonus)

	return max(0, min(100, score))
}

func distinct(langs []string) int {
	seen := make(map[string]struct{}, len(langs))
	for _, l := range langs {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		seen[l] = struct{}{}
	}
	return len(seen)
}
