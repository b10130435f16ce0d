package model

import (
	"fmt"
	"strings"
)

// Recommendation is a point on the ordered five-point hiring scale.
type Recommendation string

const (
	StrongNo  Recommendation = "STRONG_NO"
	No        Recommendation = "NO"
	Maybe     Recommendation = "MAYBE"
	Yes       Recommendation = "YES"
	StrongYes Recommendation = "STRONG_YES"
)

// Recommendations lists the scale from most to least severe.
var Recommendations = []Recommendation{StrongNo, No, Maybe, Yes, StrongYes}

// Rank returns the position on the scale (STRONG_NO = 0), or -1 when unknown.
func (r Recommendation) Rank() int {
	switch r {
	case StrongNo:
		return 0
	case No:
		return 1
	case Maybe:
		return 2
	case Yes:
		return 3
	case StrongYes:
		return 4
	}
	return -1
}

// Valid reports whether r is on the scale.
func (r Recommendation) Valid() bool { return r.Rank() >= 0 }

// Negative reports whether r is NO or STRONG_NO.
func (r Recommendation) Negative() bool { return r == No || r == StrongNo }

// MoreSevere returns whichever of a and b is lower on the scale.
func MoreSevere(a, b Recommendation) Recommendation {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// ParseRecommendation accepts loose spellings such as "strong yes" or "Strong-No".
func ParseRecommendation(s string) (Recommendation, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	r := Recommendation(norm)
	if !r.Valid() {
		return "", fmt.Errorf("unknown recommendation %q", s)
	}
	return r, nil
}

// Priority is the interview priority tag attached to an evaluation.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// ParsePriority normalizes s, defaulting to LOW for anything unrecognised.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p
	}
	return PriorityLow
}
