// Package priority maps free-text task descriptions to one of the ten
// fixed priority labels using a keyword lookup. The match is a plain
// substring check over the lower-cased description; buckets are tried in
// a fixed precedence order and the first hit wins.
package priority

import (
	"strings"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

var (
	urgentKeywords = []string{"urgent", "deadline", "due soon", "important", "critical", "exam", "test", "final"}
	highKeywords   = []string{"high marks", "major assignment", "project", "presentation"}
	mediumKeywords = []string{"homework", "assignment", "reading"}
	lowKeywords    = []string{"optional", "extra", "practice", "review"}
)

// Predict returns the suggested priority label for a description.
// Precedence: urgent > high > medium > low; anything else falls back to
// medium_priority. Deterministic and stateless.
func Predict(description string) models.PriorityLabel {
	text := strings.ToLower(description)

	switch {
	case containsAny(text, urgentKeywords):
		return models.PriorityUrgentImportant
	case containsAny(text, highKeywords):
		return models.PriorityHigh
	case containsAny(text, mediumKeywords):
		return models.PriorityMedium
	case containsAny(text, lowKeywords):
		return models.PriorityOptional
	default:
		return models.PriorityMedium
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// rank orders the ten labels for dashboard sorting; unknown labels sink
// to the bottom.
var rank = map[models.PriorityLabel]int{
	models.PriorityUrgentImportant:       1,
	models.PriorityImportantNotUrgent:    2,
	models.PriorityUrgentNotImportant:    3,
	models.PriorityHigh:                  4,
	models.PriorityMedium:                5,
	models.PriorityLow:                   6,
	models.PriorityLongTerm:              7,
	models.PriorityGroupTask:             8,
	models.PriorityOptional:              9,
	models.PriorityNotImportantNotUrgent: 10,
}

// Rank returns the sort position of a label, lower meaning sooner.
func Rank(label models.PriorityLabel) int {
	if r, ok := rank[label]; ok {
		return r
	}
	return 99
}
