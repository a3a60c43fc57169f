package pipeline

import (
	"strings"

	"flipflow/internal"
	"flipflow/internal/patterns"
)

type CategoryMatch struct {
	Status   internal.OrderStatus
	Priority int
}

// Categorize maps a subject line to a status category by ordered substring
// matching. The first category with a hit wins; nil means the email is not
// status-relevant and should be skipped, not treated as an error.
func Categorize(subject string, categories []patterns.Category) *CategoryMatch {
	lower := strings.ToLower(subject)
	for _, cat := range categories {
		for _, probe := range cat.Subjects {
			if strings.Contains(lower, probe) {
				return &CategoryMatch{Status: cat.Status, Priority: cat.Priority}
			}
		}
	}
	return nil
}
