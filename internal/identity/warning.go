package identity

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

// RenderWarnings produces the DUPLICATE_WARNING.txt text for one record.
func RenderWarnings(warnings []model.DuplicateWarning) string {
	if len(warnings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("DUPLICATE IDENTIFIERS DETECTED\n")
	for _, w := range warnings {
		overlap := w.Overlap.String()
		if overlap == "" {
			overlap = "(details unavailable)"
		}
		fmt.Fprintf(&b, "\nThis profile (%s) shares identifiers with: %s\n", w.CandidateKey, w.OtherKey)
		fmt.Fprintf(&b, "Overlapping: %s\n", overlap)
		fmt.Fprintf(&b, "Reason: %s, detected %s\n", w.Reason, w.DetectedAt.Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("\nAction: Review both profiles carefully. These candidates were processed separately " +
		"to avoid data loss, but may represent the same person or a fake/alias.\n")
	return b.String()
}

// ReplaceWarnings returns current with every warning about otherKey removed
// and add appended.
func ReplaceWarnings(current []model.DuplicateWarning, otherKey string, add ...model.DuplicateWarning) []model.DuplicateWarning {
	var out []model.DuplicateWarning
	for _, w := range current {
		if w.OtherKey != otherKey {
			out = append(out, w)
		}
	}
	return append(out, add...)
}
