package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

const markerLabel = "Failed filters:"

var (
	markerRe  = regexp.MustCompile(`(?i)^\s*[*_\x60]*\s*failed\s+filters\s*[*_\x60]*\s*:\s*(.*?)\s*$`)
	mentionRe = regexp.MustCompile(`(?i)failed\s*filters?`)
	parenRe   = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
)

// Marker is the parsed violation marker. Found is false when the first line
// of the notes carries no marker.
type Marker struct {
	IDs []string
	// Invalid holds list entries that cannot be filter ids. They are skipped
	// without affecting the rest of the list.
	Invalid []string
	Found   bool
}

// UnparseableMarkerError is returned when the first line mentions failed
// filters but cannot be read as a marker.
type UnparseableMarkerError struct {
	Line string
}

func (e *UnparseableMarkerError) Error() string {
	return fmt.Sprintf("unparseable violation marker %q", e.Line)
}

// ParseMarker reads the "Failed filters: a, b" marker from the first line of
// notes. Matching is case-insensitive and tolerates extra whitespace,
// markdown emphasis, backticks and a trailing period. "none" means no ids.
// Entries that are not filter ids are collected in Invalid; the marker is
// only unparseable when no entry is usable.
func ParseMarker(notes string) (Marker, error) {
	line, _ := splitFirstLine(notes)

	m := markerRe.FindStringSubmatch(line)
	if m == nil {
		if mentionRe.MatchString(line) {
			return Marker{}, &UnparseableMarkerError{Line: line}
		}
		return Marker{}, nil
	}

	list := strings.Trim(m[1], " \t*_`.")
	if list == "" || strings.EqualFold(list, "none") || strings.EqualFold(list, "n/a") {
		return Marker{Found: true}, nil
	}

	var ids, invalid []string
	seen := map[string]bool{}
	for _, part := range strings.Split(list, ",") {
		id := strings.Trim(parenRe.ReplaceAllString(part, ""), " \t`'\"*.")
		if id == "" {
			continue
		}
		if !model.ValidFilterID(id) {
			invalid = append(invalid, id)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 && len(invalid) > 0 {
		return Marker{}, &UnparseableMarkerError{Line: line}
	}
	return Marker{IDs: ids, Invalid: invalid, Found: true}, nil
}

// FormatMarker renders the marker line for the given ids.
func FormatMarker(ids []string) string {
	if len(ids) == 0 {
		return markerLabel + " none"
	}
	return markerLabel + " " + strings.Join(ids, ", ")
}

func splitFirstLine(s string) (first, rest string) {
	first, rest, found := strings.Cut(s, "\n")
	if !found {
		return s, ""
	}
	return strings.TrimSuffix(first, "\r"), rest
}
