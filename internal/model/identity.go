package model

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// Identifiers holds normalized contact identifiers. Each list is a sorted set.
type Identifiers struct {
	Emails   []string `json:"emails"`
	Phones   []string `json:"phones"`
	LinkedIn []string `json:"linkedin"`
	GitHub   []string `json:"github"`
}

// Kinds returns the identifier lists keyed by their document name, in a fixed order.
func (ids Identifiers) Kinds() []IdentifierKind {
	return []IdentifierKind{
		{Name: "emails", Values: ids.Emails},
		{Name: "phones", Values: ids.Phones},
		{Name: "linkedin", Values: ids.LinkedIn},
		{Name: "github", Values: ids.GitHub},
	}
}

// IdentifierKind is one named identifier list.
type IdentifierKind struct {
	Name   string
	Values []string
}

// Empty reports whether no identifier of any kind is present.
func (ids Identifiers) Empty() bool {
	return len(nonEmpty(ids.Emails))+len(nonEmpty(ids.Phones))+
		len(nonEmpty(ids.LinkedIn))+len(nonEmpty(ids.GitHub)) == 0
}

// Overlap returns the identifiers present in both sets. Empty strings never match.
func (ids Identifiers) Overlap(other Identifiers) Identifiers {
	return Identifiers{
		Emails:   intersect(ids.Emails, other.Emails),
		Phones:   intersect(ids.Phones, other.Phones),
		LinkedIn: intersect(ids.LinkedIn, other.LinkedIn),
		GitHub:   intersect(ids.GitHub, other.GitHub),
	}
}

// Union merges two identifier sets.
func (ids Identifiers) Union(other Identifiers) Identifiers {
	return Identifiers{
		Emails:   union(ids.Emails, other.Emails),
		Phones:   union(ids.Phones, other.Phones),
		LinkedIn: union(ids.LinkedIn, other.LinkedIn),
		GitHub:   union(ids.GitHub, other.GitHub),
	}
}

// Normalize returns a copy with every value normalized, empties dropped and each list sorted.
func (ids Identifiers) Normalize() Identifiers {
	return Identifiers{
		Emails:   normalizeSet(ids.Emails, NormalizeEmail),
		Phones:   normalizeSet(ids.Phones, NormalizePhone),
		LinkedIn: normalizeSet(ids.LinkedIn, strings.ToLower),
		GitHub:   normalizeSet(ids.GitHub, strings.ToLower),
	}
}

// String renders the set as "emails: a; phones: b".
func (ids Identifiers) String() string {
	var parts []string
	for _, k := range ids.Kinds() {
		if len(k.Values) > 0 {
			parts = append(parts, k.Name+": "+strings.Join(k.Values, ", "))
		}
	}
	return strings.Join(parts, "; ")
}

var nonDigit = regexp.MustCompile(`\D`)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NormalizePhone keeps digits only.
func NormalizePhone(s string) string { return nonDigit.ReplaceAllString(s, "") }

func normalizeSet(values []string, norm func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := norm(strings.TrimSpace(v)); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	var out []string
	for _, v := range a {
		if v != "" && slices.Contains(b, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

func union(a, b []string) []string {
	out := append(slices.Clone(nonEmpty(a)), nonEmpty(b)...)
	slices.Sort(out)
	return slices.Compact(out)
}

// CandidateIdentity is the identity metadata of one candidate record.
type CandidateIdentity struct {
	CandidateKey    string      `json:"candidate_key"`
	Name            string      `json:"name,omitempty"`
	Identifiers     Identifiers `json:"identifiers"`
	Rejected        bool        `json:"rejected,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	RejectedAt      *time.Time  `json:"rejection_timestamp,omitempty"`
}

// BaseName returns the name the record was created under, without
// duplicate-check or collision suffixes.
func (c CandidateIdentity) BaseName() string {
	if c.Name != "" {
		return c.Name
	}
	return BaseKey(c.CandidateKey)
}

var keySuffix = regexp.MustCompile(`__(DUPLICATE_CHECK(_\d+)?|\d+)$`)

// BaseKey strips a trailing "__DUPLICATE_CHECK[_N]" or "__N" suffix from a candidate key.
func BaseKey(key string) string {
	return keySuffix.ReplaceAllString(key, "")
}

// WarningReason says why two records were flagged.
type WarningReason string

// ReasonFakeDuplicate marks differently named records that share identifiers.
const ReasonFakeDuplicate WarningReason = "fake-duplicate"

// DuplicateWarning records that a candidate shares identifiers with another record.
type DuplicateWarning struct {
	CandidateKey string        `json:"candidate_key"`
	OtherKey     string        `json:"other_key"`
	Overlap      Identifiers   `json:"overlap"`
	Reason       WarningReason `json:"reason"`
	DetectedAt   time.Time     `json:"detected_at"`
}

// Mirror returns the same warning as seen from the other record.
func (w DuplicateWarning) Mirror() DuplicateWarning {
	w.CandidateKey, w.OtherKey = w.OtherKey, w.CandidateKey
	return w
}
