// Package identity decides whether an incoming candidate is a new person, a
// returning one, a name collision or a suspected duplicate of someone else.
//
// Resolution is strictly pairwise: the incoming candidate is compared with each
// existing record on its own, and records are never merged transitively.
package identity

import (
	"fmt"
	"sort"
	"time"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

// Action is the outcome of resolving an intake against existing records.
type Action string

const (
	ActionNew           Action = "new"
	ActionMerge         Action = "merge"
	ActionCollision     Action = "collision"
	ActionDuplicateFlag Action = "duplicate-flag"
)

const duplicateSuffix = "__DUPLICATE_CHECK"

// Resolution tells the caller where the intake goes.
type Resolution struct {
	Action    Action
	TargetKey string
	// Match is the existing record the decision was made against, if any.
	Match string
	// Overlap holds the shared identifiers for merge and duplicate-flag outcomes.
	Overlap model.Identifiers
	// Insufficient is set when a same-name record was reused because one side
	// had no identifiers at all.
	Insufficient bool
	// Warning is set for duplicate-flag; it is written to both records.
	Warning *model.DuplicateWarning
}

// Resolve classifies an intake named name (a normalized candidate key) with
// identifiers ids against the existing records of the same job. The first
// matching rule wins:
//
//  1. same name, overlapping identifiers: merge
//  2. different name, overlapping identifiers: duplicate-flag
//  3. same name, disjoint identifiers on both sides: collision
//  4. same name, one side without identifiers: merge (reuse)
//  5. otherwise: new
func Resolve(name string, ids model.Identifiers, existing []model.CandidateIdentity, now time.Time) Resolution {
	ids = ids.Normalize()
	records := sortedByKey(existing)

	for _, rec := range records {
		if rec.BaseName() != name {
			continue
		}
		if ov := ids.Overlap(rec.Identifiers); !ov.Empty() {
			return Resolution{Action: ActionMerge, TargetKey: rec.CandidateKey, Match: rec.CandidateKey, Overlap: ov}
		}
	}

	for _, rec := range records {
		if rec.BaseName() == name {
			continue
		}
		ov := ids.Overlap(rec.Identifiers)
		if ov.Empty() {
			continue
		}
		key := nextKey(name+duplicateSuffix, "_", existing)
		return Resolution{
			Action:    ActionDuplicateFlag,
			TargetKey: key,
			Match:     rec.CandidateKey,
			Overlap:   ov,
			Warning: &model.DuplicateWarning{
				CandidateKey: key,
				OtherKey:     rec.CandidateKey,
				Overlap:      ov,
				Reason:       model.ReasonFakeDuplicate,
				DetectedAt:   now.UTC(),
			},
		}
	}

	for _, rec := range records {
		if rec.BaseName() != name {
			continue
		}
		if !ids.Empty() && !rec.Identifiers.Empty() {
			return Resolution{Action: ActionCollision, TargetKey: nextKey(name, "__", existing), Match: rec.CandidateKey}
		}
		return Resolution{Action: ActionMerge, TargetKey: rec.CandidateKey, Match: rec.CandidateKey, Insufficient: true}
	}

	if keyTaken(name, existing) {
		// the bare key belongs to a record stored under another name
		return Resolution{Action: ActionCollision, TargetKey: nextKey(name, "__", existing)}
	}
	return Resolution{Action: ActionNew, TargetKey: name}
}

// Conflicts re-checks one record against the others of its job and returns the
// duplicate warnings that currently apply to it: every differently named
// record that shares at least one identifier.
func Conflicts(rec model.CandidateIdentity, others []model.CandidateIdentity, now time.Time) []model.DuplicateWarning {
	var out []model.DuplicateWarning
	for _, o := range sortedByKey(others) {
		if o.CandidateKey == rec.CandidateKey || o.BaseName() == rec.BaseName() {
			continue
		}
		ov := rec.Identifiers.Overlap(o.Identifiers)
		if ov.Empty() {
			continue
		}
		out = append(out, model.DuplicateWarning{
			CandidateKey: rec.CandidateKey,
			OtherKey:     o.CandidateKey,
			Overlap:      ov,
			Reason:       model.ReasonFakeDuplicate,
			DetectedAt:   now.UTC(),
		})
	}
	return out
}

// nextKey returns base when unused, else the first of base{sep}2, base{sep}3, ...
// that is free. Duplicate-check keys start bare, collisions always carry a number.
func nextKey(base, sep string, existing []model.CandidateIdentity) string {
	if sep == "_" && !keyTaken(base, existing) {
		return base
	}
	for n := 2; ; n++ {
		k := fmt.Sprintf("%s%s%d", base, sep, n)
		if !keyTaken(k, existing) {
			return k
		}
	}
}

func keyTaken(key string, existing []model.CandidateIdentity) bool {
	for _, r := range existing {
		if r.CandidateKey == key {
			return true
		}
	}
	return false
}

func sortedByKey(in []model.CandidateIdentity) []model.CandidateIdentity {
	out := make([]model.CandidateIdentity, len(in))
	copy(out, in)
	for i := range out {
		out[i].Identifiers = out[i].Identifiers.Normalize()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateKey < out[j].CandidateKey })
	return out
}
