package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(key string, emails ...string) model.CandidateIdentity {
	return model.CandidateIdentity{CandidateKey: key, Identifiers: model.Identifiers{Emails: emails}}
}

func emails(e ...string) model.Identifiers { return model.Identifiers{Emails: e} }

func TestResolveNewRecord(t *testing.T) {
	res := Resolve("jane_doe", emails("jane@x.com"), []model.CandidateIdentity{rec("john_doe", "john@x.com")}, now)
	assert.Equal(t, ActionNew, res.Action)
	assert.Equal(t, "jane_doe", res.TargetKey)
	assert.Nil(t, res.Warning)
}

func TestResolveSameNameOverlapMerges(t *testing.T) {
	res := Resolve("jane_doe", emails("JANE@x.com"), []model.CandidateIdentity{rec("jane_doe", "jane@x.com")}, now)
	assert.Equal(t, ActionMerge, res.Action)
	assert.Equal(t, "jane_doe", res.TargetKey)
	assert.False(t, res.Insufficient)
	assert.Equal(t, []string{"jane@x.com"}, res.Overlap.Emails)
	assert.Nil(t, res.Warning)
}

func TestResolveDifferentNameOverlapFlagsDuplicate(t *testing.T) {
	existing := []model.CandidateIdentity{rec("john_doe", "j@x.com")}

	res := Resolve("jane_doe", emails("J@X.com"), existing, now)
	require.Equal(t, ActionDuplicateFlag, res.Action)
	assert.Equal(t, "jane_doe__DUPLICATE_CHECK", res.TargetKey)
	assert.Equal(t, "john_doe", res.Match)
	require.NotNil(t, res.Warning)
	assert.Equal(t, "jane_doe__DUPLICATE_CHECK", res.Warning.CandidateKey)
	assert.Equal(t, "john_doe", res.Warning.OtherKey)
	assert.Equal(t, []string{"j@x.com"}, res.Warning.Overlap.Emails)
	assert.Equal(t, model.ReasonFakeDuplicate, res.Warning.Reason)

	mirror := res.Warning.Mirror()
	assert.Equal(t, "john_doe", mirror.CandidateKey)
	assert.Equal(t, "jane_doe__DUPLICATE_CHECK", mirror.OtherKey)
}

func TestResolveDuplicateSuffixIncrements(t *testing.T) {
	existing := []model.CandidateIdentity{
		rec("john_doe", "j@x.com"),
		{CandidateKey: "jane_doe__DUPLICATE_CHECK", Name: "somebody_else"},
		{CandidateKey: "jane_doe__DUPLICATE_CHECK_2", Name: "somebody_else"},
	}
	res := Resolve("jane_doe", emails("j@x.com"), existing, now)
	assert.Equal(t, ActionDuplicateFlag, res.Action)
	assert.Equal(t, "jane_doe__DUPLICATE_CHECK_3", res.TargetKey)
}

func TestResolveSameNameWinsOverDifferentName(t *testing.T) {
	existing := []model.CandidateIdentity{
		rec("alice", "j@x.com"),
		rec("jane_doe", "j@x.com"),
	}
	res := Resolve("jane_doe", emails("j@x.com"), existing, now)
	assert.Equal(t, ActionMerge, res.Action)
	assert.Equal(t, "jane_doe", res.TargetKey)
}

func TestResolveCollision(t *testing.T) {
	existing := []model.CandidateIdentity{rec("jane_doe", "jane@a.com"), rec("jane_doe__2", "jane@b.com")}
	res := Resolve("jane_doe", emails("jane@c.com"), existing, now)
	assert.Equal(t, ActionCollision, res.Action)
	assert.Equal(t, "jane_doe__3", res.TargetKey)
}

func TestResolveInsufficientEvidenceReusesRecord(t *testing.T) {
	t.Run("incoming has none", func(t *testing.T) {
		res := Resolve("jane_doe", model.Identifiers{}, []model.CandidateIdentity{rec("jane_doe", "jane@a.com")}, now)
		assert.Equal(t, ActionMerge, res.Action)
		assert.True(t, res.Insufficient)
		assert.Equal(t, "jane_doe", res.TargetKey)
	})
	t.Run("existing has none", func(t *testing.T) {
		res := Resolve("jane_doe", emails("jane@a.com"), []model.CandidateIdentity{{CandidateKey: "jane_doe"}}, now)
		assert.Equal(t, ActionMerge, res.Action)
		assert.True(t, res.Insufficient)
	})
}

func TestResolveEmptyIdentifiersNeverMatch(t *testing.T) {
	existing := []model.CandidateIdentity{
		{CandidateKey: "john_doe", Identifiers: model.Identifiers{Emails: []string{""}, Phones: []string{""}}},
	}
	res := Resolve("jane_doe", model.Identifiers{Emails: []string{""}}, existing, now)
	assert.Equal(t, ActionNew, res.Action)
}

func TestResolvePicksFirstOverlapByKey(t *testing.T) {
	existing := []model.CandidateIdentity{rec("zed", "j@x.com"), rec("bob", "j@x.com")}
	res := Resolve("jane_doe", emails("j@x.com"), existing, now)
	assert.Equal(t, "bob", res.Match)
}

func TestConflicts(t *testing.T) {
	me := model.CandidateIdentity{CandidateKey: "jane_doe__DUPLICATE_CHECK", Name: "jane_doe", Identifiers: emails("j@x.com")}
	others := []model.CandidateIdentity{
		me,
		rec("john_doe", "j@x.com"),
		rec("jane_doe", "j@x.com"),
		rec("amy", "amy@x.com"),
	}
	ws := Conflicts(me, others, now)
	require.Len(t, ws, 1)
	assert.Equal(t, "john_doe", ws[0].OtherKey)
	assert.Equal(t, "jane_doe__DUPLICATE_CHECK", ws[0].CandidateKey)
}

func TestExtract(t *testing.T) {
	text := `Jane Doe
Email: Jane.Doe@Example.COM | Phone: +1 (555) 123-4567
https://www.linkedin.com/in/Jane-Doe-123/ and github.com/JaneDoe
Also see github.com/orgs and github.com/x`

	ids := Extract(text)
	assert.Equal(t, []string{"jane.doe@example.com"}, ids.Emails)
	assert.Equal(t, []string{"15551234567"}, ids.Phones)
	assert.Equal(t, []string{"https://linkedin.com/in/jane-doe-123"}, ids.LinkedIn)
	assert.Equal(t, []string{"https://github.com/janedoe"}, ids.GitHub)
}

func TestExtractNothing(t *testing.T) {
	assert.True(t, Extract("no contact details here, call 12345").Empty())
}

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"Jane Doe":        "jane_doe",
		"José  Álvarez":   "jose_alvarez",
		"  o'brien-smith": "o_brien_smith",
		"jane_doe":        "jane_doe",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeKey(in), in)
	}
}

func TestRenderWarnings(t *testing.T) {
	assert.Empty(t, RenderWarnings(nil))

	text := RenderWarnings([]model.DuplicateWarning{{
		CandidateKey: "jane_doe__DUPLICATE_CHECK",
		OtherKey:     "john_doe",
		Overlap:      emails("j@x.com"),
		Reason:       model.ReasonFakeDuplicate,
		DetectedAt:   now,
	}})
	assert.True(t, strings.HasPrefix(text, "DUPLICATE IDENTIFIERS DETECTED"))
	assert.Contains(t, text, "shares identifiers with: john_doe")
	assert.Contains(t, text, "Overlapping: emails: j@x.com")
}

func TestReplaceWarnings(t *testing.T) {
	current := []model.DuplicateWarning{{OtherKey: "a"}, {OtherKey: "b"}}
	out := ReplaceWarnings(current, "a", model.DuplicateWarning{OtherKey: "a", Reason: model.ReasonFakeDuplicate})
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].OtherKey)
	assert.Equal(t, model.ReasonFakeDuplicate, out[1].Reason)

	assert.Empty(t, ReplaceWarnings([]model.DuplicateWarning{{OtherKey: "a"}}, "a"))
}
