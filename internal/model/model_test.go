package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecommendation(t *testing.T) {
	tests := []struct {
		in   string
		want Recommendation
	}{
		{"YES", Yes},
		{"strong yes", StrongYes},
		{" Strong-No ", StrongNo},
		{"maybe", Maybe},
	}
	for _, tt := range tests {
		got, err := ParseRecommendation(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseRecommendation("HIRE")
	assert.Error(t, err)
}

func TestRecommendationOrdering(t *testing.T) {
	for i := 1; i < len(Recommendations); i++ {
		assert.Less(t, Recommendations[i-1].Rank(), Recommendations[i].Rank())
	}
	assert.Equal(t, StrongNo, MoreSevere(No, StrongNo))
	assert.Equal(t, No, MoreSevere(No, Yes))
	assert.True(t, No.Negative())
	assert.False(t, Maybe.Negative())
	assert.Equal(t, -1, Recommendation("HIRE").Rank())
}

func TestIdentifiersOverlapIgnoresEmpty(t *testing.T) {
	a := Identifiers{Emails: []string{""}, Phones: []string{"5551234567"}}
	b := Identifiers{Emails: []string{""}, Phones: []string{"5559999999"}}

	assert.True(t, a.Overlap(b).Empty())
	assert.True(t, Identifiers{Emails: []string{""}}.Empty())

	c := Identifiers{Phones: []string{"5551234567"}}
	assert.Equal(t, []string{"5551234567"}, a.Overlap(c).Phones)
}

func TestIdentifiersNormalizeAndUnion(t *testing.T) {
	ids := Identifiers{
		Emails: []string{" J@X.com", "j@x.com"},
		Phones: []string{"(555) 123-4567"},
	}.Normalize()
	assert.Equal(t, []string{"j@x.com"}, ids.Emails)
	assert.Equal(t, []string{"5551234567"}, ids.Phones)

	merged := ids.Union(Identifiers{Emails: []string{"a@b.io"}})
	assert.Equal(t, []string{"a@b.io", "j@x.com"}, merged.Emails)
	assert.Equal(t, "emails: a@b.io, j@x.com; phones: 5551234567", merged.String())
}

func TestBaseKey(t *testing.T) {
	assert.Equal(t, "jane_doe", BaseKey("jane_doe"))
	assert.Equal(t, "jane_doe", BaseKey("jane_doe__2"))
	assert.Equal(t, "jane_doe", BaseKey("jane_doe__DUPLICATE_CHECK"))
	assert.Equal(t, "jane_doe", BaseKey("jane_doe__DUPLICATE_CHECK_3"))
	assert.Equal(t, "jane_doe", CandidateIdentity{CandidateKey: "x", Name: "jane_doe"}.BaseName())
}

func TestFilterSetEnabledKeepsOrder(t *testing.T) {
	set := &FilterSet{Filters: []ScreeningFilter{
		{ID: "b", Enabled: true},
		{ID: "a", Enabled: false},
		{ID: "c", Enabled: true},
	}}
	enabled := set.Enabled()
	require.Len(t, enabled, 2)
	assert.Equal(t, "b", enabled[0].ID)
	assert.Equal(t, "c", enabled[1].ID)

	f, idx := set.Find("a")
	require.NotNil(t, f)
	assert.Equal(t, 1, idx)
}

func TestFilterActionString(t *testing.T) {
	a := FilterAction{SetRecommendation: RecommendationPtr(No), DeductPoints: IntPtr(30)}
	assert.Equal(t, "set_recommendation=NO, deduct_points=30", a.String())
	assert.Equal(t, "none", FilterAction{}.String())
	assert.True(t, FilterAction{}.Empty())
}
