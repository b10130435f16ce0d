package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

func TestReadTextArg(t *testing.T) {
	got, err := readTextArg("Backend engineer")
	require.NoError(t, err)
	assert.Equal(t, "Backend engineer", got)

	path := filepath.Join(t.TempDir(), "posting.txt")
	require.NoError(t, os.WriteFile(path, []byte("Go, Postgres, Kafka"), 0o644))
	got, err = readTextArg("@" + path)
	require.NoError(t, err)
	assert.Equal(t, "Go, Postgres, Kafka", got)

	_, err = readTextArg("@" + filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFirstLineOf(t *testing.T) {
	assert.Equal(t, "No Go experience", firstLineOf("  No Go experience\nOnly Java for 8 years"))
	assert.Equal(t, "", firstLineOf("   "))
}

func TestChooseRecommendationFromFlag(t *testing.T) {
	rec, err := chooseRecommendation("strong no")
	require.NoError(t, err)
	assert.Equal(t, model.StrongNo, rec)

	_, err = chooseRecommendation("PERHAPS")
	assert.Error(t, err)
}

func TestRunResultFormatting(t *testing.T) {
	assert.Equal(t, "-", scoreText(nil))
	assert.Equal(t, "72", scoreText(model.IntPtr(72)))
	assert.Equal(t, "new", deltaText(nil))
	assert.Equal(t, "+5", deltaText(model.IntPtr(5)))
	assert.Equal(t, "-12", deltaText(model.IntPtr(-12)))
}

func TestFeedbackLine(t *testing.T) {
	fb := model.HumanFeedback{
		CandidateKey:     "jane_doe",
		Recommendation:   model.No,
		Score:            model.IntPtr(40),
		Notes:            "No production Go\nOnly side projects",
		AIRecommendation: model.Yes,
		AIScore:          model.IntPtr(78),
		CreatedAt:        time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local),
	}
	line := feedbackLine(fb)
	assert.Contains(t, line, "2026-03-01 09:30")
	assert.Contains(t, line, "YES (78) -> NO (40)")
	assert.Contains(t, line, "No production Go")
	assert.NotContains(t, line, "side projects")

	bare := feedbackLine(model.HumanFeedback{CandidateKey: "john_roe", Recommendation: model.Maybe})
	assert.Contains(t, bare, "- -> MAYBE")
}
