package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

func TestPredictBuckets(t *testing.T) {
	cases := []struct {
		name        string
		description string
		want        models.PriorityLabel
	}{
		{"urgent keyword", "Urgent: submit by tomorrow", models.PriorityUrgentImportant},
		{"exam keyword", "Prepare for the chemistry exam", models.PriorityUrgentImportant},
		{"case insensitive", "CRITICAL bug writeup", models.PriorityUrgentImportant},
		{"high bucket", "Prepare presentation for science fair", models.PriorityHigh},
		{"major assignment", "This is a major assignment on algebra", models.PriorityHigh},
		{"medium bucket", "Read chapter 5 for homework", models.PriorityMedium},
		{"low bucket", "Optional practice problems", models.PriorityOptional},
		{"no keyword defaults to medium", "Bring colored pencils", models.PriorityMedium},
		{"empty defaults to medium", "", models.PriorityMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Predict(tc.description))
		})
	}
}

func TestPredictPrecedence(t *testing.T) {
	// Urgent keywords win no matter what else the text mentions.
	assert.Equal(t, models.PriorityUrgentImportant,
		Predict("urgent presentation homework, optional review"))

	// High beats medium and low when no urgent keyword is present.
	assert.Equal(t, models.PriorityHigh,
		Predict("group project with extra reading"))

	// Medium beats low.
	assert.Equal(t, models.PriorityMedium,
		Predict("homework with optional extras"))
}

func TestRankOrdersAllLabels(t *testing.T) {
	seen := map[int]models.PriorityLabel{}
	for _, label := range models.PriorityLabels {
		r := Rank(label)
		assert.Greater(t, r, 0)
		_, dup := seen[r]
		assert.False(t, dup, "duplicate rank for %s", label)
		seen[r] = label
	}
	assert.Equal(t, 1, Rank(models.PriorityUrgentImportant))
	assert.Equal(t, 99, Rank(models.PriorityLabel("bogus")))
}
