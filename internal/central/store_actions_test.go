package central

import (
	"testing"

	"gamehub/models"
)

func scored(vals ...int) []models.Comment {
	comments := make([]models.Comment, len(vals))
	for i, v := range vals {
		comments[i] = models.Comment{Username: "u", Score: v}
	}
	return comments
}

func TestAverageScoreRoundsToOneDecimal(t *testing.T) {
	if got := averageScore(nil); got != nil {
		t.Errorf("rating without comments = %v", *got)
	}

	cases := []struct {
		comments []models.Comment
		want     float64
	}{
		{scored(4), 4},
		{scored(1, 2), 1.5},
		{scored(1, 1, 2), 1.3},
		{scored(5, 5, 4), 4.7},
	}
	for _, c := range cases {
		got := averageScore(c.comments)
		if got == nil || *got != c.want {
			t.Errorf("averageScore over %d comments = %v, want %v", len(c.comments), got, c.want)
		}
	}
}
