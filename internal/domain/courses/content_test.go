package courses

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleChapters() []Chapter {
	return []Chapter{
		{ID: "ch1", Title: "Intro", Lectures: []Lecture{
			{ID: "l1", URL: "https://cdn/l1", IsPreviewFree: true, DurationMinutes: 5},
			{ID: "l2", URL: "https://cdn/l2", DurationMinutes: 12},
		}},
		{ID: "ch2", Title: "Deep dive", Lectures: []Lecture{
			{ID: "l3", URL: "https://cdn/l3", DurationMinutes: 30},
		}},
	}
}

func TestPreviewChaptersHidesLockedLectures(t *testing.T) {
	src := sampleChapters()
	got := PreviewChapters(src)

	assert.Equal(t, "https://cdn/l1", got[0].Lectures[0].URL)
	assert.Empty(t, got[0].Lectures[1].URL)
	assert.Empty(t, got[1].Lectures[0].URL)

	// the source is left untouched
	assert.Equal(t, "https://cdn/l2", src[0].Lectures[1].URL)
}

func TestHasLecture(t *testing.T) {
	chapters := sampleChapters()
	assert.True(t, HasLecture(chapters, "l3"))
	assert.False(t, HasLecture(chapters, "missing"))
}

func TestTotalDurationMinutes(t *testing.T) {
	assert.Equal(t, 47, TotalDurationMinutes(sampleChapters()))
}
