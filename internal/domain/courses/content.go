package courses

// PreviewChapters returns a copy of the course content where only free
// preview lectures keep their URL.
func PreviewChapters(chapters []Chapter) []Chapter {
	out := make([]Chapter, len(chapters))
	for i, ch := range chapters {
		lectures := make([]Lecture, len(ch.Lectures))
		for j, l := range ch.Lectures {
			if !l.IsPreviewFree {
				l.URL = ""
			}
			lectures[j] = l
		}
		ch.Lectures = lectures
		out[i] = ch
	}
	return out
}

// HasLecture reports whether lectureID belongs to the course content.
func HasLecture(chapters []Chapter, lectureID string) bool {
	for _, ch := range chapters {
		for _, l := range ch.Lectures {
			if l.ID == lectureID {
				return true
			}
		}
	}
	return false
}

func TotalDurationMinutes(chapters []Chapter) int {
	total := 0
	for _, ch := range chapters {
		for _, l := range ch.Lectures {
			total += l.DurationMinutes
		}
	}
	return total
}
