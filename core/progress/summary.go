package progress

import "time"

// CourseSummary is the rollup of a student's progress over every section of a course.
type CourseSummary struct {
	StudentID          string    `json:"student_id"`
	CourseID           string    `json:"course_id"`
	CompletedSections  int       `json:"completed_sections"`
	TotalSections      int       `json:"total_sections"`
	CompletionPct      int       `json:"completion_pct"`
	TimeSpentSec       int64     `json:"time_spent_sec"`
	DurationWatchedSec int64     `json:"duration_watched_sec"`
	LastActivityAt     time.Time `json:"last_activity_at,omitempty"`
}

// Percent returns round(100 * part / total), half up. A zero total yields 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

// Summarize folds entries over sectionIDs. Sections without an entry count as untouched;
// entries for other sections are ignored.
func Summarize(studentID, courseID string, sectionIDs []string, entries []SectionProgress) CourseSummary {
	sum := CourseSummary{
		StudentID:     studentID,
		CourseID:      courseID,
		TotalSections: len(sectionIDs),
	}

	bySection := make(map[string]SectionProgress, len(entries))
	for _, e := range entries {
		bySection[e.SectionID] = e
	}
	for _, id := range sectionIDs {
		e, ok := bySection[id]
		if !ok {
			continue
		}
		if e.IsCompleted {
			sum.CompletedSections++
		}
		sum.TimeSpentSec += e.TimeSpentSec
		sum.DurationWatchedSec += e.DurationWatchedSec
		if e.LastActivityAt.After(sum.LastActivityAt) {
			sum.LastActivityAt = e.LastActivityAt
		}
	}
	sum.CompletionPct = Percent(sum.CompletedSections, sum.TotalSections)
	return sum
}
