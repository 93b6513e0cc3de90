package progress

import (
	"math"
	"time"
)

// MaxDeltaSec bounds a single event delta to one day.
const MaxDeltaSec = 86400

type (
	// Event is an increment reported by the activity layer. Deltas are never totals.
	Event struct {
		TimestampMs             int64 `json:"timestamp_ms" validate:"gte=0"`
		DeltaTimeSpentSec       int64 `json:"delta_time_spent_sec" validate:"gte=0,lte=86400"`
		DeltaDurationWatchedSec int64 `json:"delta_duration_watched_sec" validate:"gte=0,lte=86400"`
	}

	Batch struct {
		StudentID string  `json:"student_id" validate:"required,identifier"`
		SectionID string  `json:"section_id" validate:"required,identifier"`
		Events    []Event `json:"events" validate:"required,min=1,max=1000,dive"`
	}

	// SectionProgress is the durable progress of a student on a single section.
	SectionProgress struct {
		StudentID           string    `json:"student_id"`
		SectionID           string    `json:"section_id"`
		CourseID            string    `json:"course_id"`
		TimeSpentSec        int64     `json:"time_spent_sec"`
		DurationWatchedSec  int64     `json:"duration_watched_sec"`
		CompletionPct       int       `json:"completion_pct"`
		IsCompleted         bool      `json:"is_completed"`
		CompletedActivities int       `json:"completed_activities"`
		LastActivityAt      time.Time `json:"last_activity_at"`
		Log                 []Event   `json:"log,omitempty"`
	}

	// Increment is one atomic mutation of a SectionProgress. Every field merges commutatively:
	// deltas are added, CompletionPct, CompletedActivities & LastActivityMs keep the max,
	// MarkComplete is OR-ed into IsCompleted.
	Increment struct {
		StudentID               string
		SectionID               string
		CourseID                string
		DeltaTimeSpentSec       int64
		DeltaDurationWatchedSec int64
		LastActivityMs          int64
		CompletionPct           int
		CompletedActivities     int
		MarkComplete            bool
		// WatchThresholdSec > 0 completes the section once DurationWatchedSec reaches it.
		WatchThresholdSec int64
		Events            []Event
		LogLimit          int
	}
)

// MillisToTime converts a unix timestamp in milliseconds to a UTC time.Time. Zero stays zero.
func MillisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}

// addTotal adds a non-negative delta to a total, saturating instead of wrapping.
func addTotal(total, delta int64) int64 {
	if delta <= 0 {
		return total
	}
	if total > math.MaxInt64-delta {
		return math.MaxInt64
	}
	return total + delta
}

// Apply merges inc into sp, the way every store must.
func (sp SectionProgress) Apply(inc Increment) SectionProgress {
	if sp.StudentID == "" {
		sp.StudentID = inc.StudentID
		sp.SectionID = inc.SectionID
		sp.CourseID = inc.CourseID
	}
	sp.TimeSpentSec = addTotal(sp.TimeSpentSec, inc.DeltaTimeSpentSec)
	sp.DurationWatchedSec = addTotal(sp.DurationWatchedSec, inc.DeltaDurationWatchedSec)
	if inc.CompletedActivities > sp.CompletedActivities {
		sp.CompletedActivities = inc.CompletedActivities
	}
	if inc.CompletionPct > sp.CompletionPct {
		sp.CompletionPct = inc.CompletionPct
	}
	if at := MillisToTime(inc.LastActivityMs); at.After(sp.LastActivityAt) {
		sp.LastActivityAt = at
	}
	if inc.MarkComplete || (inc.WatchThresholdSec > 0 && sp.DurationWatchedSec >= inc.WatchThresholdSec) {
		sp.IsCompleted = true
	}
	if sp.IsCompleted {
		sp.CompletionPct = 100
	}

	if len(inc.Events) > 0 {
		sp.Log = append(append([]Event{}, sp.Log...), inc.Events...)
		if inc.LogLimit > 0 && len(sp.Log) > inc.LogLimit {
			sp.Log = sp.Log[len(sp.Log)-inc.LogLimit:]
		}
	}
	return sp
}
