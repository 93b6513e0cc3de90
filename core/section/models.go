package section

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maendeleo/core"
)

// Kinds
const (
	KindText       = "text"
	KindVideo      = "video"
	KindQuiz       = "quiz"
	KindAssignment = "assignment"
)

type (
	// Section is a node of a course's content hierarchy.
	// A Section with an empty ParentID is a root of its course.
	Section struct {
		ID       string `json:"id"`
		CourseID string `json:"course_id"`
		Title    string `json:"title"`
		ParentID string `json:"parent_id,omitempty"`
		Order    int    `json:"order"`
		Kind     string `json:"kind"`

		// WatchThresholdSec enables watch-based completion on video sections.
		WatchThresholdSec int64    `json:"watch_threshold_sec,omitempty"`
		ActivityIDs       []string `json:"activity_ids,omitempty"`
	}

	NewSection struct {
		ID                string   `json:"id" validate:"omitempty,identifier"`
		CourseID          string   `json:"course_id" validate:"required,identifier"`
		Title             string   `json:"title" validate:"required,max=255"`
		ParentID          string   `json:"parent_id" validate:"omitempty,identifier"`
		Order             *int     `json:"order" validate:"omitempty,gte=0"`
		Kind              string   `json:"kind" validate:"omitempty,oneof=text video quiz assignment"`
		WatchThresholdSec int64    `json:"watch_threshold_sec" validate:"gte=0"`
		ActivityIDs       []string `json:"activity_ids" validate:"omitempty,unique,dive,identifier"`
	}
)

// HasActivities reports whether the Section's completion is tracked per activity.
func (s Section) HasActivities() bool {
	return len(s.ActivityIDs) > 0
}

// WatchCompletable reports whether watching WatchThresholdSec seconds completes the Section.
func (s Section) WatchCompletable() bool {
	return s.Kind == KindVideo && s.WatchThresholdSec > 0
}

// HasActivity reports whether activityID belongs to the Section.
func (s Section) HasActivity(activityID string) bool {
	for _, id := range s.ActivityIDs {
		if id == activityID {
			return true
		}
	}
	return false
}

func (ns *NewSection) clean() {
	ns.ID = core.CleanString(ns.ID)
	ns.CourseID = core.CleanString(ns.CourseID)
	ns.Title = core.CleanString(ns.Title)
	ns.ParentID = core.CleanString(ns.ParentID)
	ns.Kind = core.CleanString(ns.Kind, true /* lower */)
	if ns.Kind == "" {
		ns.Kind = KindText
	}
}

func (ns *NewSection) Validate(validate *validator.Validate) error {
	ns.clean()
	return validate.Struct(ns)
}
