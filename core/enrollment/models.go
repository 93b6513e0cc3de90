package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/progress"
)

// Statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
)

type (
	// Course holds the enrollment settings of a course.
	Course struct {
		ID                 string    `json:"id"`
		Title              string    `json:"title"`
		MaxStudents        int       `json:"max_students,omitempty"`        // 0: unlimited
		EnrollmentDeadline time.Time `json:"enrollment_deadline,omitempty"` // zero: none
		EnrolledCount      int       `json:"enrolled_count"`                // active & completed memberships
		CreatedAt          time.Time `json:"created_at"`
	}

	NewCourse struct {
		ID                 string     `json:"id" validate:"required,identifier"`
		Title              string     `json:"title" validate:"required,max=255"`
		MaxStudents        int        `json:"max_students" validate:"gte=0"`
		EnrollmentDeadline *time.Time `json:"enrollment_deadline"`
	}

	// Enrollment is a student's membership in a course. There is at most one per (StudentID, CourseID).
	Enrollment struct {
		StudentID         string     `json:"student_id"`
		CourseID          string     `json:"course_id"`
		Status            string     `json:"status"`
		CompletionPct     int        `json:"completion_pct"`
		IsCompleted       bool       `json:"is_completed"`
		CertificateIssued bool       `json:"certificate_issued"`
		EnrolledAt        time.Time  `json:"enrolled_at"`
		CompletedAt       *time.Time `json:"completed_at,omitempty"`
		DroppedAt         *time.Time `json:"dropped_at,omitempty"`
	}

	// State is the read-only view of an Enrollment with its latest progress rollup.
	State struct {
		Enrollment  Enrollment               `json:"enrollment"`
		Progress    progress.CourseSummary   `json:"progress"`
		Certificate *certificate.Certificate `json:"certificate,omitempty"`
	}
)

func (e Enrollment) IsActive() bool  { return e.Status == StatusActive }
func (e Enrollment) IsDropped() bool { return e.Status == StatusDropped }
func (e Enrollment) NeedsCertificate() bool {
	return e.IsCompleted && !e.CertificateIssued && !e.IsDropped()
}

// Reset returns e restarted as a fresh active cycle.
func (e Enrollment) Reset(enrolledAt time.Time) Enrollment {
	return Enrollment{
		StudentID:  e.StudentID,
		CourseID:   e.CourseID,
		Status:     StatusActive,
		EnrolledAt: enrolledAt,
	}
}

func (c Course) HasDeadline() bool { return !c.EnrollmentDeadline.IsZero() }
func (c Course) IsLimited() bool   { return c.MaxStudents > 0 }

func (nc *NewCourse) clean() {
	nc.ID = core.CleanString(nc.ID)
	nc.Title = core.CleanString(nc.Title)
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.clean()
	return validate.Struct(nc)
}
