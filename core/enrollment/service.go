package enrollment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/progress"
)

var (
	// errors
	ErrNotFound         = errors.New("enrollment not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrAlreadyEnrolled  = errors.New("student is already enrolled in this course")
	ErrCapacityExceeded = errors.New("course has reached its maximum number of students")
	ErrDeadlineExpired  = errors.New("course enrollment deadline has passed")
	ErrAlreadyCompleted = errors.New("enrollment already completed")
	ErrNotAllowed       = errors.New("not allowed to manage this enrollment")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// SaveCourse creates or updates a Course's settings. EnrolledCount is left untouched.
		SaveCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)

		// CreateEnrollment reserves a seat in the course and activates e as one atomic step:
		// a new membership, or a dropped one restarted as a fresh cycle.
		// Fails with ErrAlreadyEnrolled or ErrCapacityExceeded.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
		// DropEnrollment soft-deletes an active membership and releases its seat.
		DropEnrollment(ctx context.Context, studentID, courseID string, droppedAt time.Time) error

		// UpdateCompletionPct stores pct on an active, not yet completed membership.
		UpdateCompletionPct(ctx context.Context, studentID, courseID string, pct int) error
		// MarkCompleted flips an active, not yet completed membership to completed.
		// It reports whether this call made the transition.
		MarkCompleted(ctx context.Context, studentID, courseID string, pct int, completedAt time.Time) (bool, error)
		MarkCertificateIssued(ctx context.Context, studentID, courseID string) error

		// QueryPendingCertificates lists completed memberships whose certificate was never recorded.
		QueryPendingCertificates(ctx context.Context, limit int) ([]Enrollment, error)
		// QueryRecentlyActiveEnrollments lists active memberships with section progress since the given time.
		QueryRecentlyActiveEnrollments(ctx context.Context, since time.Time, limit int) ([]Enrollment, error)
	}

	ProgressReader interface {
		CourseProgress(ctx context.Context, studentID, courseID string) (progress.CourseSummary, error)
	}

	CertificateReader interface {
		Get(ctx context.Context, studentID, courseID string) (certificate.Certificate, error)
	}

	Service struct {
		repo     Repository
		progress ProgressReader
		certs    CertificateReader
		validate *validator.Validate
	}
)

func NewService(repo Repository, progress ProgressReader, certs CertificateReader, validate *validator.Validate) *Service {
	return &Service{
		repo:     repo,
		progress: progress,
		certs:    certs,
		validate: validate,
	}
}

func (svc *Service) SaveCourse(ctx context.Context, nc NewCourse) (Course, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Course{}, err
	}
	c := Course{
		ID:          nc.ID,
		Title:       nc.Title,
		MaxStudents: nc.MaxStudents,
		CreatedAt:   NowFunc().UTC(),
	}
	if nc.EnrollmentDeadline != nil {
		c.EnrollmentDeadline = nc.EnrollmentDeadline.UTC()
	}
	return svc.repo.SaveCourse(ctx, c)
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

// Enroll makes studentID an active member of courseID.
func (svc *Service) Enroll(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	studentID = core.CleanString(studentID)
	if studentID == "" {
		return Enrollment{}, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "this field is required"})
	}

	course, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	now := NowFunc().UTC()
	if course.HasDeadline() && now.After(course.EnrollmentDeadline) {
		return Enrollment{}, ErrDeadlineExpired
	}

	return svc.repo.CreateEnrollment(ctx, Enrollment{
		StudentID:  studentID,
		CourseID:   course.ID,
		Status:     StatusActive,
		EnrolledAt: now,
	})
}

// Unenroll drops studentID from courseID. The actor must be the student or an admin.
// Progress is kept: a later re-enrollment starts a new completion cycle over it.
func (svc *Service) Unenroll(ctx context.Context, studentID, courseID string, actor core.Actor) error {
	if !actor.CanActFor(studentID) {
		return ErrNotAllowed
	}

	e, err := svc.repo.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	switch e.Status {
	case StatusDropped:
		return ErrNotFound
	case StatusCompleted:
		return ErrAlreadyCompleted
	}
	return svc.repo.DropEnrollment(ctx, studentID, courseID, NowFunc().UTC())
}

func (svc *Service) Get(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, studentID, courseID)
}

// GetEnrollmentState combines the Enrollment with the latest progress rollup and its certificate, if any.
func (svc *Service) GetEnrollmentState(ctx context.Context, studentID, courseID string) (State, error) {
	e, err := svc.repo.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		return State{}, err
	}

	summary, err := svc.progress.CourseProgress(ctx, studentID, courseID)
	if err != nil {
		return State{}, errors.Wrap(err, "computing course progress")
	}
	state := State{Enrollment: e, Progress: summary}

	if e.IsCompleted || e.CertificateIssued {
		cert, err := svc.certs.Get(ctx, studentID, courseID)
		switch {
		case err == nil:
			state.Certificate = &cert
		case errors.Cause(err) != certificate.ErrNotFound:
			return State{}, errors.Wrap(err, "getting certificate")
		}
	}
	return state, nil
}
