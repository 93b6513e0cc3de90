package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/section"
)

// CompletionThreshold is the percentage of a course's sections a student must complete
// for the course to be completed.
const CompletionThreshold = 100

var NowFunc = time.Now // mockable

type (
	SectionLister interface {
		QueryCourseSections(ctx context.Context, courseID string) ([]section.Section, error)
	}

	ProgressLister interface {
		QueryStudentProgress(ctx context.Context, studentID string, sectionIDs []string) ([]progress.SectionProgress, error)
	}

	Issuer interface {
		IssueIfAbsent(ctx context.Context, studentID, courseID string, completionDate time.Time, score *float64) (certificate.Certificate, error)
	}

	CompletionEvent struct {
		StudentID     string    `json:"student_id"`
		CourseID      string    `json:"course_id"`
		CompletionPct int       `json:"completion_pct"`
		CompletedAt   time.Time `json:"completed_at"`
		CertificateID string    `json:"certificate_id,omitempty"`
	}

	// CompletionListener is notified once per completion cycle, by the recompute that completed the course.
	CompletionListener interface {
		CourseCompleted(ctx context.Context, ev CompletionEvent) error
	}

	Result struct {
		progress.CourseSummary
		Enrolled     bool                     `json:"enrolled"`
		Status       string                   `json:"status,omitempty"`
		Transitioned bool                     `json:"transitioned"`
		Certificate  *certificate.Certificate `json:"certificate,omitempty"`
	}

	Service struct {
		sections    SectionLister
		ledger      ProgressLister
		enrollments enrollment.Repository
		issuer      Issuer
		listeners   []CompletionListener
		logger      core.Logger
	}
)

func NewService(
	sections SectionLister,
	ledger ProgressLister,
	enrollments enrollment.Repository,
	issuer Issuer,
	logger core.Logger,
	listeners ...CompletionListener,
) *Service {
	return &Service{
		sections:    sections,
		ledger:      ledger,
		enrollments: enrollments,
		issuer:      issuer,
		listeners:   listeners,
		logger:      logger,
	}
}

// Subscribe registers a listener for completion events.
func (svc *Service) Subscribe(l CompletionListener) {
	svc.listeners = append(svc.listeners, l)
}

func reachesThreshold(s progress.CourseSummary) bool {
	return s.TotalSections > 0 && 100*s.CompletedSections >= CompletionThreshold*s.TotalSections
}

// CourseProgress folds the student's ledger entries over every section of the course. Nothing is written.
func (svc *Service) CourseProgress(ctx context.Context, studentID, courseID string) (progress.CourseSummary, error) {
	sections, err := svc.sections.QueryCourseSections(ctx, courseID)
	if err != nil {
		return progress.CourseSummary{}, errors.Wrap(err, "querying course sections")
	}
	if len(sections) == 0 {
		return progress.Summarize(studentID, courseID, nil, nil), nil
	}

	ids := make([]string, 0, len(sections))
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	entries, err := svc.ledger.QueryStudentProgress(ctx, studentID, ids)
	if err != nil {
		return progress.CourseSummary{}, errors.Wrap(err, "querying student progress")
	}
	return progress.Summarize(studentID, courseID, ids, entries), nil
}

// RecomputeCourseProgress recomputes the student's course rollup from scratch and stores it on the
// enrollment. Reaching CompletionThreshold completes the enrollment exactly once, issues the
// certificate and notifies the listeners. Calling it again is always safe: a completed enrollment
// only gets its missing certificate, if any.
func (svc *Service) RecomputeCourseProgress(ctx context.Context, studentID, courseID string) (Result, error) {
	summary, err := svc.CourseProgress(ctx, studentID, courseID)
	if err != nil {
		return Result{}, err
	}
	res := Result{CourseSummary: summary}

	e, err := svc.enrollments.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		if errors.Cause(err) == enrollment.ErrNotFound {
			return res, nil
		}
		return Result{}, errors.Wrap(err, "getting enrollment")
	}
	res.Status = e.Status
	if e.IsDropped() {
		return res, nil
	}
	res.Enrolled = true

	switch {
	case e.IsCompleted: // only the certificate may be missing
	case reachesThreshold(summary):
		completedAt := NowFunc().UTC()
		ok, err := svc.enrollments.MarkCompleted(ctx, studentID, courseID, summary.CompletionPct, completedAt)
		if err != nil {
			return Result{}, errors.Wrap(err, "marking enrollment completed")
		}
		if ok {
			res.Transitioned = true
			e.Status = enrollment.StatusCompleted
			e.IsCompleted = true
			e.CompletionPct = summary.CompletionPct
			e.CompletedAt = &completedAt
		} else if e, err = svc.enrollments.GetEnrollment(ctx, studentID, courseID); err != nil {
			return Result{}, errors.Wrap(err, "reloading enrollment")
		}
		res.Status = e.Status
	default:
		if summary.CompletionPct != e.CompletionPct {
			if err := svc.enrollments.UpdateCompletionPct(ctx, studentID, courseID, summary.CompletionPct); err != nil {
				return Result{}, errors.Wrap(err, "updating enrollment completion")
			}
		}
		return res, nil
	}

	var certErr error
	if e.NeedsCertificate() {
		var cert certificate.Certificate
		if cert, certErr = svc.issueCertificate(ctx, e); certErr == nil {
			res.Certificate = &cert
		}
	}
	if res.Transitioned {
		ev := CompletionEvent{
			StudentID:     studentID,
			CourseID:      courseID,
			CompletionPct: summary.CompletionPct,
			CompletedAt:   *e.CompletedAt,
		}
		if res.Certificate != nil {
			ev.CertificateID = res.Certificate.ID
		}
		svc.notify(ctx, ev)
	}
	return res, certErr
}

func (svc *Service) issueCertificate(ctx context.Context, e enrollment.Enrollment) (certificate.Certificate, error) {
	completedAt := NowFunc().UTC()
	if e.CompletedAt != nil {
		completedAt = *e.CompletedAt
	}

	cert, err := svc.issuer.IssueIfAbsent(ctx, e.StudentID, e.CourseID, completedAt, nil)
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "issuing certificate")
	}
	if err = svc.enrollments.MarkCertificateIssued(ctx, e.StudentID, e.CourseID); err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "marking certificate issued")
	}
	return cert, nil
}

func (svc *Service) notify(ctx context.Context, ev CompletionEvent) {
	for _, l := range svc.listeners {
		if err := l.CourseCompleted(ctx, ev); err != nil {
			msg := fmt.Sprintf("notifying course completion (student %s, course %s): %v", ev.StudentID, ev.CourseID, err)
			svc.logger.Error(msg, errors.Wrap(err, msg))
		}
	}
}
