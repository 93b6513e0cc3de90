// Package tracker runs the progress pipeline: a ledger write for the touched section,
// then a rollup of its course which may complete the enrollment and issue the certificate.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/rollup"
	"github.com/trezcool/maendeleo/core/section"
)

var NowFunc = time.Now // mockable

type (
	Ledger interface {
		ApplyEvents(ctx context.Context, studentID, sectionID string, events []progress.Event) (progress.SectionProgress, error)
		MarkComplete(ctx context.Context, studentID, sectionID string) (progress.SectionProgress, error)
		CompleteActivity(ctx context.Context, studentID, sectionID, activityID string) (progress.SectionProgress, error)
	}

	Rollup interface {
		RecomputeCourseProgress(ctx context.Context, studentID, courseID string) (rollup.Result, error)
		CourseProgress(ctx context.Context, studentID, courseID string) (progress.CourseSummary, error)
		TreeProgress(ctx context.Context, studentID, courseID string) ([]*rollup.NodeProgress, error)
	}

	EnrollmentLister interface {
		QueryPendingCertificates(ctx context.Context, limit int) ([]enrollment.Enrollment, error)
		QueryRecentlyActiveEnrollments(ctx context.Context, since time.Time, limit int) ([]enrollment.Enrollment, error)
	}

	// Update is the outcome of a progress write: the section entry and its course rollup.
	Update struct {
		Section progress.SectionProgress `json:"section"`
		Course  rollup.Result            `json:"course"`
	}

	ReconcileReport struct {
		Checked      int `json:"checked"`
		Completed    int `json:"completed"`
		Certificates int `json:"certificates"`
		Failed       int `json:"failed"`
	}

	Service struct {
		ledger      Ledger
		rollup      Rollup
		enrollments EnrollmentLister
		logger      core.Logger
		window      time.Duration
	}
)

func NewService(ledger Ledger, rollup Rollup, enrollments EnrollmentLister, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		ledger:      ledger,
		rollup:      rollup,
		enrollments: enrollments,
		logger:      logger,
		window:      conf.Reconcile.Window,
	}
}

func (svc *Service) ApplyEvents(ctx context.Context, studentID, sectionID string, events []progress.Event) (Update, error) {
	return svc.track(ctx, "applying progress events", func() (progress.SectionProgress, error) {
		return svc.ledger.ApplyEvents(ctx, studentID, sectionID, events)
	})
}

func (svc *Service) MarkSectionComplete(ctx context.Context, studentID, sectionID string) (Update, error) {
	return svc.track(ctx, "marking section complete", func() (progress.SectionProgress, error) {
		return svc.ledger.MarkComplete(ctx, studentID, sectionID)
	})
}

func (svc *Service) CompleteActivity(ctx context.Context, studentID, sectionID, activityID string) (Update, error) {
	return svc.track(ctx, "completing activity", func() (progress.SectionProgress, error) {
		return svc.ledger.CompleteActivity(ctx, studentID, sectionID, activityID)
	})
}

func (svc *Service) CourseProgress(ctx context.Context, studentID, courseID string) (progress.CourseSummary, error) {
	return svc.rollup.CourseProgress(ctx, studentID, courseID)
}

func (svc *Service) TreeProgress(ctx context.Context, studentID, courseID string) ([]*rollup.NodeProgress, error) {
	return svc.rollup.TreeProgress(ctx, studentID, courseID)
}

// Recompute reruns the rollup of one enrollment.
func (svc *Service) Recompute(ctx context.Context, studentID, courseID string) (rollup.Result, error) {
	return svc.rollup.RecomputeCourseProgress(ctx, studentID, courseID)
}

func (svc *Service) track(ctx context.Context, op string, write func() (progress.SectionProgress, error)) (Update, error) {
	sp, err := write()
	if err != nil {
		if !isClientError(err) {
			msg := fmt.Sprintf("%s: %v", op, err)
			if core.IsTransient(err) {
				svc.logger.Warn(msg, err)
			} else {
				svc.logger.Error(msg, err)
			}
		}
		return Update{}, errors.Wrap(err, op)
	}

	upd := Update{Section: sp}
	upd.Course, err = svc.rollup.RecomputeCourseProgress(ctx, sp.StudentID, sp.CourseID)
	if err != nil {
		msg := fmt.Sprintf("recomputing course progress (student %s, course %s)", sp.StudentID, sp.CourseID)
		svc.logger.Error(msg+": "+err.Error(), errors.Wrap(err, msg))
		return upd, errors.Wrap(err, msg)
	}
	return upd, nil
}

// Reconcile reruns the rollup of enrollments whose pipeline may have stopped half way:
// completed ones without a recorded certificate, and active ones with recent progress.
func (svc *Service) Reconcile(ctx context.Context, batchSize int) (ReconcileReport, error) {
	var report ReconcileReport

	pending, err := svc.enrollments.QueryPendingCertificates(ctx, batchSize)
	if err != nil {
		return report, errors.Wrap(err, "querying pending certificates")
	}
	active, err := svc.enrollments.QueryRecentlyActiveEnrollments(ctx, NowFunc().Add(-svc.window), batchSize)
	if err != nil {
		return report, errors.Wrap(err, "querying recently active enrollments")
	}

	for _, e := range append(pending, active...) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		res, err := svc.rollup.RecomputeCourseProgress(ctx, e.StudentID, e.CourseID)
		if res.Transitioned {
			report.Completed++
		}
		if res.Certificate != nil && (res.Transitioned || e.NeedsCertificate()) {
			report.Certificates++
		}
		if err != nil {
			report.Failed++
			msg := fmt.Sprintf("reconciling enrollment (student %s, course %s): %v", e.StudentID, e.CourseID, err)
			svc.logger.Error(msg, err)
		}
	}
	return report, nil
}

func isClientError(err error) bool {
	switch errors.Cause(err).(type) {
	case validator.ValidationErrors, *core.ValidationError:
		return true
	}
	switch errors.Cause(err) {
	case section.ErrNotFound, progress.ErrUnknownActivity:
		return true
	}
	return false
}
