package progress

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/section"
)

var (
	// errors
	ErrNotFound        = errors.New("section progress not found")
	ErrUnknownActivity = errors.New("activity does not belong to this section")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// IncrementProgress applies inc as a single atomic write, creating the entry on first use.
		IncrementProgress(ctx context.Context, inc Increment) (SectionProgress, error)
		GetProgress(ctx context.Context, studentID, sectionID string) (SectionProgress, error)
		QueryStudentProgress(ctx context.Context, studentID string, sectionIDs []string) ([]SectionProgress, error)
		// RecordActivityCompletion idempotently records activityID as done and
		// returns the number of distinct activities done in the section.
		RecordActivityCompletion(ctx context.Context, studentID, sectionID, activityID string) (int, error)
	}

	SectionGetter interface {
		GetSection(ctx context.Context, id string) (section.Section, error)
	}

	Options struct {
		LogLimit       int
		MaxRetries     int
		RetryBaseDelay time.Duration
	}

	Service struct {
		repo     Repository
		sections SectionGetter
		validate *validator.Validate
		opts     Options
	}
)

func OptionsFromConfig(conf *core.Config) Options {
	return Options{
		LogLimit:       conf.Progress.LogLimit,
		MaxRetries:     conf.Progress.MaxRetries,
		RetryBaseDelay: conf.Progress.RetryBaseDelay,
	}
}

func NewService(repo Repository, sections SectionGetter, validate *validator.Validate, opts Options) *Service {
	return &Service{
		repo:     repo,
		sections: sections,
		validate: validate,
		opts:     opts,
	}
}

// ApplyEvent records a single progress event.
func (svc *Service) ApplyEvent(ctx context.Context, studentID, sectionID string, ev Event) (SectionProgress, error) {
	return svc.ApplyEvents(ctx, studentID, sectionID, []Event{ev})
}

// ApplyEvents sums a batch of events and records it as one atomic increment.
// Events may arrive duplicated or out of order: deltas are commutative.
func (svc *Service) ApplyEvents(ctx context.Context, studentID, sectionID string, events []Event) (SectionProgress, error) {
	batch := Batch{StudentID: studentID, SectionID: sectionID, Events: events}
	if err := svc.validate.Struct(batch); err != nil {
		return SectionProgress{}, err
	}

	sec, err := svc.sections.GetSection(ctx, sectionID)
	if err != nil {
		return SectionProgress{}, errors.Wrap(err, "getting section")
	}

	inc := svc.newIncrement(studentID, sec)
	inc.Events = events
	for _, ev := range events {
		inc.DeltaTimeSpentSec += ev.DeltaTimeSpentSec
		inc.DeltaDurationWatchedSec += ev.DeltaDurationWatchedSec
		if ev.TimestampMs > inc.LastActivityMs {
			inc.LastActivityMs = ev.TimestampMs
		}
	}
	return svc.increment(ctx, inc)
}

// MarkComplete records an explicit completion signal for the section.
func (svc *Service) MarkComplete(ctx context.Context, studentID, sectionID string) (SectionProgress, error) {
	sec, err := svc.getSection(ctx, studentID, sectionID)
	if err != nil {
		return SectionProgress{}, err
	}

	inc := svc.newIncrement(studentID, sec)
	inc.MarkComplete = true
	inc.CompletionPct = 100
	inc.LastActivityMs = NowFunc().UnixNano() / int64(time.Millisecond)
	return svc.increment(ctx, inc)
}

// CompleteActivity marks one activity of the section as done.
// The section completes once every one of its activities is done.
func (svc *Service) CompleteActivity(ctx context.Context, studentID, sectionID, activityID string) (SectionProgress, error) {
	sec, err := svc.getSection(ctx, studentID, sectionID)
	if err != nil {
		return SectionProgress{}, err
	}
	if !sec.HasActivity(activityID) {
		return SectionProgress{}, ErrUnknownActivity
	}

	var done int
	err = retry(ctx, svc.opts.MaxRetries, svc.opts.RetryBaseDelay, func() error {
		var err error
		done, err = svc.repo.RecordActivityCompletion(ctx, studentID, sectionID, activityID)
		return err
	})
	if err != nil {
		return SectionProgress{}, errors.Wrap(err, "recording activity completion")
	}

	total := len(sec.ActivityIDs)
	inc := svc.newIncrement(studentID, sec)
	inc.CompletedActivities = done
	inc.CompletionPct = Percent(done, total)
	inc.MarkComplete = done >= total
	inc.LastActivityMs = NowFunc().UnixNano() / int64(time.Millisecond)
	return svc.increment(ctx, inc)
}

func (svc *Service) Get(ctx context.Context, studentID, sectionID string) (SectionProgress, error) {
	return svc.repo.GetProgress(ctx, studentID, sectionID)
}

func (svc *Service) QueryStudentProgress(ctx context.Context, studentID string, sectionIDs []string) ([]SectionProgress, error) {
	return svc.repo.QueryStudentProgress(ctx, studentID, sectionIDs)
}

func (svc *Service) getSection(ctx context.Context, studentID, sectionID string) (section.Section, error) {
	if core.CleanString(studentID) == "" {
		return section.Section{}, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "this field is required"})
	}
	sec, err := svc.sections.GetSection(ctx, sectionID)
	if err != nil {
		return section.Section{}, errors.Wrap(err, "getting section")
	}
	return sec, nil
}

func (svc *Service) newIncrement(studentID string, sec section.Section) Increment {
	inc := Increment{
		StudentID: studentID,
		SectionID: sec.ID,
		CourseID:  sec.CourseID,
		LogLimit:  svc.opts.LogLimit,
	}
	if sec.WatchCompletable() {
		inc.WatchThresholdSec = sec.WatchThresholdSec
	}
	return inc
}

// increment writes inc, retrying transient store failures with bounded backoff.
// Retrying is safe because increments commute.
func (svc *Service) increment(ctx context.Context, inc Increment) (SectionProgress, error) {
	var sp SectionProgress
	err := retry(ctx, svc.opts.MaxRetries, svc.opts.RetryBaseDelay, func() error {
		var err error
		sp, err = svc.repo.IncrementProgress(ctx, inc)
		return err
	})
	if err != nil {
		return SectionProgress{}, errors.Wrap(err, "incrementing section progress")
	}
	return sp, nil
}
