package tracker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/section"
	"github.com/trezcool/maendeleo/core/tracker"
	testutil "github.com/trezcool/maendeleo/tests"
)

// failingEnrollments fails the completion writes while broken is set.
type failingEnrollments struct {
	enrollment.Repository

	mu     sync.Mutex
	broken bool
}

func (repo *failingEnrollments) isBroken() bool {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return repo.broken
}

func (repo *failingEnrollments) fix() {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.broken = false
}

func (repo *failingEnrollments) MarkCompleted(ctx context.Context, studentID, courseID string, pct int, completedAt time.Time) (bool, error) {
	if repo.isBroken() {
		return false, errors.New("disk full")
	}
	return repo.Repository.MarkCompleted(ctx, studentID, courseID, pct, completedAt)
}

func (repo *failingEnrollments) MarkCertificateIssued(ctx context.Context, studentID, courseID string) error {
	if repo.isBroken() {
		return errors.New("disk full")
	}
	return repo.Repository.MarkCertificateIssued(ctx, studentID, courseID)
}

// failingLedger always fails with err.
type failingLedger struct {
	tracker.Ledger
	err error
}

func (l failingLedger) MarkComplete(context.Context, string, string) (progress.SectionProgress, error) {
	return progress.SectionProgress{}, l.err
}

func TestService_pipeline(t *testing.T) {
	listener := new(testutil.Listener)
	svcs := testutil.NewServices(t, testutil.NewSQLiteStores(t), listener)
	ctx := context.Background()

	testutil.CreateCourse(t, svcs, "c1", 0)
	testutil.CreateSection(t, svcs, "c1", "m1", "")
	testutil.CreateSection(t, svcs, "c1", "v1", "m1", testutil.Video(60))
	testutil.CreateSection(t, svcs, "c1", "q1", "m1", testutil.Activities("a1", "a2"))
	testutil.Enroll(t, svcs, "amani", "c1")

	upd, err := svcs.Tracker.MarkSectionComplete(ctx, "amani", "m1")
	require.NoError(t, err)
	assert.True(t, upd.Section.IsCompleted)
	assert.Equal(t, 33, upd.Course.CompletionPct)
	assert.True(t, upd.Course.Enrolled)

	upd, err = svcs.Tracker.ApplyEvents(ctx, "amani", "v1", []progress.Event{
		{TimestampMs: 1000, DeltaTimeSpentSec: 30, DeltaDurationWatchedSec: 30},
		{TimestampMs: 2000, DeltaTimeSpentSec: 30, DeltaDurationWatchedSec: 30},
	})
	require.NoError(t, err)
	assert.True(t, upd.Section.IsCompleted)
	assert.Equal(t, 67, upd.Course.CompletionPct)

	upd, err = svcs.Tracker.CompleteActivity(ctx, "amani", "q1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 50, upd.Section.CompletionPct)
	assert.False(t, upd.Course.Transitioned)

	upd, err = svcs.Tracker.CompleteActivity(ctx, "amani", "q1", "a2")
	require.NoError(t, err)
	assert.True(t, upd.Course.Transitioned)
	assert.Equal(t, enrollment.StatusCompleted, upd.Course.Status)
	require.NotNil(t, upd.Course.Certificate)
	assert.Equal(t, certificate.IDFor("amani", "c1"), upd.Course.Certificate.ID)
	assert.Len(t, listener.Events(), 1)

	summary, err := svcs.Tracker.CourseProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, summary.CompletionPct)
	assert.Equal(t, int64(60), summary.DurationWatchedSec)

	tree, err := svcs.Tracker.TreeProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, 3, tree[0].CompletedSections)
}

func TestService_track_errors(t *testing.T) {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t))
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		wantLevel string
	}{
		{name: "unknown section", err: section.ErrNotFound},
		{name: "unknown activity", err: progress.ErrUnknownActivity},
		{name: "invalid", err: core.NewValidationError(nil)},
		{name: "transient", err: core.NewTransientError(errors.New("database is locked")), wantLevel: "warn"},
		{name: "failure", err: errors.New("disk full"), wantLevel: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := new(testutil.Logger)
			svc := tracker.NewService(failingLedger{err: tt.err}, svcs.Rollup, svcs.Stores.Enrollments, logger, svcs.Conf)

			_, err := svc.MarkSectionComplete(ctx, "amani", "s1")
			assert.Equal(t, tt.err, errors.Cause(err))
			for _, level := range []string{"warn", "error"} {
				want := 0
				if level == tt.wantLevel {
					want = 1
				}
				assert.Len(t, logger.Entries(level), want, level)
			}
		})
	}
}

func TestService_Reconcile(t *testing.T) {
	stores := testutil.NewInmemStores(t)
	broken := &failingEnrollments{Repository: stores.Enrollments, broken: true}
	stores.Enrollments = broken
	listener := new(testutil.Listener)
	svcs := testutil.NewServices(t, stores, listener)
	ctx := context.Background()

	testutil.CreateCourse(t, svcs, "c1", 0)
	testutil.CreateCourse(t, svcs, "c2", 0)
	testutil.CreateSection(t, svcs, "c1", "s1", "")
	testutil.CreateSection(t, svcs, "c2", "x1", "")
	testutil.CreateSection(t, svcs, "c2", "x2", "")
	testutil.Enroll(t, svcs, "amani", "c1")
	testutil.Enroll(t, svcs, "baraka", "c2")
	testutil.Enroll(t, svcs, "chausiku", "c2")

	// the ledger write lands but the rollup cannot complete the course
	upd, err := svcs.Tracker.MarkSectionComplete(ctx, "amani", "s1")
	assert.Error(t, err)
	assert.True(t, upd.Section.IsCompleted)
	assert.Len(t, svcs.Logger.Entries("error"), 1)

	testutil.CompleteSections(t, svcs, "baraka", "x1")
	_, err = svcs.Progress.MarkComplete(ctx, "chausiku", "x1")
	require.NoError(t, err)
	_, err = svcs.Progress.MarkComplete(ctx, "chausiku", "x2")
	require.NoError(t, err)

	report, err := svcs.Tracker.Reconcile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, tracker.ReconcileReport{Checked: 3, Failed: 2}, report)
	assert.Len(t, svcs.Logger.Entries("error"), 3)

	broken.fix()
	report, err = svcs.Tracker.Reconcile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, tracker.ReconcileReport{Checked: 3, Completed: 2, Certificates: 2}, report)
	assert.Len(t, listener.Events(), 2)

	e, err := svcs.Enrollments.Get(ctx, "baraka", "c2")
	require.NoError(t, err)
	assert.Equal(t, 50, e.CompletionPct)

	// nothing left to do
	report, err = svcs.Tracker.Reconcile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, tracker.ReconcileReport{Checked: 1}, report)

	res, err := svcs.Tracker.Recompute(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, enrollment.StatusCompleted, res.Status)
}

func TestService_Reconcile_cancelled(t *testing.T) {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t))
	testutil.CreateCourse(t, svcs, "c1", 0)
	testutil.CreateSection(t, svcs, "c1", "s1", "")
	testutil.Enroll(t, svcs, "amani", "c1")
	_, err := svcs.Progress.ApplyEvent(context.Background(), "amani", "s1", progress.Event{TimestampMs: time.Now().UnixNano() / int64(time.Millisecond)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := svcs.Tracker.Reconcile(ctx, 100)
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 0, report.Checked)
}
