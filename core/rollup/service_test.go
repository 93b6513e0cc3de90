package rollup_test

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
	"github.com/trezcool/maendeleo/core/rollup"
	testutil "github.com/trezcool/maendeleo/tests"
)

// flakyIssuer fails while broken is set.
type flakyIssuer struct {
	rollup.Issuer

	mu     sync.Mutex
	broken bool
}

func (iss *flakyIssuer) IssueIfAbsent(ctx context.Context, studentID, courseID string, completionDate time.Time, score *float64) (certificate.Certificate, error) {
	iss.mu.Lock()
	broken := iss.broken
	iss.mu.Unlock()
	if broken {
		return certificate.Certificate{}, core.NewTransientError(errors.New("connection reset"))
	}
	return iss.Issuer.IssueIfAbsent(ctx, studentID, courseID, completionDate, score)
}

func setup(t *testing.T, listeners ...rollup.CompletionListener) *testutil.Services {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t), listeners...)
	testutil.CreateCourse(t, svcs, "c1", 0)
	testutil.CreateSection(t, svcs, "c1", "s1", "")
	testutil.CreateSection(t, svcs, "c1", "s2", "")
	testutil.CreateSection(t, svcs, "c1", "s3", "")
	return svcs
}

func completeSection(t *testing.T, svcs *testutil.Services, studentID, sectionID string) {
	t.Helper()
	if _, err := svcs.Progress.MarkComplete(context.Background(), studentID, sectionID); err != nil {
		t.Fatalf("MarkComplete(%s): %v", sectionID, err)
	}
}

func TestService_RecomputeCourseProgress(t *testing.T) {
	listener := new(testutil.Listener)
	svcs := setup(t, listener)
	ctx := context.Background()
	testutil.Enroll(t, svcs, "amani", "c1")

	tests := []struct {
		section          string
		wantPct          int
		wantStatus       string
		wantTransitioned bool
	}{
		{"s1", 33, enrollment.StatusActive, false},
		{"s2", 67, enrollment.StatusActive, false},
		{"s3", 100, enrollment.StatusCompleted, true},
		{"s3", 100, enrollment.StatusCompleted, false},
	}
	for _, tt := range tests {
		completeSection(t, svcs, "amani", tt.section)
		res, err := svcs.Rollup.RecomputeCourseProgress(ctx, "amani", "c1")
		require.NoError(t, err)
		assert.True(t, res.Enrolled)
		assert.Equal(t, tt.wantPct, res.CompletionPct, tt.section)
		assert.Equal(t, tt.wantStatus, res.Status, tt.section)
		assert.Equal(t, tt.wantTransitioned, res.Transitioned, tt.section)
		if tt.wantTransitioned {
			require.NotNil(t, res.Certificate)
			assert.Equal(t, certificate.IDFor("amani", "c1"), res.Certificate.ID)
		}

		e, err := svcs.Enrollments.Get(ctx, "amani", "c1")
		require.NoError(t, err)
		assert.Equal(t, tt.wantPct, e.CompletionPct, tt.section)
	}

	e, err := svcs.Enrollments.Get(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.True(t, e.IsCompleted)
	assert.True(t, e.CertificateIssued)

	events := listener.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "amani", events[0].StudentID)
	assert.Equal(t, certificate.IDFor("amani", "c1"), events[0].CertificateID)
	assert.Equal(t, *e.CompletedAt, events[0].CompletedAt)

	// new sections do not reopen a completed course
	testutil.CreateSection(t, svcs, "c1", "s4", "")
	res, err := svcs.Rollup.RecomputeCourseProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.Equal(t, 75, res.CompletionPct)
	assert.Equal(t, enrollment.StatusCompleted, res.Status)
	e, err = svcs.Enrollments.Get(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, e.CompletionPct)
}

func TestService_RecomputeCourseProgress_notEnrolled(t *testing.T) {
	svcs := setup(t)
	ctx := context.Background()
	completeSection(t, svcs, "amani", "s1")

	res, err := svcs.Rollup.RecomputeCourseProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.False(t, res.Enrolled)
	assert.Equal(t, 33, res.CompletionPct)

	// dropped memberships are left alone
	testutil.Enroll(t, svcs, "amani", "c1")
	require.NoError(t, svcs.Enrollments.Unenroll(ctx, "amani", "c1", core.Actor{ID: "amani"}))
	completeSection(t, svcs, "amani", "s2")
	completeSection(t, svcs, "amani", "s3")

	res, err = svcs.Rollup.RecomputeCourseProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.False(t, res.Enrolled)
	assert.Equal(t, enrollment.StatusDropped, res.Status)
	assert.Equal(t, 100, res.CompletionPct)
	assert.False(t, res.Transitioned)

	_, err = svcs.Certificates.Get(ctx, "amani", "c1")
	assert.Equal(t, certificate.ErrNotFound, err)

	// a new cycle starts over the kept progress
	testutil.Enroll(t, svcs, "amani", "c1")
	res, err = svcs.Rollup.RecomputeCourseProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
}

func TestService_RecomputeCourseProgress_emptyCourse(t *testing.T) {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t))
	testutil.CreateCourse(t, svcs, "empty", 0)
	testutil.Enroll(t, svcs, "amani", "empty")

	res, err := svcs.Rollup.RecomputeCourseProgress(context.Background(), "amani", "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalSections)
	assert.Equal(t, 0, res.CompletionPct)
	assert.False(t, res.Transitioned)
	assert.Equal(t, enrollment.StatusActive, res.Status)
}

func TestService_RecomputeCourseProgress_certificateRetry(t *testing.T) {
	listener := new(testutil.Listener)
	svcs := setup(t)
	issuer := &flakyIssuer{Issuer: svcs.Certificates, broken: true}
	svc := rollup.NewService(svcs.Stores.Sections, svcs.Stores.Progress, svcs.Stores.Enrollments, issuer, svcs.Logger, listener)
	ctx := context.Background()

	testutil.Enroll(t, svcs, "amani", "c1")
	for _, id := range []string{"s1", "s2", "s3"} {
		completeSection(t, svcs, "amani", id)
	}

	res, err := svc.RecomputeCourseProgress(ctx, "amani", "c1")
	assert.True(t, core.IsTransient(err))
	assert.True(t, res.Transitioned, "completion is kept when the certificate fails")
	assert.Nil(t, res.Certificate)
	require.Len(t, listener.Events(), 1)
	assert.Equal(t, "", listener.Events()[0].CertificateID)

	pending, err := svcs.Stores.Enrollments.QueryPendingCertificates(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	issuer.mu.Lock()
	issuer.broken = false
	issuer.mu.Unlock()

	res, err = svc.RecomputeCourseProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	require.NotNil(t, res.Certificate)
	assert.Len(t, listener.Events(), 1, "listeners are notified once")

	pending, err = svcs.Stores.Enrollments.QueryPendingCertificates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_RecomputeCourseProgress_concurrent(t *testing.T) {
	listener := &testutil.Listener{Err: errors.New("smtp down")}
	svcs := setup(t, listener)
	ctx := context.Background()
	testutil.Enroll(t, svcs, "amani", "c1")
	for _, id := range []string{"s1", "s2", "s3"} {
		completeSection(t, svcs, "amani", id)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		transitioned int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svcs.Rollup.RecomputeCourseProgress(ctx, "amani", "c1")
			assert.NoError(t, err, "listener failures are only logged")
			if res.Transitioned {
				mu.Lock()
				transitioned++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transitioned)
	assert.Len(t, listener.Events(), 1)
	assert.Len(t, svcs.Logger.Entries("error"), 1)
	certs, err := svcs.Certificates.List(ctx, "amani")
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestService_TreeProgress(t *testing.T) {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t))
	ctx := context.Background()
	testutil.CreateSection(t, svcs, "c1", "m1", "")
	testutil.CreateSection(t, svcs, "c1", "l1", "m1")
	testutil.CreateSection(t, svcs, "c1", "l2", "m1", testutil.Video(100))
	testutil.CreateSection(t, svcs, "c1", "m2", "")

	tree, err := svcs.Rollup.TreeProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, 0, tree[0].CompletionPct)

	completeSection(t, svcs, "amani", "l1")
	completeSection(t, svcs, "amani", "m2")
	_, err = svcs.Progress.ApplyEvent(ctx, "amani", "l2", progressEvent(40))
	require.NoError(t, err)

	tree, err = svcs.Rollup.TreeProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	require.Len(t, tree, 2)

	m1 := tree[0]
	assert.Equal(t, "m1", m1.SectionID)
	assert.Equal(t, 3, m1.TotalSections)
	assert.Equal(t, 1, m1.CompletedSections)
	assert.Equal(t, 33, m1.CompletionPct)
	assert.Equal(t, int64(40), m1.DurationWatchedSec)
	require.Len(t, m1.Children, 2)
	assert.Equal(t, 1, m1.Children[0].Depth)
	assert.True(t, m1.Children[0].IsCompleted)
	assert.Equal(t, 100, m1.Children[0].CompletionPct)
	assert.False(t, m1.Children[1].IsCompleted)

	m2 := tree[1]
	assert.Equal(t, 100, m2.CompletionPct)
	assert.Empty(t, m2.Children)

	summary, err := svcs.Rollup.CourseProgress(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalSections)
	assert.Equal(t, 2, summary.CompletedSections)
	assert.Equal(t, 50, summary.CompletionPct)

	tree, err = svcs.Rollup.TreeProgress(ctx, "amani", "lol")
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func progressEvent(watchedSec int64) progress.Event {
	return progress.Event{TimestampMs: 1000, DeltaTimeSpentSec: watchedSec, DeltaDurationWatchedSec: watchedSec}
}
