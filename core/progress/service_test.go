package progress_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/section"
	testutil "github.com/trezcool/maendeleo/tests"
)

// flakyRepo fails the first increments with a transient error.
type flakyRepo struct {
	progress.Repository

	mu       sync.Mutex
	failures int
	calls    int
}

func (repo *flakyRepo) IncrementProgress(ctx context.Context, inc progress.Increment) (progress.SectionProgress, error) {
	repo.mu.Lock()
	repo.calls++
	fail := repo.calls <= repo.failures
	repo.mu.Unlock()

	if fail {
		return progress.SectionProgress{}, core.NewTransientError(errors.New("database is locked"))
	}
	return repo.Repository.IncrementProgress(ctx, inc)
}

func setup(t *testing.T) *testutil.Services {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t))
	testutil.CreateSection(t, svcs, "c1", "v1", "", testutil.Video(60))
	testutil.CreateSection(t, svcs, "c1", "q1", "", testutil.Activities("a1", "a2", "a3"))
	return svcs
}

func TestService_ApplyEvents(t *testing.T) {
	svcs := setup(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		studentID     string
		sectionID     string
		events        []progress.Event
		wantTime      int64
		wantWatched   int64
		wantCompleted bool
		wantErr       error
		wantInvalid   bool
	}{
		{name: "empty batch", studentID: "amani", sectionID: "v1", wantInvalid: true},
		{name: "missing student", sectionID: "v1", events: []progress.Event{{TimestampMs: 1}}, wantInvalid: true},
		{name: "negative delta", studentID: "amani", sectionID: "v1", events: []progress.Event{{TimestampMs: 1, DeltaTimeSpentSec: -5}}, wantInvalid: true},
		{name: "delta above a day", studentID: "amani", sectionID: "v1", events: []progress.Event{{TimestampMs: 1, DeltaTimeSpentSec: progress.MaxDeltaSec + 1}}, wantInvalid: true},
		{
			name:      "overflowing deltas",
			studentID: "amani",
			sectionID: "v1",
			events: []progress.Event{
				{TimestampMs: 1, DeltaTimeSpentSec: math.MaxInt64},
				{TimestampMs: 1, DeltaDurationWatchedSec: math.MaxInt64},
			},
			wantInvalid: true,
		},
		{name: "unknown section", studentID: "amani", sectionID: "lol", events: []progress.Event{{TimestampMs: 1}}, wantErr: section.ErrNotFound},
		{
			name:      "summed deltas",
			studentID: "amani",
			sectionID: "v1",
			events: []progress.Event{
				{TimestampMs: 2000, DeltaTimeSpentSec: 10, DeltaDurationWatchedSec: 10},
				{TimestampMs: 1000, DeltaTimeSpentSec: 20, DeltaDurationWatchedSec: 20},
			},
			wantTime:    30,
			wantWatched: 30,
		},
		{
			name:          "duplicates add up to the threshold",
			studentID:     "amani",
			sectionID:     "v1",
			events:        []progress.Event{{TimestampMs: 3000, DeltaDurationWatchedSec: 15}, {TimestampMs: 3000, DeltaDurationWatchedSec: 15}},
			wantTime:      30,
			wantWatched:   60,
			wantCompleted: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, err := svcs.Progress.ApplyEvents(ctx, tt.studentID, tt.sectionID, tt.events)
			if tt.wantInvalid {
				assert.IsType(t, validator.ValidationErrors{}, err)
				return
			}
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "c1", sp.CourseID)
			assert.Equal(t, tt.wantTime, sp.TimeSpentSec)
			assert.Equal(t, tt.wantWatched, sp.DurationWatchedSec)
			assert.Equal(t, tt.wantCompleted, sp.IsCompleted)
		})
	}

	sp, err := svcs.Progress.Get(ctx, "amani", "v1")
	require.NoError(t, err)
	assert.Equal(t, progress.MillisToTime(3000), sp.LastActivityAt)
	assert.Len(t, sp.Log, 4)
}

func TestService_ApplyEvents_concurrent(t *testing.T) {
	svcs := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svcs.Progress.ApplyEvent(ctx, "amani", "v1", progress.Event{TimestampMs: 1, DeltaTimeSpentSec: 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sp, err := svcs.Progress.Get(ctx, "amani", "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), sp.TimeSpentSec)
}

func TestService_ApplyEvent_anyOrder(t *testing.T) {
	events := []progress.Event{
		{TimestampMs: 1000, DeltaTimeSpentSec: 10, DeltaDurationWatchedSec: 20},
		{TimestampMs: 3000, DeltaTimeSpentSec: 5, DeltaDurationWatchedSec: 30},
		{TimestampMs: 2000, DeltaTimeSpentSec: 7, DeltaDurationWatchedSec: 15},
	}
	orders := map[string][]int{
		"amani":  {0, 1, 2},
		"baraka": {2, 0, 1},
		"chiku":  {1, 2, 0},
	}

	for name, newStores := range map[string]func(t *testing.T) testutil.Stores{
		"inmem":  testutil.NewInmemStores,
		"sqlite": testutil.NewSQLiteStores,
	} {
		t.Run(name, func(t *testing.T) {
			svcs := testutil.NewServices(t, newStores(t))
			testutil.CreateSection(t, svcs, "c1", "v1", "", testutil.Video(60))
			ctx := context.Background()

			for studentID, order := range orders {
				for _, i := range order {
					_, err := svcs.Progress.ApplyEvent(ctx, studentID, "v1", events[i])
					require.NoError(t, err)
				}
			}

			for studentID := range orders {
				sp, err := svcs.Progress.Get(ctx, studentID, "v1")
				require.NoError(t, err)
				assert.Equal(t, int64(22), sp.TimeSpentSec, studentID)
				assert.Equal(t, int64(65), sp.DurationWatchedSec, studentID)
				assert.True(t, sp.IsCompleted, studentID)
				assert.Equal(t, 100, sp.CompletionPct, studentID)
				assert.True(t, progress.MillisToTime(3000).Equal(sp.LastActivityAt), studentID)
			}
		})
	}
}

func TestService_retries(t *testing.T) {
	stores := testutil.NewInmemStores(t)
	flaky := &flakyRepo{Repository: stores.Progress, failures: 2}
	stores.Progress = flaky
	svcs := testutil.NewServices(t, stores)
	testutil.CreateSection(t, svcs, "c1", "s1", "")

	sp, err := svcs.Progress.MarkComplete(context.Background(), "amani", "s1")
	require.NoError(t, err)
	assert.True(t, sp.IsCompleted)
	assert.Equal(t, 3, flaky.calls)

	flaky.calls, flaky.failures = 0, 100
	_, err = svcs.Progress.MarkComplete(context.Background(), "amani", "s1")
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, svcs.Conf.Progress.MaxRetries+1, flaky.calls)
}

func TestService_CompleteActivity(t *testing.T) {
	svcs := setup(t)
	ctx := context.Background()

	_, err := svcs.Progress.CompleteActivity(ctx, "amani", "q1", "lol")
	assert.Equal(t, progress.ErrUnknownActivity, err)
	_, err = svcs.Progress.CompleteActivity(ctx, "amani", "v1", "a1")
	assert.Equal(t, progress.ErrUnknownActivity, err, "sections without activities")
	_, err = svcs.Progress.CompleteActivity(ctx, "", "q1", "a1")
	assert.IsType(t, &core.ValidationError{}, err)

	tests := []struct {
		activity      string
		wantPct       int
		wantDone      int
		wantCompleted bool
	}{
		{"a1", 33, 1, false},
		{"a1", 33, 1, false},
		{"a3", 67, 2, false},
		{"a2", 100, 3, true},
	}
	for _, tt := range tests {
		sp, err := svcs.Progress.CompleteActivity(ctx, "amani", "q1", tt.activity)
		require.NoError(t, err)
		assert.Equal(t, tt.wantPct, sp.CompletionPct, tt.activity)
		assert.Equal(t, tt.wantDone, sp.CompletedActivities, tt.activity)
		assert.Equal(t, tt.wantCompleted, sp.IsCompleted, tt.activity)
	}
}

func TestService_MarkComplete(t *testing.T) {
	svcs := setup(t)
	ctx := context.Background()

	_, err := svcs.Progress.Get(ctx, "amani", "v1")
	assert.Equal(t, progress.ErrNotFound, err)

	for i := 0; i < 2; i++ {
		sp, err := svcs.Progress.MarkComplete(ctx, "amani", "v1")
		require.NoError(t, err)
		assert.True(t, sp.IsCompleted)
		assert.Equal(t, 100, sp.CompletionPct)
		assert.False(t, sp.LastActivityAt.IsZero())
	}

	_, err = svcs.Progress.MarkComplete(ctx, "amani", "lol")
	assert.Equal(t, section.ErrNotFound, errors.Cause(err))

	entries, err := svcs.Progress.QueryStudentProgress(ctx, "amani", []string{"v1", "q1"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
