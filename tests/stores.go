package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/section"
	"github.com/trezcool/maendeleo/core/student"
)

// RunStoreTests checks the behaviour every Stores implementation must share.
func RunStoreTests(t *testing.T, newStores func(t *testing.T) Stores) {
	t.Run("sections", func(t *testing.T) { testSectionStore(t, newStores(t).Sections) })
	t.Run("progress", func(t *testing.T) { testProgressStore(t, newStores(t).Progress) })
	t.Run("enrollments", func(t *testing.T) { testEnrollmentStore(t, newStores(t)) })
	t.Run("enrollment capacity", func(t *testing.T) { testEnrollmentCapacity(t, newStores(t).Enrollments) })
	t.Run("certificates", func(t *testing.T) { testCertificateStore(t, newStores(t).Certificates) })
	t.Run("students", func(t *testing.T) { testStudentStore(t, newStores(t).Students) })
}

func sectionIDs(sections []section.Section) []string {
	ids := make([]string, 0, len(sections))
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	return ids
}

func testSectionStore(t *testing.T, repo section.Repository) {
	ctx := context.Background()
	insert := func(s section.Section) (section.Section, error) {
		if s.Kind == "" {
			s.Kind = section.KindText
		}
		return repo.CreateSection(ctx, s.CourseID, func([]section.Section) (section.Section, error) {
			return s, nil
		})
	}
	create := func(s section.Section) {
		t.Helper()
		_, err := insert(s)
		require.NoError(t, err)
	}

	create(section.Section{ID: "m2", CourseID: "c1", Title: "M2", Order: 1})
	create(section.Section{ID: "m1", CourseID: "c1", Title: "M1", Order: 0})
	create(section.Section{ID: "l1", CourseID: "c1", Title: "L1", ParentID: "m1", Kind: section.KindQuiz, ActivityIDs: []string{"q1", "q2"}})
	create(section.Section{ID: "x1", CourseID: "c2", Title: "X1"})

	_, err := insert(section.Section{ID: "m1", CourseID: "c2", Title: "Dup"})
	assert.Equal(t, section.ErrDuplicateSection, errors.Cause(err))

	var seen []string
	_, err = repo.CreateSection(ctx, "c1", func(current []section.Section) (section.Section, error) {
		seen = sectionIDs(current)
		return section.Section{}, section.ErrOrderTaken
	})
	assert.Equal(t, section.ErrOrderTaken, errors.Cause(err))
	assert.ElementsMatch(t, []string{"m1", "m2", "l1"}, seen)

	s, err := repo.GetSection(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "m1", s.ParentID)
	assert.Equal(t, []string{"q1", "q2"}, s.ActivityIDs)
	assert.Equal(t, section.KindQuiz, s.Kind)

	_, err = repo.GetSection(ctx, "lol")
	assert.Equal(t, section.ErrNotFound, errors.Cause(err))

	sections, err := repo.QueryCourseSections(ctx, "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2", "l1"}, sectionIDs(sections))

	sections, err = repo.QueryCourseSections(ctx, "lol")
	require.NoError(t, err)
	assert.Empty(t, sections)

	// moves l1 to the roots
	updated, err := repo.UpdateStructure(ctx, "c1", func(current []section.Section) ([]section.Section, error) {
		assert.Len(t, current, 3)
		return []section.Section{
			{ID: "m1", CourseID: "c1", Order: 0},
			{ID: "m2", CourseID: "c1", Order: 1},
			{ID: "l1", CourseID: "c1", Order: 2, Title: "ignored"},
		}, nil
	})
	require.NoError(t, err)
	assert.Len(t, updated, 3)
	s, err = repo.GetSection(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "", s.ParentID)
	assert.Equal(t, 2, s.Order)
	assert.Equal(t, "L1", s.Title, "only the structure changes")

	_, err = repo.UpdateStructure(ctx, "c1", func([]section.Section) ([]section.Section, error) {
		return nil, section.ErrCycleDetected
	})
	assert.Equal(t, section.ErrCycleDetected, errors.Cause(err))

	_, err = repo.UpdateStructure(ctx, "c1", func([]section.Section) ([]section.Section, error) {
		return []section.Section{{ID: "x1", CourseID: "c1", ParentID: "m1"}}, nil
	})
	assert.Equal(t, section.ErrNotFound, errors.Cause(err), "sections of other courses are not writable")
	s, err = repo.GetSection(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, "c2", s.CourseID)
	assert.Equal(t, "", s.ParentID)
}

func testProgressStore(t *testing.T, repo progress.Repository) {
	ctx := context.Background()
	inc := func(inc progress.Increment) progress.SectionProgress {
		t.Helper()
		inc.StudentID, inc.SectionID, inc.CourseID = "amani", "v1", "c1"
		sp, err := repo.IncrementProgress(ctx, inc)
		require.NoError(t, err)
		return sp
	}

	_, err := repo.GetProgress(ctx, "amani", "v1")
	assert.Equal(t, progress.ErrNotFound, errors.Cause(err))

	sp := inc(progress.Increment{
		DeltaTimeSpentSec: 10, DeltaDurationWatchedSec: 8, LastActivityMs: 2000, WatchThresholdSec: 20, LogLimit: 3,
		Events: []progress.Event{{TimestampMs: 2000, DeltaTimeSpentSec: 10, DeltaDurationWatchedSec: 8}},
	})
	assert.Equal(t, "c1", sp.CourseID)
	assert.Equal(t, int64(10), sp.TimeSpentSec)
	assert.False(t, sp.IsCompleted)
	assert.Equal(t, progress.MillisToTime(2000), sp.LastActivityAt)
	assert.Len(t, sp.Log, 1)

	sp = inc(progress.Increment{DeltaTimeSpentSec: 5, DeltaDurationWatchedSec: 5, LastActivityMs: 1000, CompletionPct: 40, WatchThresholdSec: 20})
	assert.Equal(t, int64(15), sp.TimeSpentSec)
	assert.Equal(t, int64(13), sp.DurationWatchedSec)
	assert.Equal(t, 40, sp.CompletionPct)
	assert.Equal(t, progress.MillisToTime(2000), sp.LastActivityAt, "last activity never moves back")

	sp = inc(progress.Increment{CompletionPct: 10})
	assert.Equal(t, 40, sp.CompletionPct, "completion never moves back")

	// the threshold is reached by the sum of increments
	sp = inc(progress.Increment{DeltaDurationWatchedSec: 7, WatchThresholdSec: 20, LogLimit: 3, Events: []progress.Event{
		{TimestampMs: 3000, DeltaDurationWatchedSec: 3},
		{TimestampMs: 3100, DeltaDurationWatchedSec: 2},
		{TimestampMs: 3200, DeltaDurationWatchedSec: 2},
	}})
	assert.True(t, sp.IsCompleted)
	assert.Equal(t, 100, sp.CompletionPct)
	require.Len(t, sp.Log, 3, "the log keeps the newest events")
	assert.Equal(t, int64(3000), sp.Log[0].TimestampMs)
	assert.Equal(t, int64(3200), sp.Log[2].TimestampMs)

	sp = inc(progress.Increment{DeltaTimeSpentSec: 1})
	assert.True(t, sp.IsCompleted, "completion is sticky")

	got, err := repo.GetProgress(ctx, "amani", "v1")
	require.NoError(t, err)
	assert.Equal(t, sp.TimeSpentSec, got.TimeSpentSec)
	assert.Len(t, got.Log, 3)

	_, err = repo.IncrementProgress(ctx, progress.Increment{StudentID: "amani", SectionID: "s2", CourseID: "c1", MarkComplete: true, CompletionPct: 100})
	require.NoError(t, err)
	entries, err := repo.QueryStudentProgress(ctx, "amani", []string{"v1", "s2", "lol"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	entries, err = repo.QueryStudentProgress(ctx, "baraka", []string{"v1", "s2"})
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = repo.QueryStudentProgress(ctx, "amani", nil)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, tt := range []struct {
		activity string
		want     int
	}{{"q1", 1}, {"q1", 1}, {"q2", 2}} {
		done, err := repo.RecordActivityCompletion(ctx, "amani", "quiz", tt.activity)
		require.NoError(t, err)
		assert.Equal(t, tt.want, done)
	}
	done, err := repo.RecordActivityCompletion(ctx, "baraka", "quiz", "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	// concurrent increments all land
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementProgress(ctx, progress.Increment{StudentID: "baraka", SectionID: "v1", CourseID: "c1", DeltaTimeSpentSec: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	got, err = repo.GetProgress(ctx, "baraka", "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.TimeSpentSec)
}

func testEnrollmentStore(t *testing.T, stores Stores) {
	ctx := context.Background()
	repo := stores.Enrollments
	now := time.Now().UTC().Truncate(time.Millisecond)
	newEnrollment := func(studentID, courseID string) enrollment.Enrollment {
		return enrollment.Enrollment{StudentID: studentID, CourseID: courseID, Status: enrollment.StatusActive, EnrolledAt: now}
	}

	_, err := repo.GetCourse(ctx, "c1")
	assert.Equal(t, enrollment.ErrCourseNotFound, errors.Cause(err))
	_, err = repo.CreateEnrollment(ctx, newEnrollment("amani", "c1"))
	assert.Equal(t, enrollment.ErrCourseNotFound, errors.Cause(err))

	c, err := repo.SaveCourse(ctx, enrollment.Course{ID: "c1", Title: "Go", MaxStudents: 2, CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, 0, c.EnrolledCount)
	assert.False(t, c.HasDeadline())

	e, err := repo.CreateEnrollment(ctx, newEnrollment("amani", "c1"))
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, e.Status)
	assert.WithinDuration(t, now, e.EnrolledAt, time.Millisecond)

	_, err = repo.CreateEnrollment(ctx, newEnrollment("amani", "c1"))
	assert.Equal(t, enrollment.ErrAlreadyEnrolled, errors.Cause(err))

	deadline := now.Add(time.Hour)
	c, err = repo.SaveCourse(ctx, enrollment.Course{ID: "c1", Title: "Go 101", MaxStudents: 1, EnrollmentDeadline: deadline, CreatedAt: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 1, c.EnrolledCount, "saving settings keeps the seat count")
	assert.Equal(t, "Go 101", c.Title)
	assert.WithinDuration(t, deadline, c.EnrollmentDeadline, time.Millisecond)
	assert.WithinDuration(t, now, c.CreatedAt, time.Millisecond)

	_, err = repo.CreateEnrollment(ctx, newEnrollment("baraka", "c1"))
	assert.Equal(t, enrollment.ErrCapacityExceeded, errors.Cause(err))

	// progress & completion
	require.NoError(t, repo.UpdateCompletionPct(ctx, "amani", "c1", 50))
	e, err = repo.GetEnrollment(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.Equal(t, 50, e.CompletionPct)

	ok, err := repo.MarkCompleted(ctx, "amani", "c1", 100, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkCompleted(ctx, "amani", "c1", 100, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "completion happens once")

	require.NoError(t, repo.UpdateCompletionPct(ctx, "amani", "c1", 10))
	e, err = repo.GetEnrollment(ctx, "amani", "c1")
	require.NoError(t, err)
	assert.True(t, e.IsCompleted)
	assert.Equal(t, enrollment.StatusCompleted, e.Status)
	assert.Equal(t, 100, e.CompletionPct, "completed enrollments are frozen")
	require.NotNil(t, e.CompletedAt)
	assert.WithinDuration(t, now, *e.CompletedAt, time.Millisecond)

	pending, err := repo.QueryPendingCertificates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "amani", pending[0].StudentID)

	require.NoError(t, repo.MarkCertificateIssued(ctx, "amani", "c1"))
	pending, err = repo.QueryPendingCertificates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, enrollment.ErrNotFound, errors.Cause(repo.MarkCertificateIssued(ctx, "lol", "c1")))

	assert.Equal(t, enrollment.ErrAlreadyCompleted, errors.Cause(repo.DropEnrollment(ctx, "amani", "c1", now)))
	assert.Equal(t, enrollment.ErrNotFound, errors.Cause(repo.DropEnrollment(ctx, "baraka", "c1", now)))

	// drop & re-enroll
	_, err = repo.SaveCourse(ctx, enrollment.Course{ID: "c2", Title: "Rust", MaxStudents: 1, CreatedAt: now})
	require.NoError(t, err)
	_, err = repo.CreateEnrollment(ctx, newEnrollment("baraka", "c2"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateCompletionPct(ctx, "baraka", "c2", 30))
	require.NoError(t, repo.DropEnrollment(ctx, "baraka", "c2", now))
	assert.Equal(t, enrollment.ErrNotFound, errors.Cause(repo.DropEnrollment(ctx, "baraka", "c2", now)))

	e, err = repo.GetEnrollment(ctx, "baraka", "c2")
	require.NoError(t, err)
	assert.True(t, e.IsDropped())
	require.NotNil(t, e.DroppedAt)
	c, err = repo.GetCourse(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 0, c.EnrolledCount)

	ok, err = repo.MarkCompleted(ctx, "baraka", "c2", 100, now)
	require.NoError(t, err)
	assert.False(t, ok, "dropped enrollments never complete")

	e, err = repo.CreateEnrollment(ctx, newEnrollment("baraka", "c2"))
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, e.Status)
	assert.Equal(t, 0, e.CompletionPct)
	assert.Nil(t, e.DroppedAt)
	c, err = repo.GetCourse(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 1, c.EnrolledCount)

	// recent activity
	_, err = stores.Progress.IncrementProgress(ctx, progress.Increment{
		StudentID: "baraka", SectionID: "s1", CourseID: "c2", LastActivityMs: now.UnixNano() / int64(time.Millisecond),
	})
	require.NoError(t, err)
	_, err = stores.Progress.IncrementProgress(ctx, progress.Increment{
		StudentID: "amani", SectionID: "s1", CourseID: "c1", LastActivityMs: now.UnixNano() / int64(time.Millisecond),
	})
	require.NoError(t, err)

	active, err := repo.QueryRecentlyActiveEnrollments(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, active, 1, "completed enrollments are not active")
	assert.Equal(t, "baraka", active[0].StudentID)

	active, err = repo.QueryRecentlyActiveEnrollments(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func testEnrollmentCapacity(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	const seats, students = 3, 12

	_, err := repo.SaveCourse(ctx, enrollment.Course{ID: "c1", Title: "Go", MaxStudents: seats, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	var (
		wg             sync.WaitGroup
		mu             sync.Mutex
		enrolled, full int
	)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.CreateEnrollment(ctx, enrollment.Enrollment{
				StudentID:  "student" + string(rune('a'+i)),
				CourseID:   "c1",
				Status:     enrollment.StatusActive,
				EnrolledAt: time.Now().UTC(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch errors.Cause(err) {
			case nil:
				enrolled++
			case enrollment.ErrCapacityExceeded:
				full++
			default:
				t.Errorf("CreateEnrollment() unexpected error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, seats, enrolled)
	assert.Equal(t, students-seats, full)
	c, err := repo.GetCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, seats, c.EnrolledCount)
}

func testCertificateStore(t *testing.T, repo certificate.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	score := 87.5
	newCert := func(studentID, courseID string, issuedAt time.Time) certificate.Certificate {
		return certificate.Certificate{
			ID:             certificate.IDFor(studentID, courseID),
			StudentID:      studentID,
			CourseID:       courseID,
			CompletionDate: now,
			QRCode:         "code-" + studentID + courseID,
			IssuedAt:       issuedAt,
		}
	}

	_, err := repo.GetCertificate(ctx, "amani", "c1")
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	first := newCert("amani", "c1", now)
	first.Score = &score
	cert, created, err := repo.CreateCertificateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID, cert.ID)
	require.NotNil(t, cert.Score)
	assert.Equal(t, score, *cert.Score)

	again := newCert("amani", "c1", now.Add(time.Hour))
	cert, created, err = repo.CreateCertificateIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.WithinDuration(t, now, cert.IssuedAt, time.Millisecond, "the first certificate wins")

	_, _, err = repo.CreateCertificateIfAbsent(ctx, newCert("amani", "c2", now.Add(time.Minute)))
	require.NoError(t, err)

	cert, err = repo.GetCertificateByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", cert.CourseID)
	assert.Equal(t, first.QRCode, cert.QRCode)
	_, err = repo.GetCertificateByID(ctx, "lol")
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	certs, err := repo.QueryStudentCertificates(ctx, "amani")
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, "c2", certs[0].CourseID, "newest first")
	assert.Nil(t, certs[0].Score)

	certs, err = repo.QueryStudentCertificates(ctx, "baraka")
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func testStudentStore(t *testing.T, repo student.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := repo.GetStudent(ctx, "amani")
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))

	s, err := repo.SaveStudent(ctx, student.Student{ID: "amani", Name: "Amani", Email: "amani@test.cd", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, "Amani", s.Name)

	later := now.Add(time.Hour)
	s, err = repo.SaveStudent(ctx, student.Student{ID: "amani", Name: "Amani K.", Email: "amani@test.cd", CreatedAt: later, UpdatedAt: later})
	require.NoError(t, err)
	assert.Equal(t, "Amani K.", s.Name)
	assert.WithinDuration(t, now, s.CreatedAt, time.Millisecond)
	assert.WithinDuration(t, later, s.UpdatedAt, time.Millisecond)

	s, err = repo.GetStudent(ctx, "amani")
	require.NoError(t, err)
	assert.Equal(t, "Amani K.", s.Name)
}
