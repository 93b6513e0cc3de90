package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/maendeleo/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func copyEnrollment(e enrollment.Enrollment) enrollment.Enrollment {
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		e.CompletedAt = &at
	}
	if e.DroppedAt != nil {
		at := *e.DroppedAt
		e.DroppedAt = &at
	}
	return e
}

func (repo *enrollmentRepository) SaveCourse(_ context.Context, c enrollment.Course) (enrollment.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if stored, ok := repo.db.courses[c.ID]; ok {
		c.EnrolledCount = stored.EnrolledCount
		c.CreatedAt = stored.CreatedAt
	} else {
		c.EnrolledCount = 0
	}
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *enrollmentRepository) GetCourse(_ context.Context, id string) (enrollment.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return enrollment.Course{}, enrollment.ErrCourseNotFound
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	course, ok := repo.db.courses[e.CourseID]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrCourseNotFound
	}
	key := pairKey{e.StudentID, e.CourseID}
	if stored, ok := repo.db.enrollments[key]; ok && !stored.IsDropped() {
		return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
	}
	if course.IsLimited() && course.EnrolledCount >= course.MaxStudents {
		return enrollment.Enrollment{}, enrollment.ErrCapacityExceeded
	}

	course.EnrolledCount++
	repo.db.courses[course.ID] = course
	e = e.Reset(e.EnrolledAt)
	repo.db.enrollments[key] = e
	return copyEnrollment(e), nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.enrollments[pairKey{studentID, courseID}]; ok {
		return copyEnrollment(e), nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) DropEnrollment(_ context.Context, studentID, courseID string, droppedAt time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey{studentID, courseID}
	e, ok := repo.db.enrollments[key]
	if !ok || e.IsDropped() {
		return enrollment.ErrNotFound
	}
	if !e.IsActive() {
		return enrollment.ErrAlreadyCompleted
	}

	e.Status = enrollment.StatusDropped
	e.DroppedAt = &droppedAt
	repo.db.enrollments[key] = e
	if course, ok := repo.db.courses[courseID]; ok && course.EnrolledCount > 0 {
		course.EnrolledCount--
		repo.db.courses[courseID] = course
	}
	return nil
}

func (repo *enrollmentRepository) UpdateCompletionPct(_ context.Context, studentID, courseID string, pct int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey{studentID, courseID}
	if e, ok := repo.db.enrollments[key]; ok && e.IsActive() && !e.IsCompleted {
		e.CompletionPct = pct
		repo.db.enrollments[key] = e
	}
	return nil
}

func (repo *enrollmentRepository) MarkCompleted(_ context.Context, studentID, courseID string, pct int, completedAt time.Time) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey{studentID, courseID}
	e, ok := repo.db.enrollments[key]
	if !ok || !e.IsActive() || e.IsCompleted {
		return false, nil
	}
	e.Status = enrollment.StatusCompleted
	e.IsCompleted = true
	e.CompletionPct = pct
	e.CompletedAt = &completedAt
	repo.db.enrollments[key] = e
	return true, nil
}

func (repo *enrollmentRepository) MarkCertificateIssued(_ context.Context, studentID, courseID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey{studentID, courseID}
	e, ok := repo.db.enrollments[key]
	if !ok {
		return enrollment.ErrNotFound
	}
	e.CertificateIssued = true
	repo.db.enrollments[key] = e
	return nil
}

func (repo *enrollmentRepository) QueryPendingCertificates(_ context.Context, limit int) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.filter(limit, func(e enrollment.Enrollment) bool {
		return e.NeedsCertificate()
	}), nil
}

func (repo *enrollmentRepository) QueryRecentlyActiveEnrollments(_ context.Context, since time.Time, limit int) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lastActivity := make(map[pairKey]time.Time)
	for _, sp := range repo.db.progress {
		key := pairKey{sp.StudentID, sp.CourseID}
		if sp.LastActivityAt.After(lastActivity[key]) {
			lastActivity[key] = sp.LastActivityAt
		}
	}
	return repo.filter(limit, func(e enrollment.Enrollment) bool {
		at, ok := lastActivity[pairKey{e.StudentID, e.CourseID}]
		return e.IsActive() && ok && !at.Before(since)
	}), nil
}

// filter must be called with the lock held.
func (repo *enrollmentRepository) filter(limit int, keep func(e enrollment.Enrollment) bool) []enrollment.Enrollment {
	matched := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if keep(e) {
			matched = append(matched, copyEnrollment(e))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CourseID != matched[j].CourseID {
			return matched[i].CourseID < matched[j].CourseID
		}
		return matched[i].StudentID < matched[j].StudentID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
