package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/enrollment"
)

const (
	courseColumns     = "id, title, max_students, enrollment_deadline, enrolled_count, created_at"
	enrollmentColumns = `student_id, course_id, status, completion_pct, is_completed, certificate_issued,
	enrolled_at, completed_at, dropped_at`
)

type courseRow struct {
	ID                 string    `db:"id"`
	Title              string    `db:"title"`
	MaxStudents        int       `db:"max_students"`
	EnrollmentDeadline null.Time `db:"enrollment_deadline"`
	EnrolledCount      int       `db:"enrolled_count"`
	CreatedAt          time.Time `db:"created_at"`
}

func (r courseRow) toCourse() enrollment.Course {
	c := enrollment.Course{
		ID:            r.ID,
		Title:         r.Title,
		MaxStudents:   r.MaxStudents,
		EnrolledCount: r.EnrolledCount,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.EnrollmentDeadline.Valid {
		c.EnrollmentDeadline = r.EnrollmentDeadline.Time.UTC()
	}
	return c
}

type enrollmentRow struct {
	StudentID         string    `db:"student_id"`
	CourseID          string    `db:"course_id"`
	Status            string    `db:"status"`
	CompletionPct     int       `db:"completion_pct"`
	IsCompleted       bool      `db:"is_completed"`
	CertificateIssued bool      `db:"certificate_issued"`
	EnrolledAt        time.Time `db:"enrolled_at"`
	CompletedAt       null.Time `db:"completed_at"`
	DroppedAt         null.Time `db:"dropped_at"`
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func (r enrollmentRow) toEnrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		StudentID:         r.StudentID,
		CourseID:          r.CourseID,
		Status:            r.Status,
		CompletionPct:     r.CompletionPct,
		IsCompleted:       r.IsCompleted,
		CertificateIssued: r.CertificateIssued,
		EnrolledAt:        r.EnrolledAt.UTC(),
		CompletedAt:       utcPtr(r.CompletedAt),
		DroppedAt:         utcPtr(r.DroppedAt),
	}
}

func toEnrollments(rows []enrollmentRow) []enrollment.Enrollment {
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, row.toEnrollment())
	}
	return enrollments
}

type enrollmentRepository struct {
	db core.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db core.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) SaveCourse(ctx context.Context, c enrollment.Course) (enrollment.Course, error) {
	var deadline null.Time
	if c.HasDeadline() {
		deadline = null.TimeFrom(c.EnrollmentDeadline)
	}

	q := repo.db.Rebind(`INSERT INTO courses (` + courseColumns + `) VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			max_students = excluded.max_students,
			enrollment_deadline = excluded.enrollment_deadline`)
	if _, err := repo.db.ExecContext(ctx, q, c.ID, c.Title, c.MaxStudents, deadline, c.CreatedAt); err != nil {
		return enrollment.Course{}, storeErr(errors.Wrap(err, "saving course"))
	}
	return repo.GetCourse(ctx, c.ID)
}

func (repo *enrollmentRepository) GetCourse(ctx context.Context, id string) (enrollment.Course, error) {
	return getCourse(ctx, repo.db, id)
}

func getCourse(ctx context.Context, db core.DBExecutor, id string) (enrollment.Course, error) {
	var row courseRow
	q := db.Rebind(`SELECT ` + courseColumns + ` FROM courses WHERE id = ?`)
	if err := db.GetContext(ctx, &row, q, id); err != nil {
		return enrollment.Course{}, trapNoRowsErr(err, enrollment.ErrCourseNotFound)
	}
	return row.toCourse(), nil
}

func getEnrollment(ctx context.Context, db core.DBExecutor, studentID, courseID string) (enrollment.Enrollment, error) {
	var row enrollmentRow
	q := db.Rebind(`SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = ? AND course_id = ?`)
	if err := db.GetContext(ctx, &row, q, studentID, courseID); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound)
	}
	return row.toEnrollment(), nil
}

// CreateEnrollment takes a seat with a conditional increment of the course counter,
// then inserts the membership or restarts a dropped one. Both writes share one transaction.
func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	var created enrollment.Enrollment
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		existing, err := getEnrollment(ctx, tx, e.StudentID, e.CourseID)
		switch {
		case err == nil && !existing.IsDropped():
			return enrollment.ErrAlreadyEnrolled
		case err != nil && errors.Cause(err) != enrollment.ErrNotFound:
			return err
		}

		q := tx.Rebind(`UPDATE courses SET enrolled_count = enrolled_count + 1
			WHERE id = ? AND (max_students = 0 OR enrolled_count < max_students)`)
		res, err := tx.ExecContext(ctx, q, e.CourseID)
		if err != nil {
			return storeErr(errors.Wrap(err, "reserving course seat"))
		}
		if n, err := rowsAffected(res); err != nil {
			return err
		} else if n == 0 {
			if _, err = getCourse(ctx, tx, e.CourseID); err != nil {
				return err
			}
			return enrollment.ErrCapacityExceeded
		}

		q = tx.Rebind(`INSERT INTO enrollments (` + enrollmentColumns + `)
			VALUES (?, ?, ?, 0, ?, ?, ?, NULL, NULL)
			ON CONFLICT (student_id, course_id) DO UPDATE SET
				status = excluded.status,
				completion_pct = 0,
				is_completed = excluded.is_completed,
				certificate_issued = excluded.certificate_issued,
				enrolled_at = excluded.enrolled_at,
				completed_at = NULL,
				dropped_at = NULL
			WHERE enrollments.status = ?`)
		res, err = tx.ExecContext(ctx, q, e.StudentID, e.CourseID, enrollment.StatusActive, false, false, e.EnrolledAt, enrollment.StatusDropped)
		if err != nil {
			return storeErr(errors.Wrap(err, "inserting enrollment"))
		}
		if n, err := rowsAffected(res); err != nil {
			return err
		} else if n == 0 {
			return enrollment.ErrAlreadyEnrolled
		}

		created, err = getEnrollment(ctx, tx, e.StudentID, e.CourseID)
		return err
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return created, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	return getEnrollment(ctx, repo.db, studentID, courseID)
}

func (repo *enrollmentRepository) DropEnrollment(ctx context.Context, studentID, courseID string, droppedAt time.Time) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`UPDATE enrollments SET status = ?, dropped_at = ?
			WHERE student_id = ? AND course_id = ? AND status = ?`)
		res, err := tx.ExecContext(ctx, q, enrollment.StatusDropped, droppedAt, studentID, courseID, enrollment.StatusActive)
		if err != nil {
			return storeErr(errors.Wrap(err, "dropping enrollment"))
		}
		if n, err := rowsAffected(res); err != nil {
			return err
		} else if n == 0 {
			e, err := getEnrollment(ctx, tx, studentID, courseID)
			if err != nil {
				return err
			}
			if e.IsDropped() {
				return enrollment.ErrNotFound
			}
			return enrollment.ErrAlreadyCompleted
		}

		q = tx.Rebind(`UPDATE courses SET enrolled_count = enrolled_count - 1 WHERE id = ? AND enrolled_count > 0`)
		if _, err = tx.ExecContext(ctx, q, courseID); err != nil {
			return storeErr(errors.Wrap(err, "releasing course seat"))
		}
		return nil
	})
}

func (repo *enrollmentRepository) UpdateCompletionPct(ctx context.Context, studentID, courseID string, pct int) error {
	q := repo.db.Rebind(`UPDATE enrollments SET completion_pct = ?
		WHERE student_id = ? AND course_id = ? AND status = ? AND is_completed = ?`)
	if _, err := repo.db.ExecContext(ctx, q, pct, studentID, courseID, enrollment.StatusActive, false); err != nil {
		return storeErr(errors.Wrap(err, "updating enrollment completion"))
	}
	return nil
}

func (repo *enrollmentRepository) MarkCompleted(ctx context.Context, studentID, courseID string, pct int, completedAt time.Time) (bool, error) {
	q := repo.db.Rebind(`UPDATE enrollments SET status = ?, is_completed = ?, completion_pct = ?, completed_at = ?
		WHERE student_id = ? AND course_id = ? AND status = ? AND is_completed = ?`)
	res, err := repo.db.ExecContext(ctx, q,
		enrollment.StatusCompleted, true, pct, completedAt,
		studentID, courseID, enrollment.StatusActive, false,
	)
	if err != nil {
		return false, storeErr(errors.Wrap(err, "completing enrollment"))
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (repo *enrollmentRepository) MarkCertificateIssued(ctx context.Context, studentID, courseID string) error {
	q := repo.db.Rebind(`UPDATE enrollments SET certificate_issued = ? WHERE student_id = ? AND course_id = ?`)
	res, err := repo.db.ExecContext(ctx, q, true, studentID, courseID)
	if err != nil {
		return storeErr(errors.Wrap(err, "marking certificate issued"))
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return enrollment.ErrNotFound
	}
	return nil
}

func (repo *enrollmentRepository) QueryPendingCertificates(ctx context.Context, limit int) ([]enrollment.Enrollment, error) {
	q := withLimit(`SELECT `+enrollmentColumns+` FROM enrollments
		WHERE is_completed = ? AND certificate_issued = ? AND status <> ?
		ORDER BY course_id, student_id`, limit)

	var rows []enrollmentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), true, false, enrollment.StatusDropped); err != nil {
		return nil, storeErr(errors.Wrap(err, "querying pending certificates"))
	}
	return toEnrollments(rows), nil
}

func (repo *enrollmentRepository) QueryRecentlyActiveEnrollments(ctx context.Context, since time.Time, limit int) ([]enrollment.Enrollment, error) {
	q := withLimit(`SELECT `+enrollmentColumns+` FROM enrollments e
		WHERE e.status = ? AND EXISTS (
			SELECT 1 FROM section_progress p
			WHERE p.student_id = e.student_id AND p.course_id = e.course_id AND p.last_activity_ms >= ?
		)
		ORDER BY e.course_id, e.student_id`, limit)

	sinceMs := since.UnixNano() / int64(time.Millisecond)
	var rows []enrollmentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), enrollment.StatusActive, sinceMs); err != nil {
		return nil, storeErr(errors.Wrap(err, "querying recently active enrollments"))
	}
	return toEnrollments(rows), nil
}
