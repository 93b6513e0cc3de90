package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
)

const certificateColumns = "id, student_id, course_id, completion_date, score, qr_code, issued_at"

type certificateRow struct {
	ID             string       `db:"id"`
	StudentID      string       `db:"student_id"`
	CourseID       string       `db:"course_id"`
	CompletionDate time.Time    `db:"completion_date"`
	Score          null.Float64 `db:"score"`
	QRCode         string       `db:"qr_code"`
	IssuedAt       time.Time    `db:"issued_at"`
}

func (r certificateRow) toCertificate() certificate.Certificate {
	return certificate.Certificate{
		ID:             r.ID,
		StudentID:      r.StudentID,
		CourseID:       r.CourseID,
		CompletionDate: r.CompletionDate.UTC(),
		Score:          r.Score.Ptr(),
		QRCode:         r.QRCode,
		IssuedAt:       r.IssuedAt.UTC(),
	}
}

type certificateRepository struct {
	db core.DB
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db core.DB) *certificateRepository {
	return &certificateRepository{db: db}
}

// CreateCertificateIfAbsent relies on the (student_id, course_id) unique key:
// of concurrent inserts only one is stored, and every caller reads that one back.
func (repo *certificateRepository) CreateCertificateIfAbsent(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, bool, error) {
	q := repo.db.Rebind(`INSERT INTO certificates (` + certificateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`)
	res, err := repo.db.ExecContext(ctx, q,
		cert.ID, cert.StudentID, cert.CourseID, cert.CompletionDate, null.Float64FromPtr(cert.Score), cert.QRCode, cert.IssuedAt,
	)
	if err != nil {
		return certificate.Certificate{}, false, storeErr(errors.Wrap(err, "inserting certificate"))
	}
	n, err := rowsAffected(res)
	if err != nil {
		return certificate.Certificate{}, false, err
	}

	stored, err := repo.GetCertificate(ctx, cert.StudentID, cert.CourseID)
	if err != nil {
		return certificate.Certificate{}, false, err
	}
	return stored, n == 1, nil
}

func (repo *certificateRepository) get(ctx context.Context, where string, args ...interface{}) (certificate.Certificate, error) {
	var row certificateRow
	q := repo.db.Rebind(`SELECT ` + certificateColumns + ` FROM certificates WHERE ` + where)
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return certificate.Certificate{}, trapNoRowsErr(err, certificate.ErrNotFound)
	}
	return row.toCertificate(), nil
}

func (repo *certificateRepository) GetCertificate(ctx context.Context, studentID, courseID string) (certificate.Certificate, error) {
	return repo.get(ctx, "student_id = ? AND course_id = ?", studentID, courseID)
}

func (repo *certificateRepository) GetCertificateByID(ctx context.Context, id string) (certificate.Certificate, error) {
	return repo.get(ctx, "id = ?", id)
}

func (repo *certificateRepository) QueryStudentCertificates(ctx context.Context, studentID string) ([]certificate.Certificate, error) {
	var rows []certificateRow
	q := repo.db.Rebind(`SELECT ` + certificateColumns + ` FROM certificates WHERE student_id = ? ORDER BY issued_at DESC, id`)
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, storeErr(errors.Wrap(err, "querying certificates"))
	}

	certs := make([]certificate.Certificate, 0, len(rows))
	for _, row := range rows {
		certs = append(certs, row.toCertificate())
	}
	return certs, nil
}
