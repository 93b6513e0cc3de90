package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/student"
)

type studentRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type studentRepository struct {
	db core.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db core.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) SaveStudent(ctx context.Context, s student.Student) (student.Student, error) {
	q := repo.db.Rebind(`INSERT INTO students (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email, updated_at = excluded.updated_at`)
	if _, err := repo.db.ExecContext(ctx, q, s.ID, s.Name, s.Email, s.CreatedAt, s.UpdatedAt); err != nil {
		return student.Student{}, storeErr(errors.Wrap(err, "saving student"))
	}
	return repo.GetStudent(ctx, s.ID)
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var row studentRow
	q := repo.db.Rebind(`SELECT id, name, email, created_at, updated_at FROM students WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound)
	}
	return student.Student{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}
