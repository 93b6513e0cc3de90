package inmemdb

import (
	"context"

	"github.com/trezcool/maendeleo/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) SaveStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if stored, ok := repo.db.students[s.ID]; ok {
		s.CreatedAt = stored.CreatedAt
	}
	repo.db.students[s.ID] = s
	return s, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.students[id]; ok {
		return s, nil
	}
	return student.Student{}, student.ErrNotFound
}
