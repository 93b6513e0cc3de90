package inmemdb

import (
	"context"

	"github.com/trezcool/maendeleo/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) IncrementProgress(_ context.Context, inc progress.Increment) (progress.SectionProgress, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey{inc.StudentID, inc.SectionID}
	sp := repo.db.progress[key].Apply(inc)
	repo.db.progress[key] = sp
	return copyProgress(sp), nil
}

func (repo *progressRepository) GetProgress(_ context.Context, studentID, sectionID string) (progress.SectionProgress, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sp, ok := repo.db.progress[pairKey{studentID, sectionID}]; ok {
		return copyProgress(sp), nil
	}
	return progress.SectionProgress{}, progress.ErrNotFound
}

func (repo *progressRepository) QueryStudentProgress(_ context.Context, studentID string, sectionIDs []string) ([]progress.SectionProgress, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]progress.SectionProgress, 0, len(sectionIDs))
	for _, id := range sectionIDs {
		if sp, ok := repo.db.progress[pairKey{studentID, id}]; ok {
			entries = append(entries, copyProgress(sp))
		}
	}
	return entries, nil
}

func (repo *progressRepository) RecordActivityCompletion(_ context.Context, studentID, sectionID, activityID string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.activities[activityKey{studentID, sectionID, activityID}] = struct{}{}
	var done int
	for k := range repo.db.activities {
		if k.studentID == studentID && k.sectionID == sectionID {
			done++
		}
	}
	return done, nil
}
