package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/maendeleo/core/section"
)

type sectionRepository struct {
	db *DB
}

var _ section.Repository = (*sectionRepository)(nil) // interface compliance check

func NewSectionRepository(db *DB) *sectionRepository {
	return &sectionRepository{db: db}
}

func (repo *sectionRepository) query(courseID string) []section.Section {
	sections := make([]section.Section, 0)
	for _, s := range repo.db.sections {
		if s.CourseID == courseID {
			sections = append(sections, copySection(s))
		}
	}
	sort.Slice(sections, func(i, j int) bool {
		if sections[i].ParentID != sections[j].ParentID {
			return sections[i].ParentID < sections[j].ParentID
		}
		if sections[i].Order != sections[j].Order {
			return sections[i].Order < sections[j].Order
		}
		return sections[i].ID < sections[j].ID
	})
	return sections
}

func (repo *sectionRepository) CreateSection(
	_ context.Context,
	courseID string,
	place func(current []section.Section) (section.Section, error),
) (section.Section, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, err := place(repo.query(courseID))
	if err != nil {
		return section.Section{}, err
	}
	if _, ok := repo.db.sections[s.ID]; ok {
		return section.Section{}, section.ErrDuplicateSection
	}
	repo.db.sections[s.ID] = copySection(s)
	return copySection(s), nil
}

func (repo *sectionRepository) GetSection(_ context.Context, id string) (section.Section, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.sections[id]; ok {
		return copySection(s), nil
	}
	return section.Section{}, section.ErrNotFound
}

func (repo *sectionRepository) QueryCourseSections(_ context.Context, courseID string) ([]section.Section, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(courseID), nil
}

func (repo *sectionRepository) UpdateStructure(
	_ context.Context,
	courseID string,
	fn func(current []section.Section) ([]section.Section, error),
) ([]section.Section, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	updated, err := fn(repo.query(courseID))
	if err != nil {
		return nil, err
	}
	for _, s := range updated {
		stored, ok := repo.db.sections[s.ID]
		if !ok || stored.CourseID != courseID {
			return nil, section.ErrNotFound
		}
	}
	for _, s := range updated {
		stored := repo.db.sections[s.ID]
		stored.ParentID = s.ParentID
		stored.Order = s.Order
		repo.db.sections[s.ID] = stored
	}
	return repo.query(courseID), nil
}
