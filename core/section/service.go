package section

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type (
	Repository interface {
		// CreateSection runs place on the course's current sections under the same lock as
		// UpdateStructure, then inserts the section it returns.
		CreateSection(ctx context.Context, courseID string, place func(current []Section) (Section, error)) (Section, error)
		GetSection(ctx context.Context, id string) (Section, error)
		QueryCourseSections(ctx context.Context, courseID string) ([]Section, error)
		// UpdateStructure runs fn on the course's current sections while holding a write lock on them,
		// then persists the ParentID and Order of every section fn returns.
		UpdateStructure(ctx context.Context, courseID string, fn func(current []Section) ([]Section, error)) ([]Section, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) Create(ctx context.Context, ns NewSection) (Section, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Section{}, err
	}
	if ns.ID == "" {
		ns.ID = uuid.New().String()
	}

	return svc.repo.CreateSection(ctx, ns.CourseID, func(current []Section) (Section, error) {
		order := 0
		parentFound := ns.ParentID == ""
		for _, s := range current {
			if s.ID == ns.ID {
				return Section{}, ErrDuplicateSection
			}
			if s.ID == ns.ParentID {
				parentFound = true
			}
			if s.ParentID != ns.ParentID {
				continue
			}
			if ns.Order != nil && s.Order == *ns.Order {
				return Section{}, ErrOrderTaken
			}
			if s.Order >= order {
				order = s.Order + 1
			}
		}
		if !parentFound {
			return Section{}, ErrInvalidParent
		}
		if ns.Order != nil {
			order = *ns.Order
		}

		return Section{
			ID:                ns.ID,
			CourseID:          ns.CourseID,
			Title:             ns.Title,
			ParentID:          ns.ParentID,
			Order:             order,
			Kind:              ns.Kind,
			WatchThresholdSec: ns.WatchThresholdSec,
			ActivityIDs:       ns.ActivityIDs,
		}, nil
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Section, error) {
	return svc.repo.GetSection(ctx, id)
}

func (svc *Service) CourseSections(ctx context.Context, courseID string) ([]Section, error) {
	return svc.repo.QueryCourseSections(ctx, courseID)
}

func (svc *Service) CourseTree(ctx context.Context, courseID string) (Forest, error) {
	sections, err := svc.repo.QueryCourseSections(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course sections")
	}
	return BuildTree(sections)
}

// Reparent moves a section under newParentID ("" for a root) and persists the new structure.
func (svc *Service) Reparent(ctx context.Context, courseID, sectionID, newParentID string) (Forest, error) {
	return svc.restructure(ctx, courseID, func(f Forest) (Forest, error) {
		return f.Reparent(sectionID, newParentID)
	})
}

// Reorder sets the order of parentID's children and persists the new structure.
func (svc *Service) Reorder(ctx context.Context, courseID, parentID string, orderedIDs []string) (Forest, error) {
	return svc.restructure(ctx, courseID, func(f Forest) (Forest, error) {
		return f.Reorder(parentID, orderedIDs)
	})
}

func (svc *Service) restructure(ctx context.Context, courseID string, change func(Forest) (Forest, error)) (Forest, error) {
	updated, err := svc.repo.UpdateStructure(ctx, courseID, func(current []Section) ([]Section, error) {
		f, err := BuildTree(current)
		if err != nil {
			return nil, err
		}
		if f, err = change(f); err != nil {
			return nil, err
		}
		return Flatten(f), nil
	})
	if err != nil {
		return nil, err
	}
	return BuildTree(updated)
}
