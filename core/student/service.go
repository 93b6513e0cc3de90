package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound = errors.New("student not found")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// SaveStudent creates or updates a Student. CreatedAt is kept on update.
		SaveStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) Save(ctx context.Context, ns NewStudent) (Student, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	now := NowFunc().UTC()
	return svc.repo.SaveStudent(ctx, Student{
		ID:        ns.ID,
		Name:      ns.Name,
		Email:     ns.Email,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}
