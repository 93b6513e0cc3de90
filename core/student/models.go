package student

import (
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maendeleo/core"
)

// Student holds the contact details used to reach a learner, keyed by the ID issued by the identity provider.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (s Student) Address() mail.Address {
	return mail.Address{Name: s.Name, Address: s.Email}
}

// NewStudent contains information needed to register or update a Student.
type NewStudent struct {
	ID    string `json:"id" validate:"required,identifier"`
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.ID = core.CleanString(ns.ID)
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return validate.Struct(ns)
}
