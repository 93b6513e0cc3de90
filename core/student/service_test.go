package student_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core/student"
	testutil "github.com/trezcool/maendeleo/tests"
)

func TestService_Save(t *testing.T) {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t))
	ctx := context.Background()

	tests := []struct {
		name        string
		ns          student.NewStudent
		wantEmail   string
		wantInvalid bool
	}{
		{name: "valid", ns: student.NewStudent{ID: "amani", Name: " Amani ", Email: " Amani@Test.CD "}, wantEmail: "amani@test.cd"},
		{name: "invalid email", ns: student.NewStudent{ID: "amani", Name: "Amani", Email: "amani"}, wantInvalid: true},
		{name: "missing name", ns: student.NewStudent{ID: "amani", Email: "amani@test.cd"}, wantInvalid: true},
		{name: "missing id", ns: student.NewStudent{Name: "Amani", Email: "amani@test.cd"}, wantInvalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := svcs.Students.Save(ctx, tt.ns)
			if tt.wantInvalid {
				assert.IsType(t, validator.ValidationErrors{}, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEmail, s.Email)
			assert.Equal(t, "Amani", s.Name)
		})
	}

	first, err := svcs.Students.Get(ctx, "amani")
	require.NoError(t, err)

	student.NowFunc = func() time.Time { return first.CreatedAt.Add(time.Hour) }
	defer func() { student.NowFunc = time.Now }()

	s, err := svcs.Students.Save(ctx, student.NewStudent{ID: "amani", Name: "Amani K.", Email: "amani@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, "Amani K.", s.Name)
	assert.Equal(t, first.CreatedAt, s.CreatedAt)
	assert.Equal(t, first.CreatedAt.Add(time.Hour), s.UpdatedAt)

	_, err = svcs.Students.Get(ctx, "lol")
	assert.Equal(t, student.ErrNotFound, err)
	assert.Equal(t, "amani@test.cd", s.Address().Address)
}
