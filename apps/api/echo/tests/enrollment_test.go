package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/tests"
)

func Test_enrollmentApi(t *testing.T) {
	srv, svcs := setup(t)
	testutil.CreateCourse(t, svcs, "c1", 1)
	testutil.CreateCourse(t, svcs, "c2", 0)
	past := time.Now().Add(-time.Hour)
	_, err := svcs.Enrollments.SaveCourse(context.Background(), enrollment.NewCourse{ID: "c3", Title: "Closed", EnrollmentDeadline: &past})
	require.NoError(t, err)

	amani := studentToken(t, svcs.Conf, "amani")
	baraka := studentToken(t, svcs.Conf, "baraka")
	admin := adminToken(t, svcs.Conf)

	tests := []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/v1/courses/c1/enrollment", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Enroll", method: http.MethodPost, path: "/v1/courses/c1/enrollment", token: amani, wantCode: http.StatusCreated},
		{
			name: "Enroll twice", method: http.MethodPost, path: "/v1/courses/c1/enrollment", token: amani,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: enrollment.ErrAlreadyEnrolled.Error()}),
		},
		{
			name: "Course full", method: http.MethodPost, path: "/v1/courses/c1/enrollment", token: baraka,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: enrollment.ErrCapacityExceeded.Error()}),
		},
		{
			name: "Unknown course", method: http.MethodPost, path: "/v1/courses/lol/enrollment", token: baraka,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: enrollment.ErrCourseNotFound.Error()}),
		},
		{
			name: "Deadline passed", method: http.MethodPost, path: "/v1/courses/c3/enrollment", token: baraka,
			wantCode: http.StatusGone, wantData: marchallObj(t, httpErr{Error: enrollment.ErrDeadlineExpired.Error()}),
		},
		{
			name: "Not enrolled", path: "/v1/courses/c1/enrollment", token: baraka,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: enrollment.ErrNotFound.Error()}),
		},
		{
			name: "Dropping another student", method: http.MethodDelete, path: "/v1/courses/c1/enrollment?student=amani", token: baraka,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Drop", method: http.MethodDelete, path: "/v1/courses/c1/enrollment", token: amani, wantCode: http.StatusNoContent},
		{
			name: "Drop twice", method: http.MethodDelete, path: "/v1/courses/c1/enrollment", token: amani,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: enrollment.ErrNotFound.Error()}),
		},
		{name: "Freed seat", method: http.MethodPost, path: "/v1/courses/c1/enrollment", token: baraka, wantCode: http.StatusCreated},
		{
			name: "Re-enroll into a full course", method: http.MethodPost, path: "/v1/courses/c1/enrollment", token: amani,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: enrollment.ErrCapacityExceeded.Error()}),
		},
		{name: "Admin enrolling a student", method: http.MethodPost, path: "/v1/courses/c2/enrollment?student=amani", token: admin, wantCode: http.StatusCreated},
		{name: "Admin dropping a student", method: http.MethodDelete, path: "/v1/courses/c1/enrollment?student=baraka", token: admin, wantCode: http.StatusNoContent},
	}
	runHTTPTests(t, srv, tests)

	c1, err := svcs.Enrollments.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, c1.EnrolledCount)

	rec := do(srv, http.MethodGet, "/v1/courses/c2/enrollment", amani)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var state enrollment.State
	unmarshall(t, rec, &state)
	assert.Equal(t, enrollment.StatusActive, state.Enrollment.Status)
	assert.Equal(t, 0, state.Progress.TotalSections)
	assert.Nil(t, state.Certificate)
}

func Test_enrollmentApi_reEnrollment(t *testing.T) {
	srv, svcs := setup(t)
	testutil.CreateCourse(t, svcs, "c1", 0)
	testutil.CreateSection(t, svcs, "c1", "s1", "")
	testutil.CreateSection(t, svcs, "c1", "s2", "")
	token := studentToken(t, svcs.Conf, "amani")

	require.Equal(t, http.StatusCreated, do(srv, http.MethodPost, "/v1/courses/c1/enrollment", token).Code)
	testutil.CompleteSections(t, svcs, "amani", "s1")
	require.Equal(t, http.StatusNoContent, do(srv, http.MethodDelete, "/v1/courses/c1/enrollment", token).Code)

	rec := do(srv, http.MethodPost, "/v1/courses/c1/enrollment", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e enrollment.Enrollment
	unmarshall(t, rec, &e)
	assert.Equal(t, enrollment.StatusActive, e.Status)
	assert.Equal(t, 0, e.CompletionPct)
	assert.Nil(t, e.DroppedAt)

	// progress survived the drop
	rec = do(srv, http.MethodGet, "/v1/courses/c1/enrollment", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var state enrollment.State
	unmarshall(t, rec, &state)
	assert.Equal(t, 50, state.Progress.CompletionPct)
}
