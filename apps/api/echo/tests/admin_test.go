package tests

import (
	"net/http"
	"testing"

	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/student"
)

func Test_adminApi(t *testing.T) {
	srv, svcs := setup(t)
	admin := adminToken(t, svcs.Conf)
	amani := studentToken(t, svcs.Conf, "amani")

	tests := []httpTest{
		{name: "Auth required", method: http.MethodPut, path: "/v1/courses/c1", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", method: http.MethodPut, path: "/v1/courses/c1", token: amani,
			body: []byte(`{"title": "Go 101"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Unknown course", path: "/v1/courses/c1", token: admin,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: enrollment.ErrCourseNotFound.Error()}),
		},
		{
			name: "Invalid course", method: http.MethodPut, path: "/v1/courses/c1", token: admin,
			body: []byte(`{"title": "Go 101", "max_students": -1}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Save course", method: http.MethodPut, path: "/v1/courses/c1", token: admin,
			body: []byte(`{"title": "Go 101", "max_students": 30}`), wantCode: http.StatusOK,
		},
		{
			name: "Unknown student", path: "/v1/students/amani", token: admin,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: student.ErrNotFound.Error()}),
		},
		{
			name: "Invalid student", method: http.MethodPut, path: "/v1/students/amani", token: admin,
			body: []byte(`{"name": "Amani", "email": "lol"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Save student", method: http.MethodPut, path: "/v1/students/amani", token: admin,
			body: []byte(`{"name": "Amani", "email": " Amani@Test.CD "}`), wantCode: http.StatusOK,
		},
		{name: "Student self lookup is admin only", path: "/v1/students/amani", token: amani, wantCode: http.StatusForbidden},
	}
	runHTTPTests(t, srv, tests)

	rec := do(srv, http.MethodGet, "/v1/courses/c1", admin)
	var c enrollment.Course
	unmarshall(t, rec, &c)
	if c.Title != "Go 101" || c.MaxStudents != 30 || c.EnrolledCount != 0 {
		t.Errorf("GetCourse() = %+v; want title Go 101, 30 seats, none taken", c)
	}

	rec = do(srv, http.MethodGet, "/v1/students/amani", admin)
	var s student.Student
	unmarshall(t, rec, &s)
	if s.Email != "amani@test.cd" {
		t.Errorf("GetStudent().Email = %q; want %q", s.Email, "amani@test.cd")
	}
}
