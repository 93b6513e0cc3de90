package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/maendeleo/apps/api/echo"
	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func newDeps(svcs *testutil.Services) Deps {
	return Deps{
		Tracker:      svcs.Tracker,
		Enrollments:  svcs.Enrollments,
		Certificates: svcs.Certificates,
		Sections:     svcs.Sections,
		Students:     svcs.Students,
	}
}

func newServer(t *testing.T, svcs *testutil.Services, deps Deps) *Server {
	srv := NewServer(svcs.Conf, svcs.Logger, svcs.Validate, svcs.Translator, deps)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func setup(t *testing.T) (*Server, *testutil.Services) {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t))
	return newServer(t, svcs, newDeps(svcs)), svcs
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves the request and returns its recorder.
func do(srv *Server, method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	srv.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, conf *core.Config, actor core.Actor) string {
	claims := NewClaims(actor, conf.AppName, time.Hour)
	token, err := GenerateToken(conf.SecretKey, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func studentToken(t *testing.T, conf *core.Config, id string) string {
	return getToken(t, conf, core.Actor{ID: id, Email: id + "@test.cd"})
}

func adminToken(t *testing.T, conf *core.Config) string {
	return getToken(t, conf, core.Actor{ID: "admin", Email: "admin@test.cd", IsAdmin: true})
}

func instructorToken(t *testing.T, conf *core.Config) string {
	return getToken(t, conf, core.Actor{ID: "instructor", Email: "instructor@test.cd", IsInstructor: true})
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, srv *Server, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := do(srv, method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
