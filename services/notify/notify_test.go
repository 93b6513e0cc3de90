package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/rollup"
	"github.com/trezcool/maendeleo/core/student"
	emailsvc "github.com/trezcool/maendeleo/services/email"
	"github.com/trezcool/maendeleo/services/notify"
	testutil "github.com/trezcool/maendeleo/tests"
)

func TestMailer_CourseCompleted(t *testing.T) {
	svcs := testutil.NewServices(t, testutil.NewInmemStores(t))
	ctx := context.Background()
	svcs.Conf.Notify.FrontendBaseURL = "https://maendeleo.test"
	testutil.CreateCourse(t, svcs, "c1", 0)
	_, err := svcs.Students.Save(ctx, student.NewStudent{ID: "amani", Name: "Amani", Email: "amani@test.cd"})
	require.NoError(t, err)

	emailsvc.ResetSentMessages()
	defer emailsvc.ResetSentMessages()
	mailer := notify.NewMailer(emailsvc.NewConsoleServiceMock(svcs.Logger, svcs.Conf), svcs.Stores.Students, svcs.Stores.Enrollments, svcs.Conf)

	completedAt := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		ev       rollup.CompletionEvent
		wantErr  bool
		wantSent int
	}{
		{name: "no contact details", ev: rollup.CompletionEvent{StudentID: "baraka", CourseID: "c1", CompletedAt: completedAt}},
		{name: "unknown course", ev: rollup.CompletionEvent{StudentID: "amani", CourseID: "lol", CompletedAt: completedAt}, wantErr: true},
		{name: "sent", ev: rollup.CompletionEvent{StudentID: "amani", CourseID: "c1", CompletedAt: completedAt}, wantSent: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ResetSentMessages()
			err := mailer.CourseCompleted(ctx, tt.ev)
			if (err != nil) != tt.wantErr {
				t.Errorf("CourseCompleted() error = %v; wantErr %v", err, tt.wantErr)
			}
			assert.Len(t, emailsvc.SentMessages, tt.wantSent)
		})
	}

	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "Course completed: Course c1", msg.Subject)
	require.Len(t, msg.To, 1)
	assert.Equal(t, "amani@test.cd", msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "Hi Amani,")
	assert.Contains(t, msg.TextContent, "4 May 2026")
	assert.Contains(t, msg.TextContent, "https://maendeleo.test/certificates/c1")
	assert.Contains(t, msg.HTMLContent, "<strong>Course c1</strong>")
	assert.Empty(t, svcs.Logger.Entries("error"))
}

func TestWebhook_CourseCompleted(t *testing.T) {
	var (
		mu       sync.Mutex
		received []*http.Request
		bodies   [][]byte
		status   = http.StatusNoContent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r)
		bodies = append(bodies, body)
		code := status
		mu.Unlock()
		w.WriteHeader(code)
	}))
	defer srv.Close()

	conf := core.NewTestConfig()
	conf.Notify.WebhookURL = srv.URL + "/hooks/maendeleo"
	conf.Notify.WebhookSecret = "hook-secret"
	wh := notify.NewWebhook(conf)
	ev := rollup.CompletionEvent{
		StudentID:     "amani",
		CourseID:      "c1",
		CompletionPct: 100,
		CompletedAt:   time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		CertificateID: "cert-1",
	}

	require.NoError(t, wh.CourseCompleted(context.Background(), ev))
	mu.Lock()
	require.Len(t, received, 1)
	r, body := received[0], bodies[0]
	mu.Unlock()
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/hooks/maendeleo", r.URL.Path)
	assert.Equal(t, "course.completed", r.Header.Get(notify.EventHeader))
	assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"))

	wantSig, err := notify.Sign([]byte("hook-secret"), body)
	require.NoError(t, err)
	assert.Equal(t, wantSig, r.Header.Get(notify.SignatureHeader))
	otherSig, err := notify.Sign([]byte("other"), body)
	require.NoError(t, err)
	assert.NotEqual(t, otherSig, wantSig)

	var got rollup.CompletionEvent
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, ev, got)

	mu.Lock()
	status = http.StatusBadRequest
	mu.Unlock()
	assert.Error(t, wh.CourseCompleted(context.Background(), ev))

	// disabled without a URL
	conf.Notify.WebhookURL = ""
	assert.NoError(t, notify.NewWebhook(conf).CourseCompleted(context.Background(), ev))
}

func TestNewListeners(t *testing.T) {
	logger := new(testutil.Logger)
	stores := testutil.NewInmemStores(t)

	tests := []struct {
		name          string
		backends      []string
		wantEmails    bool
		wantListeners int
		wantErr       bool
	}{
		{name: "none"},
		{name: "console", backends: []string{"console"}, wantEmails: true, wantListeners: 1},
		{name: "webhook", backends: []string{"webhook"}, wantListeners: 1},
		{name: "both", backends: []string{"webhook", "sendgrid"}, wantEmails: true, wantListeners: 2},
		{name: "unknown", backends: []string{"pigeon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Notify.Backends = tt.backends

			emails, err := notify.NewEmailService(conf, logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEmailService() error = %v; wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			assert.Equal(t, tt.wantEmails, emails != nil)

			listeners := notify.NewListeners(conf, emails, stores.Students, stores.Enrollments)
			assert.Len(t, listeners, tt.wantListeners)
		})
	}
}
