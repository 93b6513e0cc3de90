package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/rollup"
	"github.com/trezcool/maendeleo/core/section"
	"github.com/trezcool/maendeleo/core/student"
	"github.com/trezcool/maendeleo/core/tracker"
	"github.com/trezcool/maendeleo/storage/database"
	inmemdb "github.com/trezcool/maendeleo/storage/database/inmem"
	sqlxrepos "github.com/trezcool/maendeleo/storage/database/sqlx"
)

type (
	Stores struct {
		Sections     section.Repository
		Progress     progress.Repository
		Enrollments  enrollment.Repository
		Certificates certificate.Repository
		Students     student.Repository
	}

	Services struct {
		Conf       *core.Config
		Logger     *Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Stores     Stores

		Sections     *section.Service
		Progress     *progress.Service
		Certificates *certificate.Service
		Enrollments  *enrollment.Service
		Students     *student.Service
		Rollup       *rollup.Service
		Tracker      *tracker.Service
	}

	LogEntry struct {
		Level string
		Msg   string
		Args  []interface{}
	}

	// Logger records every entry, for assertions.
	Logger struct {
		mu      sync.Mutex
		entries []LogEntry
	}
)

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { panic(fmt.Sprintf("fatal: %s", msg)) }

// Entries returns the entries logged at level.
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entries []LogEntry
	for _, e := range l.entries {
		if e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

func NewInmemStores(t *testing.T) Stores {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	return Stores{
		Sections:     inmemdb.NewSectionRepository(db),
		Progress:     inmemdb.NewProgressRepository(db),
		Enrollments:  inmemdb.NewEnrollmentRepository(db),
		Certificates: inmemdb.NewCertificateRepository(db),
		Students:     inmemdb.NewStudentRepository(db),
	}
}

// OpenSQLiteDB opens a migrated SQLite database in a temporary directory, closed at the end of the test.
func OpenSQLiteDB(t *testing.T) *sqlx.DB {
	conf := core.NewTestConfig()
	conf.Database.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		t.Fatalf("database.Migrate(): %v", err)
	}
	return db
}

func NewSQLiteStores(t *testing.T) Stores {
	return SQLStores(OpenSQLiteDB(t))
}

// SQLStores returns the sqlx repositories over db.
func SQLStores(db core.DB) Stores {
	return Stores{
		Sections:     sqlxrepos.NewSectionRepository(db),
		Progress:     sqlxrepos.NewProgressRepository(db),
		Enrollments:  sqlxrepos.NewEnrollmentRepository(db),
		Certificates: sqlxrepos.NewCertificateRepository(db),
		Students:     sqlxrepos.NewStudentRepository(db),
	}
}

// NewServices wires every core service over stores, the way the API does.
func NewServices(t *testing.T, stores Stores, listeners ...rollup.CompletionListener) *Services {
	t.Helper()

	conf := core.NewTestConfig()
	logger := new(Logger)
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)

	svcs := &Services{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Stores:     stores,
	}
	svcs.Sections = section.NewService(stores.Sections, validate)
	svcs.Progress = progress.NewService(stores.Progress, stores.Sections, validate, progress.OptionsFromConfig(conf))
	svcs.Certificates = certificate.NewService(stores.Certificates, conf.SecretKey)
	svcs.Rollup = rollup.NewService(stores.Sections, stores.Progress, stores.Enrollments, svcs.Certificates, logger, listeners...)
	svcs.Enrollments = enrollment.NewService(stores.Enrollments, svcs.Rollup, svcs.Certificates, validate)
	svcs.Students = student.NewService(stores.Students, validate)
	svcs.Tracker = tracker.NewService(svcs.Progress, svcs.Rollup, stores.Enrollments, logger, conf)
	return svcs
}

func CreateCourse(t *testing.T, svcs *Services, id string, maxStudents int) enrollment.Course {
	t.Helper()
	c, err := svcs.Enrollments.SaveCourse(context.Background(), enrollment.NewCourse{
		ID:          id,
		Title:       "Course " + id,
		MaxStudents: maxStudents,
	})
	if err != nil {
		t.Fatalf("CreateCourse(%s): %v", id, err)
	}
	return c
}

// CreateSection adds a text section; opts may adjust it before it is stored.
func CreateSection(t *testing.T, svcs *Services, courseID, id, parentID string, opts ...func(ns *section.NewSection)) section.Section {
	t.Helper()
	ns := section.NewSection{
		ID:       id,
		CourseID: courseID,
		Title:    "Section " + id,
		ParentID: parentID,
	}
	for _, opt := range opts {
		opt(&ns)
	}
	s, err := svcs.Sections.Create(context.Background(), ns)
	if err != nil {
		t.Fatalf("CreateSection(%s): %v", id, err)
	}
	return s
}

func Video(thresholdSec int64) func(ns *section.NewSection) {
	return func(ns *section.NewSection) {
		ns.Kind = section.KindVideo
		ns.WatchThresholdSec = thresholdSec
	}
}

func Activities(ids ...string) func(ns *section.NewSection) {
	return func(ns *section.NewSection) {
		ns.ActivityIDs = ids
	}
}

func Enroll(t *testing.T, svcs *Services, studentID, courseID string) enrollment.Enrollment {
	t.Helper()
	e, err := svcs.Enrollments.Enroll(context.Background(), studentID, courseID)
	if err != nil {
		t.Fatalf("Enroll(%s, %s): %v", studentID, courseID, err)
	}
	return e
}

func CompleteSections(t *testing.T, svcs *Services, studentID string, sectionIDs ...string) tracker.Update {
	t.Helper()
	var upd tracker.Update
	for _, id := range sectionIDs {
		var err error
		if upd, err = svcs.Tracker.MarkSectionComplete(context.Background(), studentID, id); err != nil {
			t.Fatalf("CompleteSections(%s): %v", id, err)
		}
	}
	return upd
}

// Listener records the completion events it receives.
type Listener struct {
	mu     sync.Mutex
	Err    error
	events []rollup.CompletionEvent
}

func (l *Listener) CourseCompleted(_ context.Context, ev rollup.CompletionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return l.Err
}

func (l *Listener) Events() []rollup.CompletionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]rollup.CompletionEvent{}, l.events...)
}
