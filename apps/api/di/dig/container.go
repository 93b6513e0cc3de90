package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/maendeleo/apps/api/echo"
	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/rollup"
	"github.com/trezcool/maendeleo/core/section"
	"github.com/trezcool/maendeleo/core/student"
	"github.com/trezcool/maendeleo/core/tracker"
	logsvc "github.com/trezcool/maendeleo/services/logger"
	"github.com/trezcool/maendeleo/services/notify"
	"github.com/trezcool/maendeleo/services/reconcile"
	"github.com/trezcool/maendeleo/storage/database"
	sqlxrepos "github.com/trezcool/maendeleo/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newListeners(
	conf *core.Config,
	emails core.EmailService,
	students student.Repository,
	enrollments enrollment.Repository,
) []rollup.CompletionListener {
	return notify.NewListeners(conf, emails, students, enrollments)
}

func newProgressService(conf *core.Config, repo progress.Repository, sections section.Repository, validate *validator.Validate) *progress.Service {
	return progress.NewService(repo, sections, validate, progress.OptionsFromConfig(conf))
}

func newCertificateService(conf *core.Config, repo certificate.Repository) *certificate.Service {
	return certificate.NewService(repo, conf.SecretKey)
}

func newRollupService(
	sections section.Repository,
	ledger progress.Repository,
	enrollments enrollment.Repository,
	certs *certificate.Service,
	logger core.Logger,
	listeners []rollup.CompletionListener,
) *rollup.Service {
	return rollup.NewService(sections, ledger, enrollments, certs, logger, listeners...)
}

func newEnrollmentService(
	repo enrollment.Repository,
	rollups *rollup.Service,
	certs *certificate.Service,
	validate *validator.Validate,
) *enrollment.Service {
	return enrollment.NewService(repo, rollups, certs, validate)
}

func newTracker(
	conf *core.Config,
	ledger *progress.Service,
	rollups *rollup.Service,
	enrollments enrollment.Repository,
	logger core.Logger,
) *tracker.Service {
	return tracker.NewService(ledger, rollups, enrollments, logger, conf)
}

func newScheduler(conf *core.Config, logger core.Logger, trk *tracker.Service) (*reconcile.Scheduler, error) {
	return reconcile.NewScheduler(conf, logger, trk)
}

func newServerDeps(
	trk *tracker.Service,
	enrollments *enrollment.Service,
	certs *certificate.Service,
	sections *section.Service,
	students *student.Service,
) echoapi.Deps {
	return echoapi.Deps{
		Tracker:      trk,
		Enrollments:  enrollments,
		Certificates: certs,
		Sections:     sections,
		Students:     students,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(core.NewValidator))

	// repositories
	must(c.Provide(sqlxrepos.NewSectionRepository, dig.As(new(section.Repository))))
	must(c.Provide(sqlxrepos.NewProgressRepository, dig.As(new(progress.Repository))))
	must(c.Provide(sqlxrepos.NewEnrollmentRepository, dig.As(new(enrollment.Repository))))
	must(c.Provide(sqlxrepos.NewCertificateRepository, dig.As(new(certificate.Repository))))
	must(c.Provide(sqlxrepos.NewStudentRepository, dig.As(new(student.Repository))))

	// notifications
	must(c.Provide(notify.NewEmailService))
	must(c.Provide(newListeners))

	// services
	must(c.Provide(section.NewService))
	must(c.Provide(newProgressService))
	must(c.Provide(newCertificateService))
	must(c.Provide(newRollupService))
	must(c.Provide(newEnrollmentService))
	must(c.Provide(student.NewService))
	must(c.Provide(newTracker))
	must(c.Provide(newScheduler))

	must(c.Provide(newServerDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
