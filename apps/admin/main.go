package main

import (
	"log"
	"os"

	"golang.org/x/term"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/rollup"
	"github.com/trezcool/maendeleo/core/student"
	"github.com/trezcool/maendeleo/core/tracker"
	logsvc "github.com/trezcool/maendeleo/services/logger"
	"github.com/trezcool/maendeleo/services/notify"
	"github.com/trezcool/maendeleo/storage/database"
	sqlxrepos "github.com/trezcool/maendeleo/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	core.ParseEmailTemplates(logger, conf)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	// set up services
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)

	sectionRepo := sqlxrepos.NewSectionRepository(db)
	progressRepo := sqlxrepos.NewProgressRepository(db)
	enrollmentRepo := sqlxrepos.NewEnrollmentRepository(db)
	studentRepo := sqlxrepos.NewStudentRepository(db)

	emails, err := notify.NewEmailService(conf, logger)
	errAndDie(err)
	listeners := notify.NewListeners(conf, emails, studentRepo, enrollmentRepo)

	ledger := progress.NewService(progressRepo, sectionRepo, validate, progress.OptionsFromConfig(conf))
	certs := certificate.NewService(sqlxrepos.NewCertificateRepository(db), conf.SecretKey)
	rollups := rollup.NewService(sectionRepo, progressRepo, enrollmentRepo, certs, logger, listeners...)

	// start CLI
	cli := commandLine{
		db:         db.DB,
		engine:     conf.Database.Engine,
		courses:    enrollment.NewService(enrollmentRepo, rollups, certs, validate),
		students:   student.NewService(studentRepo, validate),
		reconciler: tracker.NewService(ledger, rollups, enrollmentRepo, logger, conf),
		batchSize:  conf.Reconcile.BatchSize,
		out:        os.Stdout,
		table:      term.IsTerminal(int(os.Stdout.Fd())),
	}
	err = cli.run(os.Args)
	if cErr := db.Close(); cErr != nil {
		logger.Error("closing database", cErr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error("error: "+err.Error(), err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
