package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/maendeleo/core"
)

type (
	// Deps are the core services exposed over HTTP.
	Deps struct {
		Tracker      ProgressTracker
		Enrollments  EnrollmentService
		Certificates CertificateService
		Sections     SectionService
		Students     StudentService
	}

	Server struct {
		conf       *core.Config
		logger     core.Logger
		validate   *validator.Validate
		translator ut.Translator
		deps       Deps
		app        *echo.Echo
		errors     chan error
		shutdown   chan os.Signal
	}
)

func NewServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	deps Deps,
) *Server {
	s := &Server{
		conf:       conf,
		logger:     logger,
		validate:   validate,
		translator: translator,
		deps:       deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug && !s.conf.TestMode

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(s.conf.SecretKey))

	registerProgressAPI(v1, jwt, s.deps.Tracker, s.logger)
	registerEnrollmentAPI(v1, jwt, s.deps.Enrollments)
	registerCertificateAPI(v1, jwt, s.deps.Certificates)
	registerSectionAPI(v1, jwt, s.deps.Sections)
	registerAdminAPI(v1, jwt, s.deps.Enrollments, s.deps.Students)
}

func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
