package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/certificate"
	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/section"
	"github.com/trezcool/maendeleo/core/student"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")

	// domain errors & their HTTP status
	errStatuses = map[error]int{
		section.ErrNotFound:          http.StatusNotFound,
		progress.ErrNotFound:         http.StatusNotFound,
		enrollment.ErrNotFound:       http.StatusNotFound,
		enrollment.ErrCourseNotFound: http.StatusNotFound,
		certificate.ErrNotFound:      http.StatusNotFound,
		certificate.ErrInvalidCode:   http.StatusNotFound,
		student.ErrNotFound:          http.StatusNotFound,

		section.ErrInvalidParent:    http.StatusBadRequest,
		section.ErrInvalidOrder:     http.StatusBadRequest,
		progress.ErrUnknownActivity: http.StatusBadRequest,

		section.ErrCycleDetected:       http.StatusConflict,
		section.ErrDuplicateSection:    http.StatusConflict,
		section.ErrOrderTaken:          http.StatusConflict,
		enrollment.ErrAlreadyEnrolled:  http.StatusConflict,
		enrollment.ErrCapacityExceeded: http.StatusConflict,
		enrollment.ErrAlreadyCompleted: http.StatusConflict,
		enrollment.ErrDeadlineExpired:  http.StatusGone,
		enrollment.ErrNotAllowed:       http.StatusForbidden,
	}
)

// domainErrStatus compares rather than indexes: cause may be of an unhashable type.
func domainErrStatus(cause error) (int, bool) {
	for domainErr, status := range errStatuses {
		if cause == domainErr {
			return status, true
		}
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if status, ok := domainErrStatus(cause); ok {
				code = status
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var actor core.Actor
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				actor = claims.Actor()
			}
			logger.Error(msg, errors.Wrap(err, msg), actor)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
