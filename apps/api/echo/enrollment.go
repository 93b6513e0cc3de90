package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/enrollment"
)

type (
	EnrollmentService interface {
		SaveCourse(ctx context.Context, nc enrollment.NewCourse) (enrollment.Course, error)
		GetCourse(ctx context.Context, id string) (enrollment.Course, error)
		Enroll(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error)
		Unenroll(ctx context.Context, studentID, courseID string, actor core.Actor) error
		GetEnrollmentState(ctx context.Context, studentID, courseID string) (enrollment.State, error)
	}

	enrollmentApi struct {
		svc EnrollmentService
	}
)

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc EnrollmentService) {
	api := enrollmentApi{svc: svc}

	eg := g.Group("/courses/:id/enrollment", jwt)
	eg.POST("", api.enroll)
	eg.GET("", api.retrieve)
	eg.DELETE("", api.unenroll)
}

// Handlers

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	_, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}

	e, err := api.svc.Enroll(ctx.Request().Context(), studentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	_, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}

	state, err := api.svc.GetEnrollmentState(ctx.Request().Context(), studentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting enrollment state")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *enrollmentApi) unenroll(ctx echo.Context) error {
	actor, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}

	if err = api.svc.Unenroll(ctx.Request().Context(), studentID, ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "unenrolling student")
	}
	return ctx.NoContent(http.StatusNoContent)
}
