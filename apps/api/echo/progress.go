package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/core/rollup"
	"github.com/trezcool/maendeleo/core/tracker"
)

type (
	ProgressTracker interface {
		ApplyEvents(ctx context.Context, studentID, sectionID string, events []progress.Event) (tracker.Update, error)
		MarkSectionComplete(ctx context.Context, studentID, sectionID string) (tracker.Update, error)
		CompleteActivity(ctx context.Context, studentID, sectionID, activityID string) (tracker.Update, error)
		CourseProgress(ctx context.Context, studentID, courseID string) (progress.CourseSummary, error)
		TreeProgress(ctx context.Context, studentID, courseID string) ([]*rollup.NodeProgress, error)
	}

	EventsRequest struct {
		Events []progress.Event `json:"events"`
	}

	// PendingResponse is sent with 202 when a progress write could not be fully processed.
	// Retry is set when nothing was recorded and the client may resend.
	PendingResponse struct {
		Retry   bool                      `json:"retry"`
		Section *progress.SectionProgress `json:"section,omitempty"`
	}

	progressApi struct {
		tracker ProgressTracker
		logger  core.Logger
	}
)

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, t ProgressTracker, logger core.Logger) {
	api := progressApi{tracker: t, logger: logger}

	sg := g.Group("/sections/:id", jwt)
	sg.POST("/events", api.applyEvents)
	sg.POST("/complete", api.complete)
	sg.POST("/activities/:activity/complete", api.completeActivity)

	cg := g.Group("/courses/:id/progress", jwt)
	cg.GET("", api.courseProgress)
	cg.GET("/tree", api.treeProgress)
}

// respond degrades failed progress writes to 202: either nothing was written and the client
// may retry, or the write landed and only the course rollup is left to reconciliation.
func (api *progressApi) respond(ctx echo.Context, upd tracker.Update, err error) error {
	if err == nil {
		return ctx.JSON(http.StatusOK, upd)
	}
	if upd.Section.StudentID != "" {
		return ctx.JSON(http.StatusAccepted, PendingResponse{Section: &upd.Section})
	}
	if core.IsTransient(err) {
		return ctx.JSON(http.StatusAccepted, PendingResponse{Retry: true})
	}
	return err
}

// Handlers

func (api *progressApi) applyEvents(ctx echo.Context) error {
	_, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}
	var data EventsRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EventsRequest")
	}

	upd, err := api.tracker.ApplyEvents(ctx.Request().Context(), studentID, ctx.Param("id"), data.Events)
	return api.respond(ctx, upd, err)
}

func (api *progressApi) complete(ctx echo.Context) error {
	_, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}

	upd, err := api.tracker.MarkSectionComplete(ctx.Request().Context(), studentID, ctx.Param("id"))
	return api.respond(ctx, upd, err)
}

func (api *progressApi) completeActivity(ctx echo.Context) error {
	_, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}

	upd, err := api.tracker.CompleteActivity(ctx.Request().Context(), studentID, ctx.Param("id"), ctx.Param("activity"))
	return api.respond(ctx, upd, err)
}

func (api *progressApi) courseProgress(ctx echo.Context) error {
	_, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}

	summary, err := api.tracker.CourseProgress(ctx.Request().Context(), studentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing course progress")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *progressApi) treeProgress(ctx echo.Context) error {
	_, studentID, err := getTargetStudent(ctx)
	if err != nil {
		return err
	}

	tree, err := api.tracker.TreeProgress(ctx.Request().Context(), studentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing progress tree")
	}
	return ctx.JSON(http.StatusOK, tree)
}
