package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core/section"
)

type (
	SectionService interface {
		Create(ctx context.Context, ns section.NewSection) (section.Section, error)
		CourseTree(ctx context.Context, courseID string) (section.Forest, error)
		Reparent(ctx context.Context, courseID, sectionID, newParentID string) (section.Forest, error)
		Reorder(ctx context.Context, courseID, parentID string, orderedIDs []string) (section.Forest, error)
	}

	ReparentRequest struct {
		ParentID string `json:"parent_id"`
	}

	ReorderRequest struct {
		ParentID string   `json:"parent_id"`
		IDs      []string `json:"ids"`
	}

	sectionApi struct {
		svc SectionService
	}
)

func registerSectionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc SectionService) {
	api := sectionApi{svc: svc}

	sg := g.Group("/courses/:id/sections", jwt, authorMiddleware())
	sg.GET("", api.tree)
	sg.POST("", api.create)
	sg.PUT("/order", api.reorder)
	sg.PUT("/:section/parent", api.reparent)
}

// Handlers

func (api *sectionApi) tree(ctx echo.Context) error {
	forest, err := api.svc.CourseTree(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building course tree")
	}
	return ctx.JSON(http.StatusOK, forest)
}

func (api *sectionApi) create(ctx echo.Context) error {
	var data section.NewSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSection")
	}
	data.CourseID = ctx.Param("id")

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating section")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *sectionApi) reparent(ctx echo.Context) error {
	var data ReparentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReparentRequest")
	}

	forest, err := api.svc.Reparent(ctx.Request().Context(), ctx.Param("id"), ctx.Param("section"), data.ParentID)
	if err != nil {
		return errors.Wrap(err, "moving section")
	}
	return ctx.JSON(http.StatusOK, forest)
}

func (api *sectionApi) reorder(ctx echo.Context) error {
	var data ReorderRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderRequest")
	}

	forest, err := api.svc.Reorder(ctx.Request().Context(), ctx.Param("id"), data.ParentID, data.IDs)
	if err != nil {
		return errors.Wrap(err, "reordering sections")
	}
	return ctx.JSON(http.StatusOK, forest)
}
