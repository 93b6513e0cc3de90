package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/student"
)

type (
	StudentService interface {
		Save(ctx context.Context, ns student.NewStudent) (student.Student, error)
		Get(ctx context.Context, id string) (student.Student, error)
	}

	adminApi struct {
		courses  EnrollmentService
		students StudentService
	}
)

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, courses EnrollmentService, students StudentService) {
	api := adminApi{courses: courses, students: students}

	admin := adminMiddleware()
	g.PUT("/courses/:id", api.saveCourse, jwt, admin)
	g.GET("/courses/:id", api.retrieveCourse, jwt, admin)
	g.PUT("/students/:id", api.saveStudent, jwt, admin)
	g.GET("/students/:id", api.retrieveStudent, jwt, admin)
}

// Handlers

func (api *adminApi) saveCourse(ctx echo.Context) error {
	var data enrollment.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	data.ID = ctx.Param("id")

	c, err := api.courses.SaveCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *adminApi) retrieveCourse(ctx echo.Context) error {
	c, err := api.courses.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *adminApi) saveStudent(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	data.ID = ctx.Param("id")

	s, err := api.students.Save(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *adminApi) retrieveStudent(ctx echo.Context) error {
	s, err := api.students.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, s)
}
