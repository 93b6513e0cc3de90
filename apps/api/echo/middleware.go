package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if actor.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// authorMiddleware lets instructors & admins through.
func authorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if actor.CanAuthor() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
