package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core/user"
)

// scopeMiddleware rejects the tokens issued for another scope, e.g. parent tokens on user routes.
func scopeMiddleware(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.Scope != scope {
				return errInvalidScope
			}
			return next(ctx)
		}
	}
}

func roleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.HasRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
