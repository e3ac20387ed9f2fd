package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/quiz"
	"github.com/learnwise/backend/core/tutor"
	"github.com/learnwise/backend/core/user"
)

const msgValidationFailed = "Validation failed"

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errInvalidScope       = echo.NewHTTPError(http.StatusUnauthorized, "token not valid for this resource")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errTooManyRequests    = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, try again later")
)

// statusOf maps the domain errors to their HTTP status.
func statusOf(err error) (int, bool) {
	switch err {
	case user.ErrNotFound, user.ErrProfileNotFound, lesson.ErrNotFound, lesson.ErrProgressNotFound,
		quiz.ErrNotFound, quiz.ErrSessionNotFound:
		return http.StatusNotFound, true
	case user.ErrInvalidCredentials, user.ErrInvalidParentCredentials:
		return http.StatusUnauthorized, true
	case core.ErrForbidden, user.ErrNotStudent:
		return http.StatusForbidden, true
	case quiz.ErrNoQuizzes, quiz.ErrSessionDone:
		return http.StatusBadRequest, true
	case tutor.ErrUnavailable:
		return http.StatusServiceUnavailable, true
	case tutor.ErrEmptyReply:
		return http.StatusBadGateway, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		resp := Response{Success: false}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				resp.Message = fmt.Sprint(origErr.Message)
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			resp.Message = fmt.Sprint(origErr.Message)
		case validator.ValidationErrors:
			resp.Errors = make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				resp.Errors[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			resp.Message = msgValidationFailed
		case *core.ValidationError:
			if origErr.Fields != nil {
				resp.Errors = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					resp.Errors[fErr.Field] = fErr.Error
				}
			}
			code = http.StatusBadRequest
			if resp.Message = origErr.Error(); resp.Message == "" {
				resp.Message = msgValidationFailed
			}
		default:
			if status, ok := statusOf(origErr); ok {
				code = status
				resp.Message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			resp.Message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Name = claims.Name
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			if ctx.Echo().Debug {
				resp.Message = err.Error()
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
