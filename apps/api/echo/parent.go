package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/advisor"
	"github.com/learnwise/backend/core/user"
)

type parentApi struct {
	conf     *core.Config
	users    *user.Service
	advisor  *advisor.Service
	validate *validator.Validate
}

func registerParentAPI(
	g *echo.Group,
	authed authedFunc,
	parentOnly, limited func() []echo.MiddlewareFunc,
	deps ServerDeps,
) {
	api := parentApi{
		conf:     deps.Conf,
		users:    deps.UserSvc,
		advisor:  deps.AdvisorSvc,
		validate: deps.Validate,
	}

	g.POST("/student/parent-pin", api.setPIN, authed(user.RoleStudent)...)

	pg := g.Group("/parent")
	pg.POST("/login", api.login, limited()...)
	pg.GET("/dashboard", api.dashboard, parentOnly()...)
}

type (
	ParentLoginRequest struct {
		StudentID string `json:"student_id" validate:"required"`
		PIN       string `json:"pin" validate:"required"`
	}

	StudentSummary struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	ParentAuthResponse struct {
		Token   string         `json:"token"`
		Student StudentSummary `json:"student"`
	}

	ParentDashboard struct {
		Student StudentSummary `json:"student"`
		advisor.Dashboard
	}
)

func (pl *ParentLoginRequest) Validate(validate *validator.Validate) error {
	pl.StudentID = core.CleanString(pl.StudentID)
	pl.PIN = core.CleanString(pl.PIN)
	return validate.Struct(pl)
}

func summarize(usr user.User) StudentSummary {
	return StudentSummary{ID: usr.ID, Name: usr.Name, Email: usr.Email}
}

// Handlers

func (api *parentApi) setPIN(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.SetParentPIN
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetParentPIN")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if err = api.users.SetParentPIN(ctx.Request().Context(), usr, data.PIN); err != nil {
		return errors.Wrap(err, "setting parent pin")
	}
	return respond(ctx, http.StatusOK, "Parent PIN set", nil)
}

func (api *parentApi) login(ctx echo.Context) error {
	var data ParentLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ParentLoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	student, err := api.users.CheckParentPIN(ctx.Request().Context(), data.StudentID, data.PIN)
	if err != nil {
		return errors.Wrap(err, "checking parent pin")
	}
	token, err := GenerateToken(api.conf, GetParentClaims(api.conf, student))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return respond(ctx, http.StatusOK, "Login successful", ParentAuthResponse{Token: token, Student: summarize(student)})
}

// dashboard shows the progress of the student the parent token was issued for.
func (api *parentApi) dashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reqCtx := ctx.Request().Context()
	student, err := api.users.GetByID(reqCtx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUnauthorized
		}
		return errors.Wrap(err, "finding student")
	}
	if !student.IsActive {
		return errAccountDeactivated
	}

	dash, err := api.advisor.StudentDashboard(reqCtx, student.ID)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return respond(ctx, http.StatusOK, "", ParentDashboard{Student: summarize(student), Dashboard: dash})
}
