package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/user"
)

type lessonApi struct {
	svc      *lesson.Service
	validate *validator.Validate
}

func registerLessonAPI(g *echo.Group, authed authedFunc, deps ServerDeps) {
	api := lessonApi{
		svc:      deps.LessonSvc,
		validate: deps.Validate,
	}

	lg := g.Group("/lessons")

	// catalog
	lg.GET("", api.query)
	lg.GET("/subjects", api.querySubjects)

	lg.GET("/mine", api.queryMine, authed(user.RoleTeacher, user.RoleAdmin)...)
	lg.POST("", api.create, authed(user.RoleTeacher, user.RoleAdmin)...)
	lg.GET("/:id", api.retrieve, authed()...)
	lg.PUT("/:id", api.update, authed(user.RoleTeacher, user.RoleAdmin)...)
	lg.DELETE("/:id", api.destroy, authed(user.RoleTeacher, user.RoleAdmin)...)
	lg.POST("/:id/progress", api.updateProgress, authed()...)
}

// Handlers

// query lists the published lessons.
func (api *lessonApi) query(ctx echo.Context) error {
	filter := new(lesson.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	published := true
	filter.Published = &published

	return api.queryPage(ctx, filter)
}

// queryMine lists the lessons of the authenticated author, drafts included.
func (api *lessonApi) queryMine(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	filter := new(lesson.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	filter.CreatedBy = claims.Subject

	return api.queryPage(ctx, filter)
}

func (api *lessonApi) queryPage(ctx echo.Context, filter *lesson.QueryFilter) error {
	lessons, page, err := api.svc.Query(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []lesson.Lesson{}
	}
	return respondPage(ctx, http.StatusOK, lessons, page)
}

func (api *lessonApi) querySubjects(ctx echo.Context) error {
	subjects, err := api.svc.Subjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []string{}
	}
	return respond(ctx, http.StatusOK, "", subjects)
}

func (api *lessonApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data lesson.NewLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err := api.svc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return respond(ctx, http.StatusCreated, "Lesson created", lsn)
}

// retrieve returns a lesson along with the progress of the reader on it.
func (api *lessonApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reqCtx := ctx.Request().Context()
	lsn, err := api.svc.View(reqCtx, ctx.Param("id"), claims.Subject, claims.IsStaff())
	if err != nil {
		return errors.Wrap(err, "viewing lesson")
	}

	detail := LessonDetail{Lesson: lsn}
	progress, err := api.svc.GetProgress(reqCtx, claims.Subject, lsn.ID)
	switch errors.Cause(err) {
	case nil:
		detail.Progress = &progress
	case lesson.ErrProgressNotFound:
	default:
		return errors.Wrap(err, "getting progress")
	}
	return respond(ctx, http.StatusOK, "", detail)
}

func (api *lessonApi) update(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reqCtx := ctx.Request().Context()
	lsn, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}

	var data lesson.UpdateLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if lsn, err = api.svc.Update(reqCtx, lsn, data, claims.Subject, claims.IsAdmin()); err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return respond(ctx, http.StatusOK, "Lesson updated", lsn)
}

func (api *lessonApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reqCtx := ctx.Request().Context()
	lsn, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}
	if err = api.svc.Delete(reqCtx, lsn, claims.Subject, claims.IsAdmin()); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *lessonApi) updateProgress(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data lesson.UpdateProgress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgress")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	progress, err := api.svc.UpdateProgress(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return respond(ctx, http.StatusOK, "Progress updated", progress)
}

type LessonDetail struct {
	lesson.Lesson
	Progress *lesson.Progress `json:"progress"`
}
