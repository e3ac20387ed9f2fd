package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/quiz"
	"github.com/learnwise/backend/core/user"
)

type quizApi struct {
	svc      *quiz.Service
	lessons  *lesson.Service
	validate *validator.Validate
}

func registerQuizAPI(g *echo.Group, authed authedFunc, deps ServerDeps) {
	api := quizApi{
		svc:      deps.QuizSvc,
		lessons:  deps.LessonSvc,
		validate: deps.Validate,
	}

	qg := g.Group("/quizzes")
	qg.GET("/lesson/:lessonID", api.queryByLesson, authed()...)
	qg.GET("/:id", api.retrieve, authed()...)
	qg.POST("/:id/attempt", api.submitAttempt, authed()...)
	qg.POST("/session/start", api.startSession, authed()...)
	qg.POST("/session/:id/complete", api.completeSession, authed()...)
	qg.POST("/sync/offline", api.syncOffline, authed()...)

	// authoring
	qg.POST("", api.create, authed(user.RoleTeacher, user.RoleAdmin)...)
	qg.PUT("/:id", api.update, authed(user.RoleTeacher, user.RoleAdmin)...)
	qg.DELETE("/:id", api.destroy, authed(user.RoleTeacher, user.RoleAdmin)...)
}

func quizReader(claims Claims) quiz.Reader {
	return quiz.Reader{ID: claims.Subject, Privileged: claims.IsStaff()}
}

// quizView hides the answer from students.
func quizView(qz quiz.Quiz, claims Claims) interface{} {
	if claims.IsStaff() {
		return qz
	}
	return qz.Public()
}

// Handlers

func (api *quizApi) queryByLesson(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	quizzes, err := api.svc.QueryByLesson(ctx.Request().Context(), ctx.Param("lessonID"), quizReader(claims))
	if err != nil {
		return errors.Wrap(err, "querying quizzes")
	}
	views := make([]interface{}, 0, len(quizzes))
	for _, qz := range quizzes {
		views = append(views, quizView(qz, claims))
	}
	return respond(ctx, http.StatusOK, "", views)
}

func (api *quizApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	qz, err := api.svc.GetForReader(ctx.Request().Context(), ctx.Param("id"), quizReader(claims))
	if err != nil {
		return errors.Wrap(err, "finding quiz")
	}
	return respond(ctx, http.StatusOK, "", quizView(qz, claims))
}

func (api *quizApi) submitAttempt(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data quiz.SubmitAnswer
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAnswer")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	qz, err := api.svc.GetForReader(reqCtx, ctx.Param("id"), quizReader(claims))
	if err != nil {
		return errors.Wrap(err, "finding quiz")
	}
	res, err := api.svc.SubmitAttempt(reqCtx, claims.Subject, qz, data)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return respond(ctx, http.StatusCreated, "Answer submitted", res)
}

func (api *quizApi) startSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data quiz.StartSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartSession")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.StartSession(ctx.Request().Context(), quizReader(claims), data)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return respond(ctx, http.StatusCreated, "Quiz session started", s)
}

func (api *quizApi) completeSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	s, err := api.svc.CompleteSession(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing session")
	}
	return respond(ctx, http.StatusOK, "Quiz session completed", s)
}

func (api *quizApi) syncOffline(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data quiz.OfflineBatch
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OfflineBatch")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.SyncOffline(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "syncing offline attempts")
	}
	return respond(ctx, http.StatusOK, "Offline attempts synced", res)
}

// editableLesson returns the lesson identified by id if the authenticated user may edit it.
func (api *quizApi) editableLesson(ctx echo.Context, id string) (lesson.Lesson, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return lesson.Lesson{}, errors.Wrap(err, "getting context claims")
	}
	lsn, err := api.lessons.Get(ctx.Request().Context(), id)
	if err != nil {
		return lesson.Lesson{}, errors.Wrap(err, "finding lesson")
	}
	if !lsn.CanEdit(claims.Subject, claims.IsAdmin()) {
		return lesson.Lesson{}, core.ErrForbidden
	}
	return lsn, nil
}

func (api *quizApi) create(ctx echo.Context) error {
	var data quiz.NewQuiz
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuiz")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if _, err := api.editableLesson(ctx, data.LessonID); err != nil {
		return err
	}

	qz, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating quiz")
	}
	return respond(ctx, http.StatusCreated, "Quiz created", qz)
}

func (api *quizApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	qz, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding quiz")
	}
	if _, err = api.editableLesson(ctx, qz.LessonID); err != nil {
		return err
	}

	var data quiz.UpdateQuiz
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuiz")
	}
	if err = data.Validate(qz, api.validate); err != nil {
		return err
	}

	if qz, err = api.svc.Update(reqCtx, qz, data); err != nil {
		return errors.Wrap(err, "updating quiz")
	}
	return respond(ctx, http.StatusOK, "Quiz updated", qz)
}

func (api *quizApi) destroy(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	qz, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding quiz")
	}
	if _, err = api.editableLesson(ctx, qz.LessonID); err != nil {
		return err
	}

	if err = api.svc.Delete(reqCtx, qz.ID); err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	return ctx.NoContent(http.StatusNoContent)
}
