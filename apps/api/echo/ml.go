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

type advisorApi struct {
	svc      *advisor.Service
	validate *validator.Validate
}

func registerAdvisorAPI(g *echo.Group, authed authedFunc, deps ServerDeps) {
	api := advisorApi{
		svc:      deps.AdvisorSvc,
		validate: deps.Validate,
	}

	mg := g.Group("/ml")
	mg.POST("/evaluate", api.evaluate, authed()...)
	mg.POST("/recommend", api.recommend, authed()...)
	mg.GET("/learning-gaps", api.learningGaps, authed()...)
	mg.POST("/adaptive-hint", api.adaptiveHint, authed()...)
	mg.POST("/predict", api.predict, authed()...)
	mg.GET("/student/dashboard", api.studentDashboard, authed(user.RoleStudent)...)
	mg.GET("/teacher/analytics", api.teacherAnalytics, authed(user.RoleTeacher, user.RoleAdmin)...)
}

type (
	EvaluateRequest struct {
		Limit int `json:"limit" validate:"min=0"`
	}

	RecommendRequest struct {
		Limit *int `json:"limit" validate:"omitempty,max=50"`
	}

	RecommendResponse struct {
		Recommendations []advisor.Recommendation `json:"recommendations"`
		Total           int                      `json:"total"`
	}

	HintRequest struct {
		QuizID      string `json:"quiz_id" validate:"required"`
		Obviousness string `json:"obviousness"`
	}

	PredictRequest struct {
		QuizID string `json:"quiz_id" validate:"required"`
	}
)

// bindJSON binds and validates data; an empty body leaves data untouched.
func (api *advisorApi) bindJSON(ctx echo.Context, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrapf(err, "binding to %T", data)
	}
	return api.validate.Struct(data)
}

// Handlers

func (api *advisorApi) evaluate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data EvaluateRequest
	if err = api.bindJSON(ctx, &data); err != nil {
		return err
	}

	res, err := api.svc.Evaluate(ctx.Request().Context(), claims.Subject, data.Limit)
	if err != nil {
		return errors.Wrap(err, "evaluating performance")
	}
	return respond(ctx, http.StatusOK, "", res)
}

func (api *advisorApi) recommend(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data RecommendRequest
	if err = api.bindJSON(ctx, &data); err != nil {
		return err
	}
	limit := advisor.DefaultRecommendations
	if data.Limit != nil {
		limit = *data.Limit
	}

	recs, err := api.svc.Recommend(ctx.Request().Context(), claims.Subject, limit)
	if err != nil {
		return errors.Wrap(err, "recommending lessons")
	}
	if recs == nil {
		recs = []advisor.Recommendation{}
	}
	return respond(ctx, http.StatusOK, "", RecommendResponse{Recommendations: recs, Total: len(recs)})
}

func (api *advisorApi) learningGaps(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	gaps, err := api.svc.LearningGaps(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "detecting learning gaps")
	}
	if gaps == nil {
		gaps = []advisor.LearningGap{}
	}
	return respond(ctx, http.StatusOK, "", gaps)
}

func (api *advisorApi) adaptiveHint(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data HintRequest
	if err = api.bindJSON(ctx, &data); err != nil {
		return err
	}
	data.QuizID = core.CleanString(data.QuizID)

	hint, err := api.svc.AdaptiveHint(ctx.Request().Context(), claims.Subject, data.QuizID,
		advisor.ParseObviousness(data.Obviousness))
	if err != nil {
		return errors.Wrap(err, "generating hint")
	}
	return respond(ctx, http.StatusOK, "", hint)
}

func (api *advisorApi) predict(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data PredictRequest
	if err = api.bindJSON(ctx, &data); err != nil {
		return err
	}

	pred, err := api.svc.PredictSuccess(ctx.Request().Context(), claims.Subject, core.CleanString(data.QuizID))
	if err != nil {
		return errors.Wrap(err, "predicting success")
	}
	return respond(ctx, http.StatusOK, "", pred)
}

func (api *advisorApi) studentDashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	dash, err := api.svc.StudentDashboard(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return respond(ctx, http.StatusOK, "", dash)
}

func (api *advisorApi) teacherAnalytics(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	an, err := api.svc.TeacherAnalytics(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "building analytics")
	}
	return respond(ctx, http.StatusOK, "", an)
}
