package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core/tutor"
)

type chatApi struct {
	svc *tutor.Service
}

func registerChatAPI(g *echo.Group, authed authedFunc, deps ServerDeps) {
	api := chatApi{svc: deps.TutorSvc}

	g.POST("/chat", api.chat, authed()...)
	g.GET("/chat/status", api.status)
}

type ChatRequest struct {
	Message string `json:"message"`
}

func (api *chatApi) chat(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data ChatRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChatRequest")
	}

	reply, err := api.svc.Chat(ctx.Request().Context(), claims.Subject, data.Message)
	if err != nil {
		return errors.Wrap(err, "chatting with tutor")
	}
	return respond(ctx, http.StatusOK, "", reply)
}

func (api *chatApi) status(ctx echo.Context) error {
	return respond(ctx, http.StatusOK, "", api.svc.Status())
}
