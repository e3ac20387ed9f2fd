package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/learnwise/backend/core"
)

const defaultMessage = "Success"

// Response is the envelope of every JSON response.
type Response struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       interface{}       `json:"data,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	Pagination *core.Pagination  `json:"pagination,omitempty"`
}

func respond(ctx echo.Context, code int, msg string, data interface{}) error {
	if msg == "" {
		msg = defaultMessage
	}
	return ctx.JSON(code, Response{Success: true, Message: msg, Data: data})
}

func respondPage(ctx echo.Context, code int, data interface{}, page core.Pagination) error {
	return ctx.JSON(code, Response{Success: true, Message: defaultMessage, Data: data, Pagination: &page})
}
