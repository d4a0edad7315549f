package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// respondError maps typed chat errors to their HTTP status. Storage failures
// and untyped errors are logged and answered without detail.
func respondError(c echo.Context, err error) error {
	chatErr, ok := chaterrors.As(err)
	if !ok || chatErr.Code == chaterrors.ErrCodePersistenceFailed {
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:  string(chaterrors.ErrCodePersistenceFailed),
			Error: "internal error",
		})
	}
	return c.JSON(chatErr.HTTPStatus(), ErrorResponse{
		Code:  string(chatErr.Code),
		Error: chatErr.Message,
	})
}
