package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope.
type Body struct {
	Error BodyError `json:"error"`
}

type BodyError struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

// HTTPErrorHandler renders typed errors with their stable code. Echo errors
// (routing, binding, middleware) are mapped onto the closest kind.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		body := toBody(err)
		status := body.Error.Code.HTTPStatus()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", requestID(c)).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func toBody(err error) Body {
	var e *Error
	if errors.As(err, &e) {
		msg := e.Message
		if e.Kind == Internal {
			msg = "internal error"
		}
		return Body{Error: BodyError{Code: e.Kind, Message: msg}}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := kindForStatus(he.Code)
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && kind != Internal {
			msg = s
		}
		return Body{Error: BodyError{Code: kind, Message: msg}}
	}

	return Body{Error: BodyError{Code: Internal, Message: "internal error"}}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return Unauthenticated
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return InvalidArgument
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return NotFound
	case http.StatusConflict:
		return AlreadyExists
	case http.StatusForbidden:
		return PermissionDenied
	case http.StatusTooManyRequests:
		return FailedPrecondition
	default:
		return Internal
	}
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
