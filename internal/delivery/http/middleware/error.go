package middleware

import (
	"errors"

	"jobfeed/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

type AppError struct {
	StatusCode int
	Message    string
	Data       any
	Cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewAppError(statusCode int, message string, data any, cause error) *AppError {
	return &AppError{StatusCode: statusCode, Message: message, Data: data, Cause: cause}
}

type ErrorMiddleware struct {
	logger *zap.Logger
}

func NewErrorMiddleware(logger *zap.Logger) *ErrorMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorMiddleware{logger: logger}
}

// Middleware converts returned errors into the semantic envelope. 5xx causes
// are logged but never leaked to the client.
func (m *ErrorMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("panic recovered", zap.Any("panic", r), zap.String("path", c.Path()))
				err = response.Error(c, fiber.StatusInternalServerError, response.MessageInternalServerError, nil)
			}
		}()

		err = c.Next()
		if err == nil {
			return nil
		}

		status, msg, data := m.normalize(c, err)
		return response.Error(c, status, msg, data)
	}
}

func (m *ErrorMiddleware) normalize(c fiber.Ctx, err error) (int, string, any) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode > 0 {
		if appErr.StatusCode >= 500 {
			m.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
		}
		msg := appErr.Message
		if msg == "" {
			msg = response.DefaultMessageForStatus(appErr.StatusCode)
		}
		return appErr.StatusCode, msg, appErr.Data
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code > 0 && fiberErr.Code < 500 {
		msg := fiberErr.Message
		if msg == "" {
			msg = response.DefaultMessageForStatus(fiberErr.Code)
		}
		return fiberErr.Code, msg, nil
	}

	m.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
}
