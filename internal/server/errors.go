package server

import (
	"errors"

	fiber "github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"perfstore/internal/sentinel"
)

// statusOf maps an error onto an HTTP status.
func statusOf(err error) int {
	var fe *fiber.Error

	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrNoSeries):
		return fiber.StatusNotFound
	case errors.Is(err, sentinel.ErrInvalidName),
		errors.Is(err, sentinel.ErrInvalidArgument),
		errors.Is(err, sentinel.ErrUnsupportedFormat),
		errors.Is(err, sentinel.ErrDataError):
		return fiber.StatusBadRequest
	case errors.Is(err, sentinel.ErrDuplicateName), errors.Is(err, sentinel.ErrNotAnchored):
		return fiber.StatusConflict
	case errors.Is(err, sentinel.ErrNothingToCompare):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c fiber.Ctx, err error) error {
	code := statusOf(err)
	if code >= fiber.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
