package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"mindpalace/backend/internal/anon"
	"mindpalace/backend/internal/service"
	"mindpalace/backend/internal/store"
	apperrors "mindpalace/backend/pkg/errors"
)

// fail maps domain errors onto AppErrors and hands them to the error
// middleware.
func fail(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, store.ErrNotFound):
		appErr = apperrors.NewNotFoundError("NOT_FOUND", "Resource not found")
	case errors.Is(err, store.ErrInvalidTransition):
		appErr = apperrors.NewConflictError("INVALID_TRANSITION", "Alert cannot move to that status")
	case errors.Is(err, service.ErrTextRequired),
		errors.Is(err, service.ErrAlertIDRequired),
		errors.Is(err, service.ErrInstitutionRequired),
		errors.Is(err, service.ErrRoomNotListable),
		errors.Is(err, anon.ErrMissingStudent):
		appErr = apperrors.NewBadRequestError("INVALID_REQUEST", err.Error())
	default:
		appErr = apperrors.NewInternalServerError("INTERNAL_ERROR", "Request could not be completed").Wrap(err)
	}
	_ = c.Error(appErr)
}

func badRequest(c *gin.Context, message string) {
	_ = c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", message))
}
