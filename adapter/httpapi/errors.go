package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/httpkit/rfc7807"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"

	"plangrid/adapter/mailer"
	"plangrid/domain/account"
	"plangrid/domain/dashboard"
	"plangrid/domain/forecast"
	"plangrid/domain/inventory"
	"plangrid/domain/notification"
	"plangrid/domain/procurement"
	"plangrid/domain/project"
	"plangrid/domain/team"
)

const (
	ErrUnauthorized        errorkit.Error = "Missing or invalid Authorization header"
	ErrLocationRequired    errorkit.Error = "Location data is required"
	ErrLocationsRequired   errorkit.Error = "Locations array is required"
	ErrLocationsNotArray   errorkit.Error = "Locations must be an array"
	ErrInternalServerError errorkit.Error = "Internal server error"
)

// ErrorBody is the frontend facing part of every problem response.
type ErrorBody struct {
	Error string `json:"error"`
}

type problem struct {
	Err    error
	Status int
}

// problems is matched in order, the first match decides the response.
var problems = []problem{
	{ErrInvalidBody, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrLocationRequired, http.StatusBadRequest},
	{ErrLocationsRequired, http.StatusBadRequest},
	{ErrLocationsNotArray, http.StatusBadRequest},

	{account.ErrInvalidToken, http.StatusUnauthorized},
	{account.ErrInvalidCredentials, http.StatusUnauthorized},
	{account.ErrUserNotFound, http.StatusNotFound},
	{account.ErrEmailNotFound, http.StatusNotFound},
	{account.ErrMissingFields, http.StatusBadRequest},
	{account.ErrUserExists, http.StatusBadRequest},
	{account.ErrEmailRequired, http.StatusBadRequest},
	{account.ErrMissingLogin, http.StatusBadRequest},
	{account.ErrTokenRequired, http.StatusBadRequest},
	{account.ErrResetFieldsRequired, http.StatusBadRequest},
	{account.ErrPasswordTooShort, http.StatusBadRequest},
	{account.ErrInvalidResetToken, http.StatusBadRequest},

	{team.ErrNotFound, http.StatusNotFound},
	{team.ErrPermissionDenied, http.StatusForbidden},
	{team.ErrOwnerOnly, http.StatusForbidden},
	{team.ErrCannotRemoveOwner, http.StatusBadRequest},
	{team.ErrEmailRequired, http.StatusBadRequest},
	{team.ErrNameRequired, http.StatusBadRequest},
	{team.ErrInvalidRole, http.StatusBadRequest},
	{team.ErrInvalidInvitation, http.StatusNotFound},

	{project.ErrNotFound, http.StatusNotFound},
	{project.ErrAlreadyExists, http.StatusConflict},
	{project.ErrNameRequired, http.StatusBadRequest},

	{notification.ErrNotFound, http.StatusNotFound},

	{forecast.ErrModelUnavailable, http.StatusServiceUnavailable},
	{forecast.ErrNotFound, http.StatusNotFound},
	{forecast.ErrInvalidMonth, http.StatusBadRequest},

	{procurement.ErrNotFound, http.StatusNotFound},
	{procurement.ErrStatusRequired, http.StatusBadRequest},
	{procurement.ErrInvalidOrder, http.StatusBadRequest},

	{inventory.ErrNotFound, http.StatusNotFound},
	{inventory.ErrAlreadyExist, http.StatusConflict},
	{inventory.ErrCodeRequired, http.StatusBadRequest},

	{dashboard.ErrAccessDenied, http.StatusForbidden},

	{mailer.ErrOutboxFull, http.StatusServiceUnavailable},
}

var errorHandler = rfc7807.Handler{
	Mapping: func(ctx context.Context, err error, dto *rfc7807.DTO) {
		for _, p := range problems {
			if !errors.Is(err, p.Err) {
				continue
			}
			dto.Type.ID = typeID(p.Err)
			dto.Title = http.StatusText(p.Status)
			dto.Status = p.Status
			dto.Detail = err.Error()
			dto.Extensions = ErrorBody{Error: p.Err.Error()}
			return
		}
		logger.Error(ctx, "unexpected error while handling request", logging.ErrField(err))
		dto.Type.ID = "internal-server-error"
		dto.Title = http.StatusText(http.StatusInternalServerError)
		dto.Status = http.StatusInternalServerError
		dto.Detail = ErrInternalServerError.Error()
		dto.Extensions = ErrorBody{Error: ErrInternalServerError.Error()}
	},
}

// typeID turns an error message into a kebab-case problem type.
func typeID(err error) string {
	fields := strings.FieldsFunc(strings.ToLower(err.Error()), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return strings.Join(fields, "-")
}
