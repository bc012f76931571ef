package httpapi

import (
	"fmt"
	"net/http"

	"go.llib.dev/frameless/pkg/httpkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"

	"plangrid/adapter/mailer"
	"plangrid/domain/account"
)

func (h handlers) mailRoutes(r *httpkit.Router) {
	r.Get("/test-email-config", endpoint(h.emailConfig))
	r.Post("/test-send-email", endpoint(h.sendTestEmail))
}

func (h handlers) emailConfig(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, h.MailStatus)
}

type TestEmailRequest struct {
	Email string `json:"email"`
}

type TestEmailResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// sendTestEmail delivers synchronously so the caller learns whether the provider chain works.
func (h handlers) sendTestEmail(w http.ResponseWriter, r *http.Request) error {
	var req TestEmailRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.Email == "" {
		return account.ErrEmailRequired
	}
	if err := h.Mailer.Send(r.Context(), mailer.TestMessage(req.Email)); err != nil {
		logger.Error(r.Context(), "test email failed", logging.ErrField(err), logging.Field("to", req.Email))
		return writeJSON(w, http.StatusInternalServerError, TestEmailResult{
			Success: false,
			Message: "Email sending failed. Check server logs for details.",
		})
	}
	return writeJSON(w, http.StatusOK, TestEmailResult{
		Success: true,
		Message: fmt.Sprintf("Test email sent to %s. Check your inbox!", req.Email),
	})
}
