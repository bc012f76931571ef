package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.llib.dev/frameless/pkg/contextkit"
	"go.llib.dev/frameless/pkg/httpkit"

	"plangrid/domain/account"
)

type ctxKeyUsername struct{}

var ctxUsername contextkit.ValueHandler[ctxKeyUsername, string]

// Username returns the authenticated user of the request context.
func Username(ctx context.Context) string {
	username, _ := ctxUsername.Lookup(ctx)
	return username
}

// bearerToken reads the access token from the Authorization header,
// or from the token query parameter for clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

// authenticated rejects requests without a valid access token.
func (h handlers) authenticated(next endpoint) endpoint {
	return func(w http.ResponseWriter, r *http.Request) error {
		token := bearerToken(r)
		if token == "" {
			return ErrUnauthorized
		}
		username, err := h.Accounts.Tokens.Verify(token)
		if err != nil {
			return err
		}
		return next(w, r.WithContext(ctxUsername.ContextWith(r.Context(), username)))
	}
}

func (h handlers) accountRoutes(r *httpkit.Router) {
	r.Get("/me", h.authenticated(h.me))
	r.Post("/register", endpoint(h.register))
	r.Post("/login", endpoint(h.login))
	r.Post("/forgot-password", endpoint(h.forgotPassword))
	r.Post("/reset-password", endpoint(h.resetPassword))
	r.Post("/verify-reset-token", endpoint(h.verifyResetToken))
}

func (h handlers) me(w http.ResponseWriter, r *http.Request) error {
	profile, err := h.Accounts.Me(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, profile)
}

func (h handlers) register(w http.ResponseWriter, r *http.Request) error {
	var reg account.Registration
	if err := decode(r, &reg); err != nil {
		return err
	}
	if _, err := h.Accounts.Register(r.Context(), reg); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, Message{Message: "User created successfully"})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h handlers) login(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	session, err := h.Accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, session)
}

type PasswordResetRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h handlers) forgotPassword(w http.ResponseWriter, r *http.Request) error {
	var req PasswordResetRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := h.Accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Password reset email sent successfully"})
}

func (h handlers) resetPassword(w http.ResponseWriter, r *http.Request) error {
	var req PasswordResetRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := h.Accounts.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Password reset successfully"})
}

type TokenVerification struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
}

func (h handlers) verifyResetToken(w http.ResponseWriter, r *http.Request) error {
	var req PasswordResetRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	email, err := h.Accounts.VerifyResetToken(r.Context(), req.Token)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, TokenVerification{Valid: true, Email: email})
}
