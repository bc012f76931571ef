// Package account handles user registration, login and the password reset lifecycle.
package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"iter"
	"strings"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase/clock"
	"golang.org/x/crypto/bcrypt"

	"plangrid/port/mail"
)

const (
	ErrMissingFields       errorkit.Error = "Missing required fields"
	ErrUserExists          errorkit.Error = "User already exists"
	ErrInvalidCredentials  errorkit.Error = "Invalid credentials"
	ErrUserNotFound        errorkit.Error = "User not found"
	ErrEmailRequired       errorkit.Error = "Email is required"
	ErrEmailNotFound       errorkit.Error = "Email not found"
	ErrMissingLogin        errorkit.Error = "Missing username or password"
	ErrTokenRequired       errorkit.Error = "Token is required"
	ErrResetFieldsRequired errorkit.Error = "Token and new password are required"
	ErrPasswordTooShort    errorkit.Error = "Password must be at least 6 characters long"
	ErrInvalidResetToken   errorkit.Error = "Invalid or expired reset token"
)

const (
	RoleUser          = "user"
	MinPasswordLength = 6
	ResetTokenTTL     = time.Hour
)

type User struct {
	Username     string    `ext:"id" json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ResetToken struct {
	Token     string    `ext:"id" json:"token"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	Used      bool      `json:"used"`
}

func (t ResetToken) Valid(now time.Time) bool {
	return !t.Used && now.Sub(t.CreatedAt) < ResetTokenTTL
}

type UserRepository interface {
	crud.Creator[User]
	crud.ByIDFinder[User, string]
	crud.Updater[User]
	QueryOne(ctx context.Context, filter func(User) bool) (User, bool, error)
	QueryMany(ctx context.Context, filter func(User) bool) iter.Seq2[User, error]
}

type ResetTokenRepository interface {
	crud.Creator[ResetToken]
	crud.ByIDFinder[ResetToken, string]
	crud.Updater[ResetToken]
}

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type Service struct {
	Users       UserRepository
	ResetTokens ResetTokenRepository
	Tokens      *TokenIssuer
	Mailer      mail.Sender
	SMS         SMSSender
	// FrontendURL is the base of the links placed in emails and text messages.
	FrontendURL string
	// HashCost is the bcrypt cost, bcrypt.DefaultCost when zero.
	HashCost int
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

func (s Service) Register(ctx context.Context, reg Registration) (User, error) {
	if reg.Username == "" || reg.Email == "" || reg.Password == "" {
		return User{}, ErrMissingFields
	}
	username := NormalizeUsername(reg.Username)
	email := NormalizeEmail(reg.Email)
	_, found, err := s.Users.QueryOne(ctx, func(u User) bool {
		return u.Username == username || u.Email == email
	})
	if err != nil {
		return User{}, err
	}
	if found {
		return User{}, ErrUserExists
	}
	hash, err := s.hash(reg.Password)
	if err != nil {
		return User{}, err
	}
	u := User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		Phone:        strings.TrimSpace(reg.Phone),
		CreatedAt:    clock.Now().UTC(),
	}
	if err := s.Users.Create(ctx, &u); err != nil {
		if errors.Is(err, crud.ErrAlreadyExists) {
			return User{}, ErrUserExists
		}
		return User{}, err
	}
	logger.Info(ctx, "user registered", logging.Field("username", username))
	return u, nil
}

type Session struct {
	AccessToken string      `json:"access_token"`
	User        SessionUser `json:"user"`
}

type SessionUser struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (s Service) Login(ctx context.Context, username, password string) (Session, error) {
	if username == "" || password == "" {
		return Session{}, ErrMissingLogin
	}
	username = NormalizeUsername(username)
	u, found, err := s.Users.FindByID(ctx, username)
	if err != nil {
		return Session{}, err
	}
	if !found || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	token, err := s.Tokens.Issue(username)
	if err != nil {
		return Session{}, err
	}
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return Session{AccessToken: token, User: SessionUser{Username: username, Role: role}}, nil
}

type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (s Service) Me(ctx context.Context, username string) (Profile, error) {
	u, found, err := s.Users.FindByID(ctx, username)
	if err != nil {
		return Profile{}, err
	}
	if !found {
		return Profile{}, ErrUserNotFound
	}
	return Profile{Username: u.Username, Email: u.Email, Role: u.Role}, nil
}

// ForgotPassword stores a single-use reset token and sends the reset link.
// Delivery goes through the Mailer, which is expected to queue rather than block.
func (s Service) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailRequired
	}
	u, found, err := s.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !found {
		return ErrEmailNotFound
	}
	token, err := NewToken()
	if err != nil {
		return err
	}
	rt := ResetToken{
		Token:     token,
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: clock.Now().UTC(),
	}
	if err := s.ResetTokens.Create(ctx, &rt); err != nil {
		return err
	}
	resetURL := s.ResetURL(token)
	msg, err := mail.PasswordReset(u.Email, u.Username, resetURL)
	if err != nil {
		return err
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		logger.Warn(ctx, "failed to queue password reset email",
			logging.ErrField(err),
			logging.Field("username", u.Username))
	}
	if u.Phone != "" && s.SMS != nil {
		body := "PLANGRID: Hi " + u.Username + ", reset your password: " + resetURL + " (valid 1 hr)"
		if err := s.SMS.SendSMS(ctx, u.Phone, body); err != nil {
			logger.Warn(ctx, "failed to send password reset sms",
				logging.ErrField(err),
				logging.Field("username", u.Username))
		}
	}
	logger.Info(ctx, "password reset requested", logging.Field("username", u.Username))
	return nil
}

func (s Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrResetFieldsRequired
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	rt, err := s.validResetToken(ctx, token)
	if err != nil {
		return err
	}
	u, found, err := s.FindByEmail(ctx, rt.Email)
	if err != nil {
		return err
	}
	if !found {
		return ErrInvalidResetToken
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.Users.Update(ctx, &u); err != nil {
		return err
	}
	rt.Used = true
	return s.ResetTokens.Update(ctx, &rt)
}

// VerifyResetToken returns the email the token was issued for.
func (s Service) VerifyResetToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrTokenRequired
	}
	rt, err := s.validResetToken(ctx, token)
	if err != nil {
		return "", err
	}
	return rt.Email, nil
}

func (s Service) validResetToken(ctx context.Context, token string) (ResetToken, error) {
	rt, found, err := s.ResetTokens.FindByID(ctx, token)
	if err != nil {
		return ResetToken{}, err
	}
	if !found || !rt.Valid(clock.Now()) {
		return ResetToken{}, ErrInvalidResetToken
	}
	return rt, nil
}

// FindByEmail looks a user up by email, ignoring case.
func (s Service) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	email = NormalizeEmail(email)
	return s.Users.QueryOne(ctx, func(u User) bool {
		return strings.EqualFold(u.Email, email)
	})
}

// EmailRegistered reports whether a user exists with the given email.
func (s Service) EmailRegistered(ctx context.Context, email string) (bool, error) {
	_, found, err := s.FindByEmail(ctx, email)
	return found, err
}

func (s Service) ResetURL(token string) string {
	return strings.TrimRight(s.FrontendURL, "/") + "/reset-password?token=" + token
}

func (s Service) hash(password string) (string, error) {
	cost := s.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewToken returns 32 random bytes in URL-safe base64.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
