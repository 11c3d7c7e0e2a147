package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/metrics"
	"shaneshark.com/portfolio/internal/session"
	"shaneshark.com/portfolio/internal/store"
)

const (
	loginBurst    = 5
	loginInterval = 10 * time.Second
)

// AdminService grants the QA admin flag on a session
type AdminService struct {
	password string
	users    store.UserStore
	codes    *CodeService
	limiter  *KeyedLimiter
	now      func() time.Time
}

func NewAdminService(password string, users store.UserStore, codes *CodeService) *AdminService {
	return &AdminService{
		password: password,
		users:    users,
		codes:    codes,
		limiter:  NewKeyedLimiter(loginInterval, loginBurst),
		now:      time.Now,
	}
}

// Login checks the shared admin password and sets or clears the admin flag
func (a *AdminService) Login(ctx context.Context, sess *session.Session, password, clientIP string) (bool, error) {
	if strings.TrimSpace(password) == "" {
		return false, apperr.Params("admin password is required")
	}
	if !a.limiter.Allow(clientIP) {
		log.Warn().Str("ip", clientIP).Msg("Admin login throttled")
		return false, ErrTooManyRequests
	}

	ok := a.password != "" &&
		subtle.ConstantTimeCompare([]byte(a.password), []byte(password)) == 1
	sess.Admin = ok

	metrics.RecordLogin("password", ok)
	log.Info().Bool("success", ok).Str("ip", clientIP).Msg("QA admin login")
	return ok, nil
}

// CheckEmailOrSend reports whether email is registered and sends a code when it is not
func (a *AdminService) CheckEmailOrSend(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, apperr.Params("e-mail is required")
	}

	_, err := a.users.FindUserByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("find user: %w", err)
	}

	if err := a.codes.Send(ctx, email); err != nil {
		return false, err
	}
	return false, nil
}

// RegisterOrLogin registers a new e-mail account (code required) or checks
// the password of an existing one, then records the user on the session.
func (a *AdminService) RegisterOrLogin(ctx context.Context, sess *session.Session, email, password, code string) error {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return apperr.Params("e-mail and password are required")
	}

	user, err := a.users.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		user, err = a.register(ctx, email, password, code)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("find user: %w", err)
	default:
		ok, verr := VerifyPassword(password, user.PasswordHash)
		if verr != nil {
			log.Error().Err(verr).Str("email", email).Msg("Stored password hash is unreadable")
		}
		if !ok {
			metrics.RecordLogin("email", false)
			return apperr.Params("e-mail or password incorrect")
		}
	}

	sess.UserID = user.ID
	// a plain user keeps an admin flag obtained by password login
	if user.IsAdmin() {
		sess.Admin = true
	}

	metrics.RecordLogin("email", true)
	log.Info().Str("email", email).Bool("admin", sess.Admin).Msg("E-mail login")
	return nil
}

func (a *AdminService) register(ctx context.Context, email, password, code string) (*store.User, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperr.Params("verification code is required")
	}
	if _, err := AccountType(email); err != nil {
		return nil, err
	}
	if err := a.codes.Validate(ctx, email, code); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := a.now()
	user := &store.User{
		Account:      email,
		Email:        email,
		PasswordHash: hash,
		Role:         store.RoleUser,
		CreateTime:   now,
		UpdateTime:   now,
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		log.Error().Err(err).Str("email", email).Msg("Failed to register user")
		return nil, apperr.New(apperr.OperationError, "registration failed")
	}

	log.Info().Str("email", email).Str("id", user.ID.String()).Msg("User registered")
	return user, nil
}

// Logout clears the admin flag and the user
func (a *AdminService) Logout(sess *session.Session) {
	sess.Admin = false
	sess.UserID = 0
}
