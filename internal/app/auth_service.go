// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"time"

	"bodyregistry/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials indicates that the provided username or password was incorrect.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists indicates that the username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUsersExist indicates that the initial user can no longer be created.
	ErrUsersExist = errors.New("users already exist")
	// ErrInvalidUsername indicates a username that cannot serve as an account id.
	ErrInvalidUsername = errors.New("username must be 2-64 characters of a-z, 0-9, '.', '_' or '-'")
	// ErrWeakPassword indicates a password shorter than minPasswordLen.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrPasswordAccount indicates an SSO login that resolved to a user who
	// signs in with a password.
	ErrPasswordAccount = errors.New("account is bound to password login")
	// ErrNoSSOIdentity indicates an identity token with neither a verified
	// email nor a subject.
	ErrNoSSOIdentity = errors.New("identity token carries no usable subject")
)

const (
	sessionTTL     = 24 * time.Hour
	minPasswordLen = 8

	// ssoUsernamePrefix keeps SSO identities out of the password username
	// space; usernamePattern never admits ':'.
	ssoUsernamePrefix = "sso:"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._-]{2,64}$`)

// AuthService handles authentication and session management.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
	}
}

// Login authenticates a user and creates a session.
func (s *AuthService) Login(ctx context.Context, username, password, userAgent, ip string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil || user == nil || user.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.startSession(ctx, user, userAgent, ip)
}

// Logout invalidates a session.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// ValidateSession checks if a session token is valid and matches the user agent.
func (s *AuthService) ValidateSession(ctx context.Context, token, userAgent string) (*domain.User, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil || session == nil {
		return nil, ErrSessionNotFound
	}

	if time.Now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	if session.UserAgent != userAgent {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// SignUp creates a password-backed user. The username becomes the account
// identifier that owns a registry record.
func (s *AuthService) SignUp(ctx context.Context, username, password string) (*domain.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.users.Create(ctx, username, string(hash))
}

// CreateInitialUser creates the first user if no users exist.
func (s *AuthService) CreateInitialUser(ctx context.Context, username, password string) error {
	count, err := s.users.Count(ctx)
	if err != nil {
		return err
	}

	if count > 0 {
		return ErrUsersExist
	}

	_, err = s.SignUp(ctx, username, password)
	return err
}

// ValidateForwardAuth validates a request from Authelia forward auth.
// It checks for the Remote-User header set by Authelia.
func (s *AuthService) ValidateForwardAuth(ctx context.Context, remoteUser string) (*domain.User, error) {
	if remoteUser == "" {
		return nil, errors.New("no remote user header")
	}

	user, err := s.users.GetByUsername(ctx, remoteUser)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Auto-create user from SSO if they don't exist
		user, err = s.users.Create(ctx, remoteUser, "")
		if err != nil {
			return nil, err
		}
	}

	return user, nil
}

// SSOUsername derives the account identifier for an OIDC identity. The email
// is used only when the provider marks it verified; otherwise the subject is.
func SSOUsername(email string, emailVerified bool, subject string) (string, error) {
	switch {
	case email != "" && emailVerified:
		return ssoUsernamePrefix + email, nil
	case subject != "":
		return ssoUsernamePrefix + subject, nil
	default:
		return "", ErrNoSSOIdentity
	}
}

// LoginWithUser creates a session for an already authenticated user (e.g. via SSO).
// It refuses users that have a password, so an external identity can never
// take over a password account.
func (s *AuthService) LoginWithUser(ctx context.Context, username, userAgent, ip string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil {
		// Auto-provision with an empty password hash; SSO users cannot use
		// password login.
		user, err = s.users.Create(ctx, username, "")
		if err != nil {
			// Lost a race with a concurrent provision.
			user, err = s.users.GetByUsername(ctx, username)
			if err != nil || user == nil {
				return "", fmt.Errorf("provision %s: %w", username, ErrUserNotFound)
			}
		}
	}
	if user.PasswordHash != "" {
		return "", ErrPasswordAccount
	}

	return s.startSession(ctx, user, userAgent, ip)
}

// CleanupSessions removes expired sessions.
func (s *AuthService) CleanupSessions(ctx context.Context) error {
	return s.sessions.DeleteExpired(ctx)
}

func (s *AuthService) startSession(ctx context.Context, user *domain.User, userAgent, ip string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(sessionTTL)
	if err := s.sessions.Create(ctx, user.ID, token, userAgent, ip, expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ConstantTimeCompare performs a constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
