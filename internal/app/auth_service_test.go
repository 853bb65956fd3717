package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"bodyregistry/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

type mockUserRepo struct {
	getByUsernameFn func(ctx context.Context, username string) (*domain.User, error)
	getByIDFn       func(ctx context.Context, id int64) (*domain.User, error)
	createFn        func(ctx context.Context, username, passwordHash string) (*domain.User, error)
	countFn         func(ctx context.Context) (int, error)
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, username, passwordHash)
	}
	return &domain.User{ID: 1, Username: username, PasswordHash: passwordHash}, nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

type mockSessionRepo struct {
	createFn        func(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error
	getByTokenFn    func(ctx context.Context, token string) (*domain.Session, error)
	deleteFn        func(ctx context.Context, token string) error
	deleteExpiredFn func(ctx context.Context) error
}

func (m *mockSessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	if m.createFn != nil {
		return m.createFn(ctx, userID, token, userAgent, ip, expiresAt)
	}
	return nil
}

func (m *mockSessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.getByTokenFn != nil {
		return m.getByTokenFn(ctx, token)
	}
	return nil, nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, token string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, token)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) error {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return nil
}

func TestAuthService_Login_Success(t *testing.T) {
	ctx := context.Background()
	password := "testpass123"
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)

	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{
				ID:           1,
				Username:     "testuser",
				PasswordHash: string(hash),
			}, nil
		},
	}

	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
			if userID != 1 {
				t.Errorf("expected userID 1, got %d", userID)
			}
			if token == "" {
				t.Error("token should not be empty")
			}
			if userAgent != "test-agent" {
				t.Errorf("expected user agent 'test-agent', got %q", userAgent)
			}
			return nil
		},
	}

	svc := NewAuthService(users, sessions)
	token, err := svc.Login(ctx, "testuser", password, "test-agent", "127.0.0.1")

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token == "" {
		t.Error("expected token, got empty string")
	}
}

func TestAuthService_Login_InvalidPassword(t *testing.T) {
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)

	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{
				ID:           1,
				Username:     "testuser",
				PasswordHash: string(hash),
			}, nil
		},
	}

	svc := NewAuthService(users, &mockSessionRepo{})

	_, err := svc.Login(ctx, "testuser", "wrongpass", "ua", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_UnknownUser(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, &mockSessionRepo{})

	_, err := svc.Login(context.Background(), "ghost", "whatever1", "ua", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_ValidateSession_Valid(t *testing.T) {
	ctx := context.Background()
	token := "validtoken"

	sessions := &mockSessionRepo{
		getByTokenFn: func(ctx context.Context, tok string) (*domain.Session, error) {
			return &domain.Session{
				Token:     token,
				UserID:    1,
				UserAgent: "ua",
				ExpiresAt: time.Now().Add(1 * time.Hour),
			}, nil
		},
	}

	users := &mockUserRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
			return &domain.User{
				ID:       1,
				Username: "testuser",
			}, nil
		},
	}

	svc := NewAuthService(users, sessions)
	user, err := svc.ValidateSession(ctx, token, "ua")

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %s", user.Username)
	}
	if user.Caller().AccountID != "testuser" {
		t.Errorf("expected caller 'testuser', got %s", user.Caller().AccountID)
	}
}

func TestAuthService_ValidateSession_Missing(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, &mockSessionRepo{})

	_, err := svc.ValidateSession(context.Background(), "nope", "ua")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAuthService_ValidateSession_Expired(t *testing.T) {
	ctx := context.Background()
	token := "expiredtoken"

	deleted := false
	sessions := &mockSessionRepo{
		getByTokenFn: func(ctx context.Context, tok string) (*domain.Session, error) {
			return &domain.Session{
				Token:     token,
				UserID:    1,
				UserAgent: "ua",
				ExpiresAt: time.Now().Add(-1 * time.Hour),
			}, nil
		},
		deleteFn: func(ctx context.Context, tok string) error {
			deleted = true
			return nil
		},
	}

	svc := NewAuthService(&mockUserRepo{}, sessions)

	_, err := svc.ValidateSession(ctx, token, "ua")
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
	if !deleted {
		t.Error("expected session to be deleted")
	}
}

func TestAuthService_ValidateSession_UserAgentMismatch(t *testing.T) {
	deleted := false
	sessions := &mockSessionRepo{
		getByTokenFn: func(ctx context.Context, tok string) (*domain.Session, error) {
			return &domain.Session{
				Token:     tok,
				UserID:    1,
				UserAgent: "firefox",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
		deleteFn: func(ctx context.Context, tok string) error {
			deleted = true
			return nil
		},
	}

	svc := NewAuthService(&mockUserRepo{}, sessions)

	_, err := svc.ValidateSession(context.Background(), "tok", "curl")
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
	if !deleted {
		t.Error("expected session to be deleted")
	}
}

func TestAuthService_SignUp(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		existing bool
		wantErr  error
	}{
		{"ok", "alice.testnet", "password123", false, nil},
		{"taken", "alice.testnet", "password123", true, ErrUserExists},
		{"short password", "alice.testnet", "short", false, ErrWeakPassword},
		{"uppercase username", "Alice", "password123", false, ErrInvalidUsername},
		{"empty username", "", "password123", false, ErrInvalidUsername},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			created := false
			users := &mockUserRepo{
				getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
					if tc.existing {
						return &domain.User{ID: 7, Username: username}, nil
					}
					return nil, nil
				},
				createFn: func(ctx context.Context, username, passwordHash string) (*domain.User, error) {
					created = true
					if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(tc.password)) != nil {
						t.Error("stored hash does not match password")
					}
					return &domain.User{ID: 1, Username: username, PasswordHash: passwordHash}, nil
				},
			}
			svc := NewAuthService(users, &mockSessionRepo{})

			user, err := svc.SignUp(context.Background(), tc.username, tc.password)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if created {
					t.Fatal("user should not have been created")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if user.Username != tc.username {
				t.Errorf("expected username %q, got %q", tc.username, user.Username)
			}
		})
	}
}

func TestAuthService_CreateInitialUser_Success(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		countFn: func(ctx context.Context) (int, error) {
			return 0, nil
		},
		createFn: func(ctx context.Context, username, passwordHash string) (*domain.User, error) {
			if username != "admin" {
				t.Errorf("expected username 'admin', got %s", username)
			}
			if passwordHash == "" {
				t.Error("password hash should not be empty")
			}
			return &domain.User{ID: 1, Username: username}, nil
		},
	}

	svc := NewAuthService(users, &mockSessionRepo{})

	err := svc.CreateInitialUser(ctx, "admin", "password123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAuthService_CreateInitialUser_UsersExist(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		countFn: func(ctx context.Context) (int, error) {
			return 1, nil
		},
	}

	svc := NewAuthService(users, &mockSessionRepo{})

	err := svc.CreateInitialUser(ctx, "admin", "password123")
	if !errors.Is(err, ErrUsersExist) {
		t.Errorf("expected ErrUsersExist, got %v", err)
	}
}

func TestAuthService_ValidateForwardAuth_ExistingUser(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{
				ID:       1,
				Username: "ssouser",
			}, nil
		},
		createFn: func(ctx context.Context, username, passwordHash string) (*domain.User, error) {
			t.Error("existing user should not be re-created")
			return nil, errors.New("unexpected create")
		},
	}

	svc := NewAuthService(users, &mockSessionRepo{})

	user, err := svc.ValidateForwardAuth(ctx, "ssouser")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.Username != "ssouser" {
		t.Errorf("expected username 'ssouser', got %s", user.Username)
	}
}

func TestAuthService_ValidateForwardAuth_NewUser(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		createFn: func(ctx context.Context, username, passwordHash string) (*domain.User, error) {
			return &domain.User{
				ID:       2,
				Username: username,
			}, nil
		},
	}

	svc := NewAuthService(users, &mockSessionRepo{})

	user, err := svc.ValidateForwardAuth(ctx, "newssouser")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.Username != "newssouser" {
		t.Errorf("expected username 'newssouser', got %s", user.Username)
	}
}

func TestAuthService_ValidateForwardAuth_Empty(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, &mockSessionRepo{})

	if _, err := svc.ValidateForwardAuth(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty remote user")
	}
}

func TestAuthService_LoginWithUser_Provisions(t *testing.T) {
	var sessionUser int64
	users := &mockUserRepo{
		createFn: func(ctx context.Context, username, passwordHash string) (*domain.User, error) {
			if passwordHash != "" {
				t.Error("SSO users should have no password hash")
			}
			return &domain.User{ID: 9, Username: username}, nil
		},
	}
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
			sessionUser = userID
			return nil
		},
	}

	svc := NewAuthService(users, sessions)
	token, err := svc.LoginWithUser(context.Background(), "sso@example.com", "ua", "10.0.0.1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token == "" {
		t.Error("expected token")
	}
	if sessionUser != 9 {
		t.Errorf("expected session for user 9, got %d", sessionUser)
	}
}

func TestAuthService_LoginWithUser_RefusesPasswordAccount(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{ID: 1, Username: username, PasswordHash: string(hash)}, nil
		},
	}
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
			t.Error("no session should be created for a password account")
			return nil
		},
	}

	svc := NewAuthService(users, sessions)
	_, err := svc.LoginWithUser(context.Background(), "alice", "ua", "10.0.0.1")
	if !errors.Is(err, ErrPasswordAccount) {
		t.Fatalf("expected ErrPasswordAccount, got %v", err)
	}
}

func TestAuthService_LoginWithUser_ExistingSSOUser(t *testing.T) {
	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{ID: 4, Username: username}, nil
		},
		createFn: func(ctx context.Context, username, passwordHash string) (*domain.User, error) {
			t.Error("existing user should not be re-created")
			return nil, nil
		},
	}
	var sessionUser int64
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
			sessionUser = userID
			return nil
		},
	}

	svc := NewAuthService(users, sessions)
	if _, err := svc.LoginWithUser(context.Background(), "sso:bob@example.com", "ua", "10.0.0.1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sessionUser != 4 {
		t.Errorf("expected session for user 4, got %d", sessionUser)
	}
}

func TestSSOUsername(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		verified bool
		subject  string
		want     string
		wantErr  error
	}{
		{"verified email", "bob@example.com", true, "sub-1", "sso:bob@example.com", nil},
		{"unverified email falls back to subject", "alice", false, "sub-1", "sso:sub-1", nil},
		{"no email", "", false, "sub-2", "sso:sub-2", nil},
		{"nothing usable", "alice", false, "", "", ErrNoSSOIdentity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SSOUsername(tc.email, tc.verified, tc.subject)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("SSOUsername error = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("SSOUsername = %q, want %q", got, tc.want)
			}
			if got != "" && usernamePattern.MatchString(got) {
				t.Errorf("%q collides with the password username space", got)
			}
		})
	}
}

func TestAuthService_CleanupSessions(t *testing.T) {
	called := false
	sessions := &mockSessionRepo{
		deleteExpiredFn: func(ctx context.Context) error {
			called = true
			return nil
		},
	}

	svc := NewAuthService(&mockUserRepo{}, sessions)
	if err := svc.CleanupSessions(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected DeleteExpired to be called")
	}
}
