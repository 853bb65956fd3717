// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"bodyregistry/internal/codec"
	"bodyregistry/internal/domain"
)

const accountsNamespace = "accounts/"

// DB implements an in-memory database storage. Every call holds the same
// mutex, so operations are serialized the way a single-writer host would.
type DB struct {
	mu       sync.Mutex
	kv       map[string][]byte
	users    []*domain.User
	sessions map[string]*domain.Session

	userIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		kv:       make(map[string][]byte),
		sessions: make(map[string]*domain.Session),
	}
}

// Ensure interfaces are met.
var _ domain.AccountRepository = (*DB)(nil)
var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- AccountRepository ---

// GetAccount returns the record stored for accountID.
func (db *DB) GetAccount(ctx context.Context, accountID string) (*domain.Body, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.loadLocked(accountID)
}

// HasAccount reports whether a record exists for accountID.
func (db *DB) HasAccount(ctx context.Context, accountID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.kv[accountsNamespace+accountID]
	return ok, nil
}

// PutAccount stores body under accountID.
func (db *DB) PutAccount(ctx context.Context, accountID string, body domain.Body, overwrite bool) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := accountsNamespace + accountID
	if _, ok := db.kv[key]; ok && !overwrite {
		return false, nil
	}
	if err := db.storeLocked(accountID, body); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAccount applies fn to the stored record and writes the result back.
func (db *DB) UpdateAccount(ctx context.Context, accountID string, fn func(*domain.Body) error) (*domain.Body, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	body, err := db.loadLocked(accountID)
	if err != nil {
		return nil, err
	}
	if err := fn(body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("memory: update of absent account must return an error")
	}
	if err := db.storeLocked(accountID, *body); err != nil {
		return nil, err
	}
	return body, nil
}

// CountAccounts returns the number of stored records.
func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	n := 0
	for k := range db.kv {
		if strings.HasPrefix(k, accountsNamespace) {
			n++
		}
	}
	return n, nil
}

func (db *DB) loadLocked(accountID string) (*domain.Body, error) {
	data, ok := db.kv[accountsNamespace+accountID]
	if !ok {
		return nil, nil
	}
	var b domain.Body
	if err := codec.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (db *DB) storeLocked(accountID string, body domain.Body) error {
	data, err := codec.Marshal(body)
	if err != nil {
		return err
	}
	db.kv[accountsNamespace+accountID] = data
	return nil
}

// --- UserRepository ---

// GetByUsername retrieves a user by username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return u, nil
		}
	}
	// Return nil if not found
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, errors.New("user already exists")
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	return u, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		return s, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}
