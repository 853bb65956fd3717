package app

import (
	"context"
	"errors"
	"fmt"

	"bodyregistry/internal/domain"
)

var (
	// ErrNotFound indicates that no record exists for the account.
	ErrNotFound = errors.New("account not found")
	// ErrAccessDenied indicates that the caller does not own the account.
	ErrAccessDenied = errors.New("access denied")
	// ErrAlreadyInitialized indicates that the store already holds accounts.
	ErrAlreadyInitialized = errors.New("registry already initialized")
	// ErrAlreadyRegistered indicates that the caller already has a record and
	// the registry rejects re-registration.
	ErrAlreadyRegistered = errors.New("account already registered")
	// ErrAnonymousCaller indicates that an operation needing an identity was
	// invoked without one.
	ErrAnonymousCaller = errors.New("caller identity required")
)

// RegistrationPolicy controls what Register does when the caller already has
// a record.
type RegistrationPolicy int

const (
	// OverwriteOnRegister replaces the existing record, weight history
	// included.
	OverwriteOnRegister RegistrationPolicy = iota
	// RejectReregistration fails with ErrAlreadyRegistered.
	RejectReregistration
)

// Registry maps account identifiers to measurement records and enforces
// ownership on updates.
type Registry struct {
	accounts domain.AccountRepository
	policy   RegistrationPolicy
}

// NewRegistry attaches a Registry to an existing account store.
func NewRegistry(accounts domain.AccountRepository, policy RegistrationPolicy) *Registry {
	return &Registry{accounts: accounts, policy: policy}
}

// Initialize creates a Registry over an empty account store. It refuses to
// run against a store that already holds accounts.
func Initialize(ctx context.Context, accounts domain.AccountRepository, policy RegistrationPolicy) (*Registry, error) {
	n, err := accounts.CountAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %d accounts present", ErrAlreadyInitialized, n)
	}
	return NewRegistry(accounts, policy), nil
}

// Register stores a new record with a single weight sample under the caller's
// account.
func (r *Registry) Register(ctx context.Context, caller domain.Caller, age, height uint8, weight float32) (*domain.Body, error) {
	if caller.AccountID == "" {
		return nil, ErrAnonymousCaller
	}
	body := domain.NewBody(age, height, weight)
	stored, err := r.accounts.PutAccount(ctx, caller.AccountID, body, r.policy == OverwriteOnRegister)
	if err != nil {
		return nil, err
	}
	if !stored {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, caller.AccountID)
	}
	return &body, nil
}

// GetRecord returns the record stored for accountID.
func (r *Registry) GetRecord(ctx context.Context, accountID string) (*domain.Body, error) {
	body, err := r.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}
	return body, nil
}

// HasRecord reports whether accountID has a record.
func (r *Registry) HasRecord(ctx context.Context, accountID string) (bool, error) {
	return r.accounts.HasAccount(ctx, accountID)
}

// AddWeight appends a sample to accountID's record. Only the owner may do so;
// the ownership check runs before the store is touched.
func (r *Registry) AddWeight(ctx context.Context, caller domain.Caller, accountID string, weight float32) (*domain.Body, error) {
	if caller.AccountID == "" || !ConstantTimeCompare(caller.AccountID, accountID) {
		return nil, ErrAccessDenied
	}
	return r.accounts.UpdateAccount(ctx, accountID, func(b *domain.Body) error {
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, accountID)
		}
		b.AppendWeight(weight)
		return nil
	})
}
