package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bodyregistry/internal/codec"
	"bodyregistry/internal/domain"
)

const accountsNamespace = "accounts"

var _ domain.AccountRepository = (*DB)(nil)

// GetAccount returns the record stored for accountID, or nil if absent.
func (d *DB) GetAccount(ctx context.Context, accountID string) (*domain.Body, error) {
	var data []byte
	err := d.sql.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE namespace = $1 AND key = $2;",
		accountsNamespace, accountID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(accountID, data)
}

// HasAccount reports whether a record exists for accountID.
func (d *DB) HasAccount(ctx context.Context, accountID string) (bool, error) {
	var ok bool
	err := d.sql.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM kv WHERE namespace = $1 AND key = $2);",
		accountsNamespace, accountID,
	).Scan(&ok)
	return ok, err
}

// PutAccount stores body under accountID. Without overwrite an existing row
// is kept and stored is false.
func (d *DB) PutAccount(ctx context.Context, accountID string, body domain.Body, overwrite bool) (bool, error) {
	data, err := codec.Marshal(body)
	if err != nil {
		return false, err
	}

	conflict := "DO NOTHING"
	if overwrite {
		conflict = "DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at"
	}
	res, err := d.sql.ExecContext(ctx,
		"INSERT INTO kv (namespace, key, value, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (namespace, key) "+conflict+";",
		accountsNamespace, accountID, data, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateAccount locks the row, applies fn and writes the result back in one
// transaction.
func (d *DB) UpdateAccount(ctx context.Context, accountID string, fn func(*domain.Body) error) (*domain.Body, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var body *domain.Body
	var data []byte
	err = tx.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE namespace = $1 AND key = $2 FOR UPDATE;",
		accountsNamespace, accountID,
	).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		if body, err = decodeBody(accountID, data); err != nil {
			return nil, err
		}
	}

	if err := fn(body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("postgres: update of absent account %q must return an error", accountID)
	}

	data, err = codec.Marshal(*body)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE kv SET value = $3, updated_at = $4 WHERE namespace = $1 AND key = $2;",
		accountsNamespace, accountID, data, time.Now().UTC(),
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return body, nil
}

// CountAccounts returns the number of stored records.
func (d *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM kv WHERE namespace = $1;", accountsNamespace,
	).Scan(&n)
	return n, err
}

func decodeBody(accountID string, data []byte) (*domain.Body, error) {
	var b domain.Body
	if err := codec.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("account %q: %w", accountID, err)
	}
	return &b, nil
}
