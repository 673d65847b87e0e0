package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/atlasstudio/internal/apperror"
	"github.com/sakif/atlasstudio/internal/model"
	"github.com/sakif/atlasstudio/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, provider, provider_id, email, name, avatar_url, password_hash, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *model.User) error {
	var createdAt, updatedAt int64
	if err := row.Scan(
		&u.ID,
		&u.Provider,
		&u.ProviderID,
		&u.Email,
		&u.Name,
		&u.AvatarURL,
		&u.PasswordHash,
		&createdAt,
		&updatedAt,
	); err != nil {
		return err
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return nil
}

// FindByEmail returns the user with the given email.
//
// An OAuth2 account may carry the same email as a local one. The local row
// wins, then the oldest row, so the result is deterministic.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User

	err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email = ?
		 ORDER BY (provider = 'local') DESC, id ASC
		 LIMIT 1`,
		email,
	), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: finding user by email: %w", err)
	}

	return &u, nil
}

// FindByProviderAndProviderID returns the user for the (provider, providerID) natural key.
func (db *DB) FindByProviderAndProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	var u model.User

	err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_id = ?`,
		provider, providerID,
	), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+":"+providerID)
		}
		return nil, fmt.Errorf("sqlite: finding user %s:%s: %w", provider, providerID, err)
	}

	return &u, nil
}

// Save inserts a new user (ID == 0) or updates an existing one.
// A uniqueness violation is reported as apperror.ErrConflict.
func (db *DB) Save(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Second)

	if user.ID == 0 {
		err := scanUser(db.conn.QueryRowContext(ctx,
			`INSERT INTO users (provider, provider_id, email, name, avatar_url, password_hash, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 RETURNING `+userColumns,
			user.Provider,
			user.ProviderID,
			user.Email,
			user.Name,
			user.AvatarURL,
			user.PasswordHash,
			now.Unix(),
			now.Unix(),
		), user)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("user already exists")
			}
			return fmt.Errorf("sqlite: inserting user %s:%s: %w", user.Provider, user.ProviderID, err)
		}
		return nil
	}

	// provider is immutable once the row exists, so it is not part of the SET list.
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET provider_id = ?, email = ?, name = ?, avatar_url = ?, password_hash = ?, updated_at = ?
		 WHERE id = ?`,
		user.ProviderID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.PasswordHash,
		now.Unix(),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user already exists")
		}
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update of user %d: %w", user.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", fmt.Sprint(user.ID))
	}

	user.UpdatedAt = now
	return nil
}

// UpsertByProvider is the login-time upsert.
//
// It is one statement, so two concurrent logins for the same subject cannot
// both insert: the second one takes the DO UPDATE branch. Only name,
// avatar_url and updated_at change on an existing row; id, email and
// created_at keep their original values.
func (db *DB) UpsertByProvider(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Second)

	err := scanUser(db.conn.QueryRowContext(ctx,
		`INSERT INTO users (provider, provider_id, email, name, avatar_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', ?, ?)
		 ON CONFLICT (provider, provider_id) DO UPDATE SET
			name       = excluded.name,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at
		 RETURNING `+userColumns,
		user.Provider,
		user.ProviderID,
		user.Email,
		user.Name,
		user.AvatarURL,
		now.Unix(),
		now.Unix(),
	), user)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user already exists")
		}
		return fmt.Errorf("sqlite: upserting user %s:%s: %w", user.Provider, user.ProviderID, err)
	}

	return nil
}

// FindOrCreateByProvider inserts the user if its (provider, provider_id) is
// new and then loads the stored row. ON CONFLICT DO NOTHING makes the insert a
// no-op for an existing row, so concurrent callers converge on one record.
func (db *DB) FindOrCreateByProvider(ctx context.Context, user *model.User) (bool, error) {
	now := time.Now().UTC().Truncate(time.Second)

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (provider, provider_id, email, name, avatar_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_id) DO NOTHING`,
		user.Provider,
		user.ProviderID,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.PasswordHash,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.Conflict("user already exists")
		}
		return false, fmt.Errorf("sqlite: creating user %s:%s: %w", user.Provider, user.ProviderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking insert of user %s:%s: %w", user.Provider, user.ProviderID, err)
	}

	stored, err := db.FindByProviderAndProviderID(ctx, user.Provider, user.ProviderID)
	if err != nil {
		return false, err
	}
	*user = *stored

	return n > 0, nil
}
