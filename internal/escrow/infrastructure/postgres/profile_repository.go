// Package postgres provides Postgres-backed escrow stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

const defaultProfilesTable = "user_profiles"

// ProfileRepository is a Postgres repository for user profiles.
type ProfileRepository struct {
	db    *sql.DB
	table string
}

// ProfileOption configures the repository.
type ProfileOption func(*ProfileRepository)

// WithProfilesTable overrides the table name.
func WithProfilesTable(table string) ProfileOption {
	return func(r *ProfileRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewProfileRepository constructs a repository.
func NewProfileRepository(db *sql.DB, opts ...ProfileOption) *ProfileRepository {
	repo := &ProfileRepository{db: db, table: defaultProfilesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Find fetches the owner's profile, or nil, nil when absent.
func (r *ProfileRepository) Find(ctx context.Context, owner escrow.Address) (*escrow.UserProfile, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("profile repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT owner, tag_hash, created_at
FROM %s
WHERE owner = $1`, r.table), string(owner))

	var storedOwner, tagHash string
	var createdAt sql.NullTime
	if err := row.Scan(&storedOwner, &tagHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return escrow.RehydrateUserProfile(escrow.Address(storedOwner), tagHash, createdAt.Time.UTC()), nil
}

// Create inserts a new profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *escrow.UserProfile) error {
	if r == nil || r.db == nil {
		return errors.New("profile repo: nil db")
	}
	if profile == nil {
		return errors.New("profile repo: nil profile")
	}
	result, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (owner, tag_hash, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (owner) DO NOTHING`, r.table),
		string(profile.Owner()),
		profile.TagHash(),
		profile.CreatedAt(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return escrow.ErrProfileExists
	}
	return nil
}
