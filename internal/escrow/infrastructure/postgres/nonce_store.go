package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/attestation"
	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

const defaultNoncesTable = "permit_nonces"

// NonceStore records used attestation permit nonces.
type NonceStore struct {
	db    *sql.DB
	table string
}

// NonceOption configures the store.
type NonceOption func(*NonceStore)

// WithNoncesTable overrides the table name.
func WithNoncesTable(table string) NonceOption {
	return func(s *NonceStore) {
		if table != "" {
			s.table = table
		}
	}
}

// NewNonceStore constructs a store.
func NewNonceStore(db *sql.DB, opts ...NonceOption) *NonceStore {
	store := &NonceStore{db: db, table: defaultNoncesTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Use marks the nonce consumed for the alarm. A second use fails with
// attestation.ErrPermitReplayed.
func (s *NonceStore) Use(ctx context.Context, alarm escrow.Address, nonce uint64, expiresAt time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("nonce store: nil db")
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (alarm_address, nonce, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (alarm_address, nonce) DO NOTHING`, s.table),
		string(alarm), int64(nonce), expiresAt,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return attestation.ErrPermitReplayed
	}
	return nil
}

// Prune deletes nonces whose permits have expired.
func (s *NonceStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("nonce store: nil db")
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
DELETE FROM %s
WHERE expires_at < $1`, s.table), now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
