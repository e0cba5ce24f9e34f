package application

import (
	"context"
	"time"

	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

// ProfileStore persists user profiles.
type ProfileStore interface {
	// Find returns nil, nil when no profile exists for the owner.
	Find(ctx context.Context, owner escrow.Address) (*escrow.UserProfile, error)
	// Create fails with escrow.ErrProfileExists on duplicate owners.
	Create(ctx context.Context, profile *escrow.UserProfile) error
}

// AlarmStore persists alarm records, their vault balances, and the
// disbursement log. Create and Commit are atomic: either the record
// mutation and every balance movement land together, or none do.
type AlarmStore interface {
	// Find returns nil, nil when no record exists for (owner, alarmID).
	Find(ctx context.Context, owner escrow.Address, alarmID uint64) (*escrow.Alarm, error)
	// ListByOwner returns the owner's records, oldest first.
	ListByOwner(ctx context.Context, owner escrow.Address) ([]*escrow.Alarm, error)
	// Create persists a new record and opens its vault funded at the
	// deposit. Fails with escrow.ErrAlarmExists on duplicates.
	Create(ctx context.Context, alarm *escrow.Alarm) error
	// Commit persists a mutated record and applies the transition effect:
	// debits the vault per movement, records each disbursement, and
	// destroys the vault when the effect closes it.
	Commit(ctx context.Context, alarm *escrow.Alarm, effect escrow.Effect, operation string, at time.Time) error
	// VaultBalance reports the vault's balance; ok is false once the
	// vault has been destroyed or never existed.
	VaultBalance(ctx context.Context, vault escrow.Address) (balance uint64, ok bool, err error)
	// ListDisbursements returns all balance movements out of the owner's
	// vaults, oldest first.
	ListDisbursements(ctx context.Context, owner escrow.Address) ([]Disbursement, error)
}

// PermitNonceStore records used attestation permit nonces.
type PermitNonceStore interface {
	// Use marks the nonce consumed for the alarm; a second use fails.
	Use(ctx context.Context, alarm escrow.Address, nonce uint64, expiresAt time.Time) error
}

// Disbursement is one balance movement out of a vault, kept for statement
// export and conservation audits.
type Disbursement struct {
	AlarmAddress escrow.Address `json:"alarm_address"`
	Owner        escrow.Address `json:"owner"`
	To           escrow.Address `json:"to"`
	Amount       uint64         `json:"amount"`
	Operation    string         `json:"operation"`
	At           time.Time      `json:"at"`
}
