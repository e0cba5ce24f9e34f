// Package memory provides in-memory escrow stores for tests and for
// running the service without Postgres.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/attestation"
	"github.com/sapirl7/solarma-sub000/internal/escrow/application"
	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

// ProfileRepository keeps user profiles in a map.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[escrow.Address]*escrow.UserProfile
}

// NewProfileRepository constructs an empty profile repository.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[escrow.Address]*escrow.UserProfile)}
}

// Find returns the owner's profile, or nil, nil when absent.
func (r *ProfileRepository) Find(ctx context.Context, owner escrow.Address) (*escrow.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[owner]
	if !ok {
		return nil, nil
	}
	return profile.Clone(), nil
}

// Create persists a new profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *escrow.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[profile.Owner()]; ok {
		return escrow.ErrProfileExists
	}
	r.profiles[profile.Owner()] = profile.Clone()
	return nil
}

// AlarmRepository keeps alarm records, vault balances, and the
// disbursement log under one lock, so Create and Commit are atomic the
// way the store contract requires.
type AlarmRepository struct {
	mu            sync.RWMutex
	alarms        map[escrow.Address]*escrow.Alarm
	order         []escrow.Address
	vaults        map[escrow.Address]uint64
	disbursements []application.Disbursement
}

// NewAlarmRepository constructs an empty alarm repository.
func NewAlarmRepository() *AlarmRepository {
	return &AlarmRepository{
		alarms: make(map[escrow.Address]*escrow.Alarm),
		vaults: make(map[escrow.Address]uint64),
	}
}

// Find returns the record for (owner, alarmID), or nil, nil.
func (r *AlarmRepository) Find(ctx context.Context, owner escrow.Address, alarmID uint64) (*escrow.Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	alarm, ok := r.alarms[escrow.DeriveAlarmAddress(owner, alarmID)]
	if !ok {
		return nil, nil
	}
	return alarm.Clone(), nil
}

// ListByOwner returns the owner's records in creation order.
func (r *AlarmRepository) ListByOwner(ctx context.Context, owner escrow.Address) ([]*escrow.Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var alarms []*escrow.Alarm
	for _, address := range r.order {
		alarm, ok := r.alarms[address]
		if !ok {
			continue
		}
		if alarm.Owner() == owner {
			alarms = append(alarms, alarm.Clone())
		}
	}
	return alarms, nil
}

// Create persists a new record and opens its vault at the deposit.
func (r *AlarmRepository) Create(ctx context.Context, alarm *escrow.Alarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alarms[alarm.Address()]; ok {
		return escrow.ErrAlarmExists
	}
	r.alarms[alarm.Address()] = alarm.Clone()
	r.order = append(r.order, alarm.Address())
	r.vaults[alarm.Vault()] = alarm.InitialAmount()
	return nil
}

// Commit persists the mutated record and applies the transition effect.
func (r *AlarmRepository) Commit(ctx context.Context, alarm *escrow.Alarm, effect escrow.Effect, operation string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alarms[alarm.Address()]; !ok {
		return escrow.ErrAlarmNotFound
	}
	for _, movement := range effect.Movements {
		balance, ok := r.vaults[movement.From]
		if !ok {
			return fmt.Errorf("memory: vault %s not open", movement.From)
		}
		if balance < movement.Amount {
			return fmt.Errorf("memory: vault %s underfunded: %d < %d", movement.From, balance, movement.Amount)
		}
		r.vaults[movement.From] = balance - movement.Amount
		r.disbursements = append(r.disbursements, application.Disbursement{
			AlarmAddress: alarm.Address(),
			Owner:        alarm.Owner(),
			To:           movement.To,
			Amount:       movement.Amount,
			Operation:    operation,
			At:           at,
		})
	}
	if effect.CloseVault {
		delete(r.vaults, alarm.Vault())
	}
	r.alarms[alarm.Address()] = alarm.Clone()
	return nil
}

// VaultBalance reports the vault's balance.
func (r *AlarmRepository) VaultBalance(ctx context.Context, vault escrow.Address) (uint64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	balance, ok := r.vaults[vault]
	return balance, ok, nil
}

// ListDisbursements returns the owner's disbursements, oldest first.
func (r *AlarmRepository) ListDisbursements(ctx context.Context, owner escrow.Address) ([]application.Disbursement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []application.Disbursement
	for _, disbursement := range r.disbursements {
		if disbursement.Owner == owner {
			out = append(out, disbursement)
		}
	}
	return out, nil
}

// NonceStore records used permit nonces in a map.
type NonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
}

// NewNonceStore constructs an empty nonce store.
func NewNonceStore() *NonceStore {
	return &NonceStore{nonces: make(map[string]time.Time)}
}

// Use marks the permit nonce consumed for the alarm. Expired entries are
// pruned lazily.
func (s *NonceStore) Use(ctx context.Context, alarm escrow.Address, nonce uint64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%d", alarm, nonce)
	if _, ok := s.nonces[key]; ok {
		return attestation.ErrPermitReplayed
	}
	now := time.Now()
	for existing, expiry := range s.nonces {
		if expiry.Before(now) {
			delete(s.nonces, existing)
		}
	}
	s.nonces[key] = expiresAt
	return nil
}
