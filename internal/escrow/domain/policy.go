package escrow

import (
	"errors"
	"time"
)

// Policy holds the economic constants governing every escrow transition.
// It is fixed per deployment; a record never changes policy after creation.
type Policy struct {
	// MinDeposit is the smallest accepted non-zero deposit, in smallest units.
	MinDeposit uint64
	// SnoozePercent is the base snooze cost percentage of remaining.
	SnoozePercent uint64
	// MaxSnoozes blocks further snoozes once reached.
	MaxSnoozes uint8
	// RefundPenaltyPercent is charged on emergency refunds before alarm time.
	RefundPenaltyPercent uint64
	// SnoozeExtension shifts both alarm time and deadline per snooze.
	SnoozeExtension time.Duration
	// ClaimGrace is the window after deadline during which an acknowledged
	// record may still be claimed by its owner.
	ClaimGrace time.Duration
	// BuddyWindow is the period after deadline during which only the buddy
	// beneficiary may slash a buddy-routed record.
	BuddyWindow time.Duration
	// DefaultDeadlineOffset is applied when create omits a deadline.
	DefaultDeadlineOffset time.Duration
	// MinVaultReserve is the residual balance a penalty transfer may never
	// take the vault below. Penalties are reduced to respect it.
	MinVaultReserve uint64
	// Sink receives burned penalties.
	Sink Address
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinDeposit:            1_000_000,
		SnoozePercent:         10,
		MaxSnoozes:            10,
		RefundPenaltyPercent:  5,
		SnoozeExtension:       300 * time.Second,
		ClaimGrace:            120 * time.Second,
		BuddyWindow:           120 * time.Second,
		DefaultDeadlineOffset: 1800 * time.Second,
		MinVaultReserve:       890_880,
		Sink:                  BurnSink,
	}
}

// Validate rejects unusable policies.
func (p Policy) Validate() error {
	if p.SnoozePercent == 0 || p.SnoozePercent > 100 {
		return errors.New("escrow: snooze percent must be in 1..100")
	}
	if p.RefundPenaltyPercent > 100 {
		return errors.New("escrow: refund penalty percent must be at most 100")
	}
	if p.SnoozeExtension <= 0 {
		return errors.New("escrow: snooze extension must be positive")
	}
	if p.ClaimGrace < 0 || p.BuddyWindow < 0 {
		return errors.New("escrow: negative grace window")
	}
	if p.Sink == "" {
		return errors.New("escrow: empty sink address")
	}
	return nil
}
