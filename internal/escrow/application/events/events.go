// Package events defines the structured events emitted on every successful
// escrow transition, one per operation, for off-chain indexers.
package events

import "time"

// ProfileInitialized is emitted when a user profile is created.
type ProfileInitialized struct {
	Owner      string    `json:"owner"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AlarmCreated is emitted when a new alarm and its vault are created.
type AlarmCreated struct {
	Owner         string    `json:"owner"`
	AlarmAddress  string    `json:"alarm_address"`
	AlarmID       uint64    `json:"alarm_id"`
	AlarmTime     time.Time `json:"alarm_time"`
	Deadline      time.Time `json:"deadline"`
	DepositAmount uint64    `json:"deposit_amount"`
	PenaltyRoute  string    `json:"penalty_route"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// WakeAcknowledged is emitted when wake proof is recorded.
type WakeAcknowledged struct {
	Owner        string    `json:"owner"`
	AlarmAddress string    `json:"alarm_address"`
	AlarmID      uint64    `json:"alarm_id"`
	Attested     bool      `json:"attested"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// AlarmSnoozed is emitted when an alarm is snoozed.
type AlarmSnoozed struct {
	Owner        string    `json:"owner"`
	AlarmAddress string    `json:"alarm_address"`
	AlarmID      uint64    `json:"alarm_id"`
	SnoozeCount  uint8     `json:"snooze_count"`
	Cost         uint64    `json:"cost"`
	Remaining    uint64    `json:"remaining"`
	NewAlarmTime time.Time `json:"new_alarm_time"`
	NewDeadline  time.Time `json:"new_deadline"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// AlarmClaimed is emitted when the owner claims the remaining deposit.
type AlarmClaimed struct {
	Owner          string    `json:"owner"`
	AlarmAddress   string    `json:"alarm_address"`
	AlarmID        uint64    `json:"alarm_id"`
	ReturnedAmount uint64    `json:"returned_amount"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// AlarmSwept is emitted when a third party returns an acknowledged
// record's deposit to the owner after the claim grace.
type AlarmSwept struct {
	Owner          string    `json:"owner"`
	AlarmAddress   string    `json:"alarm_address"`
	AlarmID        uint64    `json:"alarm_id"`
	ReturnedAmount uint64    `json:"returned_amount"`
	Caller         string    `json:"caller"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// RefundExecuted is emitted when an alarm is cancelled before firing.
type RefundExecuted struct {
	Owner          string    `json:"owner"`
	AlarmAddress   string    `json:"alarm_address"`
	AlarmID        uint64    `json:"alarm_id"`
	PenaltyAmount  uint64    `json:"penalty_amount"`
	ReturnedAmount uint64    `json:"returned_amount"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// AlarmSlashed is emitted when a missed deadline forfeits the deposit.
type AlarmSlashed struct {
	Owner         string    `json:"owner"`
	AlarmAddress  string    `json:"alarm_address"`
	AlarmID       uint64    `json:"alarm_id"`
	Recipient     string    `json:"recipient"`
	SlashedAmount uint64    `json:"slashed_amount"`
	Caller        string    `json:"caller"`
	OccurredAt    time.Time `json:"occurred_at"`
}
