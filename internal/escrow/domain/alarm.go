package escrow

import "time"

// Alarm is the escrow record of a single wake-up commitment.
// Identity: (owner, alarm id). The deposited balance lives in a vault
// created atomically with the record and destroyed when the record
// reaches a terminal status.
//
// Every transition evaluates all guards against the caller-supplied time
// snapshot before mutating anything; on any guard failure the record is
// left byte-identical to its pre-call state.
type Alarm struct {
	owner       Address
	alarmID     uint64
	address     Address
	vault       Address
	alarmTime   time.Time
	deadline    time.Time
	initial     uint64
	remaining   uint64
	route       PenaltyRoute
	destination Address // set iff route requires one
	snoozeCount uint8
	status      Status
	createdAt   time.Time
	updatedAt   time.Time
}

// CreateParams are the caller-supplied alarm creation parameters.
type CreateParams struct {
	Owner     Address
	AlarmID   uint64
	AlarmTime time.Time
	// Deadline is the window end. Zero means AlarmTime plus the policy's
	// default deadline offset.
	Deadline    time.Time
	Deposit     uint64
	Route       PenaltyRoute
	Destination Address
}

// NewAlarm validates creation parameters and builds the record with its
// vault funded at the deposited amount.
func NewAlarm(params CreateParams, now time.Time, policy Policy) (*Alarm, error) {
	if params.Owner == "" {
		return nil, ErrEmptyOwner
	}
	if !params.AlarmTime.After(now) {
		return nil, ErrAlarmTimeInPast
	}

	deadline := params.Deadline
	if deadline.IsZero() {
		deadline = params.AlarmTime.Add(policy.DefaultDeadlineOffset)
	}
	if !deadline.After(params.AlarmTime) {
		return nil, ErrInvalidDeadline
	}

	if params.Deposit > 0 && params.Deposit < policy.MinDeposit {
		return nil, ErrDepositTooSmall
	}

	if _, ok := ParsePenaltyRoute(string(params.Route)); !ok {
		return nil, ErrInvalidPenaltyRoute
	}
	if params.Route.RequiresDestination() && params.Destination == "" {
		return nil, ErrPenaltyDestinationRequired
	}
	if !params.Route.RequiresDestination() && params.Destination != "" {
		return nil, newError("PenaltyDestinationForbidden", KindValidation, "burn route takes no destination address")
	}

	address := DeriveAlarmAddress(params.Owner, params.AlarmID)
	return &Alarm{
		owner:       params.Owner,
		alarmID:     params.AlarmID,
		address:     address,
		vault:       DeriveVaultAddress(address),
		alarmTime:   params.AlarmTime.UTC(),
		deadline:    deadline.UTC(),
		initial:     params.Deposit,
		remaining:   params.Deposit,
		route:       params.Route,
		destination: params.Destination,
		snoozeCount: 0,
		status:      StatusCreated,
		createdAt:   now.UTC(),
		updatedAt:   now.UTC(),
	}, nil
}

// Acknowledge records wake proof: Created -> Acknowledged. Only the owner,
// only inside [alarm time, deadline). An acknowledged record can no longer
// be slashed.
func (a *Alarm) Acknowledge(caller Address, now time.Time) error {
	if a.status != StatusCreated {
		return ErrInvalidState
	}
	if caller != a.owner {
		return ErrUnauthorized
	}
	if now.Before(a.alarmTime) {
		return ErrTooEarly
	}
	if !now.Before(a.deadline) {
		return ErrDeadlinePassed
	}

	a.status = StatusAcknowledged
	a.updatedAt = now.UTC()
	return nil
}

// Snooze buys extra time at an exponentially growing cost sent to the sink.
// expectedCount is an optimistic-concurrency token: a retried call with a
// stale count is rejected without effect.
func (a *Alarm) Snooze(caller, sink Address, expectedCount uint8, now time.Time, policy Policy) (Effect, error) {
	if a.status != StatusCreated {
		return Effect{}, ErrInvalidState
	}
	if caller != a.owner {
		return Effect{}, ErrUnauthorized
	}
	if now.Before(a.alarmTime) {
		return Effect{}, ErrTooEarly
	}
	if !now.Before(a.deadline) {
		return Effect{}, ErrDeadlinePassed
	}
	if expectedCount != a.snoozeCount {
		return Effect{}, ErrStaleSnoozeCount
	}
	if a.snoozeCount >= policy.MaxSnoozes {
		return Effect{}, ErrMaxSnoozesReached
	}
	if sink != policy.Sink {
		return Effect{}, ErrInvalidSink
	}

	cost, err := SnoozeCost(a.remaining, a.snoozeCount, policy.SnoozePercent)
	if err != nil {
		return Effect{}, err
	}
	cost = capAtReserve(cost, a.remaining, policy.MinVaultReserve)
	if cost == 0 {
		return Effect{}, ErrInsufficientDeposit
	}

	remaining, err := subChecked(a.remaining, cost)
	if err != nil {
		return Effect{}, err
	}

	a.remaining = remaining
	a.snoozeCount++
	a.alarmTime = a.alarmTime.Add(policy.SnoozeExtension)
	a.deadline = a.deadline.Add(policy.SnoozeExtension)
	a.updatedAt = now.UTC()

	return Effect{Movements: []Movement{{From: a.vault, To: sink, Amount: cost}}}, nil
}

// Claim returns the remaining deposit to the owner. Requires a prior
// acknowledge and runs until the claim grace after the deadline expires.
func (a *Alarm) Claim(caller Address, now time.Time, policy Policy) (Effect, error) {
	if a.status != StatusAcknowledged {
		return Effect{}, ErrInvalidState
	}
	if caller != a.owner {
		return Effect{}, ErrUnauthorized
	}
	if !now.Before(a.deadline.Add(policy.ClaimGrace)) {
		return Effect{}, ErrClaimGraceExpired
	}

	effect := a.disburseAll(a.owner)
	a.status = StatusClaimed
	a.updatedAt = now.UTC()
	return effect, nil
}

// Refund cancels the commitment before the alarm fires. A penalty share
// of the remaining deposit goes to the sink, the rest back to the owner.
func (a *Alarm) Refund(caller, sink Address, now time.Time, policy Policy) (Effect, error) {
	if a.status != StatusCreated {
		return Effect{}, ErrInvalidState
	}
	if caller != a.owner {
		return Effect{}, ErrUnauthorized
	}
	if !now.Before(a.alarmTime) {
		return Effect{}, ErrTooLateForRefund
	}
	if sink != policy.Sink {
		return Effect{}, ErrInvalidSink
	}

	penalty, err := RefundPenalty(a.remaining, policy.RefundPenaltyPercent)
	if err != nil {
		return Effect{}, err
	}
	penalty = capAtReserve(penalty, a.remaining, policy.MinVaultReserve)
	returned, err := subChecked(a.remaining, penalty)
	if err != nil {
		return Effect{}, err
	}

	effect := Effect{CloseVault: true}
	if returned > 0 {
		effect.Movements = append(effect.Movements, Movement{From: a.vault, To: a.owner, Amount: returned})
	}
	if penalty > 0 {
		effect.Movements = append(effect.Movements, Movement{From: a.vault, To: sink, Amount: penalty})
	}

	a.remaining = 0
	a.status = StatusClaimed
	a.updatedAt = now.UTC()
	return effect, nil
}

// Slash forfeits the deposit after a missed deadline. Anyone may call it;
// the recipient must match the route's configured destination, and buddy
// routes give the beneficiary a priority window.
func (a *Alarm) Slash(caller, recipient Address, now time.Time, policy Policy) (Effect, error) {
	if a.status != StatusCreated {
		return Effect{}, ErrInvalidState
	}
	if now.Before(a.deadline) {
		return Effect{}, ErrDeadlineNotPassed
	}

	if a.route == RouteBuddy {
		if a.destination == "" {
			return Effect{}, ErrPenaltyDestinationUnset
		}
		if now.Before(a.deadline.Add(policy.BuddyWindow)) && caller != a.destination {
			return Effect{}, ErrBuddyOnlySlashWindow
		}
	}

	switch a.route {
	case RouteBurn:
		if recipient != policy.Sink {
			return Effect{}, ErrInvalidRecipient
		}
	case RouteDonate, RouteBuddy:
		if a.destination == "" {
			return Effect{}, ErrPenaltyDestinationUnset
		}
		if recipient != a.destination {
			return Effect{}, ErrInvalidRecipient
		}
	default:
		return Effect{}, ErrInvalidPenaltyRoute
	}

	effect := a.disburseAll(recipient)
	a.status = StatusSlashed
	a.updatedAt = now.UTC()
	return effect, nil
}

// Sweep is the permissionless, penalty-free recovery path: once the claim
// grace has elapsed on an acknowledged record, anyone may return the full
// remaining deposit to the owner.
func (a *Alarm) Sweep(now time.Time, policy Policy) (Effect, error) {
	if a.status != StatusAcknowledged {
		return Effect{}, ErrInvalidState
	}
	if now.Before(a.deadline.Add(policy.ClaimGrace)) {
		return Effect{}, ErrSweepTooEarly
	}

	effect := a.disburseAll(a.owner)
	a.status = StatusClaimed
	a.updatedAt = now.UTC()
	return effect, nil
}

// disburseAll moves the full remaining balance to a recipient and closes
// the vault. Callers set the terminal status.
func (a *Alarm) disburseAll(to Address) Effect {
	effect := Effect{CloseVault: true}
	if a.remaining > 0 {
		effect.Movements = append(effect.Movements, Movement{From: a.vault, To: to, Amount: a.remaining})
	}
	a.remaining = 0
	return effect
}

// Owner returns the record owner.
func (a *Alarm) Owner() Address { return a.owner }

// AlarmID returns the numeric alarm id.
func (a *Alarm) AlarmID() uint64 { return a.alarmID }

// Address returns the derived record address.
func (a *Alarm) Address() Address { return a.address }

// Vault returns the derived vault address.
func (a *Alarm) Vault() Address { return a.vault }

// AlarmTime returns the activation instant.
func (a *Alarm) AlarmTime() time.Time { return a.alarmTime }

// Deadline returns the window end.
func (a *Alarm) Deadline() time.Time { return a.deadline }

// InitialAmount returns the deposited amount.
func (a *Alarm) InitialAmount() uint64 { return a.initial }

// RemainingAmount returns the balance still escrowed.
func (a *Alarm) RemainingAmount() uint64 { return a.remaining }

// Route returns the penalty route.
func (a *Alarm) Route() PenaltyRoute { return a.route }

// Destination returns the penalty destination, empty for burn routes.
func (a *Alarm) Destination() Address { return a.destination }

// SnoozeCount returns how many snoozes have been used.
func (a *Alarm) SnoozeCount() uint8 { return a.snoozeCount }

// Status returns the lifecycle status.
func (a *Alarm) Status() Status { return a.status }

// CreatedAt returns the creation time.
func (a *Alarm) CreatedAt() time.Time { return a.createdAt }

// UpdatedAt returns the last transition time.
func (a *Alarm) UpdatedAt() time.Time { return a.updatedAt }

// Clone returns a detached copy.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}
	copied := *a
	return &copied
}

// AlarmSnapshot is the persistence form of an alarm record.
type AlarmSnapshot struct {
	Owner           Address
	AlarmID         uint64
	AlarmTime       time.Time
	Deadline        time.Time
	InitialAmount   uint64
	RemainingAmount uint64
	Route           PenaltyRoute
	Destination     Address
	SnoozeCount     uint8
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Snapshot captures the record for persistence.
func (a *Alarm) Snapshot() AlarmSnapshot {
	return AlarmSnapshot{
		Owner:           a.owner,
		AlarmID:         a.alarmID,
		AlarmTime:       a.alarmTime,
		Deadline:        a.deadline,
		InitialAmount:   a.initial,
		RemainingAmount: a.remaining,
		Route:           a.route,
		Destination:     a.destination,
		SnoozeCount:     a.snoozeCount,
		Status:          a.status,
		CreatedAt:       a.createdAt,
		UpdatedAt:       a.updatedAt,
	}
}

// RehydrateAlarm rebuilds a stored record. Addresses are re-derived so a
// corrupted store cannot redirect a vault.
func RehydrateAlarm(snapshot AlarmSnapshot) (*Alarm, error) {
	if snapshot.Owner == "" {
		return nil, ErrEmptyOwner
	}
	status, ok := ParseStatus(string(snapshot.Status))
	if !ok {
		return nil, ErrInvalidState
	}
	route, ok := ParsePenaltyRoute(string(snapshot.Route))
	if !ok {
		return nil, ErrInvalidPenaltyRoute
	}
	if snapshot.RemainingAmount > snapshot.InitialAmount {
		return nil, ErrOverflow
	}

	address := DeriveAlarmAddress(snapshot.Owner, snapshot.AlarmID)
	return &Alarm{
		owner:       snapshot.Owner,
		alarmID:     snapshot.AlarmID,
		address:     address,
		vault:       DeriveVaultAddress(address),
		alarmTime:   snapshot.AlarmTime.UTC(),
		deadline:    snapshot.Deadline.UTC(),
		initial:     snapshot.InitialAmount,
		remaining:   snapshot.RemainingAmount,
		route:       route,
		destination: snapshot.Destination,
		snoozeCount: snapshot.SnoozeCount,
		status:      status,
		createdAt:   snapshot.CreatedAt.UTC(),
		updatedAt:   snapshot.UpdatedAt.UTC(),
	}, nil
}
