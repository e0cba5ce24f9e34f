package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/attestation"
	"github.com/sapirl7/solarma-sub000/internal/escrow/application/events"
	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
	"github.com/sapirl7/solarma-sub000/internal/observability/metrics"
)

// Operation names used in events, metrics, and the disbursement log.
const (
	OpInitialize  = "initialize"
	OpCreate      = "create"
	OpAcknowledge = "acknowledge"
	OpSnooze      = "snooze"
	OpClaim       = "claim"
	OpRefund      = "refund"
	OpSlash       = "slash"
	OpSweep       = "sweep"
)

// EventPublisher appends transition events. Emission failures never fail
// the transition; the service logs and moves on.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Service executes the escrow state machine. Every operation snapshots
// the record, evaluates all guards against one clock reading, and commits
// record mutation plus balance movements atomically under the record's
// lock.
type Service struct {
	profiles ProfileStore
	alarms   AlarmStore
	nonces   PermitNonceStore
	bus      EventPublisher
	clock    escrow.Clock
	policy   escrow.Policy
	verifier *attestation.Verifier
	locks    *recordLocks
	logger   *log.Logger
}

// Option configures the service.
type Option func(*Service)

// WithVerifier enables attested acknowledge with the given permit verifier.
func WithVerifier(verifier *attestation.Verifier) Option {
	return func(s *Service) { s.verifier = verifier }
}

// WithClock overrides the clock. Tests use it to pin time.
func WithClock(clock escrow.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService constructs the escrow service.
func NewService(profiles ProfileStore, alarms AlarmStore, nonces PermitNonceStore, bus EventPublisher, policy escrow.Policy, logger *log.Logger, opts ...Option) (*Service, error) {
	if profiles == nil {
		return nil, errors.New("escrow service: nil profile store")
	}
	if alarms == nil {
		return nil, errors.New("escrow service: nil alarm store")
	}
	if logger == nil {
		return nil, errors.New("escrow service: nil logger")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	service := &Service{
		profiles: profiles,
		alarms:   alarms,
		nonces:   nonces,
		bus:      bus,
		clock:    escrow.SystemClock{},
		policy:   policy,
		locks:    newRecordLocks(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Policy returns the active economic policy.
func (s *Service) Policy() escrow.Policy { return s.policy }

// InitializeRequest creates a user profile.
type InitializeRequest struct {
	Caller  escrow.Address
	TagHash string
}

// ProfileView is the read model of a profile.
type ProfileView struct {
	Owner     string    `json:"owner"`
	TagHash   string    `json:"tag_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Initialize creates the caller's profile. At most one per owner.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (result *ProfileView, err error) {
	defer s.observe(OpInitialize, time.Now(), &err)

	now := s.clock.Now()
	profile, err := escrow.NewUserProfile(req.Caller, req.TagHash, now)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire("profile|" + req.Caller)
	defer unlock()

	existing, err := s.profiles.Find(ctx, req.Caller)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, escrow.ErrProfileExists
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, err
	}

	s.publish(ctx, events.ProfileInitialized{Owner: string(req.Caller), OccurredAt: now})
	return &ProfileView{Owner: string(profile.Owner()), TagHash: profile.TagHash(), CreatedAt: profile.CreatedAt()}, nil
}

// CreateAlarmRequest schedules a commitment with an escrowed deposit.
type CreateAlarmRequest struct {
	Caller    escrow.Address
	AlarmID   uint64
	AlarmTime time.Time
	// Deadline is optional; zero applies the policy's default offset.
	Deadline    time.Time
	Deposit     uint64
	Route       string
	Destination escrow.Address
}

// CreateAlarm creates an alarm record and its vault.
func (s *Service) CreateAlarm(ctx context.Context, req CreateAlarmRequest) (result *AlarmView, err error) {
	defer s.observe(OpCreate, time.Now(), &err)

	now := s.clock.Now()
	alarm, err := escrow.NewAlarm(escrow.CreateParams{
		Owner:       req.Caller,
		AlarmID:     req.AlarmID,
		AlarmTime:   req.AlarmTime,
		Deadline:    req.Deadline,
		Deposit:     req.Deposit,
		Route:       escrow.PenaltyRoute(req.Route),
		Destination: req.Destination,
	}, now, s.policy)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(alarm.Address())
	defer unlock()

	existing, err := s.alarms.Find(ctx, req.Caller, req.AlarmID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, escrow.ErrAlarmExists
	}
	if err := s.alarms.Create(ctx, alarm); err != nil {
		return nil, err
	}

	s.publish(ctx, events.AlarmCreated{
		Owner:         string(alarm.Owner()),
		AlarmAddress:  string(alarm.Address()),
		AlarmID:       alarm.AlarmID(),
		AlarmTime:     alarm.AlarmTime(),
		Deadline:      alarm.Deadline(),
		DepositAmount: alarm.InitialAmount(),
		PenaltyRoute:  string(alarm.Route()),
		OccurredAt:    now,
	})
	return viewOf(alarm), nil
}

// AcknowledgeRequest records wake proof. A non-empty Permit switches to
// attested mode: the permit must verify and its nonce must be fresh.
type AcknowledgeRequest struct {
	Caller  escrow.Address
	AlarmID uint64
	Permit  string
}

// Acknowledge transitions Created -> Acknowledged for the caller's alarm.
func (s *Service) Acknowledge(ctx context.Context, req AcknowledgeRequest) (result *AlarmView, err error) {
	defer s.observe(OpAcknowledge, time.Now(), &err)

	address := escrow.DeriveAlarmAddress(req.Caller, req.AlarmID)
	unlock := s.locks.acquire(address)
	defer unlock()

	alarm, err := s.loadAlarm(ctx, req.Caller, req.AlarmID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	attested := false
	var permit *attestation.Permit
	if req.Permit != "" {
		if s.verifier == nil || s.nonces == nil {
			return nil, attestation.ErrPermitInvalid
		}
		permit, err = s.verifier.Verify(req.Permit, string(address), string(req.Caller), now)
		if err != nil {
			metrics.IncPermitVerification(metrics.ResultError)
			return nil, err
		}
		metrics.IncPermitVerification(metrics.ResultSuccess)
		attested = true
	}

	if err := alarm.Acknowledge(req.Caller, now); err != nil {
		return nil, err
	}
	// Consume the nonce only once the transition is accepted: a rejected
	// acknowledge must leave the permit usable for a retry.
	if permit != nil {
		if err := s.nonces.Use(ctx, address, permit.Nonce, permit.ExpiresAt); err != nil {
			return nil, err
		}
	}
	if err := s.alarms.Commit(ctx, alarm, escrow.Effect{}, OpAcknowledge, now); err != nil {
		return nil, err
	}

	s.publish(ctx, events.WakeAcknowledged{
		Owner:        string(alarm.Owner()),
		AlarmAddress: string(alarm.Address()),
		AlarmID:      alarm.AlarmID(),
		Attested:     attested,
		OccurredAt:   now,
	})
	return viewOf(alarm), nil
}

// SnoozeRequest buys extra time. ExpectedSnoozeCount is the idempotency
// token; Sink defaults to the policy sink when empty.
type SnoozeRequest struct {
	Caller              escrow.Address
	AlarmID             uint64
	ExpectedSnoozeCount uint8
	Sink                escrow.Address
}

// Snooze shifts alarm time and deadline at an exponential cost.
func (s *Service) Snooze(ctx context.Context, req SnoozeRequest) (result *TransitionResult, err error) {
	defer s.observe(OpSnooze, time.Now(), &err)

	sink := req.Sink
	if sink == "" {
		sink = s.policy.Sink
	}

	address := escrow.DeriveAlarmAddress(req.Caller, req.AlarmID)
	unlock := s.locks.acquire(address)
	defer unlock()

	alarm, err := s.loadAlarm(ctx, req.Caller, req.AlarmID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	effect, err := alarm.Snooze(req.Caller, sink, req.ExpectedSnoozeCount, now, s.policy)
	if err != nil {
		return nil, err
	}
	if err := s.alarms.Commit(ctx, alarm, effect, OpSnooze, now); err != nil {
		return nil, err
	}
	metrics.AmountMoved(OpSnooze, "sink", effect.Moved(sink))

	s.publish(ctx, events.AlarmSnoozed{
		Owner:        string(alarm.Owner()),
		AlarmAddress: string(alarm.Address()),
		AlarmID:      alarm.AlarmID(),
		SnoozeCount:  alarm.SnoozeCount(),
		Cost:         effect.Moved(sink),
		Remaining:    alarm.RemainingAmount(),
		NewAlarmTime: alarm.AlarmTime(),
		NewDeadline:  alarm.Deadline(),
		OccurredAt:   now,
	})
	return transitionResult(alarm, effect), nil
}

// ClaimRequest returns the remaining deposit after an acknowledge.
type ClaimRequest struct {
	Caller  escrow.Address
	AlarmID uint64
}

// Claim transitions Acknowledged -> Claimed and disburses to the owner.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (result *TransitionResult, err error) {
	defer s.observe(OpClaim, time.Now(), &err)

	address := escrow.DeriveAlarmAddress(req.Caller, req.AlarmID)
	unlock := s.locks.acquire(address)
	defer unlock()

	alarm, err := s.loadAlarm(ctx, req.Caller, req.AlarmID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	effect, err := alarm.Claim(req.Caller, now, s.policy)
	if err != nil {
		return nil, err
	}
	if err := s.alarms.Commit(ctx, alarm, effect, OpClaim, now); err != nil {
		return nil, err
	}
	metrics.AmountMoved(OpClaim, "owner", effect.Moved(alarm.Owner()))

	s.publish(ctx, events.AlarmClaimed{
		Owner:          string(alarm.Owner()),
		AlarmAddress:   string(alarm.Address()),
		AlarmID:        alarm.AlarmID(),
		ReturnedAmount: effect.Moved(alarm.Owner()),
		OccurredAt:     now,
	})
	return transitionResult(alarm, effect), nil
}

// RefundRequest cancels the commitment before the alarm fires.
type RefundRequest struct {
	Caller  escrow.Address
	AlarmID uint64
	Sink    escrow.Address
}

// Refund transitions Created -> Claimed before alarm time, charging the
// early-cancellation penalty.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (result *TransitionResult, err error) {
	defer s.observe(OpRefund, time.Now(), &err)

	sink := req.Sink
	if sink == "" {
		sink = s.policy.Sink
	}

	address := escrow.DeriveAlarmAddress(req.Caller, req.AlarmID)
	unlock := s.locks.acquire(address)
	defer unlock()

	alarm, err := s.loadAlarm(ctx, req.Caller, req.AlarmID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	effect, err := alarm.Refund(req.Caller, sink, now, s.policy)
	if err != nil {
		return nil, err
	}
	if err := s.alarms.Commit(ctx, alarm, effect, OpRefund, now); err != nil {
		return nil, err
	}
	metrics.AmountMoved(OpRefund, "owner", effect.Moved(alarm.Owner()))
	metrics.AmountMoved(OpRefund, "sink", effect.Moved(sink))

	s.publish(ctx, events.RefundExecuted{
		Owner:          string(alarm.Owner()),
		AlarmAddress:   string(alarm.Address()),
		AlarmID:        alarm.AlarmID(),
		PenaltyAmount:  effect.Moved(sink),
		ReturnedAmount: effect.Moved(alarm.Owner()),
		OccurredAt:     now,
	})
	return transitionResult(alarm, effect), nil
}

// SlashRequest forfeits a missed commitment. Anyone may call it, so the
// record is named by owner and alarm id rather than by the caller.
type SlashRequest struct {
	Caller    escrow.Address
	Owner     escrow.Address
	AlarmID   uint64
	Recipient escrow.Address
}

// Slash transitions Created -> Slashed after the deadline and disburses
// to the route's configured destination.
func (s *Service) Slash(ctx context.Context, req SlashRequest) (result *TransitionResult, err error) {
	defer s.observe(OpSlash, time.Now(), &err)

	address := escrow.DeriveAlarmAddress(req.Owner, req.AlarmID)
	unlock := s.locks.acquire(address)
	defer unlock()

	alarm, err := s.loadAlarm(ctx, req.Owner, req.AlarmID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	effect, err := alarm.Slash(req.Caller, req.Recipient, now, s.policy)
	if err != nil {
		return nil, err
	}
	if err := s.alarms.Commit(ctx, alarm, effect, OpSlash, now); err != nil {
		return nil, err
	}
	metrics.AmountMoved(OpSlash, "penalty_recipient", effect.Moved(req.Recipient))

	s.publish(ctx, events.AlarmSlashed{
		Owner:         string(alarm.Owner()),
		AlarmAddress:  string(alarm.Address()),
		AlarmID:       alarm.AlarmID(),
		Recipient:     string(req.Recipient),
		SlashedAmount: effect.Moved(req.Recipient),
		Caller:        string(req.Caller),
		OccurredAt:    now,
	})
	return transitionResult(alarm, effect), nil
}

// SweepRequest recovers an acknowledged-but-unclaimed deposit. Anyone may
// call it once the claim grace has elapsed; funds always go to the owner.
type SweepRequest struct {
	Caller  escrow.Address
	Owner   escrow.Address
	AlarmID uint64
}

// Sweep transitions Acknowledged -> Claimed after the claim grace and
// returns the full remaining deposit to the owner, penalty-free.
func (s *Service) Sweep(ctx context.Context, req SweepRequest) (result *TransitionResult, err error) {
	defer s.observe(OpSweep, time.Now(), &err)

	address := escrow.DeriveAlarmAddress(req.Owner, req.AlarmID)
	unlock := s.locks.acquire(address)
	defer unlock()

	alarm, err := s.loadAlarm(ctx, req.Owner, req.AlarmID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	effect, err := alarm.Sweep(now, s.policy)
	if err != nil {
		return nil, err
	}
	if err := s.alarms.Commit(ctx, alarm, effect, OpSweep, now); err != nil {
		return nil, err
	}
	metrics.AmountMoved(OpSweep, "owner", effect.Moved(alarm.Owner()))

	s.publish(ctx, events.AlarmSwept{
		Owner:          string(alarm.Owner()),
		AlarmAddress:   string(alarm.Address()),
		AlarmID:        alarm.AlarmID(),
		ReturnedAmount: effect.Moved(alarm.Owner()),
		Caller:         string(req.Caller),
		OccurredAt:     now,
	})
	return transitionResult(alarm, effect), nil
}

// GetAlarm returns the record for (owner, alarmID).
func (s *Service) GetAlarm(ctx context.Context, owner escrow.Address, alarmID uint64) (*AlarmView, error) {
	alarm, err := s.loadAlarm(ctx, owner, alarmID)
	if err != nil {
		return nil, err
	}
	return viewOf(alarm), nil
}

// ListAlarms returns the owner's records, oldest first.
func (s *Service) ListAlarms(ctx context.Context, owner escrow.Address) ([]*AlarmView, error) {
	alarms, err := s.alarms.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	views := make([]*AlarmView, 0, len(alarms))
	for _, alarm := range alarms {
		views = append(views, viewOf(alarm))
	}
	return views, nil
}

func (s *Service) loadAlarm(ctx context.Context, owner escrow.Address, alarmID uint64) (*escrow.Alarm, error) {
	if owner == "" {
		return nil, escrow.ErrEmptyOwner
	}
	alarm, err := s.alarms.Find(ctx, owner, alarmID)
	if err != nil {
		return nil, err
	}
	if alarm == nil {
		return nil, escrow.ErrAlarmNotFound
	}
	return alarm, nil
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Printf("event publish error: %v", err)
	}
}

func (s *Service) observe(op string, start time.Time, err *error) {
	result := "success"
	if *err != nil {
		result = "error"
		metrics.GuardFailure(op, escrow.CodeOf(*err))
	}
	metrics.ObserveOperation(op, result, time.Since(start).Seconds())
}

// AlarmView is the read model of an alarm record.
type AlarmView struct {
	Owner              string    `json:"owner"`
	AlarmID            uint64    `json:"alarm_id"`
	Address            string    `json:"address"`
	Vault              string    `json:"vault"`
	AlarmTime          time.Time `json:"alarm_time"`
	Deadline           time.Time `json:"deadline"`
	InitialAmount      uint64    `json:"initial_amount"`
	RemainingAmount    uint64    `json:"remaining_amount"`
	PenaltyRoute       string    `json:"penalty_route"`
	PenaltyDestination string    `json:"penalty_destination,omitempty"`
	SnoozeCount        uint8     `json:"snooze_count"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MovementView is one balance transfer in a transition summary.
type MovementView struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// TransitionResult summarizes a successful transition.
type TransitionResult struct {
	Alarm *AlarmView     `json:"alarm"`
	Moved []MovementView `json:"moved"`
}

func viewOf(alarm *escrow.Alarm) *AlarmView {
	return &AlarmView{
		Owner:              string(alarm.Owner()),
		AlarmID:            alarm.AlarmID(),
		Address:            string(alarm.Address()),
		Vault:              string(alarm.Vault()),
		AlarmTime:          alarm.AlarmTime(),
		Deadline:           alarm.Deadline(),
		InitialAmount:      alarm.InitialAmount(),
		RemainingAmount:    alarm.RemainingAmount(),
		PenaltyRoute:       string(alarm.Route()),
		PenaltyDestination: string(alarm.Destination()),
		SnoozeCount:        alarm.SnoozeCount(),
		Status:             string(alarm.Status()),
		CreatedAt:          alarm.CreatedAt(),
		UpdatedAt:          alarm.UpdatedAt(),
	}
}

func transitionResult(alarm *escrow.Alarm, effect escrow.Effect) *TransitionResult {
	moved := make([]MovementView, 0, len(effect.Movements))
	for _, movement := range effect.Movements {
		moved = append(moved, MovementView{From: string(movement.From), To: string(movement.To), Amount: movement.Amount})
	}
	return &TransitionResult{Alarm: viewOf(alarm), Moved: moved}
}
