package application_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/attestation"
	"github.com/sapirl7/solarma-sub000/internal/escrow/application"
	"github.com/sapirl7/solarma-sub000/internal/escrow/application/events"
	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
	"github.com/sapirl7/solarma-sub000/internal/escrow/infrastructure/memory"
)

var testBase = time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

type capturePublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *capturePublisher) Publish(ctx context.Context, event any) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) Events() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

type fixture struct {
	service *application.Service
	alarms  *memory.AlarmRepository
	bus     *capturePublisher
	clock   *fixedClock
}

func newFixture(t *testing.T, opts ...application.Option) *fixture {
	t.Helper()
	clock := &fixedClock{now: testBase}
	bus := &capturePublisher{}
	alarms := memory.NewAlarmRepository()
	logger := log.New(io.Discard, "", 0)
	opts = append([]application.Option{application.WithClock(clock)}, opts...)
	service, err := application.NewService(
		memory.NewProfileRepository(),
		alarms,
		memory.NewNonceStore(),
		bus,
		escrow.DefaultPolicy(),
		logger,
		opts...,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{service: service, alarms: alarms, bus: bus, clock: clock}
}

func (f *fixture) createAlarm(t *testing.T, owner escrow.Address, alarmID uint64, deposit uint64) *application.AlarmView {
	t.Helper()
	view, err := f.service.CreateAlarm(context.Background(), application.CreateAlarmRequest{
		Caller:    owner,
		AlarmID:   alarmID,
		AlarmTime: testBase.Add(time.Hour),
		Deadline:  testBase.Add(90 * time.Minute),
		Deposit:   deposit,
		Route:     "burn",
	})
	if err != nil {
		t.Fatalf("create alarm: %v", err)
	}
	return view
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile, err := f.service.Initialize(ctx, application.InitializeRequest{Caller: "owner-alice"})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if profile.Owner != "owner-alice" {
		t.Fatalf("expected owner-alice, got %s", profile.Owner)
	}

	_, err = f.service.Initialize(ctx, application.InitializeRequest{Caller: "owner-alice"})
	if !errors.Is(err, escrow.ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}
}

func TestCreateAlarm_OpensVault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view := f.createAlarm(t, "owner-alice", 1, 10_000_000)
	balance, ok, err := f.alarms.VaultBalance(ctx, escrow.Address(view.Vault))
	if err != nil || !ok {
		t.Fatalf("vault must be open: ok=%t err=%v", ok, err)
	}
	if balance != 10_000_000 {
		t.Fatalf("expected vault funded at 10000000, got %d", balance)
	}

	_, err = f.service.CreateAlarm(ctx, application.CreateAlarmRequest{
		Caller:    "owner-alice",
		AlarmID:   1,
		AlarmTime: testBase.Add(time.Hour),
		Deposit:   10_000_000,
		Route:     "burn",
	})
	if !errors.Is(err, escrow.ErrAlarmExists) {
		t.Fatalf("expected ErrAlarmExists, got %v", err)
	}
}

func TestHappyPath_AcknowledgeAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.createAlarm(t, "owner-alice", 1, 10_000_000)

	f.clock.Set(testBase.Add(time.Hour))
	if _, err := f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1}); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	result, err := f.service.Claim(ctx, application.ClaimRequest{Caller: "owner-alice", AlarmID: 1})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Alarm.Status != "claimed" {
		t.Fatalf("expected claimed, got %s", result.Alarm.Status)
	}
	if len(result.Moved) != 1 || result.Moved[0].To != "owner-alice" || result.Moved[0].Amount != 10_000_000 {
		t.Fatalf("expected full deposit back to owner, got %+v", result.Moved)
	}

	// vault destroyed, disbursement log conserves the deposit
	if _, ok, _ := f.alarms.VaultBalance(ctx, escrow.Address(view.Vault)); ok {
		t.Fatalf("vault must be destroyed after claim")
	}
	disbursements, err := f.alarms.ListDisbursements(ctx, "owner-alice")
	if err != nil {
		t.Fatalf("list disbursements: %v", err)
	}
	var total uint64
	for _, d := range disbursements {
		total += d.Amount
	}
	if total != 10_000_000 {
		t.Fatalf("disbursements must conserve the deposit, got %d", total)
	}
}

func TestSnooze_ThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.createAlarm(t, "owner-alice", 1, 10_000_000)

	f.clock.Set(testBase.Add(time.Hour))
	result, err := f.service.Snooze(ctx, application.SnoozeRequest{Caller: "owner-alice", AlarmID: 1, ExpectedSnoozeCount: 0})
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if result.Alarm.RemainingAmount != 9_000_000 {
		t.Fatalf("expected remaining 9000000, got %d", result.Alarm.RemainingAmount)
	}
	balance, ok, _ := f.alarms.VaultBalance(ctx, escrow.Address(view.Vault))
	if !ok || balance != 9_000_000 {
		t.Fatalf("vault must be debited to 9000000, got ok=%t %d", ok, balance)
	}

	// replaying the same count token must not double-charge
	_, err = f.service.Snooze(ctx, application.SnoozeRequest{Caller: "owner-alice", AlarmID: 1, ExpectedSnoozeCount: 0})
	if !errors.Is(err, escrow.ErrStaleSnoozeCount) {
		t.Fatalf("expected ErrStaleSnoozeCount, got %v", err)
	}
	balance, _, _ = f.alarms.VaultBalance(ctx, escrow.Address(view.Vault))
	if balance != 9_000_000 {
		t.Fatalf("stale snooze must not move funds, balance %d", balance)
	}
}

func TestRefund_ThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAlarm(t, "owner-alice", 1, 10_000_000)

	f.clock.Set(testBase.Add(30 * time.Minute))
	result, err := f.service.Refund(ctx, application.RefundRequest{Caller: "owner-alice", AlarmID: 1})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.Alarm.Status != "claimed" {
		t.Fatalf("expected claimed, got %s", result.Alarm.Status)
	}
	var toOwner, toSink uint64
	for _, m := range result.Moved {
		switch m.To {
		case "owner-alice":
			toOwner = m.Amount
		case string(escrow.BurnSink):
			toSink = m.Amount
		}
	}
	if toOwner != 9_500_000 || toSink != 500_000 {
		t.Fatalf("expected 9500000/500000 split, got %d/%d", toOwner, toSink)
	}
}

func TestSlash_ByStranger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAlarm(t, "owner-alice", 1, 10_000_000)

	f.clock.Set(testBase.Add(2 * time.Hour))
	result, err := f.service.Slash(ctx, application.SlashRequest{
		Caller:    "watcher-bot",
		Owner:     "owner-alice",
		AlarmID:   1,
		Recipient: escrow.BurnSink,
	})
	if err != nil {
		t.Fatalf("slash: %v", err)
	}
	if result.Alarm.Status != "slashed" {
		t.Fatalf("expected slashed, got %s", result.Alarm.Status)
	}
	if got := result.Moved[0].Amount; got != 10_000_000 {
		t.Fatalf("expected full forfeit, got %d", got)
	}
}

func TestSweep_ByThirdParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAlarm(t, "owner-alice", 1, 10_000_000)

	f.clock.Set(testBase.Add(time.Hour))
	if _, err := f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1}); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	f.clock.Set(testBase.Add(2 * time.Hour))
	result, err := f.service.Sweep(ctx, application.SweepRequest{Caller: "watcher-bot", Owner: "owner-alice", AlarmID: 1})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Moved[0].To != "owner-alice" {
		t.Fatalf("sweep must return funds to the owner, got %s", result.Moved[0].To)
	}

	var swept *events.AlarmSwept
	for _, event := range f.bus.Events() {
		if evt, ok := event.(events.AlarmSwept); ok {
			swept = &evt
		}
	}
	if swept == nil {
		t.Fatalf("expected an AlarmSwept event")
	}
	if swept.Caller != "watcher-bot" || swept.ReturnedAmount != 10_000_000 {
		t.Fatalf("unexpected sweep event %+v", swept)
	}
}

func TestAcknowledge_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Acknowledge(context.Background(), application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 404})
	if !errors.Is(err, escrow.ErrAlarmNotFound) {
		t.Fatalf("expected ErrAlarmNotFound, got %v", err)
	}
}

func TestAttestedAcknowledge(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	verifier, err := attestation.NewVerifier(hex.EncodeToString(pub), "testnet")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	f := newFixture(t, application.WithVerifier(verifier))
	ctx := context.Background()
	view := f.createAlarm(t, "owner-alice", 1, 10_000_000)

	f.clock.Set(testBase.Add(time.Hour))
	permit, err := attestation.Sign(priv, "testnet", view.Address, "owner-alice", 42, 1, "a1b2", f.clock.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}

	if _, err := f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1, Permit: permit}); err != nil {
		t.Fatalf("attested acknowledge: %v", err)
	}

	var acked events.WakeAcknowledged
	for _, event := range f.bus.Events() {
		if evt, ok := event.(events.WakeAcknowledged); ok {
			acked = evt
		}
	}
	if !acked.Attested {
		t.Fatalf("expected an attested WakeAcknowledged event")
	}
}

func TestAttestedAcknowledge_RejectionKeepsNonceFresh(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	verifier, err := attestation.NewVerifier(hex.EncodeToString(pub), "testnet")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	f := newFixture(t, application.WithVerifier(verifier))
	ctx := context.Background()
	view := f.createAlarm(t, "owner-alice", 1, 10_000_000)

	permit, err := attestation.Sign(priv, "testnet", view.Address, "owner-alice", 42, 1, "a1b2", testBase.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}

	// one second early: the guard rejects, the permit must survive
	f.clock.Set(testBase.Add(time.Hour - time.Second))
	_, err = f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1, Permit: permit})
	if !errors.Is(err, escrow.ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly, got %v", err)
	}

	f.clock.Set(testBase.Add(time.Hour))
	if _, err := f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1, Permit: permit}); err != nil {
		t.Fatalf("retry with the same permit must succeed, got %v", err)
	}
}

func TestAttestedAcknowledge_NonceReplay(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	verifier, err := attestation.NewVerifier(hex.EncodeToString(pub), "testnet")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	f := newFixture(t, application.WithVerifier(verifier))
	ctx := context.Background()

	first := f.createAlarm(t, "owner-alice", 1, 10_000_000)
	f.clock.Set(testBase.Add(time.Hour))
	permit, err := attestation.Sign(priv, "testnet", first.Address, "owner-alice", 42, 1, "a1b2", f.clock.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	if _, err := f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1, Permit: permit}); err != nil {
		t.Fatalf("first acknowledge: %v", err)
	}

	// same nonce again against the same record
	_, err = f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1, Permit: permit})
	if !errors.Is(err, attestation.ErrPermitReplayed) && !errors.Is(err, escrow.ErrInvalidState) {
		t.Fatalf("expected replay or state rejection, got %v", err)
	}
}

func TestAttestedAcknowledge_WrongBinding(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	verifier, err := attestation.NewVerifier(hex.EncodeToString(pub), "testnet")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	f := newFixture(t, application.WithVerifier(verifier))
	ctx := context.Background()
	f.createAlarm(t, "owner-alice", 1, 10_000_000)

	f.clock.Set(testBase.Add(time.Hour))
	// permit bound to another record address
	permit, err := attestation.Sign(priv, "testnet", "some-other-record", "owner-alice", 42, 1, "a1b2", f.clock.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	_, err = f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1, Permit: permit})
	if !errors.Is(err, attestation.ErrPermitInvalid) {
		t.Fatalf("expected ErrPermitInvalid, got %v", err)
	}
}

func TestConcurrentClaims_SingleDisbursement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAlarm(t, "owner-alice", 1, 10_000_000)

	f.clock.Set(testBase.Add(time.Hour))
	if _, err := f.service.Acknowledge(ctx, application.AcknowledgeRequest{Caller: "owner-alice", AlarmID: 1}); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = f.service.Claim(ctx, application.ClaimRequest{Caller: "owner-alice", AlarmID: 1})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, escrow.ErrInvalidState) {
			t.Fatalf("losers must fail the state guard, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one claim may succeed, got %d", succeeded)
	}

	disbursements, err := f.alarms.ListDisbursements(ctx, "owner-alice")
	if err != nil {
		t.Fatalf("list disbursements: %v", err)
	}
	var total uint64
	for _, d := range disbursements {
		total += d.Amount
	}
	if total != 10_000_000 {
		t.Fatalf("racing claims must not double-disburse, moved %d", total)
	}
}

func TestListAlarms(t *testing.T) {
	f := newFixture(t)
	f.createAlarm(t, "owner-alice", 1, 10_000_000)
	f.createAlarm(t, "owner-alice", 2, 10_000_000)
	f.createAlarm(t, "owner-bob", 9, 10_000_000)

	views, err := f.service.ListAlarms(context.Background(), "owner-alice")
	if err != nil {
		t.Fatalf("list alarms: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 alarms, got %d", len(views))
	}
	if views[0].AlarmID != 1 || views[1].AlarmID != 2 {
		t.Fatalf("expected creation order, got %d, %d", views[0].AlarmID, views[1].AlarmID)
	}
}
