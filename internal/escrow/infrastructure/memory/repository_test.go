package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/attestation"
	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

var testBase = time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

func newStoredAlarm(t *testing.T, owner escrow.Address, id uint64) *escrow.Alarm {
	t.Helper()
	alarm, err := escrow.NewAlarm(escrow.CreateParams{
		Owner:     owner,
		AlarmID:   id,
		AlarmTime: testBase.Add(time.Hour),
		Deposit:   10_000_000,
		Route:     escrow.RouteBurn,
	}, testBase, escrow.DefaultPolicy())
	if err != nil {
		t.Fatalf("new alarm: %v", err)
	}
	return alarm
}

func TestProfileRepository_CloneSemantics(t *testing.T) {
	repo := NewProfileRepository()
	ctx := context.Background()

	found, err := repo.Find(ctx, "owner-alice")
	if err != nil || found != nil {
		t.Fatalf("absent profile must be nil, nil; got %v, %v", found, err)
	}

	profile, err := escrow.NewUserProfile("owner-alice", "", testBase)
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	if err := repo.Create(ctx, profile); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, profile); !errors.Is(err, escrow.ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}

	found, err = repo.Find(ctx, "owner-alice")
	if err != nil || found == nil {
		t.Fatalf("find: %v, %v", found, err)
	}
	if found == profile {
		t.Fatalf("find must return a clone, not the stored pointer")
	}
}

func TestAlarmRepository_CreateOpensVault(t *testing.T) {
	repo := NewAlarmRepository()
	ctx := context.Background()
	alarm := newStoredAlarm(t, "owner-alice", 1)

	if err := repo.Create(ctx, alarm); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, alarm); !errors.Is(err, escrow.ErrAlarmExists) {
		t.Fatalf("expected ErrAlarmExists, got %v", err)
	}

	balance, ok, err := repo.VaultBalance(ctx, alarm.Vault())
	if err != nil || !ok || balance != 10_000_000 {
		t.Fatalf("vault must open at the deposit, got ok=%t %d (%v)", ok, balance, err)
	}

	found, err := repo.Find(ctx, "owner-alice", 1)
	if err != nil || found == nil {
		t.Fatalf("find: %v, %v", found, err)
	}
	if found == alarm {
		t.Fatalf("find must return a clone, not the stored pointer")
	}
	if missing, err := repo.Find(ctx, "owner-alice", 2); err != nil || missing != nil {
		t.Fatalf("absent record must be nil, nil; got %v, %v", missing, err)
	}
}

func TestAlarmRepository_ListByOwnerOrder(t *testing.T) {
	repo := NewAlarmRepository()
	ctx := context.Background()
	for _, id := range []uint64{3, 1, 2} {
		if err := repo.Create(ctx, newStoredAlarm(t, "owner-alice", id)); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	if err := repo.Create(ctx, newStoredAlarm(t, "owner-bob", 1)); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	alarms, err := repo.ListByOwner(ctx, "owner-alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(alarms) != 3 {
		t.Fatalf("expected 3 records, got %d", len(alarms))
	}
	for i, want := range []uint64{3, 1, 2} {
		if alarms[i].AlarmID() != want {
			t.Fatalf("creation order broken at %d: got %d, want %d", i, alarms[i].AlarmID(), want)
		}
	}
}

func TestAlarmRepository_CommitDebitsAndLogs(t *testing.T) {
	repo := NewAlarmRepository()
	ctx := context.Background()
	alarm := newStoredAlarm(t, "owner-alice", 1)
	if err := repo.Create(ctx, alarm); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := testBase.Add(time.Hour)
	effect, err := alarm.Snooze("owner-alice", escrow.BurnSink, 0, at, escrow.DefaultPolicy())
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if err := repo.Commit(ctx, alarm, effect, "snooze", at); err != nil {
		t.Fatalf("commit: %v", err)
	}

	balance, ok, _ := repo.VaultBalance(ctx, alarm.Vault())
	if !ok || balance != 9_000_000 {
		t.Fatalf("vault must be debited to 9000000, got ok=%t %d", ok, balance)
	}
	disbursements, err := repo.ListDisbursements(ctx, "owner-alice")
	if err != nil {
		t.Fatalf("list disbursements: %v", err)
	}
	if len(disbursements) != 1 {
		t.Fatalf("expected 1 disbursement, got %d", len(disbursements))
	}
	d := disbursements[0]
	if d.To != escrow.BurnSink || d.Amount != 1_000_000 || d.Operation != "snooze" || !d.At.Equal(at) {
		t.Fatalf("unexpected disbursement %+v", d)
	}
}

func TestAlarmRepository_CommitClosesVault(t *testing.T) {
	repo := NewAlarmRepository()
	ctx := context.Background()
	alarm := newStoredAlarm(t, "owner-alice", 1)
	if err := repo.Create(ctx, alarm); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := testBase.Add(30 * time.Minute)
	effect, err := alarm.Refund("owner-alice", escrow.BurnSink, at, escrow.DefaultPolicy())
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !effect.CloseVault {
		t.Fatalf("refund must close the vault")
	}
	if err := repo.Commit(ctx, alarm, effect, "refund", at); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok, _ := repo.VaultBalance(ctx, alarm.Vault()); ok {
		t.Fatalf("vault must be gone after close")
	}
}

func TestAlarmRepository_CommitRejectsUnknownRecord(t *testing.T) {
	repo := NewAlarmRepository()
	alarm := newStoredAlarm(t, "owner-alice", 1)
	err := repo.Commit(context.Background(), alarm, escrow.Effect{}, "claim", testBase)
	if !errors.Is(err, escrow.ErrAlarmNotFound) {
		t.Fatalf("expected ErrAlarmNotFound, got %v", err)
	}
}

func TestNonceStore_RejectsReplay(t *testing.T) {
	store := NewNonceStore()
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Minute)

	if err := store.Use(ctx, "alarm-a", 42, expiresAt); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := store.Use(ctx, "alarm-a", 42, expiresAt); !errors.Is(err, attestation.ErrPermitReplayed) {
		t.Fatalf("expected ErrPermitReplayed, got %v", err)
	}
	// same nonce on a different record is fine
	if err := store.Use(ctx, "alarm-b", 42, expiresAt); err != nil {
		t.Fatalf("distinct record: %v", err)
	}
}

func TestNonceStore_PrunesExpired(t *testing.T) {
	store := NewNonceStore()
	ctx := context.Background()

	if err := store.Use(ctx, "alarm-a", 1, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// any later Use prunes the expired entry, freeing the nonce
	if err := store.Use(ctx, "alarm-b", 2, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("trigger prune: %v", err)
	}
	if err := store.Use(ctx, "alarm-a", 1, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("expired nonce must be reusable, got %v", err)
	}
}
