package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/escrow/application"
	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

const (
	defaultAlarmsTable        = "alarms"
	defaultVaultsTable        = "vaults"
	defaultDisbursementsTable = "disbursements"
)

// AlarmRepository is a Postgres repository for alarm records, their
// vaults, and the disbursement log. Commit runs in one transaction so a
// transition's record mutation and balance movements land together.
type AlarmRepository struct {
	db                 *sql.DB
	alarmsTable        string
	vaultsTable        string
	disbursementsTable string
}

// AlarmOption configures the repository.
type AlarmOption func(*AlarmRepository)

// WithAlarmsTable overrides the alarms table name.
func WithAlarmsTable(table string) AlarmOption {
	return func(r *AlarmRepository) {
		if table != "" {
			r.alarmsTable = table
		}
	}
}

// WithVaultsTable overrides the vaults table name.
func WithVaultsTable(table string) AlarmOption {
	return func(r *AlarmRepository) {
		if table != "" {
			r.vaultsTable = table
		}
	}
}

// WithDisbursementsTable overrides the disbursements table name.
func WithDisbursementsTable(table string) AlarmOption {
	return func(r *AlarmRepository) {
		if table != "" {
			r.disbursementsTable = table
		}
	}
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB, opts ...AlarmOption) *AlarmRepository {
	repo := &AlarmRepository{
		db:                 db,
		alarmsTable:        defaultAlarmsTable,
		vaultsTable:        defaultVaultsTable,
		disbursementsTable: defaultDisbursementsTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const alarmColumns = `owner, alarm_id, address, vault, alarm_time, deadline,
	initial_amount, remaining_amount, penalty_route, penalty_destination,
	snooze_count, status, created_at, updated_at`

// Find fetches the record for (owner, alarmID), or nil, nil.
func (r *AlarmRepository) Find(ctx context.Context, owner escrow.Address, alarmID uint64) (*escrow.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE owner = $1 AND alarm_id = $2`, alarmColumns, r.alarmsTable), string(owner), int64(alarmID))
	return scanAlarm(row)
}

// ListByOwner returns the owner's records, oldest first.
func (r *AlarmRepository) ListByOwner(ctx context.Context, owner escrow.Address) ([]*escrow.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE owner = $1
ORDER BY created_at ASC, alarm_id ASC`, alarmColumns, r.alarmsTable), string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*escrow.Alarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Create inserts the record and opens its vault funded at the deposit,
// in one transaction.
func (r *AlarmRepository) Create(ctx context.Context, alarm *escrow.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return errors.New("alarm repo: nil alarm")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	snapshot := alarm.Snapshot()
	result, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (address) DO NOTHING`, r.alarmsTable, alarmColumns),
		string(snapshot.Owner),
		int64(snapshot.AlarmID),
		string(alarm.Address()),
		string(alarm.Vault()),
		snapshot.AlarmTime,
		snapshot.Deadline,
		int64(snapshot.InitialAmount),
		int64(snapshot.RemainingAmount),
		string(snapshot.Route),
		string(snapshot.Destination),
		int16(snapshot.SnoozeCount),
		string(snapshot.Status),
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return escrow.ErrAlarmExists
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (vault, balance)
VALUES ($1, $2)`, r.vaultsTable),
		string(alarm.Vault()), int64(alarm.InitialAmount()),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Commit updates the record and applies the transition effect in one
// transaction: debits the vault per movement, appends disbursements, and
// drops the vault row when the effect closes it.
func (r *AlarmRepository) Commit(ctx context.Context, alarm *escrow.Alarm, effect escrow.Effect, operation string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return errors.New("alarm repo: nil alarm")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	snapshot := alarm.Snapshot()
	result, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET alarm_time = $1, deadline = $2, remaining_amount = $3, snooze_count = $4,
	status = $5, updated_at = $6
WHERE address = $7`, r.alarmsTable),
		snapshot.AlarmTime,
		snapshot.Deadline,
		int64(snapshot.RemainingAmount),
		int16(snapshot.SnoozeCount),
		string(snapshot.Status),
		snapshot.UpdatedAt,
		string(alarm.Address()),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return escrow.ErrAlarmNotFound
	}

	for _, movement := range effect.Movements {
		debit, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET balance = balance - $1
WHERE vault = $2 AND balance >= $1`, r.vaultsTable),
			int64(movement.Amount), string(movement.From),
		)
		if err != nil {
			return err
		}
		debited, err := debit.RowsAffected()
		if err != nil {
			return err
		}
		if debited == 0 {
			return fmt.Errorf("alarm repo: vault %s cannot cover %d", movement.From, movement.Amount)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (alarm_address, owner, recipient, amount, operation, at)
VALUES ($1, $2, $3, $4, $5, $6)`, r.disbursementsTable),
			string(alarm.Address()),
			string(alarm.Owner()),
			string(movement.To),
			int64(movement.Amount),
			operation,
			at,
		); err != nil {
			return err
		}
	}

	if effect.CloseVault {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
DELETE FROM %s
WHERE vault = $1`, r.vaultsTable), string(alarm.Vault())); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// VaultBalance reports the vault's balance; ok is false once the vault
// row is gone.
func (r *AlarmRepository) VaultBalance(ctx context.Context, vault escrow.Address) (uint64, bool, error) {
	if r == nil || r.db == nil {
		return 0, false, errors.New("alarm repo: nil db")
	}
	var balance int64
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT balance
FROM %s
WHERE vault = $1`, r.vaultsTable), string(vault)).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if balance < 0 {
		return 0, false, fmt.Errorf("alarm repo: negative balance for vault %s", vault)
	}
	return uint64(balance), true, nil
}

// ListDisbursements returns the owner's disbursements, oldest first.
func (r *AlarmRepository) ListDisbursements(ctx context.Context, owner escrow.Address) ([]application.Disbursement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT alarm_address, owner, recipient, amount, operation, at
FROM %s
WHERE owner = $1
ORDER BY at ASC, id ASC`, r.disbursementsTable), string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []application.Disbursement
	for rows.Next() {
		var alarmAddress, storedOwner, recipient, op string
		var amount int64
		var at time.Time
		if err := rows.Scan(&alarmAddress, &storedOwner, &recipient, &amount, &op, &at); err != nil {
			return nil, err
		}
		result = append(result, application.Disbursement{
			AlarmAddress: escrow.Address(alarmAddress),
			Owner:        escrow.Address(storedOwner),
			To:           escrow.Address(recipient),
			Amount:       uint64(amount),
			Operation:    op,
			At:           at.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type alarmScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row alarmScanner) (*escrow.Alarm, error) {
	var owner, address, vault, route, destination, status string
	var alarmID, initial, remaining int64
	var snoozeCount int16
	var alarmTime, deadline, createdAt, updatedAt time.Time
	if err := row.Scan(
		&owner,
		&alarmID,
		&address,
		&vault,
		&alarmTime,
		&deadline,
		&initial,
		&remaining,
		&route,
		&destination,
		&snoozeCount,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return escrow.RehydrateAlarm(escrow.AlarmSnapshot{
		Owner:           escrow.Address(owner),
		AlarmID:         uint64(alarmID),
		AlarmTime:       alarmTime.UTC(),
		Deadline:        deadline.UTC(),
		InitialAmount:   uint64(initial),
		RemainingAmount: uint64(remaining),
		Route:           escrow.PenaltyRoute(route),
		Destination:     escrow.Address(destination),
		SnoozeCount:     uint8(snoozeCount),
		Status:          escrow.Status(status),
		CreatedAt:       createdAt.UTC(),
		UpdatedAt:       updatedAt.UTC(),
	})
}
