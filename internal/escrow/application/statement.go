package application

import (
	"context"
	"time"

	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

// StatementLine summarizes one alarm record.
type StatementLine struct {
	AlarmID         uint64    `json:"alarm_id"`
	Address         string    `json:"address"`
	Status          string    `json:"status"`
	PenaltyRoute    string    `json:"penalty_route"`
	InitialAmount   uint64    `json:"initial_amount"`
	RemainingAmount uint64    `json:"remaining_amount"`
	SnoozeCount     uint8     `json:"snooze_count"`
	AlarmTime       time.Time `json:"alarm_time"`
	Deadline        time.Time `json:"deadline"`
}

// StatementTotals aggregates money flow for one owner.
type StatementTotals struct {
	Deposited uint64 `json:"deposited"`
	Returned  uint64 `json:"returned"`
	Penalties uint64 `json:"penalties"`
	Escrowed  uint64 `json:"escrowed"`
}

// Statement is the per-owner account statement backing exports.
type Statement struct {
	Owner         string          `json:"owner"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Lines         []StatementLine `json:"lines"`
	Disbursements []Disbursement  `json:"disbursements"`
	Totals        StatementTotals `json:"totals"`
}

// StatementService assembles owner statements from the alarm store.
type StatementService struct {
	alarms AlarmStore
	clock  escrow.Clock
}

// NewStatementService constructs a statement service.
func NewStatementService(alarms AlarmStore, clock escrow.Clock) *StatementService {
	if clock == nil {
		clock = escrow.SystemClock{}
	}
	return &StatementService{alarms: alarms, clock: clock}
}

// Build assembles the owner's statement. Returned amounts are transfers
// that reached the owner; penalties are everything disbursed elsewhere.
func (s *StatementService) Build(ctx context.Context, owner escrow.Address) (*Statement, error) {
	if owner == "" {
		return nil, escrow.ErrEmptyOwner
	}
	alarms, err := s.alarms.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	disbursements, err := s.alarms.ListDisbursements(ctx, owner)
	if err != nil {
		return nil, err
	}

	statement := &Statement{
		Owner:         string(owner),
		GeneratedAt:   s.clock.Now(),
		Lines:         make([]StatementLine, 0, len(alarms)),
		Disbursements: disbursements,
	}
	for _, alarm := range alarms {
		statement.Lines = append(statement.Lines, StatementLine{
			AlarmID:         alarm.AlarmID(),
			Address:         string(alarm.Address()),
			Status:          string(alarm.Status()),
			PenaltyRoute:    string(alarm.Route()),
			InitialAmount:   alarm.InitialAmount(),
			RemainingAmount: alarm.RemainingAmount(),
			SnoozeCount:     alarm.SnoozeCount(),
			AlarmTime:       alarm.AlarmTime(),
			Deadline:        alarm.Deadline(),
		})
		statement.Totals.Deposited += alarm.InitialAmount()
		if !alarm.Status().IsTerminal() {
			statement.Totals.Escrowed += alarm.RemainingAmount()
		}
	}
	for _, disbursement := range disbursements {
		if disbursement.To == owner {
			statement.Totals.Returned += disbursement.Amount
		} else {
			statement.Totals.Penalties += disbursement.Amount
		}
	}
	return statement, nil
}
