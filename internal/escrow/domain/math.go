package escrow

import "math"

// All amount arithmetic is checked: operations reject with ErrOverflow
// instead of wrapping. Percentages use integer floor division.

func addChecked(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func subChecked(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

func mulChecked(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// SnoozeCost computes the cost of the snooze at zero-based index count:
//
//	cost = min(remaining * percent/100 * 2^count, remaining)
func SnoozeCost(remaining uint64, count uint8, percent uint64) (uint64, error) {
	base, err := mulChecked(remaining, percent)
	if err != nil {
		return 0, err
	}
	base /= 100

	if count > 63 {
		return 0, ErrOverflow
	}
	cost, err := mulChecked(base, uint64(1)<<count)
	if err != nil {
		return 0, err
	}
	if cost > remaining {
		cost = remaining
	}
	return cost, nil
}

// RefundPenalty computes the early-cancellation penalty:
//
//	penalty = min(remaining * percent/100, remaining)
func RefundPenalty(remaining uint64, percent uint64) (uint64, error) {
	penalty, err := mulChecked(remaining, percent)
	if err != nil {
		return 0, err
	}
	penalty /= 100
	if penalty > remaining {
		penalty = remaining
	}
	return penalty, nil
}

// capAtReserve caps a penalty deduction at what the vault holds above the
// minimum residual reserve. The reserve only binds while the vault stays
// open; terminal disbursements move the full balance.
func capAtReserve(desired, balance, reserve uint64) uint64 {
	var available uint64
	if balance > reserve {
		available = balance - reserve
	}
	if desired > available {
		return available
	}
	return desired
}
