package escrow

import (
	"errors"
	"math"
	"testing"
)

func TestSnoozeCost_Doubling(t *testing.T) {
	cases := []struct {
		remaining uint64
		count     uint8
		want      uint64
	}{
		{10_000_000, 0, 1_000_000},
		{10_000_000, 1, 2_000_000},
		{10_000_000, 2, 4_000_000},
		{10_000_000, 3, 8_000_000},
		// capped at remaining
		{10_000_000, 4, 10_000_000},
		{10_000_000, 10, 10_000_000},
		{0, 0, 0},
	}
	for _, tc := range cases {
		got, err := SnoozeCost(tc.remaining, tc.count, 10)
		if err != nil {
			t.Fatalf("SnoozeCost(%d, %d): %v", tc.remaining, tc.count, err)
		}
		if got != tc.want {
			t.Fatalf("SnoozeCost(%d, %d) = %d, want %d", tc.remaining, tc.count, got, tc.want)
		}
	}
}

func TestSnoozeCost_Overflow(t *testing.T) {
	if _, err := SnoozeCost(math.MaxUint64, 0, 10); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow for huge remaining, got %v", err)
	}
	if _, err := SnoozeCost(1_000_000, 64, 10); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow for shift count over 63, got %v", err)
	}
}

func TestRefundPenalty(t *testing.T) {
	got, err := RefundPenalty(10_000_000, 5)
	if err != nil {
		t.Fatalf("RefundPenalty: %v", err)
	}
	if got != 500_000 {
		t.Fatalf("expected 500000, got %d", got)
	}

	got, err = RefundPenalty(19, 5)
	if err != nil {
		t.Fatalf("RefundPenalty: %v", err)
	}
	if got != 0 {
		t.Fatalf("floor division: expected 0, got %d", got)
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if _, err := addChecked(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("add overflow not detected")
	}
	if _, err := subChecked(1, 2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("sub underflow not detected")
	}
	if _, err := mulChecked(math.MaxUint64, 2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("mul overflow not detected")
	}
	sum, err := addChecked(2, 3)
	if err != nil || sum != 5 {
		t.Fatalf("addChecked(2,3) = %d, %v", sum, err)
	}
}

func TestCapAtReserve(t *testing.T) {
	cases := []struct {
		desired, balance, reserve, want uint64
	}{
		{100, 1_000, 0, 100},
		{100, 1_000, 950, 50},
		{100, 1_000, 1_000, 0},
		{100, 500, 1_000, 0},
		{0, 1_000, 0, 0},
	}
	for _, tc := range cases {
		if got := capAtReserve(tc.desired, tc.balance, tc.reserve); got != tc.want {
			t.Fatalf("capAtReserve(%d, %d, %d) = %d, want %d", tc.desired, tc.balance, tc.reserve, got, tc.want)
		}
	}
}
