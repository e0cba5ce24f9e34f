package escrow

// Movement is a single balance transfer produced by a transition.
type Movement struct {
	From   Address
	To     Address
	Amount uint64
}

// Effect is the committed outcome of a successful transition. The caller
// applies all movements and the vault closure atomically with the record
// mutation; a transition either fully happens or not at all.
type Effect struct {
	Movements  []Movement
	CloseVault bool
}

// Moved sums the movement amounts to a given destination.
func (e Effect) Moved(to Address) uint64 {
	var total uint64
	for _, m := range e.Movements {
		if m.To == to {
			total += m.Amount
		}
	}
	return total
}

// TotalMoved sums all movement amounts.
func (e Effect) TotalMoved() uint64 {
	var total uint64
	for _, m := range e.Movements {
		total += m.Amount
	}
	return total
}
