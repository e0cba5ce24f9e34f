package escrow

// Status is the lifecycle state of an alarm escrow record.
//
// Transitions form a strict forward DAG:
//
//	Created -> Acknowledged -> Claimed
//	Created -> Claimed  (emergency refund)
//	Created -> Slashed
//
// Claimed and Slashed are terminal.
type Status string

const (
	StatusCreated      Status = "created"
	StatusAcknowledged Status = "acknowledged"
	StatusClaimed      Status = "claimed"
	StatusSlashed      Status = "slashed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusClaimed || s == StatusSlashed
}

// ParseStatus validates a stored status string.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusCreated, StatusAcknowledged, StatusClaimed, StatusSlashed:
		return Status(value), true
	default:
		return "", false
	}
}

// PenaltyRoute selects where forfeited funds go.
type PenaltyRoute string

const (
	// RouteBurn sends penalties to the fixed burn sink.
	RouteBurn PenaltyRoute = "burn"
	// RouteDonate sends penalties to a fixed external address.
	RouteDonate PenaltyRoute = "donate"
	// RouteBuddy sends penalties to a named beneficiary who gets a
	// priority collection window after the deadline.
	RouteBuddy PenaltyRoute = "buddy"
)

// ParsePenaltyRoute validates a route string.
func ParsePenaltyRoute(value string) (PenaltyRoute, bool) {
	switch PenaltyRoute(value) {
	case RouteBurn, RouteDonate, RouteBuddy:
		return PenaltyRoute(value), true
	default:
		return "", false
	}
}

// RequiresDestination reports whether the route needs an explicit
// penalty destination address.
func (r PenaltyRoute) RequiresDestination() bool {
	return r == RouteDonate || r == RouteBuddy
}
