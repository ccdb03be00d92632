package lifecycle

// Delivery request statuses.
const (
	StatusPlaced    = "placed"
	StatusPreparing = "preparing"
	StatusOnWay     = "on_way"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

var transitions = map[string]map[string]struct{}{
	StatusPlaced: {
		StatusPreparing: {},
		StatusCancelled: {},
	},
	StatusPreparing: {
		StatusOnWay:     {},
		StatusCancelled: {},
	},
	StatusOnWay: {
		StatusDelivered: {},
		StatusCancelled: {},
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// ActiveStatuses are the statuses of a claimed request that still needs the rider.
var ActiveStatuses = []string{StatusPlaced, StatusPreparing, StatusOnWay}

// CanTransition reports whether the lifecycle allows moving from current to next.
// Staying in the same status is not a transition.
func CanTransition(current, next string) bool {
	allowed, ok := transitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// IsKnown reports whether status is part of the lifecycle.
func IsKnown(status string) bool {
	_, ok := transitions[status]
	return ok
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	allowed, ok := transitions[status]
	return ok && len(allowed) == 0
}
