package board

import (
	"fmt"

	"restaurant-orders/internal/models"
)

// TransitionPolicy decides which status changes the board accepts.
type TransitionPolicy string

const (
	// PolicyStrict treats done and cancelled as terminal and only moves forward.
	// Besides new -> in_progress -> done and cancelling an open order, it
	// accepts new -> done so an order can be closed in one step from the
	// same "done" action every open order offers.
	PolicyStrict TransitionPolicy = "strict"
	// PolicyPermissive allows any valid status to follow any other.
	PolicyPermissive TransitionPolicy = "permissive"
)

var strictTransitions = map[models.Status][]models.Status{
	models.StatusNew:        {models.StatusInProgress, models.StatusDone, models.StatusCancelled},
	models.StatusInProgress: {models.StatusDone, models.StatusCancelled},
}

func ParsePolicy(v string) (TransitionPolicy, error) {
	switch p := TransitionPolicy(v); p {
	case PolicyStrict, PolicyPermissive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown status policy %q", v)
	}
}

// Allows reports whether an order in status from may move to status to.
// Setting the current status again is always allowed and is a no-op.
func (p TransitionPolicy) Allows(from, to models.Status) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if p == PolicyPermissive {
		return true
	}
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources lists the stored statuses an order may have for a move to status
// to be accepted. It returns nil when any stored status will do.
func (p TransitionPolicy) Sources(to models.Status) []models.Status {
	if p == PolicyPermissive {
		return nil
	}
	var from []models.Status
	for _, s := range models.Statuses {
		if p.Allows(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// Actions lists the status buttons offered for an order. Under the permissive
// policy "start" is offered only to new orders, "done" to anything not done
// and "cancel" to anything not cancelled.
func (p TransitionPolicy) Actions(from models.Status) []models.Status {
	if p != PolicyPermissive {
		return append([]models.Status(nil), strictTransitions[from]...)
	}

	actions := make([]models.Status, 0, 3)
	if from == models.StatusNew {
		actions = append(actions, models.StatusInProgress)
	}
	if from != models.StatusDone {
		actions = append(actions, models.StatusDone)
	}
	if from != models.StatusCancelled {
		actions = append(actions, models.StatusCancelled)
	}
	return actions
}
