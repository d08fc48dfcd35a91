// Package state implements the single-writer action dispatcher every
// other subsystem expresses its effects through: a closed set of
// per-component action types, a reducer registry keyed by state-slice
// name, and a dispatcher loop that serializes mutation and fans out
// read-only snapshots to subscribers.
package state

import "github.com/google/uuid"

// Action is implemented by every action type accepted by the
// dispatcher. Each component package (pkg/dht, pkg/nucleus,
// pkg/network, ...) defines its own concrete action types; state
// itself defines none, so there is no import cycle back into those
// packages.
type Action interface {
	// ActionName identifies the action's kind for logging and metrics;
	// it is not used for dispatch, which is a type switch in each
	// component's Reducer.
	ActionName() string
}

// Wrapped pairs an action with a process-unique id, so that two
// structurally identical actions dispatched at different times remain
// distinguishable. Equality and hashing are by ID alone.
type Wrapped struct {
	ID     uuid.UUID
	Action Action
}

// Wrap assigns a fresh id to an action.
func Wrap(a Action) Wrapped {
	return Wrapped{ID: uuid.New(), Action: a}
}
