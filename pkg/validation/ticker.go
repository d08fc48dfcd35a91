package validation

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/holo/pkg/state"
)

// pruneInterval is how often the pending queue is swept for retries.
// A var, not a const, so tests can shrink it rather than sleep for the
// production interval.
var pruneInterval = 10 * time.Second

// Ticker periodically dispatches Prune so the pending-validation queue
// re-issues package requests past their deadline. It is the same
// ticker-goroutine shape as the teacher's reconciler/scheduler loops,
// generalized to dispatch an action rather than call a reconcile
// method directly, so the sweep itself runs on the dispatcher's single
// writer goroutine via State.Reducer.
type Ticker struct {
	stopCh chan struct{}
}

// StartTicker launches a goroutine that dispatches Prune every
// pruneInterval until Stop is called. dispatch is typically
// (*state.Dispatcher).Dispatch.
func StartTicker(dispatch func(state.Action) uuid.UUID) *Ticker {
	t := &Ticker{stopCh: make(chan struct{})}
	go t.run(dispatch)
	return t
}

func (t *Ticker) run(dispatch func(state.Action) uuid.UUID) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			dispatch(Prune{})
		case <-t.stopCh:
			return
		}
	}
}

// Stop terminates the ticker goroutine.
func (t *Ticker) Stop() {
	close(t.stopCh)
}
