// Package validation implements the validation and holding workflow: it
// dispatches an arriving EntryAspect to one of five aspect-variant
// workflows, reconstructs or fetches the validation package a zome's
// callback needs, and emits HoldAspect on success.
package validation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/log"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
)

// defaultRetryBudget caps how many times the pending queue re-issues a
// GetValidationPackage request before giving up on an aspect.
const defaultRetryBudget = 5

// retryBackoff is the delay before a pending aspect's next retry.
const retryBackoff = 10 * time.Second

// Resolver looks up the validation-package requirement and owning Zome
// for an entry, so the workflow knows whether a package reconstruction
// is even needed and which WASM module exports the validator.
type Resolver interface {
	EntryTypeDef(appEntryType string) (types.ValidationPackageRequirement, *types.Zome, bool)
}

// Engine runs a zome's validation callback. pkg/nucleus.Engine and
// pkg/wasm.Engine both satisfy this.
type Engine interface {
	Call(zome *types.Zome, fnName string, parameters []byte) ([]byte, error)
}

// Requester issues a GetValidationPackage request to an aspect's
// author. Completion arrives asynchronously as a ReceiveValidationPackage
// action dispatched back through the same Dispatcher the Requester's
// caller is wired to.
type Requester interface {
	RequestValidationPackage(author hash.Address, header *types.ChainHeader) error
}

// Holder commits a successfully validated aspect to the local DHT
// shard, typically by dispatching pkg/dht's HoldAction (and, for
// LinkAdd/LinkRemove/Update/Deletion variants, the matching link or
// CRUD action) through the dispatcher the implementation is wired to.
type Holder interface {
	HoldAspect(aspect types.EntryAspect) error
}

type pendingAspect struct {
	aspect      types.EntryAspect
	zome        *types.Zome
	requirement types.ValidationPackageRequirement
	attempts    int
	nextRetry   time.Time
}

// State is the pending-validation queue and workflow dispatcher. It
// satisfies state.Reducer via its Reducer method.
type State struct {
	mu sync.Mutex

	resolver  Resolver
	engine    Engine
	requester Requester
	holder    Holder

	retryBudget int
	pending     map[hash.Address]*pendingAspect

	logger zerolog.Logger
}

// New returns a State wired to resolver, engine, requester, and holder,
// with a default retry budget of five attempts per pending aspect.
func New(resolver Resolver, engine Engine, requester Requester, holder Holder) *State {
	return &State{
		resolver:    resolver,
		engine:      engine,
		requester:   requester,
		holder:      holder,
		retryBudget: defaultRetryBudget,
		pending:     make(map[hash.Address]*pendingAspect),
		logger:      log.WithComponent("validation"),
	}
}

// Pending reports whether an aspect keyed by headerAddr is still
// awaiting its validation package. Exposed for tests and observability;
// the workflow itself never polls this.
func (s *State) Pending(headerAddr hash.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[headerAddr]
	return ok
}

// Reducer dispatches on the three action types this package defines.
// As with dht.Slice.Reducer and nucleus.State.Reducer, State mutates
// its own fields under its own mutex and returns itself as the "new"
// slice value.
func (s *State) Reducer(prev interface{}, full *state.Snapshot, w state.Wrapped) interface{} {
	switch a := w.Action.(type) {
	case HandleEntryAspect:
		s.handle(a.Aspect)
	case ReceiveValidationPackage:
		s.receivePackage(a)
	case Prune:
		s.prune()
	}
	return s
}
