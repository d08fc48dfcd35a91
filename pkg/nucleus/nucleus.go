// Package nucleus runs the zome call pipeline: validating a queued call
// against the loaded DNA and the caller's capability, dispatching it to
// the WASM engine in its own goroutine, and recording the result.
package nucleus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/holo/pkg/cas"
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/log"
	"github.com/cuemby/holo/pkg/metrics"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
)

// Engine runs one zome function to completion. pkg/wasm implements this
// against wasmer-go; tests substitute a stub.
type Engine interface {
	Call(zome *types.Zome, fnName string, parameters []byte) ([]byte, error)
}

// CallResult is the outcome of one zome function call, recorded once the
// engine returns.
type CallResult struct {
	Output []byte
	Err    error
}

// State is the nucleus slice of the dispatcher snapshot: the loaded DNA,
// the agent's own address (for the capability self-shortcut), and the
// in-flight and completed call maps.
type State struct {
	mu sync.RWMutex

	dna   *types.DNA
	agent hash.Address

	cas    *cas.Store
	engine Engine

	inFlight map[uuid.UUID]ZomeFnCall
	results  map[uuid.UUID]CallResult

	dispatch func(state.Action) uuid.UUID
}

// New returns an empty nucleus slice. SetDNA must be called before any
// call can be validated; dispatch is the dispatcher's Dispatch method,
// used to self-submit the ReturnZomeFunctionResult action once a call
// completes in its own goroutine.
func New(casStore *cas.Store, engine Engine, agent hash.Address, dispatch func(state.Action) uuid.UUID) *State {
	return &State{
		cas:      casStore,
		engine:   engine,
		agent:    agent,
		dispatch: dispatch,
		inFlight: make(map[uuid.UUID]ZomeFnCall),
		results:  make(map[uuid.UUID]CallResult),
	}
}

// SetDNA loads the DNA this nucleus validates calls against.
func (s *State) SetDNA(dna *types.DNA) {
	s.mu.Lock()
	s.dna = dna
	s.mu.Unlock()
}

// Result returns the recorded outcome of call id, or ok=false if the
// call is still in flight or unknown.
func (s *State) Result(id uuid.UUID) (CallResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	return r, ok
}

// InFlight reports whether call id has been validated and dispatched to
// the engine but has not yet returned a result.
func (s *State) InFlight(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inFlight[id]
	return ok
}

// Reducer is the state.Reducer bound to this nucleus slice's name.
func (s *State) Reducer(prev interface{}, full *state.Snapshot, w state.Wrapped) interface{} {
	switch a := w.Action.(type) {
	case QueueZomeFunctionCall:
		s.reduceQueue(a)
	case ReturnZomeFunctionResult:
		s.reduceReturn(a)
	}
	return s
}

func (s *State) reduceQueue(a QueueZomeFunctionCall) {
	zome, fnDecl, err := s.validate(a.Call)
	if err != nil {
		s.mu.Lock()
		s.results[a.Call.ID] = CallResult{Err: err}
		s.mu.Unlock()
		metrics.NucleusZomeCallsTotal.WithLabelValues(a.Call.ZomeName, "rejected").Inc()
		return
	}

	s.mu.Lock()
	s.inFlight[a.Call.ID] = a.Call
	s.mu.Unlock()
	metrics.NucleusCallsInFlight.Inc()

	go s.run(a.Call, zome, fnDecl)
}

func (s *State) run(call ZomeFnCall, zome *types.Zome, fnDecl *types.FnDeclaration) {
	log.Logger.Debug().Str("zome", call.ZomeName).Str("function", call.FnName).Msg("nucleus: executing zome call")
	output, err := s.engine.Call(zome, call.FnName, call.Parameters)
	if s.dispatch != nil {
		s.dispatch(ReturnZomeFunctionResult{CallID: call.ID, Output: output, Err: err})
	}
}

func (s *State) reduceReturn(a ReturnZomeFunctionResult) {
	s.mu.Lock()
	call, wasInFlight := s.inFlight[a.CallID]
	delete(s.inFlight, a.CallID)
	s.results[a.CallID] = CallResult{Output: a.Output, Err: a.Err}
	s.mu.Unlock()

	if wasInFlight {
		metrics.NucleusCallsInFlight.Dec()
		outcome := "ok"
		if a.Err != nil {
			outcome = "error"
		}
		metrics.NucleusZomeCallsTotal.WithLabelValues(call.ZomeName, outcome).Inc()
	}
}

// validate runs the same checks, in the same order, as validating a
// queued call against the loaded DNA: DnaMissing, then ZomeNotFound,
// then FunctionNotFound, then CapabilityCheckFailed.
func (s *State) validate(call ZomeFnCall) (*types.Zome, *types.FnDeclaration, error) {
	s.mu.RLock()
	dna := s.dna
	s.mu.RUnlock()

	if dna == nil {
		return nil, nil, holoerr.ErrDNAMissing
	}
	zome, ok := dna.ZomeByName(call.ZomeName)
	if !ok {
		return nil, nil, holoerr.ErrZomeNotFound
	}
	fnDecl, ok := zome.FnDeclByName(call.FnName)
	if !ok {
		return nil, nil, holoerr.ErrZomeFunctionNotFound
	}
	if !fnDecl.Public && !s.checkCapability(call) {
		return nil, nil, holoerr.ErrCapabilityDenied
	}
	return zome, fnDecl, nil
}

// checkCapability reports whether call's capability request authorizes
// call.ZomeName/call.FnName. The agent calling its own DNA always
// passes, via the public-key-as-token shortcut; any other caller must
// present a token address that resolves to a committed CapTokenGrant
// entry whose Admits/Grants checks both pass.
func (s *State) checkCapability(call ZomeFnCall) bool {
	req := call.Cap
	if req.Token == s.agent && req.Caller == s.agent {
		return true
	}
	if req.Token.Empty() {
		return false
	}
	rec, err := s.cas.Get(req.Token)
	if err != nil {
		return false
	}
	entry, err := types.DecodeEntry(rec.Data)
	if err != nil || entry.CapToken == nil {
		return false
	}
	return entry.CapToken.Admits(req.Caller) && entry.CapToken.Grants(call.ZomeName, call.FnName)
}
