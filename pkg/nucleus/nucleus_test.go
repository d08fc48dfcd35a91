package nucleus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/holo/pkg/cas"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
)

type stubEngine struct {
	output []byte
	err    error
}

func (e *stubEngine) Call(zome *types.Zome, fnName string, parameters []byte) ([]byte, error) {
	return e.output, e.err
}

type recordingDispatcher struct {
	mu      sync.Mutex
	actions []state.Action
}

func (d *recordingDispatcher) dispatch(a state.Action) uuid.UUID {
	d.mu.Lock()
	d.actions = append(d.actions, a)
	d.mu.Unlock()
	return uuid.New()
}

func newTestState(t *testing.T, engine Engine) (*State, *recordingDispatcher) {
	t.Helper()
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	d := &recordingDispatcher{}
	s := New(store, engine, "agent-self", d.dispatch)
	return s, d
}

func testDNA() *types.DNA {
	return &types.DNA{
		Name: "test",
		Zomes: []types.Zome{
			{
				Name: "notes",
				FnDeclarations: []types.FnDeclaration{
					{Name: "create_note", Public: true},
					{Name: "admin_delete", Public: false},
				},
			},
		},
	}
}

func TestValidateRejectsMissingDNA(t *testing.T) {
	s, _ := newTestState(t, &stubEngine{})
	call := NewZomeFnCall("notes", "create_note", types.CapabilityRequest{}, nil)
	_, _, err := s.validate(call)
	assert.ErrorIs(t, err, holoerr.ErrDNAMissing)
}

func TestValidateRejectsUnknownZome(t *testing.T) {
	s, _ := newTestState(t, &stubEngine{})
	s.SetDNA(testDNA())
	call := NewZomeFnCall("ghost", "create_note", types.CapabilityRequest{}, nil)
	_, _, err := s.validate(call)
	assert.ErrorIs(t, err, holoerr.ErrZomeNotFound)
}

func TestValidateRejectsUnknownFunction(t *testing.T) {
	s, _ := newTestState(t, &stubEngine{})
	s.SetDNA(testDNA())
	call := NewZomeFnCall("notes", "ghost_fn", types.CapabilityRequest{}, nil)
	_, _, err := s.validate(call)
	assert.ErrorIs(t, err, holoerr.ErrZomeFunctionNotFound)
}

func TestValidateAllowsPublicFunctionWithoutCapability(t *testing.T) {
	s, _ := newTestState(t, &stubEngine{})
	s.SetDNA(testDNA())
	call := NewZomeFnCall("notes", "create_note", types.CapabilityRequest{}, nil)
	_, _, err := s.validate(call)
	assert.NoError(t, err)
}

func TestValidateRejectsPrivateFunctionWithoutCapability(t *testing.T) {
	s, _ := newTestState(t, &stubEngine{})
	s.SetDNA(testDNA())
	call := NewZomeFnCall("notes", "admin_delete", types.CapabilityRequest{}, nil)
	_, _, err := s.validate(call)
	assert.ErrorIs(t, err, holoerr.ErrCapabilityDenied)
}

func TestValidateAllowsAgentSelfShortcut(t *testing.T) {
	s, _ := newTestState(t, &stubEngine{})
	s.SetDNA(testDNA())
	call := NewZomeFnCall("notes", "admin_delete", types.CapabilityRequest{Token: "agent-self", Caller: "agent-self"}, nil)
	_, _, err := s.validate(call)
	assert.NoError(t, err)
}

func TestReduceQueueRunsEngineAndDispatchesResult(t *testing.T) {
	s, d := newTestState(t, &stubEngine{output: []byte("ok")})
	s.SetDNA(testDNA())

	call := NewZomeFnCall("notes", "create_note", types.CapabilityRequest{}, nil)
	w := state.Wrap(QueueZomeFunctionCall{Call: call})
	s.Reducer(s, nil, w)

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.actions) == 1
	}, time.Second, time.Millisecond)

	d.mu.Lock()
	ret, ok := d.actions[0].(ReturnZomeFunctionResult)
	d.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, call.ID, ret.CallID)
	assert.Equal(t, []byte("ok"), ret.Output)
}

func TestReduceQueueRecordsValidationFailureWithoutRunningEngine(t *testing.T) {
	s, d := newTestState(t, &stubEngine{err: errors.New("engine should not run")})

	call := NewZomeFnCall("notes", "create_note", types.CapabilityRequest{}, nil)
	w := state.Wrap(QueueZomeFunctionCall{Call: call})
	s.Reducer(s, nil, w)

	result, ok := s.Result(call.ID)
	require.True(t, ok)
	assert.ErrorIs(t, result.Err, holoerr.ErrDNAMissing)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.actions)
}

func TestReduceReturnClearsInFlightAndRecordsResult(t *testing.T) {
	s, _ := newTestState(t, &stubEngine{})
	call := NewZomeFnCall("notes", "create_note", types.CapabilityRequest{}, nil)

	s.Reducer(s, nil, state.Wrap(ReturnZomeFunctionResult{CallID: call.ID, Output: []byte("done")}))

	assert.False(t, s.InFlight(call.ID))
	result, ok := s.Result(call.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("done"), result.Output)
}
