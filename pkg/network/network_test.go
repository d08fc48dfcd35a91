package network

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
	"github.com/cuemby/holo/pkg/validation"
)

// stubLocalData is an in-memory LocalData backed by a map of address to
// the aspects a node holds for it.
type stubLocalData struct {
	mu      sync.Mutex
	aspects map[hash.Address][]types.EntryAspect
}

func newStubLocalData() *stubLocalData {
	return &stubLocalData{aspects: make(map[hash.Address][]types.EntryAspect)}
}

func (d *stubLocalData) put(addr hash.Address, asp types.EntryAspect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aspects[addr] = append(d.aspects[addr], asp)
}

func (d *stubLocalData) Has(addr hash.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.aspects[addr]) > 0
}

func (d *stubLocalData) LocalAspects(addr hash.Address) ([]types.EntryAspect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aspects[addr], nil
}

func (d *stubLocalData) Aspect(addr hash.Address) (*types.EntryAspect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.aspects[addr]) == 0 {
		return nil, nil
	}
	return &d.aspects[addr][0], nil
}

func (d *stubLocalData) Authored() ([]hash.Address, error) {
	return d.Held()
}

func (d *stubLocalData) Held() ([]hash.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var addrs []hash.Address
	for addr := range d.aspects {
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (d *stubLocalData) ValidationPackage(headerAddr hash.Address) (*types.ValidationPackage, error) {
	return &types.ValidationPackage{Requirement: types.PackageEntry}, nil
}

// recordingDispatch collects dispatched actions instead of running a
// real Dispatcher, so tests can assert on what a network State handed
// off to the rest of the system (validation, mainly) without standing
// up the whole reducer stack.
type recordingDispatch struct {
	mu      sync.Mutex
	actions []state.Action
	self    *State
}

func (r *recordingDispatch) dispatch(a state.Action) uuid.UUID {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
	w := state.Wrap(a)
	if r.self != nil {
		r.self.Reducer(nil, nil, w)
	}
	return w.ID
}

func (r *recordingDispatch) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actions {
		if a.ActionName() == name {
			return true
		}
	}
	return false
}

func testAspect(entryAddr hash.Address) types.EntryAspect {
	entry := &types.Entry{Type: types.EntryTypeApp, AppEntryType: "note", AppPayload: []byte("hi")}
	header := &types.ChainHeader{EntryType: types.EntryTypeApp, EntryAddress: entryAddr}
	return types.EntryAspect{Variant: types.AspectContent, Header: header, Entry: entry}
}

func TestQueryTimeout(t *testing.T) {
	a, _ := NewLoopbackPair()
	local := newStubLocalData()
	rd := &recordingDispatch{}
	s := New("space1", "agentA", local, a, rd.dispatch, nil)
	rd.self = s

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Query(ctx, "missing-entry", "agentB")
	require.Error(t, err)
}

func TestPublishDeliversAspectToValidation(t *testing.T) {
	a, b := NewLoopbackPair()

	localA := newStubLocalData()
	addr := hash.Address("entry1")
	localA.put(addr, testAspect(addr))
	rdA := &recordingDispatch{}
	stateA := New("space1", "agentA", localA, a, rdA.dispatch, nil)
	rdA.self = stateA

	localB := newStubLocalData()
	rdB := &recordingDispatch{}
	stateB := New("space1", "agentB", localB, b, rdB.dispatch, nil)
	rdB.self = stateB

	rdA.dispatch(Publish{EntryAddress: addr, ToAgent: "agentB"})

	select {
	case env := <-b.Recv():
		rdB.dispatch(InboundEnvelope{Env: env})
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published envelope")
	}

	assert.True(t, rdB.has("HandleEntryAspect"))
	last := rdB.actions[len(rdB.actions)-1].(validation.HandleEntryAspect)
	assert.Equal(t, addr, last.Aspect.Header.EntryAddress)
}

func TestQueryResolvesAgainstPeer(t *testing.T) {
	a, b := NewLoopbackPair()

	localA := newStubLocalData()
	rdA := &recordingDispatch{}
	stateA := New("space1", "agentA", localA, a, rdA.dispatch, nil)
	rdA.self = stateA

	addr := hash.Address("entry1")
	localB := newStubLocalData()
	localB.put(addr, testAspect(addr))
	rdB := &recordingDispatch{}
	stateB := New("space1", "agentB", localB, b, rdB.dispatch, nil)
	rdB.self = stateB

	go func() {
		select {
		case env := <-b.Recv():
			rdB.dispatch(InboundEnvelope{Env: env})
		case <-time.After(time.Second):
		}
	}()
	go func() {
		select {
		case env := <-a.Recv():
			rdA.dispatch(InboundEnvelope{Env: env})
		case <-time.After(time.Second):
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	aspects, err := stateA.Query(ctx, addr, "agentB")
	require.NoError(t, err)
	require.Len(t, aspects, 1)
	assert.Equal(t, addr, aspects[0].Header.EntryAddress)
}
