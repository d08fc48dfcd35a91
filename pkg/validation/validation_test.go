package validation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
)

type stubResolver struct {
	requirement types.ValidationPackageRequirement
	zome        *types.Zome
	ok          bool
}

func (r stubResolver) EntryTypeDef(appEntryType string) (types.ValidationPackageRequirement, *types.Zome, bool) {
	return r.requirement, r.zome, r.ok
}

type stubEngine struct {
	err error
}

func (e *stubEngine) Call(zome *types.Zome, fnName string, parameters []byte) ([]byte, error) {
	return nil, e.err
}

type stubRequester struct {
	mu       sync.Mutex
	requests int
	err      error
}

func (r *stubRequester) RequestValidationPackage(author hash.Address, header *types.ChainHeader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	return r.err
}

type stubHolder struct {
	held []types.EntryAspect
	err  error
}

func (h *stubHolder) HoldAspect(aspect types.EntryAspect) error {
	h.held = append(h.held, aspect)
	return h.err
}

func testAspect(t *testing.T, appEntryType string, variant types.AspectVariant) types.EntryAspect {
	t.Helper()
	entry := &types.Entry{Type: types.EntryTypeApp, AppEntryType: appEntryType, AppPayload: []byte("x")}
	header := &types.ChainHeader{EntryType: types.EntryTypeApp, EntryAddress: entry.Address()}
	header.Provenances = []types.Provenance{{Agent: hash.Address("author1")}}
	return types.EntryAspect{Variant: variant, Header: header, Entry: entry}
}

func TestHandleRejectsHeaderAspectVariant(t *testing.T) {
	holder := &stubHolder{}
	s := New(stubResolver{}, &stubEngine{}, &stubRequester{}, holder)

	aspect := testAspect(t, "note", types.AspectHeader)
	s.handle(aspect)

	assert.Empty(t, holder.held)
}

func TestHandleDropsOnHeaderEntryMismatch(t *testing.T) {
	holder := &stubHolder{}
	s := New(stubResolver{}, &stubEngine{}, &stubRequester{}, holder)

	aspect := testAspect(t, "note", types.AspectContent)
	aspect.Header.EntryAddress = hash.Address("wrong")
	s.handle(aspect)

	assert.Empty(t, holder.held)
}

func TestHandleHoldsImmediatelyWhenNoEntryTypeDef(t *testing.T) {
	holder := &stubHolder{}
	s := New(stubResolver{ok: false}, &stubEngine{}, &stubRequester{}, holder)

	aspect := testAspect(t, "note", types.AspectContent)
	s.handle(aspect)

	require.Len(t, holder.held, 1)
}

func TestHandleRunsValidatorImmediatelyForPackageEntry(t *testing.T) {
	zome := &types.Zome{Name: "notes"}
	holder := &stubHolder{}
	s := New(stubResolver{requirement: types.PackageEntry, zome: zome, ok: true}, &stubEngine{}, &stubRequester{}, holder)

	aspect := testAspect(t, "note", types.AspectContent)
	s.handle(aspect)

	require.Len(t, holder.held, 1)
}

func TestHandleDropsAspectOnValidatorFailure(t *testing.T) {
	zome := &types.Zome{Name: "notes"}
	holder := &stubHolder{}
	s := New(stubResolver{requirement: types.PackageEntry, zome: zome, ok: true}, &stubEngine{err: errors.New("nope")}, &stubRequester{}, holder)

	aspect := testAspect(t, "note", types.AspectContent)
	s.handle(aspect)

	assert.Empty(t, holder.held)
}

func TestHandleEnqueuesAndRequestsPackageWhenRequired(t *testing.T) {
	zome := &types.Zome{Name: "notes"}
	requester := &stubRequester{}
	holder := &stubHolder{}
	s := New(stubResolver{requirement: types.PackageChainFull, zome: zome, ok: true}, &stubEngine{}, requester, holder)

	aspect := testAspect(t, "note", types.AspectContent)
	s.handle(aspect)

	assert.True(t, s.Pending(aspect.Hash()))
	assert.Equal(t, 1, requester.requests)
	assert.Empty(t, holder.held)
}

func TestReceivePackageRunsValidatorAndClearsPending(t *testing.T) {
	zome := &types.Zome{Name: "notes"}
	holder := &stubHolder{}
	s := New(stubResolver{requirement: types.PackageChainFull, zome: zome, ok: true}, &stubEngine{}, &stubRequester{}, holder)

	aspect := testAspect(t, "note", types.AspectContent)
	s.handle(aspect)
	require.True(t, s.Pending(aspect.Hash()))

	s.receivePackage(ReceiveValidationPackage{
		HeaderAddress: aspect.Hash(),
		Package:       &types.ValidationPackage{Requirement: types.PackageChainFull},
	})

	assert.False(t, s.Pending(aspect.Hash()))
	require.Len(t, holder.held, 1)
}

func TestReceivePackageErrorLeavesAspectPendingForRetry(t *testing.T) {
	zome := &types.Zome{Name: "notes"}
	holder := &stubHolder{}
	s := New(stubResolver{requirement: types.PackageChainFull, zome: zome, ok: true}, &stubEngine{}, &stubRequester{}, holder)

	aspect := testAspect(t, "note", types.AspectContent)
	s.handle(aspect)

	s.receivePackage(ReceiveValidationPackage{HeaderAddress: aspect.Hash(), Err: errors.New("timeout")})

	assert.True(t, s.Pending(aspect.Hash()))
	assert.Empty(t, holder.held)
}

func TestPruneDropsAspectAfterRetryBudgetExhausted(t *testing.T) {
	zome := &types.Zome{Name: "notes"}
	requester := &stubRequester{}
	holder := &stubHolder{}
	s := New(stubResolver{requirement: types.PackageChainFull, zome: zome, ok: true}, &stubEngine{}, requester, holder)
	s.retryBudget = 2

	aspect := testAspect(t, "note", types.AspectContent)
	s.handle(aspect)

	for i := 0; i < s.retryBudget; i++ {
		s.mu.Lock()
		s.pending[aspect.Hash()].nextRetry = time.Now().Add(-time.Minute)
		s.mu.Unlock()
		s.prune()
	}
	assert.True(t, s.Pending(aspect.Hash()))

	s.mu.Lock()
	s.pending[aspect.Hash()].nextRetry = time.Now().Add(-time.Minute)
	s.mu.Unlock()
	s.prune()

	assert.False(t, s.Pending(aspect.Hash()))
}

func TestReducerDispatchesHandleEntryAspect(t *testing.T) {
	holder := &stubHolder{}
	s := New(stubResolver{ok: false}, &stubEngine{}, &stubRequester{}, holder)

	aspect := testAspect(t, "note", types.AspectContent)
	w := state.Wrap(HandleEntryAspect{Aspect: aspect})
	result := s.Reducer(s, nil, w)

	assert.Same(t, s, result)
	assert.Len(t, holder.held, 1)
}
