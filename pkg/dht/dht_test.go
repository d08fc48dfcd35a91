package dht

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/holo/pkg/cas"
	"github.com/cuemby/holo/pkg/eav"
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
)

func newTestSlice(t *testing.T) *Slice {
	t.Helper()
	casStore, err := cas.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { casStore.Close() })

	eavStore, err := eav.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { eavStore.Close() })

	return NewSlice(casStore, eavStore)
}

func apply(s *Slice, a state.Action) (uuid.UUID, ActionResult) {
	w := state.Wrap(a)
	s.Reducer(s, nil, w)
	r, _ := s.Result(w.ID)
	return w.ID, r
}

func TestLinkAddThenRemoveRoundTrip(t *testing.T) {
	s := newTestSlice(t)

	e1 := &types.Entry{Type: types.EntryTypeApp, AppEntryType: "note", AppPayload: []byte(`"e1"`)}
	e2 := &types.Entry{Type: types.EntryTypeApp, AppEntryType: "note", AppPayload: []byte(`"e2"`)}

	_, r1 := apply(s, CommitAction{Entry: e1})
	require.True(t, r1.OK)
	_, r2 := apply(s, CommitAction{Entry: e2})
	require.True(t, r2.OK)

	base := r1.Address
	target := r2.Address

	_, r3 := apply(s, AddLinkAction{Base: base, LinkType: "knows", Tag: "", LinkEntryAddr: target})
	require.True(t, r3.OK)

	links, err := s.GetLinks(base, "knows", "", LiveLinks)
	require.NoError(t, err)
	assert.Equal(t, []hash.Address{target}, links)

	_, r4 := apply(s, RemoveLinkAction{Base: base, LinkType: "knows", Tag: "", RemovedAddrs: []hash.Address{target}})
	require.True(t, r4.OK)

	links, err = s.GetLinks(base, "knows", "", LiveLinks)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestAddLinkFailsWhenBaseMissing(t *testing.T) {
	s := newTestSlice(t)
	_, r := apply(s, AddLinkAction{Base: "missing", LinkType: "knows", Tag: "", LinkEntryAddr: "target"})
	assert.False(t, r.OK)
	assert.Error(t, r.Err)
}

func TestRemoveEntryMarksCrudStatusDeleted(t *testing.T) {
	s := newTestSlice(t)
	e := &types.Entry{Type: types.EntryTypeApp, AppEntryType: "note", AppPayload: []byte(`"e"`)}
	_, r := apply(s, CommitAction{Entry: e})
	require.True(t, r.OK)

	live, err := s.CrudStatusLive(r.Address)
	require.NoError(t, err)
	assert.True(t, live)

	_, rDel := apply(s, RemoveEntryAction{Target: r.Address})
	require.True(t, rDel.OK)

	live, err = s.CrudStatusLive(r.Address)
	require.NoError(t, err)
	assert.False(t, live)
}

func TestHoldRecordsEntryHeaderTuple(t *testing.T) {
	s := newTestSlice(t)
	e := &types.Entry{Type: types.EntryTypeApp, AppEntryType: "note", AppPayload: []byte(`"e"`)}
	header := &types.ChainHeader{EntryType: types.EntryTypeApp}

	_, r := apply(s, HoldAction{Entry: e, Header: header})
	require.True(t, r.OK)

	attr := eav.EntryHeader
	tuples, err := s.EAV.Query(eav.Query{Entity: &r.Address, Attribute: &attr})
	require.NoError(t, err)
	require.Len(t, tuples, 1)
}
