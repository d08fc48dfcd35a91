package dht

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/holo/pkg/cas"
	"github.com/cuemby/holo/pkg/eav"
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/metrics"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
)

// ActionResult records the outcome of one reducing action, for
// observers that dispatched it and want to know what happened without
// threading a result channel through every call site.
type ActionResult struct {
	OK      bool
	Err     error
	Address hash.Address
}

// Slice is the DHT store: a CAS plus an EAV store, and a map of recent
// action outcomes keyed by the dispatcher-assigned action id. CAS and
// EAV are themselves safe for concurrent use (bbolt transactions), so
// Slice only needs to guard its own actions map.
type Slice struct {
	CAS *cas.Store
	EAV *eav.Store

	mu      sync.Mutex
	actions map[uuid.UUID]ActionResult
}

// NewSlice returns a DHT slice backed by the given CAS and EAV stores.
func NewSlice(casStore *cas.Store, eavStore *eav.Store) *Slice {
	return &Slice{CAS: casStore, EAV: eavStore, actions: make(map[uuid.UUID]ActionResult)}
}

// Result returns the recorded outcome of the action with the given id,
// or ok=false if no such action has been reduced (yet, or ever).
func (s *Slice) Result(id uuid.UUID) (ActionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.actions[id]
	return r, ok
}

func (s *Slice) record(id uuid.UUID, r ActionResult) {
	s.mu.Lock()
	s.actions[id] = r
	s.mu.Unlock()
}

// Reducer is the state.Reducer bound to this slice's "dht" name. It
// performs the actual CAS/EAV mutation (both are already durable,
// transaction-safe stores) and returns the same Slice pointer: the
// "new slice" spec.md's reducer contract describes is, here, the
// post-mutation state of the stores the pointer already refers to.
func (s *Slice) Reducer(prev interface{}, full *state.Snapshot, w state.Wrapped) interface{} {
	switch a := w.Action.(type) {
	case CommitAction:
		s.reduceCommit(w.ID, a)
	case HoldAction:
		s.reduceHold(w.ID, a)
	case AddLinkAction:
		s.reduceAddLink(w.ID, a)
	case RemoveLinkAction:
		s.reduceRemoveLink(w.ID, a)
	case UpdateEntryAction:
		s.reduceUpdateEntry(w.ID, a)
	case RemoveEntryAction:
		s.reduceRemoveEntry(w.ID, a)
	}
	return s
}

func (s *Slice) reduceCommit(id uuid.UUID, a CommitAction) {
	addr, err := s.CAS.Put(cas.TypeEntry, types.CanonicalEntry(a.Entry))
	s.record(id, ActionResult{OK: err == nil, Err: err, Address: addr})
}

func (s *Slice) reduceHold(id uuid.UUID, a HoldAction) {
	addr, err := s.CAS.Put(cas.TypeEntry, types.CanonicalEntry(a.Entry))
	if err != nil {
		s.record(id, ActionResult{Err: err})
		return
	}
	headerAddr := a.Header.Address()
	if _, err := s.EAV.Add(addr, eav.EntryHeader, headerAddr); err != nil {
		s.record(id, ActionResult{Err: err})
		return
	}
	metrics.DHTHeldAspectsTotal.Inc()
	s.record(id, ActionResult{OK: true, Address: addr})
}

func (s *Slice) reduceAddLink(id uuid.UUID, a AddLinkAction) {
	if !s.CAS.Has(a.Base) {
		s.record(id, ActionResult{Err: fmt.Errorf("dht: AddLink base %s not in CAS", a.Base)})
		return
	}
	attr := eav.LinkTag(a.LinkType, a.Tag)
	if _, err := s.EAV.Add(a.Base, attr, a.LinkEntryAddr); err != nil {
		s.record(id, ActionResult{Err: err})
		return
	}
	s.record(id, ActionResult{OK: true, Address: a.LinkEntryAddr})
}

func (s *Slice) reduceRemoveLink(id uuid.UUID, a RemoveLinkAction) {
	attr := eav.NewRemovedLink(a.LinkType, a.Tag)
	var lastErr error
	for _, removed := range a.RemovedAddrs {
		if _, err := s.EAV.Add(a.Base, attr, removed); err != nil {
			lastErr = err
		}
	}
	s.record(id, ActionResult{OK: lastErr == nil, Err: lastErr})
}

func (s *Slice) reduceUpdateEntry(id uuid.UUID, a UpdateEntryAction) {
	_, err := s.EAV.Add(a.Old, eav.CrudLink, a.New)
	s.record(id, ActionResult{OK: err == nil, Err: err, Address: a.New})
}

func (s *Slice) reduceRemoveEntry(id uuid.UUID, a RemoveEntryAction) {
	_, err := s.EAV.Add(a.Target, eav.CrudStatus, hash.Address(CrudStatusDeleted))
	s.record(id, ActionResult{OK: err == nil, Err: err, Address: a.Target})
}
