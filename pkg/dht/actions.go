// Package dht implements the DHT slice: a CAS plus an EAV store, and
// the reducer that applies Commit/Hold/AddLink/RemoveLink/UpdateEntry/
// RemoveEntry actions to them.
package dht

import (
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/types"
)

// CommitAction writes an entry into the local CAS.
type CommitAction struct {
	Entry *types.Entry
}

func (CommitAction) ActionName() string { return "Commit" }

// HoldAction writes an entry into the CAS as this node takes
// responsibility for holding it, additionally recording an EntryHeader
// EAV tuple so the header is recoverable from the entry address alone.
type HoldAction struct {
	Entry  *types.Entry
	Header *types.ChainHeader
}

func (HoldAction) ActionName() string { return "Hold" }

// AddLinkAction records a LinkTag EAV tuple. The link is only recorded
// if Base already exists in the CAS; otherwise the action result
// carries an error and no tuple is written.
type AddLinkAction struct {
	Base          hash.Address
	LinkType      string
	Tag           string
	LinkEntryAddr hash.Address // address of the LinkAdd entry itself
}

func (AddLinkAction) ActionName() string { return "AddLink" }

// RemoveLinkAction records a RemovedLink EAV tuple for each prior
// link-add address supplied. Removal is additive: readers must join
// LinkTag with RemovedLink to materialize "live" links.
type RemoveLinkAction struct {
	Base         hash.Address
	LinkType     string
	Tag          string
	RemovedAddrs []hash.Address
}

func (RemoveLinkAction) ActionName() string { return "RemoveLink" }

// UpdateEntryAction records a CrudLink EAV tuple pointing from the old
// entry address to the new one.
type UpdateEntryAction struct {
	Old hash.Address
	New hash.Address
}

func (UpdateEntryAction) ActionName() string { return "UpdateEntry" }

// RemoveEntryAction records a CrudStatus EAV tuple marking an entry
// deleted.
type RemoveEntryAction struct {
	Target hash.Address
}

func (RemoveEntryAction) ActionName() string { return "RemoveEntry" }

// CrudStatusDeleted is the value side of a CrudStatus EAV tuple. It is
// the only status ever recorded; absence of the tuple means Live.
const CrudStatusDeleted = "deleted"
