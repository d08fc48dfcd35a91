package chain

import (
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/types"
)

func decodeHeader(data []byte) (*types.ChainHeader, error) {
	return types.DecodeHeader(data)
}

// Iterator is a lazy, restartable walk over chain headers, following
// either Link (every header) or LinkSameType (headers of one entry
// type). Constructing one does no I/O; each call to Next fetches the
// next header from the CAS.
type Iterator struct {
	chain    *Chain
	cursor   hash.Address
	sameType bool
}

// Iter returns a lazy iterator walking every header from top backwards.
func (c *Chain) Iter(top hash.Address) *Iterator {
	return &Iterator{chain: c, cursor: top}
}

// IterType returns a lazy iterator walking only headers reachable via
// LinkSameType from top.
func (c *Chain) IterType(top hash.Address) *Iterator {
	return &Iterator{chain: c, cursor: top, sameType: true}
}

// Next returns the next header in the walk, or ok=false when exhausted.
func (it *Iterator) Next() (*types.ChainHeader, bool, error) {
	if it.cursor == "" {
		return nil, false, nil
	}
	rec, err := it.chain.store.Get(it.cursor)
	if err != nil {
		return nil, false, err
	}
	h, err := decodeHeader(rec.Data)
	if err != nil {
		return nil, false, err
	}
	if it.sameType {
		if h.LinkSameType == nil {
			it.cursor = ""
		} else {
			it.cursor = *h.LinkSameType
		}
	} else {
		if h.Link == nil {
			it.cursor = ""
		} else {
			it.cursor = *h.Link
		}
	}
	return h, true, nil
}

// GetMostRecentHeaderForEntry returns the most recent header of
// entryType whose EntryAddress matches entryAddr, walking IterType from
// the chain's current most-recent header of that type.
func (c *Chain) GetMostRecentHeaderForEntry(entryType types.EntryType, entryAddr hash.Address) (*types.ChainHeader, bool, error) {
	top := c.mostRecentHeaderAddrForType(entryType)
	it := c.IterType(top)
	for {
		h, ok, err := it.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if h.EntryAddress == entryAddr {
			return h, true, nil
		}
	}
}

func (c *Chain) mostRecentHeaderAddrForType(entryType types.EntryType) hash.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mostRecentByType[entryType]
}

// Header fetches and decodes the header stored at addr, for callers
// (pkg/conductor's host adapter, mainly) that need the full header a
// Commit just produced rather than only its address.
func (c *Chain) Header(addr hash.Address) (*types.ChainHeader, error) {
	rec, err := c.store.Get(addr)
	if err != nil {
		return nil, err
	}
	return decodeHeader(rec.Data)
}

// Restore re-establishes top-of-chain bookkeeping for a chain whose CAS
// already holds headers from a prior run (top read back from the
// instance's persisted agent state). It walks from top to genesis once,
// repopulating mostRecentByType and agentAddress exactly as Commit would
// have left them, so a restarted instance's onlySystemMayCommit checks
// and LinkSameType chaining continue seamlessly.
func (c *Chain) Restore(top hash.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mostRecentByType = make(map[types.EntryType]hash.Address)
	cursor := top
	for cursor != "" {
		rec, err := c.store.Get(cursor)
		if err != nil {
			return err
		}
		h, err := decodeHeader(rec.Data)
		if err != nil {
			return err
		}
		if _, ok := c.mostRecentByType[h.EntryType]; !ok {
			c.mostRecentByType[h.EntryType] = cursor
		}
		if h.EntryType == types.EntryTypeAgentID && len(h.Provenances) > 0 {
			c.agentAddress = h.Provenances[0].Agent
		}
		if h.Link == nil {
			break
		}
		cursor = *h.Link
	}
	c.top = top
	return nil
}

// Authored walks the chain from top, returning every entry address this
// agent has committed, most recent first.
func (c *Chain) Authored() ([]hash.Address, error) {
	top := c.Top()
	it := c.Iter(top)
	var addrs []hash.Address
	for {
		h, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return addrs, nil
		}
		addrs = append(addrs, h.EntryAddress)
	}
}
