// Package chain implements source-chain authoring: building signed,
// back-linked chain headers, committing entries, and walking the chain.
package chain

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/holo/pkg/cas"
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/keystore"
	"github.com/cuemby/holo/pkg/metrics"
	"github.com/cuemby/holo/pkg/types"
)

// Chain is one agent's personal, hash-linked, signed log. It owns no
// lock over the CAS itself (cas.Store is safe for concurrent use) but
// serializes its own top-of-chain bookkeeping, mirroring the "single
// writer" guarantee the dispatcher gives every other component.
type Chain struct {
	mu        sync.Mutex
	store     *cas.Store
	keys      *keystore.Keystore
	signingID string

	top              hash.Address // zero value until the genesis header is committed
	mostRecentByType map[types.EntryType]hash.Address
	agentAddress     hash.Address // zero value until an AgentId entry is committed
}

// New returns a Chain writing through store and signing with the
// keystore identifier signingID.
func New(store *cas.Store, keys *keystore.Keystore, signingID string) *Chain {
	return &Chain{
		store:            store,
		keys:             keys,
		signingID:        signingID,
		mostRecentByType: make(map[types.EntryType]hash.Address),
	}
}

// Top returns the address of the most recent header, or the zero
// address if the chain is empty.
func (c *Chain) Top() hash.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.top
}

// onlySystemMayCommit reports whether entryType may only be committed
// by the chain's own genesis/agent-id bootstrap, never by a later
// zome-initiated Commit action.
func onlySystemMayCommit(entryType types.EntryType, chainLen int) bool {
	switch entryType {
	case types.EntryTypeDna:
		return chainLen != 0
	case types.EntryTypeAgentID:
		return chainLen != 1
	case types.EntryTypeChainHeader:
		return true
	default:
		return false
	}
}

// Commit constructs a header linking to the current top (and to the
// most recent header of the same entry type), signs the entry address
// under the keystore's signing key, writes entry then header to the
// CAS, and atomically advances the chain's top.
func (c *Chain) Commit(entry *types.Entry, linkUpdateDelete *hash.Address) (hash.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	length, err := c.lengthLocked()
	if err != nil {
		return "", err
	}
	if onlySystemMayCommit(entry.Type, length) {
		return "", fmt.Errorf("%w: entry type %s reserved for chain position %d", holoerr.ErrInvalidOperationOnSysEntry, entry.Type, length)
	}

	entryAddr, err := c.store.Put(cas.TypeEntry, types.CanonicalEntry(entry))
	if err != nil {
		return "", err
	}

	sig, err := c.keys.Sign(c.signingID, []byte(entryAddr))
	if err != nil {
		return "", fmt.Errorf("%w: %v", holoerr.ErrGeneric, err)
	}
	agentAddr, err := c.keys.PublicKey(c.signingID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", holoerr.ErrGeneric, err)
	}

	header := &types.ChainHeader{
		EntryType:        entry.Type,
		EntryAddress:     entryAddr,
		Provenances:      []types.Provenance{{Agent: agentAddr, Signature: sig}},
		Timestamp:        time.Now().UTC(),
		LinkUpdateDelete: linkUpdateDelete,
	}
	if c.top != "" {
		top := c.top
		header.Link = &top
	}
	if prev, ok := c.mostRecentByType[entry.Type]; ok {
		header.LinkSameType = &prev
	}

	headerAddr, err := c.store.Put(cas.TypeHeader, types.CanonicalHeader(header))
	if err != nil {
		return "", err
	}

	c.top = headerAddr
	c.mostRecentByType[entry.Type] = headerAddr
	if entry.Type == types.EntryTypeAgentID {
		c.agentAddress = agentAddr
	}
	metrics.ChainCommitsTotal.WithLabelValues(string(entry.Type)).Inc()
	return entryAddr, nil
}

func (c *Chain) lengthLocked() (int, error) {
	if c.top == "" {
		return 0, nil
	}
	n := 0
	addr := c.top
	for addr != "" {
		n++
		rec, err := c.store.Get(addr)
		if err != nil {
			return 0, err
		}
		h, err := decodeHeader(rec.Data)
		if err != nil {
			return 0, err
		}
		if h.Link == nil {
			break
		}
		addr = *h.Link
	}
	return n, nil
}

// GetAgentAddress returns the agent address (the signing public key)
// recorded when the most recent AgentId entry was committed, or the zero
// address if none has been committed yet.
func (c *Chain) GetAgentAddress() hash.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentAddress
}
