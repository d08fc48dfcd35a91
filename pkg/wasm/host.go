package wasm

import (
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/types"
)

// Host is the set of capabilities a zome call's host functions may
// invoke. pkg/conductor wires a concrete Host backed by pkg/chain,
// pkg/dht, pkg/network, and pkg/keystore; tests substitute a stub.
type Host interface {
	// Commit authors entry to the calling agent's own chain.
	Commit(entry *types.Entry, linkUpdateDelete *hash.Address) (hash.Address, error)
	// Get fetches an entry by address from the local CAS or DHT.
	Get(addr hash.Address) (*types.Entry, error)
	// Link records or removes a link, per LinkOp.
	Link(op LinkOp, base hash.Address, linkType, tag string, target hash.Address) error
	// GetLinks returns live link targets from base.
	GetLinks(base hash.Address, linkType, tag string) ([]hash.Address, error)
	// Query issues a QueryEntry to the network for a remote address.
	Query(addr hash.Address) (*types.Entry, error)
	// Send transmits a direct message to a peer agent, optionally
	// waiting for a reply.
	Send(to hash.Address, payload []byte, awaitReply bool) ([]byte, error)
	// Debug writes msg to the host's log at debug level, tagged with the
	// calling zome.
	Debug(zome, msg string)
	// Property looks up a DNA property by name.
	Property(name string) (string, error)
	// ResolveZome returns the named zome of the DNA running this call,
	// used by the "call" host function to run an inner call against
	// another zome's WASM code within the same call stack.
	ResolveZome(name string) (*types.Zome, error)
	// CryptoHash returns the content address of data, the same function
	// used for entry/header addressing.
	CryptoHash(data []byte) hash.Address
	// Sign signs data with the calling agent's key.
	Sign(data []byte) ([]byte, error)
	// Verify checks a signature against data under agent's public key.
	Verify(agent hash.Address, data, signature []byte) (bool, error)
	// MakeCapRequest builds a signed CapabilityRequest for an inner call,
	// as make_cap_request_for_call does for the original implementation.
	MakeCapRequest(token hash.Address, function string, parameters []byte) (types.CapabilityRequest, error)
	// GrantCapability commits a CapTokenGrant entry and returns its
	// address, the new token.
	GrantCapability(capType types.CapabilityType, assignees []hash.Address, functions []types.CapabilityFunction) (hash.Address, error)
	// ClaimCapability commits a CapTokenClaim entry referencing a grant
	// received from another agent.
	ClaimCapability(grantor hash.Address, token hash.Address) (hash.Address, error)
	// EmitSignal publishes an application-level signal to local UI
	// subscribers; it has no network or chain effect.
	EmitSignal(name string, payload []byte)
	// Sleep suspends the calling goroutine for the given duration,
	// expressed in milliseconds as the guest ABI has no duration type.
	Sleep(millis int64)
}

// LinkOp selects whether Host.Link adds or removes a link.
type LinkOp int

const (
	LinkAdd LinkOp = iota
	LinkRemove
)
