// Package types defines the data model shared across the runtime:
// entries, chain headers, capability tokens, and the DNA descriptor.
package types

import (
	"time"

	"github.com/cuemby/holo/pkg/hash"
)

// EntryType names one of the closed system entry kinds, or "app" for an
// application-defined entry whose precise type name lives on the Entry
// itself.
type EntryType string

const (
	EntryTypeAgentID       EntryType = "agent_id"
	EntryTypeApp           EntryType = "app"
	EntryTypeLinkAdd       EntryType = "link_add"
	EntryTypeLinkRemove    EntryType = "link_remove"
	EntryTypeCapTokenGrant EntryType = "cap_token_grant"
	EntryTypeCapTokenClaim EntryType = "cap_token_claim"
	EntryTypeDeletion      EntryType = "deletion"
	EntryTypeChainHeader   EntryType = "chain_header"
	EntryTypeDna           EntryType = "dna"
)

// IsSys reports whether t is a system entry type that application code
// may never commit directly.
func (t EntryType) IsSys() bool {
	return t != EntryTypeApp
}

// LinkData is the payload of a LinkAdd or LinkRemove entry.
type LinkData struct {
	Base     hash.Address
	Target   hash.Address
	LinkType string
	Tag      string
}

// Entry is a tagged union over the closed set of entry kinds. Exactly
// one of the typed payload fields is populated, selected by Type.
type Entry struct {
	Type EntryType

	// AgentID
	AgentName       string
	AgentPublicKey  hash.Address

	// App
	AppEntryType string
	AppPayload   []byte

	// LinkAdd / LinkRemove
	Link         *LinkData
	RemovedAddrs []hash.Address

	// CapTokenGrant / CapTokenClaim
	CapToken *CapabilityToken

	// Deletion
	DeletionTarget hash.Address

	// ChainHeader (system projection of a header as a queryable entry)
	ProjectedHeader *ChainHeader

	// Dna
	DNA *DNA
}

// CanPublish reports whether the entry may ever leave its author.
// Private app entries (conventionally prefixed "private_") never
// publish; every system entry type publishes.
func (e *Entry) CanPublish() bool {
	if e.Type != EntryTypeApp {
		return true
	}
	return len(e.AppEntryType) < 8 || e.AppEntryType[:8] != "private_"
}

// Address returns the content address of the entry's canonical
// serialization.
func (e *Entry) Address() hash.Address {
	return hash.Of(CanonicalEntry(e))
}

// Provenance is an (agent, signature) pair asserting authorship of an
// entry address.
type Provenance struct {
	Agent     hash.Address
	Signature []byte
}

// ChainHeader is the system record binding an entry to an agent, a
// predecessor, and a signature. Its own Address hashes every other
// field, so a header must never be mutated after construction.
type ChainHeader struct {
	EntryType         EntryType
	EntryAddress      hash.Address
	Provenances       []Provenance
	Link              *hash.Address // predecessor header address; nil only for genesis
	LinkSameType      *hash.Address // most recent header of the same EntryType
	LinkUpdateDelete  *hash.Address // entry this header replaces or deletes
	Timestamp         time.Time
}

// Address returns the content address of the header's canonical
// serialization.
func (h *ChainHeader) Address() hash.Address {
	return hash.Of(CanonicalHeader(h))
}

// CapabilityType selects how a CapabilityToken admits callers.
type CapabilityType string

const (
	CapabilityPublic      CapabilityType = "public"
	CapabilityTransferable CapabilityType = "transferable"
	CapabilityAssigned    CapabilityType = "assigned"
)

// CapabilityFunction names one (zome, function) pair a token grants.
type CapabilityFunction struct {
	Zome     string
	Function string
}

// CapabilityToken is a record granting the right to invoke a set of
// zome functions, optionally restricted to a set of assignees.
type CapabilityToken struct {
	ID        hash.Address
	Type      CapabilityType
	Assignees []hash.Address // only meaningful for CapabilityAssigned
	Functions []CapabilityFunction
}

// Grants reports whether the token authorizes the given zome function.
func (c *CapabilityToken) Grants(zome, function string) bool {
	for _, f := range c.Functions {
		if f.Zome == zome && f.Function == function {
			return true
		}
	}
	return false
}

// Admits reports whether caller may present this token, independent of
// which function they are calling.
func (c *CapabilityToken) Admits(caller hash.Address) bool {
	switch c.Type {
	case CapabilityPublic:
		return true
	case CapabilityTransferable:
		return true
	case CapabilityAssigned:
		for _, a := range c.Assignees {
			if a == caller {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// CapabilityRequest is presented by a caller when invoking a
// non-public zome function.
type CapabilityRequest struct {
	Token     hash.Address
	Caller    hash.Address
	Function  string
	Parameters []byte
	Signature []byte
}

// Zome is one sandboxed WASM module within a DNA, exporting the
// functions of one capability domain.
type Zome struct {
	Name           string
	Config         map[string]string
	EntryTypes     []string
	EntryTypeDefs  map[string]ValidationPackageRequirement
	Traits         map[string][]string // trait name -> function names
	FnDeclarations []FnDeclaration
	WasmCode       []byte // decoded from the package's base64 code.code
}

// FnDeclaration describes one exported zome function.
type FnDeclaration struct {
	Name       string
	Public     bool
	InputSpec  string
	OutputSpec string
}

// DNA is the application descriptor: zomes, entry types, properties.
type DNA struct {
	Name           string
	Description    string
	Version        string
	UUID           string
	DNASpecVersion string
	Properties     map[string]interface{}
	Zomes          []Zome

	// Meta preserves the on-disk package layout (__META__) verbatim so
	// that unpack/repack round-trips without losing unknown keys.
	Meta map[string]interface{}
}

// Address returns the content address of the DNA's canonical
// serialization. The Meta field is excluded from the canonical form:
// __META__ records on-disk layout, not application semantics.
func (d *DNA) Address() hash.Address {
	return hash.Of(CanonicalDNA(d))
}

// ZomeByName returns the named zome, or ok=false if absent.
func (d *DNA) ZomeByName(name string) (*Zome, bool) {
	for i := range d.Zomes {
		if d.Zomes[i].Name == name {
			return &d.Zomes[i], true
		}
	}
	return nil, false
}

// FnDeclByName returns the named function declaration within z, or
// ok=false if absent.
func (z *Zome) FnDeclByName(name string) (*FnDeclaration, bool) {
	for i := range z.FnDeclarations {
		if z.FnDeclarations[i].Name == name {
			return &z.FnDeclarations[i], true
		}
	}
	return nil, false
}
