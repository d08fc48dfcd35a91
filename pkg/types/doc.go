/*
Package types defines the data model shared across the runtime: the
closed entry-kind union, chain headers, capability tokens, and the DNA
descriptor.

# Core types

Entries and chain:
  - Entry: tagged union over app/system entry kinds (AgentId, App,
    LinkAdd, LinkRemove, CapTokenGrant, CapTokenClaim, Deletion,
    ChainHeader, Dna); exactly one payload field populated per Type.
  - ChainHeader: binds an entry to an agent, a predecessor, and a
    signature; its own Address hashes every other field.
  - Provenance: an (agent, signature) pair asserting authorship.

Capabilities:
  - CapabilityToken: Public, Transferable, or Assigned grants over a
    set of (zome, function) pairs.
  - CapabilityRequest: presented by a caller invoking a non-public
    zome function.

DNA:
  - DNA: the application descriptor — zomes, properties, a UUID
    distinguishing otherwise-identical DNAs.
  - Zome: one sandboxed WASM module's entry types, validation
    requirements, traits, and exported function declarations.

# Content addressing

Entry.Address and ChainHeader.Address both hash a canonical
serialization (CanonicalEntry/CanonicalHeader/CanonicalDNA) that
excludes fields not meaningful to identity — DNA.Meta, in particular,
records on-disk package layout rather than application semantics and is
excluded from DNA.Address.
*/
package types
