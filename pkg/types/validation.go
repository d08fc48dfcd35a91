package types

import "github.com/cuemby/holo/pkg/hash"

// AspectVariant selects which of the five validation/holding workflows
// handles an EntryAspect. Header is reserved: the network never accepts
// a bare header as something to hold, only entries and their headers
// together.
type AspectVariant string

const (
	AspectContent    AspectVariant = "content"
	AspectLinkAdd    AspectVariant = "link_add"
	AspectLinkRemove AspectVariant = "link_remove"
	AspectUpdate     AspectVariant = "update"
	AspectDeletion   AspectVariant = "deletion"
	AspectHeader     AspectVariant = "header"
)

// EntryAspect is one unit of entry state gossiped between peers: a
// header and the entry it commits to, tagged with the workflow that
// handles it.
type EntryAspect struct {
	Variant AspectVariant
	Header  *ChainHeader
	Entry   *Entry
}

// Hash addresses an EntryAspect for pending-queue keying; two aspects
// with the same header address are the same aspect; the header address,
// not the entry address, is used because Update/Deletion aspects share
// their target entry's address with other aspects of that entry.
func (a *EntryAspect) Hash() hash.Address {
	return a.Header.Address()
}

// ValidationPackageRequirement selects how much of an entry's author's
// chain a zome's validation callback needs reconstructed before it can
// run.
type ValidationPackageRequirement string

const (
	PackageEntry        ValidationPackageRequirement = "entry"
	PackageChainEntries ValidationPackageRequirement = "chain_entries"
	PackageChainHeaders ValidationPackageRequirement = "chain_headers"
	PackageChainFull    ValidationPackageRequirement = "chain_full"
	PackageCustom       ValidationPackageRequirement = "custom"
)

// ValidationPackage is the reconstructed chain context a validator
// callback runs against, whose shape depends on the zome's declared
// ValidationPackageRequirement for the entry's type.
type ValidationPackage struct {
	Requirement ValidationPackageRequirement
	// ChainHeaders is populated for ChainHeaders and ChainFull.
	ChainHeaders []*ChainHeader
	// ChainEntries is populated for ChainEntries and ChainFull, one
	// entry per header in ChainHeaders at the same index.
	ChainEntries []*Entry
	// Custom is the author-supplied bytes for a Custom(fn) requirement.
	Custom []byte
}
