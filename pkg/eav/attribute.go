// Package eav implements the entity-attribute-value index: an ordered
// multi-set of (entity, attribute, value, index) tuples recording
// links and CRUD transitions over CAS content.
package eav

import (
	"fmt"
	"regexp"
)

// Attribute is a closed variant set plus two structured families,
// LinkTag and RemovedLink, each parameterized by a link type and a tag.
// It mirrors the original eavi.rs Attribute enum field for field.
type Attribute struct {
	kind     attrKind
	linkType string
	tag      string
}

type attrKind int

const (
	kindCrudStatus attrKind = iota
	kindCrudLink
	kindEntryHeader
	kindLink
	kindLinkRemove
	kindLinkTag
	kindRemovedLink
	kindPendingEntry
	kindTarget
)

var (
	CrudStatus   = Attribute{kind: kindCrudStatus}
	CrudLink     = Attribute{kind: kindCrudLink}
	EntryHeader  = Attribute{kind: kindEntryHeader}
	Link         = Attribute{kind: kindLink}
	LinkRemove   = Attribute{kind: kindLinkRemove}
	PendingEntry = Attribute{kind: kindPendingEntry}
	Target       = Attribute{kind: kindTarget}
)

// LinkTag constructs the LinkTag(type, tag) attribute recorded when a
// link is added.
func LinkTag(linkType, tag string) Attribute {
	return Attribute{kind: kindLinkTag, linkType: linkType, tag: tag}
}

// NewRemovedLink constructs the RemovedLink(type, tag) attribute
// recorded when a link is removed.
func NewRemovedLink(linkType, tag string) Attribute {
	return Attribute{kind: kindRemovedLink, linkType: linkType, tag: tag}
}

// String renders the attribute the way the original implementation
// does, so that the textual form round-trips through ParseAttribute:
// "link__{type}__{tag}" and "removed_link__{type}__{tag}" for the
// structured families, plain snake_case names otherwise.
func (a Attribute) String() string {
	switch a.kind {
	case kindCrudStatus:
		return "crud_status"
	case kindCrudLink:
		return "crud_link"
	case kindEntryHeader:
		return "entry_header"
	case kindLink:
		return "link"
	case kindLinkRemove:
		return "link_remove"
	case kindLinkTag:
		return fmt.Sprintf("link__%s__%s", a.linkType, a.tag)
	case kindRemovedLink:
		return fmt.Sprintf("removed_link__%s__%s", a.linkType, a.tag)
	case kindPendingEntry:
		return "pending_entry"
	case kindTarget:
		return "target"
	default:
		return "unknown"
	}
}

// IsLinkTag reports whether a is a LinkTag(type, tag) attribute, and
// returns its link type and tag if so.
func (a Attribute) IsLinkTag() (linkType, tag string, ok bool) {
	if a.kind != kindLinkTag {
		return "", "", false
	}
	return a.linkType, a.tag, true
}

// IsRemovedLink reports whether a is a RemovedLink(type, tag)
// attribute, and returns its link type and tag if so.
func (a Attribute) IsRemovedLink() (linkType, tag string, ok bool) {
	if a.kind != kindRemovedLink {
		return "", "", false
	}
	return a.linkType, a.tag, true
}

var (
	linkRegex        = regexp.MustCompile(`^link__(.*)__(.*)$`)
	removedLinkRegex = regexp.MustCompile(`^removed_link__(.*)__(.*)$`)
)

// ParseAttribute recovers an Attribute from its String() form.
func ParseAttribute(s string) (Attribute, error) {
	switch s {
	case "crud_status":
		return CrudStatus, nil
	case "crud_link":
		return CrudLink, nil
	case "entry_header":
		return EntryHeader, nil
	case "link":
		return Link, nil
	case "link_remove":
		return LinkRemove, nil
	case "pending_entry":
		return PendingEntry, nil
	case "target":
		return Target, nil
	}
	if m := linkRegex.FindStringSubmatch(s); m != nil {
		return LinkTag(m[1], m[2]), nil
	}
	if m := removedLinkRegex.FindStringSubmatch(s); m != nil {
		return NewRemovedLink(m[1], m[2]), nil
	}
	return Attribute{}, fmt.Errorf("eav: unrecognized attribute %q", s)
}

// linkTypeNameRegex matches the characters validate_attribute forbids
// in a link-type name, mirroring the original's validation.
var linkTypeNameRegex = regexp.MustCompile(`[/:*?<>"'|+]`)

// ValidateLinkTypeName rejects link-type names carrying characters that
// would corrupt the "link__{type}__{tag}" textual encoding.
func ValidateLinkTypeName(name string) error {
	if linkTypeNameRegex.MatchString(name) {
		return fmt.Errorf("eav: invalid characters in link type name %q", name)
	}
	return nil
}
