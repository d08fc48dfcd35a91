package types

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/cuemby/holo/pkg/hash"
)

// canonicalEntry and canonicalHeader are JSON-serializable shadow
// structs with explicit field order and no address-of-self fields, so
// that the canonical form is stable across encode/decode round trips.
// This mirrors the original's AddressableContent convention of hashing
// a type's plain JSON serialization rather than a bespoke binary codec.

type canonicalEntry struct {
	Type            EntryType
	AgentName       string           `json:",omitempty"`
	AgentPublicKey  string           `json:",omitempty"`
	AppEntryType    string           `json:",omitempty"`
	AppPayload      []byte           `json:",omitempty"`
	Link            *LinkData        `json:",omitempty"`
	RemovedAddrs    []string         `json:",omitempty"`
	CapToken        *CapabilityToken `json:",omitempty"`
	DeletionTarget  string           `json:",omitempty"`
	ProjectedHeader *canonicalHeader `json:",omitempty"`
	DNA             *canonicalDNA    `json:",omitempty"`
}

// CanonicalEntry returns the canonical byte serialization of an entry,
// the input to Entry.Address.
func CanonicalEntry(e *Entry) []byte {
	c := canonicalEntry{
		Type:           e.Type,
		AgentName:      e.AgentName,
		AgentPublicKey: string(e.AgentPublicKey),
		AppEntryType:   e.AppEntryType,
		AppPayload:     e.AppPayload,
		Link:           e.Link,
		CapToken:       e.CapToken,
		DeletionTarget: string(e.DeletionTarget),
	}
	for _, a := range e.RemovedAddrs {
		c.RemovedAddrs = append(c.RemovedAddrs, string(a))
	}
	if e.ProjectedHeader != nil {
		h := canonicalHeaderOf(e.ProjectedHeader)
		c.ProjectedHeader = &h
	}
	if e.DNA != nil {
		d := canonicalDNAOf(e.DNA)
		c.DNA = &d
	}
	data, err := json.Marshal(c)
	if err != nil {
		// Every field above is JSON-marshalable by construction; a
		// failure here indicates a programming error, not bad input.
		panic("types: canonical entry marshal: " + err.Error())
	}
	return data
}

// DecodeEntry reverses CanonicalEntry, reconstructing an Entry from its
// canonical byte serialization. Used by callers that fetch a committed
// entry back out of the CAS by address (e.g. resolving a capability
// grant token to its CapToken payload).
func DecodeEntry(data []byte) (*Entry, error) {
	var c canonicalEntry
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	e := &Entry{
		Type:           c.Type,
		AgentName:      c.AgentName,
		AgentPublicKey: hash.Address(c.AgentPublicKey),
		AppEntryType:   c.AppEntryType,
		AppPayload:     c.AppPayload,
		Link:           c.Link,
		CapToken:       c.CapToken,
		DeletionTarget: hash.Address(c.DeletionTarget),
	}
	for _, a := range c.RemovedAddrs {
		e.RemovedAddrs = append(e.RemovedAddrs, hash.Address(a))
	}
	if c.ProjectedHeader != nil {
		e.ProjectedHeader = canonicalHeaderToHeader(*c.ProjectedHeader)
	}
	if c.DNA != nil {
		e.DNA = canonicalDNAToDNA(*c.DNA)
	}
	return e, nil
}

func canonicalHeaderToHeader(c canonicalHeader) *ChainHeader {
	h := &ChainHeader{
		EntryType:    c.EntryType,
		EntryAddress: hash.Address(c.EntryAddress),
		Provenances:  c.Provenances,
		Timestamp:    time.Unix(c.Timestamp, 0).UTC(),
	}
	if c.Link != "" {
		a := hash.Address(c.Link)
		h.Link = &a
	}
	if c.LinkSameType != "" {
		a := hash.Address(c.LinkSameType)
		h.LinkSameType = &a
	}
	if c.LinkUpdateDelete != "" {
		a := hash.Address(c.LinkUpdateDelete)
		h.LinkUpdateDelete = &a
	}
	return h
}

func canonicalDNAToDNA(c canonicalDNA) *DNA {
	return &DNA{
		Name:           c.Name,
		Description:    c.Description,
		Version:        c.Version,
		UUID:           c.UUID,
		DNASpecVersion: c.DNASpecVersion,
		Properties:     c.Properties,
		Zomes:          c.Zomes,
	}
}

type canonicalHeader struct {
	EntryType        EntryType
	EntryAddress     string
	Provenances      []Provenance
	Link             string `json:",omitempty"`
	LinkSameType     string `json:",omitempty"`
	LinkUpdateDelete string `json:",omitempty"`
	Timestamp        int64
}

func canonicalHeaderOf(h *ChainHeader) canonicalHeader {
	c := canonicalHeader{
		EntryType:    h.EntryType,
		EntryAddress: string(h.EntryAddress),
		Provenances:  h.Provenances,
		Timestamp:    h.Timestamp.Unix(),
	}
	if h.Link != nil {
		c.Link = string(*h.Link)
	}
	if h.LinkSameType != nil {
		c.LinkSameType = string(*h.LinkSameType)
	}
	if h.LinkUpdateDelete != nil {
		c.LinkUpdateDelete = string(*h.LinkUpdateDelete)
	}
	return c
}

// DecodeHeader reverses CanonicalHeader, reconstructing a ChainHeader
// from its canonical byte serialization. Used by callers that fetch a
// header back out of the CAS by address.
func DecodeHeader(data []byte) (*ChainHeader, error) {
	var c canonicalHeader
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return canonicalHeaderToHeader(c), nil
}

// CanonicalHeader returns the canonical byte serialization of a header,
// the input to ChainHeader.Address.
func CanonicalHeader(h *ChainHeader) []byte {
	data, err := json.Marshal(canonicalHeaderOf(h))
	if err != nil {
		panic("types: canonical header marshal: " + err.Error())
	}
	return data
}

type canonicalDNA struct {
	Name           string
	Description    string
	Version        string
	UUID           string
	DNASpecVersion string
	Properties     map[string]interface{} `json:",omitempty"`
	Zomes          []Zome
}

func canonicalDNAOf(d *DNA) canonicalDNA {
	return canonicalDNA{
		Name:           d.Name,
		Description:    d.Description,
		Version:        d.Version,
		UUID:           d.UUID,
		DNASpecVersion: d.DNASpecVersion,
		Properties:     d.Properties,
		Zomes:          d.Zomes,
	}
}

// CanonicalDNA returns the canonical byte serialization of a DNA,
// excluding __META__, the input to DNA.Address. Map key order in
// Properties is normalized by encoding/json's built-in sorted-key
// behavior for map[string]interface{}.
func CanonicalDNA(d *DNA) []byte {
	data, err := json.Marshal(canonicalDNAOf(d))
	if err != nil {
		panic("types: canonical dna marshal: " + err.Error())
	}
	return data
}

// sortedKeys returns the keys of a properties map in sorted order, for
// deterministic iteration independent of json.Marshal's own internal
// ordering guarantees. Nothing in this package calls it.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
