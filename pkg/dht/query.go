package dht

import (
	"github.com/cuemby/holo/pkg/eav"
	"github.com/cuemby/holo/pkg/hash"
)

// LinkFilter selects which links GetLinks returns.
type LinkFilter int

const (
	// LiveLinks excludes any link-add whose address appears in a
	// matching RemovedLink tuple.
	LiveLinks LinkFilter = iota
	// AllLinks returns every link-add regardless of removal.
	AllLinks
)

// GetLinks returns the addresses of the LinkAdd entries recorded from
// base matching linkType and tag, applying filter. Callers that need the
// link targets decode those entries and read Link.Target.
func (s *Slice) GetLinks(base hash.Address, linkType, tag string, filter LinkFilter) ([]hash.Address, error) {
	addAttr := eav.LinkTag(linkType, tag)
	added, err := s.EAV.Query(eav.Query{Entity: &base, Attribute: &addAttr, IndexFilter: eav.All})
	if err != nil {
		return nil, err
	}

	if filter == AllLinks {
		out := make([]hash.Address, 0, len(added))
		for _, t := range added {
			out = append(out, t.Value)
		}
		return out, nil
	}

	removedAttr := eav.NewRemovedLink(linkType, tag)
	removed, err := s.EAV.Query(eav.Query{Entity: &base, Attribute: &removedAttr, IndexFilter: eav.All})
	if err != nil {
		return nil, err
	}
	isRemoved := make(map[hash.Address]bool, len(removed))
	for _, t := range removed {
		isRemoved[t.Value] = true
	}

	out := make([]hash.Address, 0, len(added))
	for _, t := range added {
		if !isRemoved[t.Value] {
			out = append(out, t.Value)
		}
	}
	return out, nil
}

// CrudStatusLive reports whether entry has no recorded CrudStatus
// deletion tuple.
func (s *Slice) CrudStatusLive(entry hash.Address) (bool, error) {
	attr := eav.CrudStatus
	tuples, err := s.EAV.Query(eav.Query{Entity: &entry, Attribute: &attr, IndexFilter: eav.LatestByAttribute})
	if err != nil {
		return false, err
	}
	if len(tuples) == 0 {
		return true, nil
	}
	return tuples[0].Value != hash.Address(CrudStatusDeleted), nil
}
