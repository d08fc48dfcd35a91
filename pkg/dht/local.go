package dht

import (
	"github.com/cuemby/holo/pkg/eav"
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/types"
)

// Held returns the address of every entry this slice has recorded an
// EntryHeader tuple for, i.e. every entry HoldAction has processed.
func (s *Slice) Held() ([]hash.Address, error) {
	tuples, err := s.EAV.Query(eav.Query{Attribute: &eav.EntryHeader, IndexFilter: eav.All})
	if err != nil {
		return nil, err
	}
	seen := make(map[hash.Address]bool, len(tuples))
	var out []hash.Address
	for _, t := range tuples {
		if seen[t.Entity] {
			continue
		}
		seen[t.Entity] = true
		out = append(out, t.Entity)
	}
	return out, nil
}

// Aspect reconstructs the content aspect this slice holds for addr: the
// entry itself plus the header HoldAction recorded alongside it. It
// returns a nil aspect and a nil error if addr was never held.
func (s *Slice) Aspect(addr hash.Address) (*types.EntryAspect, error) {
	tuples, err := s.EAV.Query(eav.Query{
		Entity:    &addr,
		Attribute: &eav.EntryHeader,
	})
	if err != nil {
		return nil, err
	}
	if len(tuples) == 0 {
		return nil, nil
	}
	headerAddr := tuples[len(tuples)-1].Value
	headerRec, err := s.CAS.Get(headerAddr)
	if err != nil {
		return nil, err
	}
	header, err := types.DecodeHeader(headerRec.Data)
	if err != nil {
		return nil, err
	}
	entryRec, err := s.CAS.Get(addr)
	if err != nil {
		return nil, err
	}
	entry, err := types.DecodeEntry(entryRec.Data)
	if err != nil {
		return nil, err
	}
	return &types.EntryAspect{Variant: types.AspectContent, Header: header, Entry: entry}, nil
}

// LocalAspects returns every aspect this slice holds that bears on
// addr. Today that is the single content aspect Aspect reconstructs;
// link and CRUD state for addr is gossiped separately via GetLinks and
// CrudStatusLive rather than as EntryAspect values.
func (s *Slice) LocalAspects(addr hash.Address) ([]types.EntryAspect, error) {
	aspect, err := s.Aspect(addr)
	if err != nil {
		return nil, err
	}
	if aspect == nil {
		return nil, nil
	}
	return []types.EntryAspect{*aspect}, nil
}
