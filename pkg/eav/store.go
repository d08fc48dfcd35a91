package eav

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/metrics"
)

var bucketTuples = []byte("eav_tuples")

// Tuple is one (entity, attribute, value, index) record. Index is
// monotonically increasing across the whole store, assigned at
// insertion time, and is the tie-break for LatestByAttribute queries.
type Tuple struct {
	Entity    hash.Address
	Attribute Attribute
	Value     hash.Address
	Index     int64
}

type storedTuple struct {
	Entity    hash.Address
	Attribute string
	Value     hash.Address
	Index     int64
}

// IndexFilter selects how many tuples per distinct attribute a query
// returns.
type IndexFilter int

const (
	// LatestByAttribute returns only the highest-index tuple for each
	// distinct attribute value matched by the query. This is the
	// default: it is what "live" link and CRUD-status queries want.
	LatestByAttribute IndexFilter = iota
	// All returns every matching tuple regardless of index.
	All
)

// Query filters tuples by any combination of entity, attribute, and
// value, plus an IndexFilter controlling de-duplication.
type Query struct {
	Entity      *hash.Address
	Attribute   *Attribute
	Value       *hash.Address
	IndexFilter IndexFilter
}

// Store is a bbolt-backed EAV index, append-only except that the
// monotonic Index counter is held in memory and reloaded from the
// highest stored index at Open time.
type Store struct {
	db      *bolt.DB
	mu      sync.Mutex
	nextIdx int64
}

// Open opens (creating if absent) the EAV database at <dataDir>/eav.db.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "eav.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open eav db: %v", holoerr.ErrIO, err)
	}
	s := &Store{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTuples)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create eav bucket: %v", holoerr.ErrIO, err)
	}
	if err := s.loadNextIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadNextIndex() error {
	var max int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTuples)
		return b.ForEach(func(_, v []byte) error {
			var t storedTuple
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.Index > max {
				max = t.Index
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", holoerr.ErrIO, err)
	}
	s.nextIdx = max + 1
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a new tuple, assigning it the next monotonic index.
func (s *Store) Add(entity hash.Address, attr Attribute, value hash.Address) (Tuple, error) {
	s.mu.Lock()
	idx := s.nextIdx
	s.nextIdx++
	s.mu.Unlock()

	t := Tuple{Entity: entity, Attribute: attr, Value: value, Index: idx}
	stored := storedTuple{Entity: entity, Attribute: attr.String(), Value: value, Index: idx}
	data, err := json.Marshal(stored)
	if err != nil {
		return Tuple{}, fmt.Errorf("%w: %v", holoerr.ErrSerialization, err)
	}
	key := fmt.Sprintf("%020d", idx)
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTuples)
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return Tuple{}, fmt.Errorf("%w: %v", holoerr.ErrIO, err)
	}
	return t, nil
}

// Query returns the tuples matching q, sorted by (attribute, index)
// ascending, with LatestByAttribute de-duplication applied if selected.
func (s *Store) Query(q Query) ([]Tuple, error) {
	filterName := "latest"
	if q.IndexFilter == All {
		filterName = "all"
	}
	metrics.DHTEAVQueriesTotal.WithLabelValues(filterName).Inc()

	var all []Tuple
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTuples)
		return b.ForEach(func(_, v []byte) error {
			var st storedTuple
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			attr, err := ParseAttribute(st.Attribute)
			if err != nil {
				return err
			}
			t := Tuple{Entity: st.Entity, Attribute: attr, Value: st.Value, Index: st.Index}
			if q.Entity != nil && t.Entity != *q.Entity {
				return nil
			}
			if q.Attribute != nil && t.Attribute.String() != q.Attribute.String() {
				return nil
			}
			if q.Value != nil && t.Value != *q.Value {
				return nil
			}
			all = append(all, t)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", holoerr.ErrIO, err)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Attribute.String() != all[j].Attribute.String() {
			return all[i].Attribute.String() < all[j].Attribute.String()
		}
		return all[i].Index < all[j].Index
	})

	if q.IndexFilter == All {
		return all, nil
	}
	return latestByAttribute(all), nil
}

// latestByAttribute keeps only the highest-index tuple per distinct
// attribute string, assuming all is already sorted by (attribute, index).
func latestByAttribute(all []Tuple) []Tuple {
	latest := make(map[string]Tuple, len(all))
	order := make([]string, 0, len(all))
	for _, t := range all {
		key := t.Attribute.String()
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = t
	}
	out := make([]Tuple, 0, len(order))
	for _, key := range order {
		out = append(out, latest[key])
	}
	return out
}
