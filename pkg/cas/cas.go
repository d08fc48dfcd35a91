// Package cas implements the content-addressable store: a write-once,
// read-many mapping from content hash to an opaque byte blob plus its
// type tag, backed by bbolt.
package cas

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
)

var bucketBlobs = []byte("cas_blobs")

// TypeTag labels the kind of content stored at an address, so readers
// can dispatch deserialization without re-parsing the blob.
type TypeTag string

const (
	TypeEntry  TypeTag = "entry"
	TypeHeader TypeTag = "header"
)

// Record is a stored blob plus its type tag.
type Record struct {
	Tag  TypeTag
	Data []byte
}

type envelope struct {
	Tag  TypeTag
	Data []byte
}

// Store is a bbolt-backed content-addressable store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the CAS database at <dataDir>/cas.db.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "cas.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open cas db: %v", holoerr.ErrIO, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create cas bucket: %v", holoerr.ErrIO, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes data under its content address, tagged with tag. Writes
// are idempotent: writing the same bytes twice is a no-op on the second
// call (same address, same content).
func (s *Store) Put(tag TypeTag, data []byte) (hash.Address, error) {
	addr := hash.Of(data)
	payload, err := marshalEnvelope(envelope{Tag: tag, Data: data})
	if err != nil {
		return "", fmt.Errorf("%w: %v", holoerr.ErrSerialization, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		return b.Put([]byte(addr), payload)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", holoerr.ErrIO, err)
	}
	return addr, nil
}

// Get returns the record stored at addr.
func (s *Store) Get(addr hash.Address) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		raw := b.Get([]byte(addr))
		if raw == nil {
			return fmt.Errorf("%w: %s", holoerr.ErrEntryNotFound, addr)
		}
		env, err := unmarshalEnvelope(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", holoerr.ErrSerialization, err)
		}
		rec = Record{Tag: env.Tag, Data: env.Data}
		return nil
	})
	return rec, err
}

// Has reports whether addr is present in the store.
func (s *Store) Has(addr hash.Address) bool {
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		found = b.Get([]byte(addr)) != nil
		return nil
	})
	return found
}
