package storage

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/arloliu/axon/errs"
)

// MaxSeriesNameLen bounds registry keys; longer names are rejected rather
// than truncated.
const MaxSeriesNameLen = 4096

var (
	bucketSeries = []byte("series") // name -> id
	bucketIDs    = []byte("ids")    // id (big-endian) -> name
)

// Registry maps series names to sequential param ids and back, persisted in
// a bbolt database. Lookups are served from an in-memory cache, so resolving
// an existing series never touches the database; only first-time
// registrations take the write path. Safe for concurrent use from many
// spouts.
type Registry struct {
	db *bolt.DB

	mu     sync.RWMutex
	byName map[string]uint64
	byID   map[uint64]string
}

// OpenRegistry opens (or creates) the registry database at path and loads
// the existing mappings into the cache.
func OpenRegistry(path string) (*Registry, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open series registry")
	}

	r := &Registry{
		db:     db,
		byName: make(map[string]uint64),
		byID:   make(map[uint64]string),
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSeries); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketIDs); err != nil {
			return err
		}

		return tx.Bucket(bucketSeries).ForEach(func(k, v []byte) error {
			id := binary.BigEndian.Uint64(v)
			name := string(k)
			r.byName[name] = id
			r.byID[id] = name

			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "load series registry")
	}

	return r, nil
}

// GetOrCreate resolves name to its param id, registering it with the next
// sequential id on first use.
func (r *Registry) GetOrCreate(name []byte) (uint64, error) {
	if len(name) == 0 {
		return 0, errs.ErrBadArg
	}
	if len(name) > MaxSeriesNameLen {
		return 0, errs.ErrSeriesNameTooLong
	}

	r.mu.RLock()
	id, ok := r.byName[string(name)]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[string(name)]; ok {
		return id, nil
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		series := tx.Bucket(bucketSeries)
		next, err := series.NextSequence()
		if err != nil {
			return err
		}
		id = next

		var key [8]byte
		binary.BigEndian.PutUint64(key[:], id)
		if err := series.Put(name, key[:]); err != nil {
			return err
		}

		return tx.Bucket(bucketIDs).Put(key[:], name)
	})
	if err != nil {
		return 0, errors.Wrap(err, "register series")
	}

	r.byName[string(name)] = id
	r.byID[id] = string(name)

	return id, nil
}

// Lookup resolves name without registering it.
func (r *Registry) Lookup(name []byte) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[string(name)]

	return id, ok
}

// Reverse writes the series name for id into buf. It returns the number of
// bytes written, the negated name length when buf is too small (so the
// caller can resize and retry), or 0 when the id is unknown.
func (r *Registry) Reverse(id uint64, buf []byte) int {
	r.mu.RLock()
	name, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	if len(buf) < len(name) {
		return -len(name)
	}

	return copy(buf, name)
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}
