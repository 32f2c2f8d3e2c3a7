// Package axon implements the ingestion core of a time-series database: a
// multi-producer, single-consumer pipeline that accepts timestamped samples
// from many concurrent writers and persists them into a memory-mapped,
// append-only page store optimized for single-series time-range queries.
//
// # Architecture
//
// Producers obtain a Spout from a Pipeline; each spout owns a fixed pool of
// sample slots and feeds one bounded lock-free queue. A single worker drains
// the queues round-robin and appends entries to the active page of a Store,
// maintaining each page's sorted index and bounding box. Queries narrow by
// bounding box, then by interpolation search over the sorted index, and
// stream results through a cursor.
//
// # Basic Usage
//
//	store, _ := axon.Open("/var/lib/axon")
//	defer store.Close()
//
//	pipe, _ := axon.NewPipeline(store)
//	pipe.Start()
//
//	spout, _ := pipe.MakeSpout()
//	sample, _ := spout.SeriesToParamID([]byte("cpu.usage"))
//	spout.Write(storage.FloatSample(sample.Param, ts, 0.42))
//
//	pipe.Stop()
//
// Writes from one spout reach storage in submission order; writes across
// spouts carry no global ordering guarantee.
package axon

import (
	"github.com/arloliu/axon/internal/hash"
	"github.com/arloliu/axon/pipeline"
	"github.com/arloliu/axon/storage"
)

// Open opens (or creates) a store in dir. See storage.Open for options.
func Open(dir string, opts ...storage.StoreOption) (*storage.Store, error) {
	return storage.Open(dir, opts...)
}

// NewPipeline creates an ingestion pipeline over conn. See pipeline.New for
// options; the default is 8 queues of 1024 slots under LinearBackoff.
func NewPipeline(conn storage.Connection, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	return pipeline.New(conn, opts...)
}

// SeriesID hashes a series name to a stateless 64-bit id with xxHash64.
//
// The persistent registry (storage.Store) assigns small sequential ids
// instead; use SeriesID when ids must be derivable without shared state,
// e.g. across independent ingest processes that never query by name.
func SeriesID(name string) uint64 {
	return hash.ID(name)
}
