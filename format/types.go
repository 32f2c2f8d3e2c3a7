// Package format defines the shared enums and constants of the axon page
// format and ingestion core.
package format

import "math"

type (
	// PageKind identifies the role of a page within a volume.
	PageKind uint32
	// Direction selects the scan order of a time-range search.
	Direction uint8
	// Durability selects the fsync policy of the storage layer.
	Durability uint8
	// CompressionType identifies the codec used for page snapshots.
	CompressionType uint8
)

const (
	// PageMetadata marks a page holding volume metadata.
	PageMetadata PageKind = 0x1
	// PageIndex marks a data page holding indexed entries.
	PageIndex PageKind = 0x2

	// Forward scans entries in ascending timestamp order.
	Forward Direction = 0x1
	// Backward scans entries in descending timestamp order.
	Backward Direction = 0x2

	// MaxWriteSpeed never syncs the volume; data survives process crashes
	// only as far as the OS flushed the mapping.
	MaxWriteSpeed Durability = 0x1
	// Durable msyncs the volume on every page close.
	Durable Durability = 0x2

	CompressionNone CompressionType = 0x1 // CompressionNone bypasses compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd selects Zstandard.
	CompressionS2   CompressionType = 0x3 // CompressionS2 selects S2.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 selects LZ4 block format.
)

// Timestamps are opaque monotonic 64-bit integers. The extremes are reserved
// sentinels meaning "unbounded" in queries.
const (
	MinTimestamp int64 = math.MinInt64
	MaxTimestamp int64 = math.MaxInt64
)

func (k PageKind) String() string {
	switch k {
	case PageMetadata:
		return "Metadata"
	case PageIndex:
		return "Index"
	default:
		return "Unknown"
	}
}

// Valid reports whether k is a known page kind.
func (k PageKind) Valid() bool {
	return k == PageMetadata || k == PageIndex
}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "Forward"
	case Backward:
		return "Backward"
	default:
		return "Unknown"
	}
}

func (d Durability) String() string {
	switch d {
	case MaxWriteSpeed:
		return "MaxWriteSpeed"
	case Durable:
		return "Durable"
	default:
		return "Unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}
