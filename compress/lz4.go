package compress

import (
	"errors"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// lz4Codec compresses page snapshots with the LZ4 block format.
type lz4Codec struct{}

var _ Codec = lz4Codec{}

// lz4Pool recycles block compressors; they keep internal hash tables that
// benefit from reuse across snapshots.
var lz4Pool = sync.Pool{
	New: func() any {
		return new(lz4.Compressor)
	},
}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	c := lz4Pool.Get().(*lz4.Compressor)
	defer lz4Pool.Put(c)

	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := c.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}

	return dst[:n], nil
}

// Decompress restores an LZ4 block. The block format does not record the
// decompressed size; snapshots are page regions, so a buffer of a few times
// the input nearly always fits on the first try, and the size doubles
// (bounded by maxDecodedLen) when it does not.
func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	for size := len(data) * 4; size <= maxDecodedLen; size *= 2 {
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(data, dst)
		if err == nil {
			return dst[:n], nil
		}
		if !errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			return nil, err
		}
	}

	return nil, lz4.ErrInvalidSourceShortBuffer
}
