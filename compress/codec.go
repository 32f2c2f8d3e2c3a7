// Package compress provides the codecs used to snapshot closed pages.
//
// A snapshot compresses the full byte region of a page (header, index, the
// free gap between them and the entry area) into a standalone chunk for archival or shipping. The concrete
// codec is chosen once, at store construction, through NewCodec; the
// implementations are package-private and reachable only through the
// dispatcher.
package compress

import (
	"fmt"

	"github.com/arloliu/axon/format"
)

// Compressor compresses a complete page region into a newly allocated slice.
//
// Memory management:
//   - The returned slice is newly allocated and owned by the caller
//     (except for the no-op codec, which returns the input).
//   - The input slice is not modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a previously compressed page region.
//
// The input must have been produced by the matching Compressor; corrupted or
// mismatched input yields an error, never a partial result.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions. Implementations are stateless values and
// safe for concurrent use.
type Codec interface {
	Compressor
	Decompressor
}

// NewCodec returns the codec for the given compression type.
func NewCodec(typ format.CompressionType) (Codec, error) {
	switch typ {
	case format.CompressionNone:
		return noopCodec{}, nil
	case format.CompressionZstd:
		return zstdCodec{}, nil
	case format.CompressionS2:
		return s2Codec{}, nil
	case format.CompressionLZ4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("unknown compression type %d", typ)
	}
}

// maxDecodedLen caps how large a snapshot may claim to decompress to. Pages
// are bounded by the format's 2^32 limit, but a frame corrupted in storage
// must not be able to demand an arbitrary allocation before failing.
const maxDecodedLen = 1 << 30

// noopCodec passes page bytes through untouched. Useful for benchmarking
// snapshot overhead and for volumes whose pages are already dense binary
// data. Both directions return the input slice as-is, sharing its memory.
type noopCodec struct{}

var _ Codec = noopCodec{}

func (noopCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (noopCodec) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
