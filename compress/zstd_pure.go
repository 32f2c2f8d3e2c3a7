//go:build !cgo_zstd

package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// One warmed-up coder pair serves every snapshot: EncodeAll and DecodeAll
// are safe for concurrent use on shared instances, and reuse keeps the hot
// path allocation-free after the first call.
var (
	zstdInit sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

func zstdCoders() (*zstd.Encoder, *zstd.Decoder) {
	zstdInit.Do(func() {
		var err error
		zstdEnc, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel)),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(fmt.Sprintf("zstd encoder init: %v", err))
		}
		zstdDec, err = zstd.NewReader(nil,
			zstd.WithDecoderMaxMemory(maxDecodedLen),
		)
		if err != nil {
			panic(fmt.Sprintf("zstd decoder init: %v", err))
		}
	})

	return zstdEnc, zstdDec
}

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	enc, _ := zstdCoders()

	return enc.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	_, dec := zstdCoders()

	decoded, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}

	return decoded, nil
}
