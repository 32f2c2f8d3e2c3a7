package compress

import "github.com/klauspost/compress/s2"

// s2Codec compresses page snapshots with the S2 block format. Fast with
// moderate ratios; the default choice for hot snapshot paths.
type s2Codec struct{}

var _ Codec = s2Codec{}

func (s2Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	// Size the destination up front; page regions are fixed-length, so the
	// bound is tight and Encode never reallocates.
	dst := make([]byte, 0, s2.MaxEncodedLen(len(data)))

	return s2.Encode(dst, data), nil
}

func (s2Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	// The block header carries the decoded size; validate it before
	// allocating so a corrupt frame cannot demand gigabytes.
	decoded, err := s2.DecodedLen(data)
	if err != nil {
		return nil, err
	}
	if decoded > maxDecodedLen {
		return nil, s2.ErrCorrupt
	}

	return s2.Decode(make([]byte, decoded), data)
}
