package compress

// zstdCodec compresses page snapshots with Zstandard. Best ratios of the
// available codecs; the right choice for cold archival of closed pages.
//
// The default implementation is pure Go; building with the cgo_zstd tag
// swaps in libzstd via gozstd.
type zstdCodec struct{}

var _ Codec = zstdCodec{}

// zstdLevel trades speed for ratio; level 3 keeps page archival close to
// wire speed while still beating the block codecs on density.
const zstdLevel = 3
