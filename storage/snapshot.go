package storage

import (
	"fmt"
	"io"

	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/internal/pool"
	"github.com/arloliu/axon/page"
)

// Snapshot frame layout: an 8-byte uncompressed length, an 8-byte compressed
// length, then the compressed page bytes. Host byte order, same as the page
// format itself.
const snapshotFrameHeader = 16

// Snapshot compresses page i through the store codec and writes a
// self-describing frame to w. Intended for archival of closed pages; pages
// still open for writing can be snapshotted but the frame captures whatever
// prefix was published at the time.
func (s *Store) Snapshot(w io.Writer, i int) error {
	if i < 0 || i >= s.vol.PageCount() {
		return fmt.Errorf("page %d of %d: %w", i, s.vol.PageCount(), errs.ErrBadArg)
	}

	raw := s.vol.Page(i).Data()
	compressed, err := s.codec.Compress(raw)
	if err != nil {
		return fmt.Errorf("compress page %d: %w", i, err)
	}

	buf := pool.GetSnapshotBuffer()
	defer pool.PutSnapshotBuffer(buf)

	var hdr [snapshotFrameHeader]byte
	hostOrder.PutUint64(hdr[0:8], uint64(len(raw)))
	hostOrder.PutUint64(hdr[8:16], uint64(len(compressed)))
	buf.MustWrite(hdr[:])
	buf.MustWrite(compressed)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write snapshot: %w", errs.ErrIO)
	}

	return nil
}

// LoadSnapshot decompresses a snapshot frame back into raw page bytes and
// returns a page view over them, detached from the volume. The view is not
// marked read-only. A truncated or mismatched frame fails with
// errs.ErrCorruption; a restored header that fails validation returns the
// error from page.Open and no view.
func (s *Store) LoadSnapshot(frame []byte) (*page.Page, error) {
	if len(frame) < snapshotFrameHeader {
		return nil, fmt.Errorf("snapshot frame of %d bytes: %w", len(frame), errs.ErrCorruption)
	}

	rawLen := hostOrder.Uint64(frame[0:8])
	compLen := hostOrder.Uint64(frame[8:16])
	if uint64(len(frame)-snapshotFrameHeader) < compLen {
		return nil, fmt.Errorf("snapshot frame truncated: %w", errs.ErrCorruption)
	}

	raw, err := s.codec.Decompress(frame[snapshotFrameHeader : snapshotFrameHeader+int(compLen)])
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", errs.ErrCorruption)
	}
	if uint64(len(raw)) != rawLen {
		return nil, fmt.Errorf("snapshot decompressed to %d bytes, want %d: %w",
			len(raw), rawLen, errs.ErrCorruption)
	}

	p, err := page.Open(raw)
	if err != nil {
		return nil, err
	}

	return p, nil
}
