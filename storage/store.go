package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arloliu/axon/compress"
	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/format"
	"github.com/arloliu/axon/internal/options"
	"github.com/arloliu/axon/page"
)

const (
	// DefaultPageSize is the per-page byte size of a new volume.
	DefaultPageSize = 1 << 20
	// DefaultPageCount is the number of pages in a new volume.
	DefaultPageCount = 8

	volumeFileName   = "axon.vol"
	registryFileName = "series.db"
)

// Store implements Connection over a memory-mapped volume of pages.
//
// Pages are reused circularly: when the active page overflows it is sorted,
// closed (and synced under Durable), and the next page is reset for writing —
// the oldest data in the volume is dropped. Write and Search are driven by
// the single pipeline worker; the registry methods are safe for concurrent
// spouts.
type Store struct {
	vol *Volume
	reg *Registry

	active      int
	durability  format.Durability
	compression format.CompressionType
	codec       compress.Codec
	logger      *zap.Logger

	pageSize  int
	pageCount int
}

// StoreOption configures Open.
type StoreOption = options.Option[*Store]

// WithDurability selects the msync policy. The default is MaxWriteSpeed.
func WithDurability(d format.Durability) StoreOption {
	return options.NoError(func(s *Store) { s.durability = d })
}

// WithPageSize sets the page size of a newly created volume.
func WithPageSize(n int) StoreOption {
	return options.NoError(func(s *Store) { s.pageSize = n })
}

// WithPageCount sets the page count of a newly created volume.
func WithPageCount(n int) StoreOption {
	return options.NoError(func(s *Store) { s.pageCount = n })
}

// WithCompression selects the snapshot codec. The default is S2.
func WithCompression(c format.CompressionType) StoreOption {
	return options.NoError(func(s *Store) { s.compression = c })
}

// WithStoreLogger sets the store logger. The default discards everything.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return options.NoError(func(s *Store) { s.logger = logger })
}

// Open opens (or creates) a store in dir: the page volume plus the series
// registry.
func Open(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		durability:  format.MaxWriteSpeed,
		compression: format.CompressionS2,
		logger:      zap.NewNop(),
		pageSize:    DefaultPageSize,
		pageCount:   DefaultPageCount,
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	codec, err := compress.NewCodec(s.compression)
	if err != nil {
		return nil, err
	}
	s.codec = codec

	vol, created, err := OpenVolume(filepath.Join(dir, volumeFileName), s.pageSize, s.pageCount)
	if err != nil {
		return nil, err
	}
	s.vol = vol

	reg, err := OpenRegistry(filepath.Join(dir, registryFileName))
	if err != nil {
		_ = vol.Close()
		return nil, err
	}
	s.reg = reg

	if created {
		s.active = 0
	} else {
		s.active = s.pickActivePage()
	}

	return s, nil
}

// pickActivePage chooses the write target on reopen: the page left mid
// session if one exists, otherwise the least-recycled page, reset for a new
// session.
func (s *Store) pickActivePage() int {
	for i := 0; i < s.vol.PageCount(); i++ {
		p := s.vol.Page(i)
		if p.OpenCount() == p.CloseCount()+1 {
			return i
		}
	}

	oldest := 0
	for i := 1; i < s.vol.PageCount(); i++ {
		if s.vol.Page(i).OpenCount() < s.vol.Page(oldest).OpenCount() {
			oldest = i
		}
	}
	s.vol.Page(oldest).Reuse()

	return oldest
}

// Write appends one sample to the active page, rotating to the next page on
// overflow. A sample that cannot fit even in an empty page fails with
// errs.ErrOverflow.
func (s *Store) Write(sample Sample) error {
	var scratch [8]byte
	payload := sample.payloadBytes(&scratch)

	p := s.vol.Page(s.active)
	err := p.AddEntry(sample.Param, sample.Time, payload)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.ErrOverflow) {
		return err
	}

	if err := s.sealActive(); err != nil {
		return err
	}
	s.advance()

	p = s.vol.Page(s.active)
	if err := p.AddEntry(sample.Param, sample.Time, payload); err != nil {
		if errors.Is(err, errs.ErrOverflow) {
			return fmt.Errorf("sample of %d payload bytes exceeds page capacity: %w",
				len(payload), errs.ErrOverflow)
		}

		return err
	}

	return nil
}

// sealActive sorts and closes the active page, syncing the volume when the
// store is Durable.
func (s *Store) sealActive() error {
	p := s.vol.Page(s.active)
	p.Sort()
	p.Close()

	if s.durability == format.Durable {
		if err := s.vol.Sync(); err != nil {
			return fmt.Errorf("sync on page close: %w", errs.ErrIO)
		}
	}

	return nil
}

// advance rotates to the next page, recycling whatever it held.
func (s *Store) advance() {
	s.active = (s.active + 1) % s.vol.PageCount()
	next := s.vol.Page(s.active)
	if next.Count() > 0 {
		s.logger.Debug("recycling page",
			zap.Uint32("page_id", next.PageID()),
			zap.Uint32("entries_dropped", next.Count()))
	}
	// A freshly formatted page still holds the session opened by page.New;
	// end it so Reuse leaves exactly one session open. Close is a no-op on a
	// page that was already sealed.
	next.Close()
	next.Reuse()
}

// Search parses query and returns a cursor over the matching samples across
// the volume, oldest page first for forward scans.
func (s *Store) Search(query string) (Cursor, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}

	n := s.vol.PageCount()
	pages := make([]*page.Page, 0, n)
	// Oldest data lives just past the active page; finish with the active one.
	for i := 1; i <= n; i++ {
		pages = append(pages, s.vol.Page((s.active+i)%n))
	}
	if q.Dir == format.Backward {
		for i, j := 0, len(pages)-1; i < j; i, j = i+1, j-1 {
			pages[i], pages[j] = pages[j], pages[i]
		}
	}

	return newPageCursor(pages, q), nil
}

// SeriesToParamID resolves (registering on first use) a series name and
// returns a sample pre-filled with its param id. Safe for concurrent call
// from many spouts.
func (s *Store) SeriesToParamID(name []byte) (Sample, error) {
	id, err := s.reg.GetOrCreate(name)
	if err != nil {
		return Sample{}, err
	}

	return Sample{Param: id}, nil
}

// ParamIDToSeries writes the series name for id into buf. See
// Registry.Reverse for the size negotiation contract.
func (s *Store) ParamIDToSeries(id uint64, buf []byte) int {
	return s.reg.Reverse(id, buf)
}

// Registry exposes the series registry.
func (s *Store) Registry() *Registry {
	return s.reg
}

// Volume exposes the page volume.
func (s *Store) Volume() *Volume {
	return s.vol
}

// Close releases the volume mapping and the registry. The pipeline must be
// stopped first; pages become invalid views.
func (s *Store) Close() error {
	return multierr.Append(s.vol.Close(), s.reg.Close())
}

var _ Connection = (*Store)(nil)
