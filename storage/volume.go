package storage

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/format"
	"github.com/arloliu/axon/page"
)

// Volume is a memory-mapped file of fixed-size pages. The mapping owns the
// backing bytes; every page is a non-owning view into it, valid until Close.
type Volume struct {
	f        *os.File
	data     []byte
	pageSize int
	pages    []*page.Page
}

// OpenVolume maps the volume file at path, creating and formatting it when
// absent. An existing file must match pageSize*pageCount exactly. Pages that
// fail header validation come back read-only; the volume itself still opens
// so the intact pages remain readable.
func OpenVolume(path string, pageSize, pageCount int) (*Volume, bool, error) {
	if pageSize < page.HeaderSize+64 || pageSize%8 != 0 || int64(pageSize) > page.MaxPageSize {
		return nil, false, errors.Wrapf(errs.ErrInvalidPageSize, "page size %d", pageSize)
	}
	if pageCount <= 0 {
		return nil, false, errors.Wrapf(errs.ErrBadArg, "page count %d", pageCount)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, errors.Wrap(err, "open volume file")
	}

	size := int64(pageSize) * int64(pageCount)
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, errors.Wrap(err, "stat volume file")
	}

	created := st.Size() == 0
	switch {
	case created:
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, false, errors.Wrap(err, "grow volume file")
		}
	case st.Size() != size:
		_ = f.Close()
		return nil, false, errors.Wrapf(errs.ErrCorruption,
			"volume file is %d bytes, want %d", st.Size(), size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, false, errors.Wrap(err, "mmap volume")
	}

	v := &Volume{
		f:        f,
		data:     data,
		pageSize: pageSize,
		pages:    make([]*page.Page, pageCount),
	}

	for i := range v.pages {
		region := data[i*pageSize : (i+1)*pageSize]
		if created {
			p, err := page.New(region, format.PageIndex, uint32(i))
			if err != nil {
				_ = v.Close()
				return nil, false, err
			}
			v.pages[i] = p
			continue
		}
		// Open marks a failing page read-only and still returns a usable
		// view; corruption of one page must not take down its neighbors.
		p, _ := page.Open(region)
		v.pages[i] = p
	}

	return v, created, nil
}

// PageCount returns the number of pages in the volume.
func (v *Volume) PageCount() int {
	return len(v.pages)
}

// Page returns the i-th page view.
func (v *Volume) Page(i int) *page.Page {
	return v.pages[i]
}

// Sync flushes the mapping to the backing file.
func (v *Volume) Sync() error {
	if err := unix.Msync(v.data, unix.MS_SYNC); err != nil {
		return errors.Wrap(err, "msync volume")
	}

	return nil
}

// Close unmaps the volume and closes the backing file. Every page view is
// invalid afterwards.
func (v *Volume) Close() error {
	var err error
	if v.data != nil {
		err = multierr.Append(err, unix.Munmap(v.data))
		v.data = nil
		v.pages = nil
	}
	if v.f != nil {
		err = multierr.Append(err, v.f.Close())
		v.f = nil
	}

	return err
}
