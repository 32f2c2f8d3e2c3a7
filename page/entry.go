package page

// Entry is a single on-page record: a series id, a timestamp and a
// variable-length payload. Payload is a zero-copy view into the page; it is
// valid until the page is reused.
//
// On-page layout (host byte order):
//
//	offset  0: param   uint64
//	offset  8: time    int64
//	offset 16: length  uint32 (payload bytes)
//	offset 20: payload, padded to 4-byte alignment
type Entry struct {
	Param   uint64
	Time    int64
	Payload []byte
}

const entryPrefixSize = 20

// EntrySize returns the on-page size of an entry with the given payload
// length: the fixed 20-byte prefix plus the payload, rounded up to 4-byte
// alignment so index offsets stay aligned.
func EntrySize(payloadLen int) uint32 {
	return uint32(entryPrefixSize+payloadLen+3) &^ 3
}

// entryAt decodes the entry starting at off. It validates that the prefix and
// the declared payload both lie within the page.
func (p *Page) entryAt(off uint32) (Entry, bool) {
	length := p.Length()
	if uint64(off) < HeaderSize || uint64(off)+entryPrefixSize > length {
		return Entry{}, false
	}

	payloadLen := hostOrder.Uint32(p.data[off+16 : off+20])
	if uint64(off)+entryPrefixSize+uint64(payloadLen) > length {
		return Entry{}, false
	}

	return Entry{
		Param:   hostOrder.Uint64(p.data[off : off+8]),
		Time:    p.i64(int(off) + 8),
		Payload: p.data[off+entryPrefixSize : off+entryPrefixSize+payloadLen],
	}, true
}

// writeEntry encodes an entry at off. Alignment padding bytes are left as-is;
// Reuse does not zero the entry area either.
func (p *Page) writeEntry(off uint32, param uint64, ts int64, payload []byte) {
	hostOrder.PutUint64(p.data[off:off+8], param)
	p.setI64(int(off)+8, ts)
	hostOrder.PutUint32(p.data[off+16:off+20], uint32(len(payload)))
	copy(p.data[off+entryPrefixSize:], payload)
}

// ReadEntry returns a zero-copy view of the entry at the given byte offset,
// or false if the offset does not resolve to a valid entry.
func (p *Page) ReadEntry(off uint32) (Entry, bool) {
	return p.entryAt(off)
}

// ReadEntryAt returns a zero-copy view of the i-th indexed entry, or false if
// i is out of range.
func (p *Page) ReadEntryAt(i int) (Entry, bool) {
	count := int(p.Count())
	// A corrupt header may claim more slots than the buffer holds.
	if maxSlots := (len(p.data) - HeaderSize) / indexSlotSize; count > maxSlots {
		count = maxSlots
	}
	if i < 0 || i >= count {
		return Entry{}, false
	}

	return p.entryAt(p.indexSlot(i))
}

// EntryLengthAt returns the payload length of the i-th indexed entry, or 0 if
// i is out of range.
func (p *Page) EntryLengthAt(i int) int {
	e, ok := p.ReadEntryAt(i)
	if !ok {
		return 0
	}

	return len(e.Payload)
}

// CopyEntryAt copies the payload of the i-th indexed entry into buf.
//
// Size negotiation: returns the payload length on success, the negated
// payload length when buf is too small (so the caller can resize and retry),
// and 0 when i is out of range.
func (p *Page) CopyEntryAt(i int, buf []byte) int {
	e, ok := p.ReadEntryAt(i)
	if !ok {
		return 0
	}
	if len(buf) < len(e.Payload) {
		return -len(e.Payload)
	}
	copy(buf, e.Payload)

	return len(e.Payload)
}
