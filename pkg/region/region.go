// Package region provides bounds-checked access to a flat byte range, such
// as a memory-mapped image file. Every structural read and write of the
// image goes through a Region; out-of-range access panics instead of
// silently touching a neighbouring structure.
package region

import (
	"encoding/binary"
	"fmt"
)

type Region struct {
	data []byte
	base uint64
}

func New(data []byte) Region {
	return Region{data: data}
}

func (r Region) Len() uint64 { return uint64(len(r.data)) }

// Sub returns the region `[offset, offset+size)` of r. Offsets reported in
// panics from the returned region are absolute.
func (r Region) Sub(offset, size uint64) Region {
	r.check(offset, size)
	return Region{data: r.data[offset : offset+size], base: r.base + offset}
}

// Slice exposes `size` bytes at `offset` for direct copying. The returned
// slice aliases the region.
func (r Region) Slice(offset, size uint64) []byte {
	r.check(offset, size)
	return r.data[offset : offset+size : offset+size]
}

func (r Region) U64(offset uint64) uint64 {
	return binary.LittleEndian.Uint64(r.Slice(offset, 8))
}

func (r Region) PutU64(offset uint64, u uint64) {
	binary.LittleEndian.PutUint64(r.Slice(offset, 8), u)
}

func (r Region) U8(offset uint64) uint8 {
	return r.Slice(offset, 1)[0]
}

func (r Region) PutU8(offset uint64, u uint8) {
	r.Slice(offset, 1)[0] = u
}

func (r Region) Zero() {
	for i := range r.data {
		r.data[i] = 0
	}
}

func (r Region) check(offset, size uint64) {
	end := offset + size
	if end < offset || end > uint64(len(r.data)) {
		panic(fmt.Sprintf(
			"region access out of range: `%d` bytes at offset `%d` (absolute "+
				"`%d`) exceeds region length `%d`",
			size,
			offset,
			r.base+offset,
			len(r.data),
		))
	}
}
