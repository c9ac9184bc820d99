package alloc

import (
	"fmt"

	"github.com/weberc2/flatfs/pkg/math"
	"github.com/weberc2/flatfs/pkg/region"
)

const bitsPerByte = 8

// BitSet is a flat bitmap over `elements` fixed-size elements; 1 means
// allocated. It either owns its storage or views bytes inside an image.
type BitSet struct {
	bytes    region.Region
	elements uint64
}

// New returns a zeroed BitSet that owns its storage.
func New(elements uint64) BitSet {
	return BitSet{
		bytes:    region.New(make([]byte, math.DivRoundUp(elements, bitsPerByte))),
		elements: elements,
	}
}

// View returns a BitSet over existing bytes (e.g. a bitmap region of a mapped
// image).
func View(bytes region.Region, elements uint64) BitSet {
	if need := math.DivRoundUp(elements, bitsPerByte); bytes.Len() < need {
		panic(fmt.Sprintf(
			"bitset of `%d` elements needs `%d` bytes; region has `%d`",
			elements,
			need,
			bytes.Len(),
		))
	}
	return BitSet{bytes: bytes, elements: elements}
}

func (bs BitSet) Len() uint64 { return bs.elements }

func (bs BitSet) Set(i uint64) {
	bs.check(i)
	bs.bytes.PutU8(i/bitsPerByte, byteSetHigh(bs.bytes.U8(i/bitsPerByte), bitOf(i)))
}

func (bs BitSet) Clear(i uint64) {
	bs.check(i)
	bs.bytes.PutU8(i/bitsPerByte, byteSetLow(bs.bytes.U8(i/bitsPerByte), bitOf(i)))
}

func (bs BitSet) Get(i uint64) bool {
	bs.check(i)
	return !byteIsZero(bs.bytes.U8(i/bitsPerByte), bitOf(i))
}

// FindClear returns the lowest clear index. Callers must know a clear bit
// exists (the owning allocator tracks a free count); finding none panics.
func (bs BitSet) FindClear() uint64 {
	for i := uint64(0); i < math.DivRoundUp(bs.elements, bitsPerByte); i++ {
		byt := bs.bytes.U8(i)
		if byt == 0xFF {
			continue
		}
		bit := byteFirstZero(byt)
		if index := i*bitsPerByte + uint64(bit); index < bs.elements {
			return index
		}
	}
	panic(fmt.Sprintf("no clear bit in bitset of `%d` elements", bs.elements))
}

// Count returns the number of set bits.
func (bs BitSet) Count() uint64 {
	var n uint64
	for i := uint64(0); i < bs.elements; i++ {
		if bs.Get(i) {
			n++
		}
	}
	return n
}

func (bs BitSet) check(i uint64) {
	if i >= bs.elements {
		panic(fmt.Sprintf(
			"bit index `%d` out of range for bitset of `%d` elements",
			i,
			bs.elements,
		))
	}
}

func bitOf(i uint64) uint8 { return uint8(i % bitsPerByte) }

func byteIsZero(byt byte, bit uint8) bool {
	return byt&(1<<bit) == 0
}

func byteSetHigh(byt byte, bit uint8) byte {
	return byt | (1 << bit)
}

func byteSetLow(byt byte, bit uint8) byte {
	return byt & ^(1 << bit)
}

func byteFirstZero(byt byte) uint8 {
	for bit := uint8(0); bit < 8; bit++ {
		if byteIsZero(byt, bit) {
			return bit
		}
	}
	return 0xFF
}
