package alloc

import "github.com/weberc2/flatfs/pkg/superblock"

// Pool pairs a bitmap with the superblock counter that tracks its free
// elements. The counter only ever changes through the pool.
type Pool struct {
	bits    BitSet
	counter superblock.Counter
}

func NewPool(bits BitSet, counter superblock.Counter) Pool {
	return Pool{bits: bits, counter: counter}
}

func (p Pool) Free() uint64 { return p.counter.Free() }

func (p Pool) Total() uint64 { return p.bits.Len() }

func (p Pool) InUse(i uint64) bool { return p.bits.Get(i) }

// Alloc reserves the lowest free element. It reports false when the pool is
// exhausted.
func (p Pool) Alloc() (uint64, bool) {
	if p.counter.Free() == 0 {
		return 0, false
	}
	p.counter.Dec()
	i := p.bits.FindClear()
	p.bits.Set(i)
	return i, true
}

// Release frees an element. It reports false (and changes nothing) if the
// element was already free.
func (p Pool) Release(i uint64) bool {
	if !p.bits.Get(i) {
		return false
	}
	p.bits.Clear(i)
	p.counter.Inc()
	return true
}
