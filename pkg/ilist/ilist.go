package ilist

import (
	"fmt"

	"github.com/weberc2/flatfs/pkg/region"
	. "github.com/weberc2/flatfs/pkg/types"
)

// Size is the size of the on-disk list record embedded in an inode.
const Size uint64 = fieldLevel2 + IDSize

const (
	fieldSize   uint64 = 0
	fieldDirect uint64 = fieldSize + IDSize
	fieldLevel1 uint64 = fieldDirect + DirectBlocksCount*IDSize
	fieldLevel2 uint64 = fieldLevel1 + IDSize
)

// Blocks is the block allocator a list draws indirection blocks from.
type Blocks interface {
	Create() (BlockID, error)
	Delete(BlockID) error
	Get(BlockID) region.Region
	FreeCount() uint64
}

// List is the per-inode list of data block ids: a handful of direct ids, one
// singly indirect block of ids and one doubly indirect block of blocks of
// ids. It is a view over the record stored in the inode table.
type List struct {
	region region.Region
}

func View(r region.Region) List {
	return List{region: r.Sub(0, Size)}
}

func (l List) Len() uint64 { return l.region.U64(fieldSize) }

// Clear forgets every slot without releasing any block.
func (l List) Clear() {
	l.region.Zero()
}

// BlockID resolves the data block at `index`; `index` must be below Len().
func (l List) BlockID(blocks Blocks, index uint64) BlockID {
	if index >= l.Len() {
		panic(fmt.Sprintf(
			"list index `%d` out of range for list of `%d` blocks",
			index,
			l.Len(),
		))
	}
	return l.slot(blocks, index)
}

// Add appends one data block id. If an indirection block is needed and the
// allocator can't provide it, nothing is changed.
func (l List) Add(blocks Blocks, b BlockID) error {
	index := l.Len()
	var ind indirection
	ind.fromIndex(index)
	if ind.level == levelOutOfRange {
		return fmt.Errorf(
			"adding block `%d` at list index `%d`: %w",
			b,
			index,
			ErrListFull,
		)
	}

	if need := ind.overhead(); need > blocks.FreeCount() {
		return fmt.Errorf(
			"adding block `%d` at list index `%d`: allocating %s block: %w",
			b,
			index,
			ind.level,
			ErrOutOfBlocks,
		)
	}

	switch ind.level {
	case levelDirect:
		l.putDirect(ind.direct, b)
	case levelSingly:
		if ind.singly == 0 {
			l.region.PutU64(fieldLevel1, uint64(mustCreate(blocks)))
		}
		putID(blocks, l.level1(), ind.singly, b)
	case levelDoubly:
		if ind.singly == 0 && ind.doubly == 0 {
			l.region.PutU64(fieldLevel2, uint64(mustCreate(blocks)))
		}
		if ind.singly == 0 {
			putID(blocks, l.level2(), ind.doubly, mustCreate(blocks))
		}
		putID(blocks, getID(blocks, l.level2(), ind.doubly), ind.singly, b)
	}

	l.region.PutU64(fieldSize, index+1)
	return nil
}

// Overhead returns how many indirection blocks growing the list from `from`
// to `to` entries allocates, on top of the data blocks themselves.
func Overhead(from, to uint64) uint64 {
	var n uint64
	var ind indirection
	for index := from; index < to; index++ {
		ind.fromIndex(index)
		n += ind.overhead()
	}
	return n
}

// IndirectionBlocks lists the indirection blocks currently owned by the
// list.
func (l List) IndirectionBlocks(blocks Blocks) []BlockID {
	size := l.Len()
	var out []BlockID
	if size > DirectBlocksCount {
		out = append(out, l.level1())
	}
	if size > singlyIndirectMax+1 {
		level2 := l.level2()
		out = append(out, level2)
		used := size - singlyIndirectMax - 1
		for i := uint64(0); i*singlyIndirectCount < used; i++ {
			out = append(out, getID(blocks, level2, i))
		}
	}
	return out
}

func (l List) slot(blocks Blocks, index uint64) BlockID {
	var ind indirection
	ind.fromIndex(index)
	switch ind.level {
	case levelDirect:
		return BlockID(l.region.U64(fieldDirect + ind.direct*IDSize))
	case levelSingly:
		return getID(blocks, l.level1(), ind.singly)
	case levelDoubly:
		return getID(blocks, getID(blocks, l.level2(), ind.doubly), ind.singly)
	default:
		panic(fmt.Sprintf("list index `%d` is %s", index, ind.level))
	}
}

func (l List) putDirect(i uint64, b BlockID) {
	l.region.PutU64(fieldDirect+i*IDSize, uint64(b))
}

func (l List) level1() BlockID { return BlockID(l.region.U64(fieldLevel1)) }

func (l List) level2() BlockID { return BlockID(l.region.U64(fieldLevel2)) }

func getID(blocks Blocks, indirect BlockID, i uint64) BlockID {
	return BlockID(blocks.Get(indirect).U64(i * IDSize))
}

func putID(blocks Blocks, indirect BlockID, i uint64, b BlockID) {
	blocks.Get(indirect).PutU64(i*IDSize, uint64(b))
}

// mustCreate is only called after the free count has been checked, so a
// failure means the allocator's counter and bitmap disagree.
func mustCreate(blocks Blocks) BlockID {
	b, err := blocks.Create()
	if err != nil {
		panic(fmt.Sprintf("allocating indirection block after reservation: %v", err))
	}
	return b
}
