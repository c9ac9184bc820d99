package blocks

import (
	"fmt"

	"github.com/weberc2/flatfs/pkg/alloc"
	"github.com/weberc2/flatfs/pkg/region"
	. "github.com/weberc2/flatfs/pkg/types"
)

// Space allocates fixed-size blocks out of the block table.
type Space struct {
	pool  alloc.Pool
	table region.Region
}

func NewSpace(pool alloc.Pool, table region.Region) Space {
	if need := pool.Total() * BlockSize; table.Len() < need {
		panic(fmt.Sprintf(
			"block table of `%d` bytes can't hold `%d` blocks",
			table.Len(),
			pool.Total(),
		))
	}
	return Space{pool: pool, table: table}
}

func (s Space) Create() (BlockID, error) {
	b, ok := s.pool.Alloc()
	if !ok {
		return 0, ErrOutOfBlocks
	}
	return BlockID(b), nil
}

func (s Space) Delete(b BlockID) error {
	if !s.pool.Release(uint64(b)) {
		return fmt.Errorf("deleting block `%d`: %w", b, ErrDoubleFree)
	}
	return nil
}

// Get returns the bytes of block `b`. Content of a freshly created block is
// whatever its previous owner left behind.
func (s Space) Get(b BlockID) region.Region {
	return s.table.Sub(uint64(b)*BlockSize, BlockSize)
}

func (s Space) FreeCount() uint64 { return s.pool.Free() }

func (s Space) Count() uint64 { return s.pool.Total() }

func (s Space) InUse(b BlockID) bool { return s.pool.InUse(uint64(b)) }
