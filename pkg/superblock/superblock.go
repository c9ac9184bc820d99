package superblock

import (
	"fmt"

	"github.com/weberc2/flatfs/pkg/region"
	. "github.com/weberc2/flatfs/pkg/types"
)

const (
	Size Byte = 32

	// InodeSize is the size of one inode table record.
	InodeSize Byte = 128

	fieldBlockCount     = 0
	fieldFreeBlockCount = 8
	fieldInodeCount     = 16
	fieldFreeInodeCount = 24
)

type Byte = uint64

// Geometry holds the two counts every region offset is derived from.
type Geometry struct {
	BlockCount uint64
	InodeCount uint64
}

func (g Geometry) Validate() error {
	if g.BlockCount == 0 || g.BlockCount%8 != 0 {
		return fmt.Errorf(
			"block count `%d` must be a positive multiple of 8: %w",
			g.BlockCount,
			ErrBadGeometry,
		)
	}
	if g.InodeCount == 0 || g.InodeCount%8 != 0 {
		return fmt.Errorf(
			"inode count `%d` must be a positive multiple of 8: %w",
			g.InodeCount,
			ErrBadGeometry,
		)
	}
	return nil
}

func (g Geometry) InodeBitmapOffset() Byte { return Size }

func (g Geometry) InodeBitmapSize() Byte { return g.InodeCount / 8 }

func (g Geometry) BlockBitmapOffset() Byte {
	return g.InodeBitmapOffset() + g.InodeBitmapSize()
}

func (g Geometry) BlockBitmapSize() Byte { return g.BlockCount / 8 }

func (g Geometry) InodeTableOffset() Byte {
	return g.BlockBitmapOffset() + g.BlockBitmapSize()
}

func (g Geometry) InodeTableSize() Byte { return g.InodeCount * InodeSize }

func (g Geometry) BlockTableOffset() Byte {
	return g.InodeTableOffset() + g.InodeTableSize()
}

func (g Geometry) BlockTableSize() Byte { return g.BlockCount * BlockSize }

// ImageSize is the total size of an image with this geometry.
func (g Geometry) ImageSize() Byte {
	return g.BlockTableOffset() + g.BlockTableSize()
}

// SuperBlock is a view over the header record of an image. Counters live in
// the image itself so that allocators mutate the persisted values directly.
type SuperBlock struct {
	region region.Region
}

func View(r region.Region) SuperBlock {
	return SuperBlock{region: r.Sub(0, Size)}
}

// Init writes a fresh header with every block and inode free.
func Init(r region.Region, g Geometry) SuperBlock {
	sb := View(r)
	sb.region.PutU64(fieldBlockCount, g.BlockCount)
	sb.region.PutU64(fieldFreeBlockCount, g.BlockCount)
	sb.region.PutU64(fieldInodeCount, g.InodeCount)
	sb.region.PutU64(fieldFreeInodeCount, g.InodeCount)
	return sb
}

func (sb SuperBlock) Geometry() Geometry {
	return Geometry{BlockCount: sb.BlockCount(), InodeCount: sb.InodeCount()}
}

func (sb SuperBlock) BlockCount() uint64 {
	return sb.region.U64(fieldBlockCount)
}

func (sb SuperBlock) InodeCount() uint64 {
	return sb.region.U64(fieldInodeCount)
}

func (sb SuperBlock) FreeBlockCount() uint64 {
	return sb.region.U64(fieldFreeBlockCount)
}

func (sb SuperBlock) FreeInodeCount() uint64 {
	return sb.region.U64(fieldFreeInodeCount)
}

// BlockCounter returns the free block counter for the block allocator.
func (sb SuperBlock) BlockCounter() Counter {
	return Counter{sb.region, fieldFreeBlockCount, fieldBlockCount}
}

// InodeCounter returns the free inode counter for the inode allocator.
func (sb SuperBlock) InodeCounter() Counter {
	return Counter{sb.region, fieldFreeInodeCount, fieldInodeCount}
}

// Counter is a persisted free-element counter bounded by its total.
type Counter struct {
	region region.Region
	free   Byte
	total  Byte
}

func (c Counter) Free() uint64 { return c.region.U64(c.free) }

func (c Counter) Total() uint64 { return c.region.U64(c.total) }

func (c Counter) Dec() {
	free := c.Free()
	if free == 0 {
		panic("decrementing exhausted free counter")
	}
	c.region.PutU64(c.free, free-1)
}

func (c Counter) Inc() {
	free := c.Free()
	if free >= c.Total() {
		panic(fmt.Sprintf(
			"incrementing free counter past total `%d`",
			c.Total(),
		))
	}
	c.region.PutU64(c.free, free+1)
}
