// Package inode implements the inode table: allocation, recursive deletion,
// and the byte-stream engine that maps an inode's logical content onto the
// data blocks recorded in its block list. Directories are inodes whose
// content is a sequence of encoded links.
package inode

import (
	"fmt"

	"github.com/weberc2/flatfs/pkg/alloc"
	"github.com/weberc2/flatfs/pkg/blocks"
	"github.com/weberc2/flatfs/pkg/ilist"
	"github.com/weberc2/flatfs/pkg/region"
	"github.com/weberc2/flatfs/pkg/superblock"
	. "github.com/weberc2/flatfs/pkg/types"
)

const (
	fieldIsDir       uint64 = 0
	fieldBlocksCount uint64 = 8
	fieldFileSize    uint64 = 16
	fieldList        uint64 = 24
)

// Inode is a view over one record of the inode table.
type Inode struct {
	Ino    Ino
	record region.Region
}

func (inode Inode) IsDir() bool { return inode.record.U8(fieldIsDir) != 0 }

func (inode Inode) BlocksCount() uint64 {
	return inode.record.U64(fieldBlocksCount)
}

func (inode Inode) FileSize() uint64 { return inode.record.U64(fieldFileSize) }

func (inode Inode) list() ilist.List {
	return ilist.View(inode.record.Sub(fieldList, ilist.Size))
}

type Space struct {
	pool   alloc.Pool
	table  region.Region
	blocks blocks.Space
}

func NewSpace(pool alloc.Pool, table region.Region, blocks blocks.Space) Space {
	if need := pool.Total() * superblock.InodeSize; table.Len() < need {
		panic(fmt.Sprintf(
			"inode table of `%d` bytes can't hold `%d` inodes",
			table.Len(),
			pool.Total(),
		))
	}
	return Space{pool: pool, table: table, blocks: blocks}
}

func (s Space) Get(ino Ino) Inode {
	if uint64(ino) >= s.pool.Total() {
		panic(fmt.Sprintf(
			"inode `%d` out of range for table of `%d` inodes",
			ino,
			s.pool.Total(),
		))
	}
	return Inode{
		Ino: ino,
		record: s.table.Sub(
			uint64(ino)*superblock.InodeSize,
			superblock.InodeSize,
		),
	}
}

func (s Space) InUse(ino Ino) bool { return s.pool.InUse(uint64(ino)) }

func (s Space) FreeCount() uint64 { return s.pool.Free() }

func (s Space) Count() uint64 { return s.pool.Total() }

func (s Space) Blocks() blocks.Space { return s.blocks }

// Create allocates and zeroes an inode. Callers check FreeCount() first;
// running out here is a programming error.
func (s Space) Create(isDir bool) Inode {
	i, ok := s.pool.Alloc()
	if !ok {
		panic("creating inode: no free inodes")
	}
	inode := s.Get(Ino(i))
	inode.record.Zero()
	if isDir {
		inode.record.PutU8(fieldIsDir, 1)
	}
	return inode
}

// Delete releases `ino`, its blocks and, for a directory, every inode
// reachable through its alive links.
func (s Space) Delete(ino Ino) {
	if !s.pool.InUse(uint64(ino)) {
		panic(fmt.Sprintf("deleting inode `%d`: inode is not allocated", ino))
	}

	inode := s.Get(ino)
	if inode.IsDir() {
		// collect first; deleting children mutates the allocators
		for _, child := range s.Children(inode) {
			s.Delete(child.Ino)
		}
	}

	list := inode.list()
	owned := make([]BlockID, 0, list.Len())
	for i := uint64(0); i < list.Len(); i++ {
		owned = append(owned, list.BlockID(s.blocks, i))
	}
	owned = append(owned, list.IndirectionBlocks(s.blocks)...)

	for _, b := range owned {
		if err := s.blocks.Delete(b); err != nil {
			panic(fmt.Sprintf("deleting inode `%d`: %v", ino, err))
		}
	}

	inode.record.Zero()
	if !s.pool.Release(uint64(ino)) {
		panic(fmt.Sprintf("deleting inode `%d`: %v", ino, ErrDoubleFree))
	}
}
