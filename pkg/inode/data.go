package inode

import (
	"fmt"

	"github.com/weberc2/flatfs/pkg/ilist"
	"github.com/weberc2/flatfs/pkg/math"
	. "github.com/weberc2/flatfs/pkg/types"
)

// Read copies `len(b)` bytes of the inode's content starting at `offset`.
// The range must lie within the file; reading past the end is a programming
// error.
func (s Space) Read(inode Inode, offset uint64, b []byte) uint64 {
	size := inode.FileSize()
	if offset > size || uint64(len(b)) > size-offset {
		panic(fmt.Sprintf(
			"reading `%d` bytes at offset `%d` from inode `%d` of size `%d`",
			len(b),
			offset,
			inode.Ino,
			size,
		))
	}

	list := inode.list()
	length := uint64(len(b))
	var chunkBegin uint64
	for chunkBegin < length {
		chunkBlock := (offset + chunkBegin) / BlockSize
		chunkOffset := (offset + chunkBegin) % BlockSize
		chunkLength := math.Min(length-chunkBegin, BlockSize-chunkOffset)

		copy(
			b[chunkBegin:chunkBegin+chunkLength],
			s.blocks.Get(list.BlockID(s.blocks, chunkBlock)).
				Slice(chunkOffset, chunkLength),
		)
		chunkBegin += chunkLength
	}
	return chunkBegin
}

// Write copies `b` into the inode's content at `offset`, growing the file
// first if needed. If the file can't grow, nothing is written.
func (s Space) Write(inode Inode, offset uint64, b []byte) (uint64, error) {
	length := uint64(len(b))
	end := offset + length
	if end < offset {
		return 0, fmt.Errorf(
			"writing `%d` bytes to inode `%d` at offset `%d`: %w",
			length,
			inode.Ino,
			offset,
			ErrOutOfRange,
		)
	}

	if err := s.Extend(inode, end); err != nil {
		return 0, fmt.Errorf(
			"writing `%d` bytes to inode `%d` at offset `%d`: %w",
			length,
			inode.Ino,
			offset,
			err,
		)
	}

	list := inode.list()
	var chunkBegin uint64
	for chunkBegin < length {
		chunkBlock := (offset + chunkBegin) / BlockSize
		chunkOffset := (offset + chunkBegin) % BlockSize
		chunkLength := math.Min(length-chunkBegin, BlockSize-chunkOffset)

		copy(
			s.blocks.Get(list.BlockID(s.blocks, chunkBlock)).
				Slice(chunkOffset, chunkLength),
			b[chunkBegin:chunkBegin+chunkLength],
		)
		chunkBegin += chunkLength
	}
	return chunkBegin, nil
}

func (s Space) Append(inode Inode, b []byte) (uint64, error) {
	return s.Write(inode, inode.FileSize(), b)
}

// Extend grows the file to `size` bytes, allocating zeroed blocks as
// needed. A `size` at or below the current file size is a no-op: files
// never shrink. Capacity is checked up front, so a failed Extend changes
// nothing.
func (s Space) Extend(inode Inode, size uint64) error {
	if size <= inode.FileSize() {
		return nil
	}
	if err := s.checkExtend(inode, size); err != nil {
		return fmt.Errorf(
			"extending inode `%d` to `%d` bytes: %w",
			inode.Ino,
			size,
			err,
		)
	}

	list := inode.list()
	needed := math.DivRoundUp(size, BlockSize)
	for have := inode.BlocksCount(); have < needed; have++ {
		b, err := s.blocks.Create()
		if err != nil {
			panic(fmt.Sprintf(
				"extending inode `%d`: allocating checked block: %v",
				inode.Ino,
				err,
			))
		}
		s.blocks.Get(b).Zero()
		if err := list.Add(s.blocks, b); err != nil {
			panic(fmt.Sprintf(
				"extending inode `%d`: adding checked block: %v",
				inode.Ino,
				err,
			))
		}
		inode.record.PutU64(fieldBlocksCount, have+1)
	}
	inode.record.PutU64(fieldFileSize, size)
	return nil
}

// checkExtend reports whether growing the inode to `size` bytes can
// succeed, counting the indirection blocks the list will need as well as
// the data blocks.
func (s Space) checkExtend(inode Inode, size uint64) error {
	needed := math.DivRoundUp(size, BlockSize)
	if needed > MaxListSize {
		return fmt.Errorf(
			"`%d` blocks exceeds max `%d`: %w",
			needed,
			MaxListSize,
			ErrListFull,
		)
	}

	required := s.extendBlocks(inode, size)
	if free := s.blocks.FreeCount(); required > free {
		return fmt.Errorf(
			"need `%d` blocks; `%d` free: %w",
			required,
			free,
			ErrOutOfBlocks,
		)
	}
	return nil
}

// extendBlocks counts the blocks, data and indirection, that growing the
// inode to `size` bytes allocates.
func (s Space) extendBlocks(inode Inode, size uint64) uint64 {
	needed := math.DivRoundUp(size, BlockSize)
	have := inode.BlocksCount()
	if needed <= have {
		return 0
	}
	return needed - have + ilist.Overhead(have, needed)
}

// ContentBlocks counts the blocks a new, empty inode allocates to hold
// `size` bytes.
func ContentBlocks(size uint64) (uint64, error) {
	needed := math.DivRoundUp(size, BlockSize)
	if needed > MaxListSize {
		return 0, fmt.Errorf(
			"`%d` blocks exceeds max `%d`: %w",
			needed,
			MaxListSize,
			ErrListFull,
		)
	}
	return needed + ilist.Overhead(0, needed), nil
}
