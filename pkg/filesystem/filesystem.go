// Package filesystem wires the superblock, allocators and inode table of an
// image together and exposes path-based operations over them.
package filesystem

import (
	"fmt"
	"log/slog"

	"github.com/weberc2/flatfs/pkg/alloc"
	"github.com/weberc2/flatfs/pkg/blocks"
	"github.com/weberc2/flatfs/pkg/image"
	"github.com/weberc2/flatfs/pkg/inode"
	"github.com/weberc2/flatfs/pkg/region"
	"github.com/weberc2/flatfs/pkg/superblock"
	. "github.com/weberc2/flatfs/pkg/types"
)

// DefaultGeometry is used when formatting an image without an explicit
// geometry: 512 MiB of blocks and 1024 inodes.
var DefaultGeometry = superblock.Geometry{BlockCount: 65536, InodeCount: 1024}

type FileSystem struct {
	superBlock superblock.SuperBlock
	inodes     inode.Space
	image      *image.Image
	logger     *slog.Logger
}

// Format writes an empty filesystem with geometry `g` into `r`: a fresh
// header, cleared bitmaps and inode table, and a root directory at inode 0.
// The block table is left as is.
func Format(r region.Region, g superblock.Geometry) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("formatting image: %w", err)
	}
	if r.Len() != g.ImageSize() {
		return fmt.Errorf(
			"formatting image: geometry needs `%d` bytes; region has `%d`: %w",
			g.ImageSize(),
			r.Len(),
			ErrBadGeometry,
		)
	}

	r.Sub(0, g.BlockTableOffset()).Zero()
	sb := superblock.Init(r, g)
	root := wire(r, sb).Create(true)
	if root.Ino != InoRoot {
		panic(fmt.Sprintf(
			"formatting image: root created at inode `%d`",
			root.Ino,
		))
	}
	return nil
}

// New opens the filesystem stored in `r`, which must already be formatted.
func New(r region.Region, logger *slog.Logger) (*FileSystem, error) {
	if r.Len() < superblock.Size {
		return nil, fmt.Errorf(
			"opening filesystem: region of `%d` bytes has no header: %w",
			r.Len(),
			ErrCorrupt,
		)
	}

	sb := superblock.View(r)
	g := sb.Geometry()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("opening filesystem: %v: %w", err, ErrCorrupt)
	}
	if r.Len() != g.ImageSize() {
		return nil, fmt.Errorf(
			"opening filesystem: header implies `%d` bytes; region has `%d`: %w",
			g.ImageSize(),
			r.Len(),
			ErrCorrupt,
		)
	}
	if sb.FreeBlockCount() > g.BlockCount || sb.FreeInodeCount() > g.InodeCount {
		return nil, fmt.Errorf(
			"opening filesystem: free counts exceed totals: %w",
			ErrCorrupt,
		)
	}

	inodeBits, blockBits := bitmaps(r, g)
	if used := inodeBits.Count(); used != g.InodeCount-sb.FreeInodeCount() {
		return nil, fmt.Errorf(
			"opening filesystem: `%d` inodes marked in use; header says `%d`: %w",
			used,
			g.InodeCount-sb.FreeInodeCount(),
			ErrCorrupt,
		)
	}
	if used := blockBits.Count(); used != g.BlockCount-sb.FreeBlockCount() {
		return nil, fmt.Errorf(
			"opening filesystem: `%d` blocks marked in use; header says `%d`: %w",
			used,
			g.BlockCount-sb.FreeBlockCount(),
			ErrCorrupt,
		)
	}

	inodes := wire(r, sb)
	if !inodes.InUse(InoRoot) || !inodes.Get(InoRoot).IsDir() {
		return nil, fmt.Errorf(
			"opening filesystem: root directory missing: %w",
			ErrCorrupt,
		)
	}

	return &FileSystem{superBlock: sb, inodes: inodes, logger: logger}, nil
}

func bitmaps(r region.Region, g superblock.Geometry) (inodes, blocks alloc.BitSet) {
	inodes = alloc.View(
		r.Sub(g.InodeBitmapOffset(), g.InodeBitmapSize()),
		g.InodeCount,
	)
	blocks = alloc.View(
		r.Sub(g.BlockBitmapOffset(), g.BlockBitmapSize()),
		g.BlockCount,
	)
	return
}

func wire(r region.Region, sb superblock.SuperBlock) inode.Space {
	g := sb.Geometry()
	inodeBits, blockBits := bitmaps(r, g)
	return inode.NewSpace(
		alloc.NewPool(inodeBits, sb.InodeCounter()),
		r.Sub(g.InodeTableOffset(), g.InodeTableSize()),
		blocks.NewSpace(
			alloc.NewPool(blockBits, sb.BlockCounter()),
			r.Sub(g.BlockTableOffset(), g.BlockTableSize()),
		),
	)
}

// Open maps the image at `path`, formatting it with `g` if it had to be
// created.
func Open(path string, g superblock.Geometry, logger *slog.Logger) (*FileSystem, error) {
	img, err := image.Open(path, g, logger)
	if err != nil {
		return nil, err
	}

	if img.Formatted {
		if err := Format(img.Region(), g); err != nil {
			img.Close()
			return nil, fmt.Errorf("opening `%s`: %w", path, err)
		}
		logger.Info("formatted image", "path", path)
	}

	fs, err := New(img.Region(), logger)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("opening `%s`: %w", path, err)
	}
	fs.image = img

	stats := fs.Stat()
	logger.Info(
		"opened image",
		"path", path,
		"freeBlocks", stats.FreeBlocks,
		"freeInodes", stats.FreeInodes,
	)
	return fs, nil
}

// Sync flushes the backing image, if there is one.
func (fs *FileSystem) Sync() error {
	if fs.image == nil {
		return nil
	}
	return fs.image.Sync()
}

func (fs *FileSystem) Close() error {
	if fs.image == nil {
		return nil
	}
	err := fs.image.Close()
	fs.image = nil
	return err
}

type Stats struct {
	BlockSize  uint64
	Blocks     uint64
	FreeBlocks uint64
	Inodes     uint64
	FreeInodes uint64
}

func (fs *FileSystem) Stat() Stats {
	return Stats{
		BlockSize:  BlockSize,
		Blocks:     fs.superBlock.BlockCount(),
		FreeBlocks: fs.superBlock.FreeBlockCount(),
		Inodes:     fs.superBlock.InodeCount(),
		FreeInodes: fs.superBlock.FreeInodeCount(),
	}
}
