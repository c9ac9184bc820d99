// Package image manages the backing file of a filesystem: creating it at
// its formatted size, locking it against other processes, and mapping it
// into memory.
package image

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/weberc2/flatfs/pkg/region"
	"github.com/weberc2/flatfs/pkg/superblock"
	. "github.com/weberc2/flatfs/pkg/types"
)

type Image struct {
	file *os.File
	data []byte

	// Formatted is set when Open created the file, in which case its
	// content is all zeroes and must be formatted before use.
	Formatted bool
}

// Open maps the image at `path`, creating it with `geometry` if it is
// missing or empty. The image is locked exclusively until Close.
func Open(path string, geometry superblock.Geometry, logger *slog.Logger) (*Image, error) {
	file, err := Lock(path, os.O_RDWR|os.O_CREATE, true)
	if err != nil {
		return nil, fmt.Errorf("opening image `%s`: %w", path, err)
	}

	img, err := mapFile(file, geometry, logger)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("opening image `%s`: %w", path, err)
	}
	return img, nil
}

func mapFile(file *os.File, geometry superblock.Geometry, logger *slog.Logger) (*Image, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	var formatted bool
	size := uint64(info.Size())
	if size == 0 {
		if err := geometry.Validate(); err != nil {
			return nil, err
		}
		size = geometry.ImageSize()
		if err := file.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("truncating to `%d` bytes: %w", size, err)
		}
		formatted = true
		logger.Info(
			"created image",
			"path", file.Name(),
			"size", size,
			"blocks", geometry.BlockCount,
			"inodes", geometry.InodeCount,
		)
	} else if _, err := checkSize(file, size); err != nil {
		return nil, err
	}

	data, err := unix.Mmap(
		int(file.Fd()),
		0,
		int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("mapping `%d` bytes: %w", size, err)
	}
	return &Image{file: file, data: data, Formatted: formatted}, nil
}

// Check verifies that the file at `path` is as large as its header says
// it should be and returns the geometry recorded in the header.
func Check(path string) (superblock.Geometry, error) {
	file, err := os.Open(path)
	if err != nil {
		return superblock.Geometry{}, fmt.Errorf("checking image `%s`: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return superblock.Geometry{}, fmt.Errorf("checking image `%s`: %w", path, err)
	}
	geometry, err := checkSize(file, uint64(info.Size()))
	if err != nil {
		return superblock.Geometry{}, fmt.Errorf("checking image `%s`: %w", path, err)
	}
	return geometry, nil
}

// checkSize compares the file size against the size its header implies.
func checkSize(file *os.File, size uint64) (superblock.Geometry, error) {
	if size < superblock.Size {
		return superblock.Geometry{}, fmt.Errorf(
			"file of `%d` bytes is smaller than a header: %w",
			size,
			ErrCorrupt,
		)
	}

	header := make([]byte, superblock.Size)
	if _, err := file.ReadAt(header, 0); err != nil && !errors.Is(err, io.EOF) {
		return superblock.Geometry{}, fmt.Errorf("reading header: %w", err)
	}
	geometry := superblock.View(region.New(header)).Geometry()
	if err := geometry.Validate(); err != nil {
		return superblock.Geometry{}, fmt.Errorf("reading header: %v: %w", err, ErrCorrupt)
	}
	if wanted := geometry.ImageSize(); wanted != size {
		return superblock.Geometry{}, fmt.Errorf(
			"header implies `%d` bytes; file has `%d`: %w",
			wanted,
			size,
			ErrCorrupt,
		)
	}
	return geometry, nil
}

// Lock opens `path` with `flag` and takes a non-blocking flock on it,
// exclusive or shared. Closing the file releases the lock.
func Lock(path string, flag int, exclusive bool) (*os.File, error) {
	file, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, err
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(file.Fd()), how|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("locking: %w", err)
	}
	return file, nil
}

func (img *Image) Region() region.Region { return region.New(img.data) }

func (img *Image) Path() string { return img.file.Name() }

// Sync flushes the mapping to the file.
func (img *Image) Sync() error {
	if err := unix.Msync(img.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("syncing image `%s`: %w", img.Path(), err)
	}
	return nil
}

// Close syncs, unmaps and unlocks the image.
func (img *Image) Close() error {
	syncErr := img.Sync()
	if err := unix.Munmap(img.data); err != nil {
		img.file.Close()
		return fmt.Errorf("unmapping image `%s`: %w", img.Path(), err)
	}
	img.data = nil
	if err := img.file.Close(); err != nil {
		return fmt.Errorf("closing image `%s`: %w", img.Path(), err)
	}
	return syncErr
}
