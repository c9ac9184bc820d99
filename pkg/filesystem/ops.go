package filesystem

import (
	"fmt"
	"strings"

	"github.com/weberc2/flatfs/pkg/inode"
	. "github.com/weberc2/flatfs/pkg/types"
)

// CreateFDE creates `path` as a file or directory, creating missing parent
// directories along the way. It fails if `path` already exists or a parent
// is a file.
func (fs *FileSystem) CreateFDE(path string, isDir bool) error {
	return fs.create(path, isDir, 0)
}

// CreateFileSize creates the file `path` like CreateFDE and grows it to
// `size` zeroed bytes. Capacity for the whole chain and the content is
// checked first, so a failure creates nothing.
func (fs *FileSystem) CreateFileSize(path string, size uint64) error {
	return fs.create(path, false, size)
}

func (fs *FileSystem) create(path string, isDir bool, size uint64) error {
	chunks, err := SplitPath(path)
	if err != nil {
		return fmt.Errorf("creating `%s`: %w", path, err)
	}
	if len(chunks) < 1 {
		return fmt.Errorf("creating `%s`: %w", path, ErrExists)
	}

	// find the deepest existing ancestor before touching anything
	current := fs.inodes.Get(InoRoot)
	existing := 0
	for ; existing < len(chunks); existing++ {
		if !current.IsDir() {
			return fmt.Errorf(
				"creating `%s`: `/%s`: %w",
				path,
				strings.Join(chunks[:existing], "/"),
				ErrNotADirectory,
			)
		}
		ino, err := fs.inodes.Lookup(current, chunks[existing])
		if isNotFound(err) {
			break
		}
		if err != nil {
			return fmt.Errorf("creating `%s`: %w", path, err)
		}
		current = fs.inodes.Get(ino)
	}
	if existing == len(chunks) {
		return fmt.Errorf("creating `%s`: %w", path, ErrExists)
	}
	if missing := uint64(len(chunks) - existing); missing > fs.inodes.FreeCount() {
		return fmt.Errorf(
			"creating `%s`: need `%d` inodes: %w",
			path,
			missing,
			ErrOutOfInodes,
		)
	}

	content, err := inode.ContentBlocks(size)
	if err != nil {
		return fmt.Errorf("creating `%s`: %w", path, err)
	}
	// the first new link goes into `current`; each new parent directory
	// then needs one fresh block for its own first link
	required := fs.inodes.EntryBlocks(current) + uint64(len(chunks)-existing-1) + content
	if free := fs.inodes.Blocks().FreeCount(); required > free {
		return fmt.Errorf(
			"creating `%s`: need `%d` blocks; `%d` free: %w",
			path,
			required,
			free,
			ErrOutOfBlocks,
		)
	}

	for i := existing; i < len(chunks); i++ {
		leaf := i == len(chunks)-1
		ino, err := fs.inodes.AddEntry(current, chunks[i], isDir || !leaf)
		if err != nil {
			return fmt.Errorf("creating `%s`: %w", path, err)
		}
		current = fs.inodes.Get(ino)
	}
	if err := fs.inodes.Extend(current, size); err != nil {
		panic(fmt.Sprintf("creating `%s`: extending checked file: %v", path, err))
	}

	fs.logger.Debug("created", "path", path, "dir", isDir, "ino", current.Ino)
	return nil
}

// DeleteFDE removes `path`, which must be a directory if `isDir` and a file
// otherwise. Directories are removed with everything beneath them.
func (fs *FileSystem) DeleteFDE(path string, isDir bool) error {
	chunks, err := SplitPath(path)
	if err != nil {
		return fmt.Errorf("deleting `%s`: %w", path, err)
	}
	if len(chunks) < 1 {
		return fmt.Errorf("deleting `%s`: %w", path, ErrRootDeletion)
	}

	parent, err := fs.walk(chunks[:len(chunks)-1])
	if err != nil {
		return fmt.Errorf("deleting `%s`: %w", path, err)
	}
	name := chunks[len(chunks)-1]
	ino, err := fs.inodes.Lookup(parent, name)
	if err != nil {
		return fmt.Errorf("deleting `%s`: %w", path, err)
	}

	target := fs.inodes.Get(ino)
	if isDir && !target.IsDir() {
		return fmt.Errorf("deleting `%s`: %w", path, ErrNotADirectory)
	}
	if !isDir && target.IsDir() {
		return fmt.Errorf("deleting `%s`: %w", path, ErrIsADirectory)
	}

	fs.inodes.Delete(ino)
	if _, err := fs.inodes.Unlink(parent, name); err != nil {
		panic(fmt.Sprintf("deleting `%s`: unlinking found entry: %v", path, err))
	}

	fs.logger.Debug("deleted", "path", path, "dir", isDir, "ino", ino)
	return nil
}

func (fs *FileSystem) CreateFile(path string) error { return fs.CreateFDE(path, false) }

func (fs *FileSystem) CreateDir(path string) error { return fs.CreateFDE(path, true) }

func (fs *FileSystem) DeleteFile(path string) error { return fs.DeleteFDE(path, false) }

func (fs *FileSystem) DeleteDir(path string) error { return fs.DeleteFDE(path, true) }

// ReadContent fills `b` from the file at `path` starting at `offset`. The
// range must lie within the file.
func (fs *FileSystem) ReadContent(path string, offset uint64, b []byte) (uint64, error) {
	file, err := fs.lookupFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading `%s`: %w", path, err)
	}

	size := file.FileSize()
	if offset > size || uint64(len(b)) > size-offset {
		return 0, fmt.Errorf(
			"reading `%d` bytes at offset `%d` from `%s` of size `%d`: %w",
			len(b),
			offset,
			path,
			size,
			ErrOutOfRange,
		)
	}
	return fs.inodes.Read(file, offset, b), nil
}

// WriteContent writes `b` into the file at `path` starting at `offset`,
// growing the file if needed.
func (fs *FileSystem) WriteContent(path string, offset uint64, b []byte) (uint64, error) {
	file, err := fs.lookupFile(path)
	if err != nil {
		return 0, fmt.Errorf("writing `%s`: %w", path, err)
	}
	n, err := fs.inodes.Write(file, offset, b)
	if err != nil {
		return 0, fmt.Errorf("writing `%s`: %w", path, err)
	}
	return n, nil
}

// ExtendContent grows the file at `path` to `size` zeroed bytes. It fails
// without changing anything if the image can't hold the new size; a smaller
// size is a no-op.
func (fs *FileSystem) ExtendContent(path string, size uint64) error {
	file, err := fs.lookupFile(path)
	if err != nil {
		return fmt.Errorf("extending `%s`: %w", path, err)
	}
	if err := fs.inodes.Extend(file, size); err != nil {
		return fmt.Errorf("extending `%s`: %w", path, err)
	}
	return nil
}

func (fs *FileSystem) FileSize(path string) (uint64, error) {
	file, err := fs.lookupFile(path)
	if err != nil {
		return 0, fmt.Errorf("getting size of `%s`: %w", path, err)
	}
	return file.FileSize(), nil
}

// Entry is one alive entry of a directory listing.
type Entry struct {
	Name  string
	IsDir bool
	Ino   Ino
}

// String renders the entry the way `lsdir` prints it: directories get a
// trailing slash.
func (entry Entry) String() string {
	if entry.IsDir {
		return entry.Name + "/"
	}
	return entry.Name
}

// ListDir returns the alive entries of the directory at `path` in slot
// order.
func (fs *FileSystem) ListDir(path string) ([]Entry, error) {
	dir, err := fs.lookupDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing `%s`: %w", path, err)
	}

	children := fs.inodes.Children(dir)
	entries := make([]Entry, len(children))
	for i, child := range children {
		entries[i] = Entry{
			Name:  child.Name,
			IsDir: fs.inodes.Get(child.Ino).IsDir(),
			Ino:   child.Ino,
		}
	}
	return entries, nil
}
