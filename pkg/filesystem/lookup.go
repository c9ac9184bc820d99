package filesystem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/weberc2/flatfs/pkg/inode"
	. "github.com/weberc2/flatfs/pkg/types"
)

// SplitPath breaks an absolute path into its components. "/" has none.
func SplitPath(path string) ([]string, error) {
	if path == "/" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return nil, fmt.Errorf("splitting path `%s`: %w", path, ErrInvalidPath)
	}

	chunks := strings.Split(path[1:], "/")
	for _, chunk := range chunks {
		if err := inode.ValidateName(chunk); err != nil {
			return nil, fmt.Errorf("splitting path `%s`: %w", path, err)
		}
	}
	return chunks, nil
}

// walk resolves `chunks` from the root. Every component but the last must be
// a directory.
func (fs *FileSystem) walk(chunks []string) (inode.Inode, error) {
	current := fs.inodes.Get(InoRoot)
	for _, chunk := range chunks {
		ino, err := fs.inodes.Lookup(current, chunk)
		if err != nil {
			return inode.Inode{}, err
		}
		current = fs.inodes.Get(ino)
	}
	return current, nil
}

func (fs *FileSystem) lookup(path string) (inode.Inode, error) {
	chunks, err := SplitPath(path)
	if err != nil {
		return inode.Inode{}, err
	}
	found, err := fs.walk(chunks)
	if err != nil {
		return inode.Inode{}, fmt.Errorf("looking up path `%s`: %w", path, err)
	}
	return found, nil
}

// GetFDEInodeID resolves `path` to its inode.
func (fs *FileSystem) GetFDEInodeID(path string) (Ino, error) {
	found, err := fs.lookup(path)
	if err != nil {
		return 0, err
	}
	return found.Ino, nil
}

func (fs *FileSystem) ExistsFDE(path string) bool {
	_, err := fs.lookup(path)
	return err == nil
}

func (fs *FileSystem) ExistsFile(path string) bool {
	found, err := fs.lookup(path)
	return err == nil && !found.IsDir()
}

func (fs *FileSystem) ExistsDir(path string) bool {
	found, err := fs.lookup(path)
	return err == nil && found.IsDir()
}

// lookupDir resolves `path`, requiring a directory.
func (fs *FileSystem) lookupDir(path string) (inode.Inode, error) {
	found, err := fs.lookup(path)
	if err != nil {
		return inode.Inode{}, err
	}
	if !found.IsDir() {
		return inode.Inode{}, fmt.Errorf(
			"looking up directory `%s`: %w",
			path,
			ErrNotADirectory,
		)
	}
	return found, nil
}

// lookupFile resolves `path`, requiring a regular file.
func (fs *FileSystem) lookupFile(path string) (inode.Inode, error) {
	found, err := fs.lookup(path)
	if err != nil {
		return inode.Inode{}, err
	}
	if found.IsDir() {
		return inode.Inode{}, fmt.Errorf(
			"looking up file `%s`: %w",
			path,
			ErrIsADirectory,
		)
	}
	return found, nil
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
