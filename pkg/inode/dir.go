package inode

import (
	"fmt"
	"strings"

	"github.com/weberc2/flatfs/pkg/encode"
	. "github.com/weberc2/flatfs/pkg/types"
)

// LinkCount is the number of link slots, alive or not, in a directory.
func LinkCount(dir Inode) uint64 { return dir.FileSize() / LinkSize }

// Link decodes the link in `slot`.
func (s Space) Link(dir Inode, slot uint64) Link {
	var p [LinkSize]byte
	s.Read(dir, slot*LinkSize, p[:])
	var link Link
	encode.DecodeLink(&link, &p)
	return link
}

func (s Space) putLink(dir Inode, slot uint64, link *Link) error {
	var p [LinkSize]byte
	encode.EncodeLink(link, &p)
	_, err := s.Write(dir, slot*LinkSize, p[:])
	return err
}

// Children returns the alive links of `dir` in slot order.
func (s Space) Children(dir Inode) []Link {
	count := LinkCount(dir)
	children := make([]Link, 0, count)
	for slot := uint64(0); slot < count; slot++ {
		if link := s.Link(dir, slot); link.Alive {
			children = append(children, link)
		}
	}
	return children
}

// Lookup finds the alive child of `dir` named `name`.
func (s Space) Lookup(dir Inode, name string) (Ino, error) {
	if !dir.IsDir() {
		return 0, fmt.Errorf(
			"looking up `%s` in inode `%d`: %w",
			name,
			dir.Ino,
			ErrNotADirectory,
		)
	}
	if _, link, ok := s.find(dir, name); ok {
		return link.Ino, nil
	}
	return 0, fmt.Errorf(
		"looking up `%s` in inode `%d`: %w",
		name,
		dir.Ino,
		ErrNotFound,
	)
}

func (s Space) find(dir Inode, name string) (uint64, Link, bool) {
	count := LinkCount(dir)
	for slot := uint64(0); slot < count; slot++ {
		if link := s.Link(dir, slot); link.Alive && link.Name == name {
			return slot, link, true
		}
	}
	return 0, Link{}, false
}

// EntryBlocks returns how many blocks AddEntry allocates when linking one
// more entry into `dir`. Reusing a tombstone costs nothing.
func (s Space) EntryBlocks(dir Inode) uint64 {
	count := LinkCount(dir)
	for slot := uint64(0); slot < count; slot++ {
		if !s.Link(dir, slot).Alive {
			return 0
		}
	}
	return s.extendBlocks(dir, (count+1)*LinkSize)
}

// ValidateName checks that `name` can be stored in a link.
func ValidateName(name string) error {
	if len(name) > MaxLinkNameLen {
		return fmt.Errorf(
			"validating name `%s`: length `%d` exceeds max `%d`: %w",
			name,
			len(name),
			MaxLinkNameLen,
			ErrNameTooLong,
		)
	}
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("validating name `%s`: %w", name, ErrInvalidPath)
	}
	return nil
}

// AddEntry creates a new inode and links it into `dir` as `name`, reusing
// the first tombstoned slot or else appending. Every failure is detected
// before the inode is created.
func (s Space) AddEntry(dir Inode, name string, isDir bool) (Ino, error) {
	if err := ValidateName(name); err != nil {
		return 0, fmt.Errorf(
			"adding entry to inode `%d`: %w",
			dir.Ino,
			err,
		)
	}
	if !dir.IsDir() {
		return 0, fmt.Errorf(
			"adding entry `%s` to inode `%d`: %w",
			name,
			dir.Ino,
			ErrNotADirectory,
		)
	}

	count := LinkCount(dir)
	slot := count
	for i := uint64(0); i < count; i++ {
		link := s.Link(dir, i)
		if link.Alive && link.Name == name {
			return 0, fmt.Errorf(
				"adding entry `%s` to inode `%d`: %w",
				name,
				dir.Ino,
				ErrExists,
			)
		}
		if !link.Alive && slot == count {
			slot = i
		}
	}

	if slot == count {
		if err := s.checkExtend(dir, (count+1)*LinkSize); err != nil {
			return 0, fmt.Errorf(
				"adding entry `%s` to inode `%d`: %w",
				name,
				dir.Ino,
				err,
			)
		}
	}
	if s.FreeCount() < 1 {
		return 0, fmt.Errorf(
			"adding entry `%s` to inode `%d`: %w",
			name,
			dir.Ino,
			ErrOutOfInodes,
		)
	}

	child := s.Create(isDir)
	if err := s.putLink(
		dir,
		slot,
		&Link{Alive: true, Name: name, Ino: child.Ino},
	); err != nil {
		s.Delete(child.Ino)
		return 0, fmt.Errorf(
			"adding entry `%s` to inode `%d`: %w",
			name,
			dir.Ino,
			err,
		)
	}
	return child.Ino, nil
}

// Unlink tombstones the alive link named `name` in `dir` and returns the
// inode it pointed at. The inode itself is left alone.
func (s Space) Unlink(dir Inode, name string) (Ino, error) {
	if !dir.IsDir() {
		return 0, fmt.Errorf(
			"unlinking `%s` from inode `%d`: %w",
			name,
			dir.Ino,
			ErrNotADirectory,
		)
	}
	slot, link, ok := s.find(dir, name)
	if !ok {
		return 0, fmt.Errorf(
			"unlinking `%s` from inode `%d`: %w",
			name,
			dir.Ino,
			ErrNotFound,
		)
	}
	link.Alive = false
	if err := s.putLink(dir, slot, &link); err != nil {
		// overwriting an existing slot never grows the directory
		panic(fmt.Sprintf(
			"unlinking `%s` from inode `%d`: %v",
			name,
			dir.Ino,
			err,
		))
	}
	return link.Ino, nil
}
