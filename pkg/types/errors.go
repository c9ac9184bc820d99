package types

type ConstError string

func (err ConstError) Error() string { return string(err) }

const (
	ErrOutOfBlocks   ConstError = "out of free blocks"
	ErrOutOfInodes   ConstError = "out of free inodes"
	ErrListFull      ConstError = "inode block list is at capacity"
	ErrDoubleFree    ConstError = "element is already free"
	ErrNotFound      ConstError = "no such file or directory"
	ErrNotADirectory ConstError = "not a directory"
	ErrIsADirectory  ConstError = "is a directory"
	ErrExists        ConstError = "file or directory already exists"
	ErrNameTooLong   ConstError = "name too long"
	ErrInvalidPath   ConstError = "invalid path"
	ErrRootDeletion  ConstError = "can't delete the root directory"
	ErrOutOfRange    ConstError = "range exceeds file size"
	ErrBadGeometry   ConstError = "invalid image geometry"
	ErrCorrupt       ConstError = "image is corrupt"
	ErrLocked        ConstError = "image is in use by another process"
)
