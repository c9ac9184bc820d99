package types

// Link is one directory entry. A directory's content is a sequence of
// encoded links; dead links are tombstones awaiting reuse.
type Link struct {
	Alive bool
	Name  string
	Ino   Ino
}

const (
	// LinkNameSize is the width of the NUL-padded name field.
	LinkNameSize uint64 = MaxLinkNameLen + 1

	// LinkSize is the size of an encoded Link.
	LinkSize uint64 = 1 + LinkNameSize + IDSize
)
