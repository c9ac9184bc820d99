// Package encode converts records to and from their on-disk form.
package encode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	. "github.com/weberc2/flatfs/pkg/types"
)

const (
	linkAliveStart uint64 = 0
	linkNameStart  uint64 = linkAliveStart + 1
	linkInoStart   uint64 = linkNameStart + LinkNameSize
)

// EncodeLink writes `link` into `p`. The name must already have been
// validated; a name that doesn't fit is a programming error.
func EncodeLink(link *Link, p *[LinkSize]byte) {
	if uint64(len(link.Name)) > MaxLinkNameLen {
		panic(fmt.Sprintf(
			"encoding link `%s`: name length `%d` exceeds max `%d`",
			link.Name,
			len(link.Name),
			MaxLinkNameLen,
		))
	}

	*p = [LinkSize]byte{}
	if link.Alive {
		p[linkAliveStart] = 1
	}
	copy(p[linkNameStart:linkInoStart], link.Name)
	binary.LittleEndian.PutUint64(p[linkInoStart:], uint64(link.Ino))
}

func DecodeLink(link *Link, p *[LinkSize]byte) {
	name := p[linkNameStart:linkInoStart]
	if end := bytes.IndexByte(name, 0); end >= 0 {
		name = name[:end]
	}
	link.Alive = p[linkAliveStart] != 0
	link.Name = string(name)
	link.Ino = Ino(binary.LittleEndian.Uint64(p[linkInoStart:]))
}
