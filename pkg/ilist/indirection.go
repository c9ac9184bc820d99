package ilist

import (
	"fmt"

	. "github.com/weberc2/flatfs/pkg/types"
)

type level int

const (
	levelDirect level = iota
	levelSingly
	levelDoubly
	levelOutOfRange
)

func (level level) String() string {
	switch level {
	case levelDirect:
		return "direct"
	case levelSingly:
		return "singly indirect"
	case levelDoubly:
		return "doubly indirect"
	case levelOutOfRange:
		return "out of range"
	default:
		panic(fmt.Sprintf("invalid level: %d", level))
	}
}

// indirection is the resolved position of a logical list index.
//
//	direct: direct[index]
//	singly: level1[singly]
//	doubly: level2[doubly] -> second-level block [singly]
type indirection struct {
	level  level
	direct uint64
	singly uint64
	doubly uint64
}

func (ind *indirection) fromIndex(index uint64) {
	if index <= directMax {
		*ind = indirection{level: levelDirect, direct: index}
		return
	}

	if index <= singlyIndirectMax {
		*ind = indirection{level: levelSingly, singly: index - directMax - 1}
		return
	}

	if index <= doublyIndirectMax {
		base := index - singlyIndirectMax - 1
		*ind = indirection{
			level:  levelDoubly,
			singly: base % singlyIndirectCount,
			doubly: base / singlyIndirectCount,
		}
		return
	}

	*ind = indirection{level: levelOutOfRange}
}

// overhead is the number of indirection blocks that must be allocated before
// a data block id can be stored at this position, assuming every earlier
// position is already populated.
func (ind *indirection) overhead() uint64 {
	switch ind.level {
	case levelSingly:
		if ind.singly == 0 {
			return 1
		}
	case levelDoubly:
		if ind.singly == 0 && ind.doubly == 0 {
			return 2 // level2 and its first second-level block
		}
		if ind.singly == 0 {
			return 1
		}
	}
	return 0
}

// direct
// | | | | | | | | | |
//
// singly
// |____
// | | |
//
// doubly
// |______________
// |____  |____  |____
// | | |  | | |  | | |
const (
	pointersPerBlock    = IDsPerBlock
	directMax           = DirectBlocksCount - 1
	singlyIndirectCount = pointersPerBlock
	singlyIndirectMax   = singlyIndirectCount + directMax
	doublyIndirectCount = singlyIndirectCount * pointersPerBlock
	doublyIndirectMax   = doublyIndirectCount + singlyIndirectMax
)
