package types

// BlockID identifies a block in the block table.
type BlockID uint64

// Ino identifies an inode in the inode table.
type Ino uint64

const (
	BlockSize uint64 = 8192
	IDSize    uint64 = 8

	// IDsPerBlock is the number of block ids an indirection block holds.
	IDsPerBlock uint64 = BlockSize / IDSize

	// DirectBlocksCount is the number of block ids stored in the inode
	// itself.
	DirectBlocksCount uint64 = 10

	MaxLinkNameLen = 62

	InoRoot Ino = 0
)

// MaxListSize is the number of data blocks a single inode can address.
const MaxListSize = DirectBlocksCount + IDsPerBlock + IDsPerBlock*IDsPerBlock
