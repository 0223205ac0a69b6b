package blockwise

import (
	"errors"
	"fmt"
)

// Block errors.
var (
	ErrUnknownTransfer = errors.New("block for unknown transfer")
	ErrBlockOverrun    = errors.New("block exceeds declared size")
	ErrStaleGeneration = errors.New("block for superseded transfer")
	ErrTransportBlock  = errors.New("transport block error")
	ErrOutOfOrder      = errors.New("block out of order")
	ErrIncomplete      = errors.New("transfer ended short of declared size")
	ErrInvalidBlock    = errors.New("invalid block")
)

// BlockError is a transport-level error code attached to a delivered block.
type BlockError uint8

const (
	BlockErrNone BlockError = iota
	BlockErrIncomplete
	BlockErrTooLarge
	BlockErrTimeout
)

// String returns the error code name.
func (e BlockError) String() string {
	switch e {
	case BlockErrNone:
		return "NONE"
	case BlockErrIncomplete:
		return "INCOMPLETE"
	case BlockErrTooLarge:
		return "TOO_LARGE"
	case BlockErrTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("BlockError(%d)", uint8(e))
	}
}

// Block is one fragment of a resource value.
type Block struct {
	ResourceID string
	Index      uint32
	Data       []byte
	TotalSize  uint32
	Last       bool
	Err        BlockError

	// Generation, when non-zero, pins the block to the transfer a Ticket
	// was issued for.
	Generation uint64
}

// Len returns the number of payload bytes.
func (b Block) Len() int {
	return len(b.Data)
}

// Ticket identifies one transfer generation of a resource.
type Ticket struct {
	ResourceID string
	Generation uint64
}

// Window returns block index of value for the given block size, and whether
// more blocks follow.
func Window(value []byte, index uint32, size int) ([]byte, bool, error) {
	if size <= 0 {
		return nil, false, fmt.Errorf("%w: block size %d", ErrInvalidBlock, size)
	}
	start := uint64(index) * uint64(size)
	if start > uint64(len(value)) || (start == uint64(len(value)) && index > 0) {
		return nil, false, fmt.Errorf("%w: block %d beyond %d bytes", ErrBlockOverrun, index, len(value))
	}
	end := start + uint64(size)
	more := end < uint64(len(value))
	if !more {
		end = uint64(len(value))
	}
	return value[start:end], more, nil
}

// Split carves value into blocks of size bytes. The last block carries the
// remainder and has Last set. An empty value yields a single empty block.
func Split(resourceID string, value []byte, size int) ([]Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrInvalidBlock, size)
	}
	count := (len(value) + size - 1) / size
	if count == 0 {
		count = 1
	}

	blocks := make([]Block, 0, count)
	for i := 0; i < count; i++ {
		data, more, err := Window(value, uint32(i), size)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, Block{
			ResourceID: resourceID,
			Index:      uint32(i),
			Data:       data,
			TotalSize:  uint32(len(value)),
			Last:       !more,
		})
	}
	return blocks, nil
}
