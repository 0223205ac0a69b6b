package blockwise

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// CompleteFunc receives a fully reassembled value. Ownership of value
// passes to the callee.
type CompleteFunc func(resourceID string, value []byte)

// AssemblerConfig configures an Assembler.
type AssemblerConfig struct {
	// OnComplete is called for every completed transfer, while the
	// resource is still serialized. It must not call back into the
	// Assembler for the same resource.
	OnComplete CompleteFunc

	// MaxSize rejects transfers declaring more bytes. Zero means no limit.
	MaxSize uint32

	SessionID      string
	ProtocolLogger log.Logger
	Logger         *slog.Logger
}

// Assembler reassembles inbound block sequences, one in-flight transfer
// per resource. Blocks for one resource are serialized; different
// resources proceed in parallel.
type Assembler struct {
	mu    sync.Mutex
	slots map[string]*slot

	generation atomic.Uint64

	onComplete CompleteFunc
	maxSize    uint32

	sessionID string
	protoLog  log.Logger
	logger    *slog.Logger
}

// slot serializes block delivery for one resource across transfer
// generations.
type slot struct {
	mu  sync.Mutex
	cur *transfer
}

type transfer struct {
	generation uint64
	buf        []byte
	total      uint32
	blockSize  int
	next       uint32 // next expected index
	received   int
}

// NewAssembler creates an Assembler.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		slots:      make(map[string]*slot),
		onComplete: cfg.OnComplete,
		maxSize:    cfg.MaxSize,
		sessionID:  cfg.SessionID,
		protoLog:   log.OrNoop(cfg.ProtocolLogger),
		logger:     logger,
	}
}

// OnBlockReceived applies one inbound block.
func (a *Assembler) OnBlockReceived(b Block) error {
	_, err := a.Receive(b)
	return err
}

// Receive applies one inbound block and returns the ticket of the transfer
// it belongs to. Rejected blocks leave any partial buffer untouched.
func (a *Assembler) Receive(b Block) (Ticket, error) {
	if b.ResourceID == "" {
		return Ticket{}, fmt.Errorf("%w: empty resource id", ErrInvalidBlock)
	}
	if b.Err != BlockErrNone {
		err := fmt.Errorf("%w: %s", ErrTransportBlock, b.Err)
		a.emit(b, 0, log.BlockRejected)
		a.logger.Warn("block discarded", "resource", b.ResourceID, "block", b.Index, "error", b.Err)
		return Ticket{}, err
	}

	s := a.slot(b.ResourceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		t   *transfer
		err error
	)
	if b.Index == 0 {
		t, err = a.start(s, b)
	} else {
		t, err = a.continueTransfer(s, b)
	}
	if err != nil {
		a.emit(b, b.Generation, log.BlockRejected)
		a.logger.Debug("block rejected", "resource", b.ResourceID, "block", b.Index, "error", err)
		return Ticket{}, err
	}

	ticket := Ticket{ResourceID: b.ResourceID, Generation: t.generation}
	if !b.Last {
		a.emit(b, t.generation, log.BlockAccepted)
		return ticket, nil
	}

	// The last block closes the transfer either way; a short one drops it.
	s.cur = nil
	end := uint64(b.Index)*uint64(t.blockSize) + uint64(len(b.Data))
	if end < uint64(t.total) {
		a.emit(b, t.generation, log.BlockRejected)
		a.logger.Warn("transfer shorter than declared", "resource", b.ResourceID, "got", end, "declared", t.total)
		return Ticket{}, fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, end, t.total)
	}
	a.emit(b, t.generation, log.BlockCompleted)
	if a.onComplete != nil {
		a.onComplete(b.ResourceID, t.buf)
	}
	return ticket, nil
}

// start handles block 0: a fresh buffer replaces any partial transfer.
func (a *Assembler) start(s *slot, b Block) (*transfer, error) {
	if b.Generation != 0 {
		return nil, fmt.Errorf("%w: block 0 cannot carry a generation", ErrInvalidBlock)
	}
	if a.maxSize > 0 && b.TotalSize > a.maxSize {
		return nil, fmt.Errorf("%w: %d bytes declared, limit %d", ErrBlockOverrun, b.TotalSize, a.maxSize)
	}
	if uint64(len(b.Data)) > uint64(b.TotalSize) {
		return nil, fmt.Errorf("%w: block 0 carries %d of %d bytes", ErrBlockOverrun, len(b.Data), b.TotalSize)
	}
	if len(b.Data) == 0 && !b.Last {
		return nil, fmt.Errorf("%w: empty first block", ErrInvalidBlock)
	}

	if s.cur != nil {
		a.logger.Debug("transfer restarted", "resource", b.ResourceID,
			"discarded_generation", s.cur.generation, "received", s.cur.received)
	}

	t := &transfer{
		generation: a.generation.Add(1),
		buf:        make([]byte, b.TotalSize),
		total:      b.TotalSize,
		blockSize:  len(b.Data),
		next:       1,
		received:   len(b.Data),
	}
	copy(t.buf, b.Data)
	s.cur = t
	return t, nil
}

func (a *Assembler) continueTransfer(s *slot, b Block) (*transfer, error) {
	t := s.cur
	if t == nil {
		return nil, fmt.Errorf("%w: block %d of %s", ErrUnknownTransfer, b.Index, b.ResourceID)
	}
	if b.Generation != 0 && b.Generation != t.generation {
		return nil, fmt.Errorf("%w: generation %d, current %d", ErrStaleGeneration, b.Generation, t.generation)
	}
	if b.TotalSize != t.total {
		return nil, fmt.Errorf("%w: total size %d, transfer declared %d", ErrInvalidBlock, b.TotalSize, t.total)
	}
	// Re-delivery of an earlier block is allowed; gaps are not.
	if b.Index > t.next {
		return nil, fmt.Errorf("%w: block %d, expected %d", ErrOutOfOrder, b.Index, t.next)
	}
	if !b.Last && len(b.Data) != t.blockSize {
		return nil, fmt.Errorf("%w: block %d carries %d bytes, block size %d", ErrInvalidBlock, b.Index, len(b.Data), t.blockSize)
	}
	if len(b.Data) > t.blockSize {
		return nil, fmt.Errorf("%w: last block %d bytes, block size %d", ErrInvalidBlock, len(b.Data), t.blockSize)
	}

	offset := uint64(b.Index) * uint64(t.blockSize)
	if offset+uint64(len(b.Data)) > uint64(t.total) {
		return nil, fmt.Errorf("%w: block %d writes [%d,%d) of %d", ErrBlockOverrun,
			b.Index, offset, offset+uint64(len(b.Data)), t.total)
	}

	copy(t.buf[offset:], b.Data)
	if b.Index == t.next {
		t.next++
		t.received += len(b.Data)
	}
	return t, nil
}

// InFlight reports the progress of the partial transfer for resourceID.
func (a *Assembler) InFlight(resourceID string) (received, total int, ok bool) {
	s := a.lookup(resourceID)
	if s == nil {
		return 0, 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0, 0, false
	}
	return s.cur.received, int(s.cur.total), true
}

// Current returns the ticket of the partial transfer for resourceID.
func (a *Assembler) Current(resourceID string) (Ticket, bool) {
	s := a.lookup(resourceID)
	if s == nil {
		return Ticket{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Ticket{}, false
	}
	return Ticket{ResourceID: resourceID, Generation: s.cur.generation}, true
}

// Abort discards the partial transfer for resourceID. It returns false if
// none was in flight.
func (a *Assembler) Abort(resourceID string) bool {
	s := a.lookup(resourceID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return false
	}
	s.cur = nil
	return true
}

func (a *Assembler) slot(id string) *slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[id]
	if !ok {
		s = &slot{}
		a.slots[id] = s
	}
	return s
}

func (a *Assembler) lookup(id string) *slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slots[id]
}

func (a *Assembler) emit(b Block, generation uint64, outcome log.BlockOutcome) {
	a.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		SessionID: a.sessionID,
		Layer:     log.LayerBlock,
		Category:  log.CategoryBlock,
		Block: &log.BlockEvent{
			ResourceID: b.ResourceID,
			Index:      b.Index,
			Length:     len(b.Data),
			TotalSize:  b.TotalSize,
			Last:       b.Last,
			Outcome:    outcome,
			Generation: generation,
		},
	})
}
