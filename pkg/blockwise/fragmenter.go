package blockwise

import (
	"log/slog"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// ValueSource holds the current value of each resource.
type ValueSource interface {
	GetValue(resourceID string) ([]byte, error)
}

// FragmenterConfig configures a Fragmenter.
type FragmenterConfig struct {
	Source         ValueSource
	SessionID      string
	ProtocolLogger log.Logger
	Logger         *slog.Logger
}

// Fragmenter serves outbound block-wise reads. It hands over the complete
// value; carving it into blocks is left to the transport (see Window).
type Fragmenter struct {
	source    ValueSource
	sessionID string
	protoLog  log.Logger
	logger    *slog.Logger
}

// NewFragmenter creates a Fragmenter reading from cfg.Source.
func NewFragmenter(cfg FragmenterConfig) *Fragmenter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fragmenter{
		source:    cfg.Source,
		sessionID: cfg.SessionID,
		protoLog:  log.OrNoop(cfg.ProtocolLogger),
		logger:    logger,
	}
}

// OnBlockRequested returns a copy of the stored value of resourceID and
// its length. It returns (nil, 0) when nothing is stored, which callers
// treat as nothing to send.
func (f *Fragmenter) OnBlockRequested(resourceID string) ([]byte, uint32) {
	if f.source == nil {
		return nil, 0
	}
	value, err := f.source.GetValue(resourceID)
	if err != nil || value == nil {
		f.logger.Debug("block request for unknown value", "resource", resourceID, "error", err)
		return nil, 0
	}

	out := make([]byte, len(value))
	copy(out, value)

	f.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		SessionID: f.sessionID,
		Layer:     log.LayerBlock,
		Category:  log.CategoryBlock,
		Block: &log.BlockEvent{
			ResourceID: resourceID,
			Length:     len(out),
			TotalSize:  uint32(len(out)),
			Last:       true,
			Outcome:    log.BlockServed,
		},
	})
	return out, uint32(len(out))
}
