package interaction

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/log"
	"github.com/mash-protocol/m2m-client/pkg/wire"
)

// Request errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClosed          = errors.New("connection closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// DefaultRequestTimeout bounds synchronous requests.
const DefaultRequestTimeout = 10 * time.Second

// Sender writes one encoded message to the connection.
type Sender interface {
	Send(data []byte) error
}

// peer correlates requests and responses on one connection.
type peer struct {
	sender Sender
	connID string

	nextMsgID atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]*pending
	closed  bool

	sessionID string
	protoLog  log.Logger
}

// pending is an outstanding request. Exactly one of ch and handle is set.
type pending struct {
	op     wire.Operation
	sent   time.Time
	ch     chan *wire.Message
	handle func(*wire.Message)
}

func newPeer(sender Sender, connID, sessionID string, protoLog log.Logger) *peer {
	return &peer{
		sender:    sender,
		connID:    connID,
		pending:   make(map[uint32]*pending),
		sessionID: sessionID,
		protoLog:  log.OrNoop(protoLog),
	}
}

// nextMessageID returns the next ID, skipping the reserved 0.
func (p *peer) nextMessageID() uint32 {
	for {
		if id := p.nextMsgID.Add(1); id != 0 {
			return id
		}
	}
}

// send encodes and writes msg.
func (p *peer) send(msg *wire.Message) error {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := p.sender.Send(data); err != nil {
		return err
	}
	p.logMessage(msg, log.DirectionOut, nil)
	return nil
}

// start sends a request whose response is passed to handle on the
// delivering goroutine.
func (p *peer) start(op wire.Operation, payload any, handle func(*wire.Message)) (uint32, error) {
	return p.register(op, payload, &pending{op: op, handle: handle})
}

// request sends a request and waits for its response.
func (p *peer) request(ctx context.Context, op wire.Operation, payload any, timeout time.Duration) (*wire.Message, error) {
	ch := make(chan *wire.Message, 1)
	id, err := p.register(op, payload, &pending{op: op, ch: ch})
	if err != nil {
		return nil, err
	}
	defer p.forget(id)

	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrRequestTimeout
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return resp, nil
	}
}

func (p *peer) register(op wire.Operation, payload any, pr *pending) (uint32, error) {
	req, err := wire.NewRequest(p.nextMessageID(), op, payload)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	pr.sent = time.Now()
	p.pending[req.MessageID] = pr
	p.mu.Unlock()

	if err := p.send(req); err != nil {
		p.forget(req.MessageID)
		return 0, err
	}
	return req.MessageID, nil
}

func (p *peer) forget(id uint32) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// deliver routes a response to its request. It returns ErrUnexpectedReply
// for responses nobody waits for.
func (p *peer) deliver(resp *wire.Message) error {
	p.mu.Lock()
	pr, ok := p.pending[resp.MessageID]
	if ok {
		delete(p.pending, resp.MessageID)
	}
	p.mu.Unlock()

	if !ok || pr.op != resp.Operation {
		p.logMessage(resp, log.DirectionIn, nil)
		return ErrUnexpectedReply
	}

	rtt := time.Since(pr.sent)
	p.logMessage(resp, log.DirectionIn, &rtt)

	if pr.handle != nil {
		pr.handle(resp)
		return nil
	}
	pr.ch <- resp
	return nil
}

// close fails all waiting requests. Pending handlers are dropped.
func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, pr := range p.pending {
		if pr.ch != nil {
			close(pr.ch)
		}
		delete(p.pending, id)
	}
}

// respond answers req.
func (p *peer) respond(req *wire.Message, status wire.Status, payload any) error {
	resp, err := wire.NewResponse(req, status, payload)
	if err != nil {
		resp = wire.ErrorResponse(req, wire.StatusInternalError, err.Error())
	}
	return p.send(resp)
}

// respondError answers req with an error status and message.
func (p *peer) respondError(req *wire.Message, status wire.Status, err error) error {
	return p.send(wire.ErrorResponse(req, status, err.Error()))
}

func (p *peer) logMessage(msg *wire.Message, dir log.Direction, rtt *time.Duration) {
	me := &log.MessageEvent{
		MessageID:   msg.MessageID,
		Operation:   msg.Operation,
		Response:    msg.Response,
		PayloadSize: len(msg.Payload),
		RoundTrip:   rtt,
	}
	if msg.Response {
		status := msg.Status
		me.Status = &status
	}
	p.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.connID,
		SessionID:    p.sessionID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message:      me,
	})
}
