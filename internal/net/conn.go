package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/peterkuimelis/colonia/internal/message"
)

var (
	// ErrClosed is returned by Send and Ask once the connection is closed.
	ErrClosed = errors.New("connection closed")

	// ErrFatalProtocol marks a handler failure that means client and server
	// disagree about the protocol. It is the only handler error that
	// propagates out of Dispatch, and it closes the connection.
	ErrFatalProtocol = errors.New("fatal protocol violation")
)

// Handler routes an inbound message and returns an optional reply.
type Handler interface {
	Dispatch(conn *Connection, msg *message.Message) (*message.Message, error)
}

// Flow is the direction of a recorded frame.
type Flow string

const (
	Inbound  Flow = "in"
	Outbound Flow = "out"
)

// Recorder observes every frame crossing a connection.
type Recorder interface {
	Record(connID string, flow Flow, f message.Frame)
}

// Options configures a Connection.
type Options struct {
	Name     string
	Logger   *zap.Logger
	Recorder Recorder

	// RateLimit caps outbound pushes and requests per second (0 = unlimited).
	RateLimit float64
	Burst     int
}

// Connection carries frames over a reliable ordered byte stream.
//
// Two goroutines serve a started connection: the reader decodes frames and
// hands replies straight to the oldest waiting Ask, and the dispatcher runs
// the installed Handler for pushes and requests one at a time. Replies are
// matched strictly first-in first-out, so no correlation id is sent.
type Connection struct {
	id      string
	name    string
	rwc     io.ReadWriteCloser
	enc     *json.Encoder
	dec     *json.Decoder
	logger  *zap.Logger
	rec     Recorder
	limiter *rate.Limiter

	handler atomic.Pointer[Handler]

	// inbound is unbounded so the reader never waits on dispatch; a reply
	// queued behind pushes must still reach its Ask.
	inboundMu sync.Mutex
	inbound   []message.Frame
	wake      chan struct{}

	writeMu sync.Mutex // serializes writes and keeps pending in send order

	pendingMu sync.Mutex
	pending   []chan *message.Message

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

// NewConnection wraps a byte stream. Call Start to begin reading.
func NewConnection(rwc io.ReadWriteCloser, opts Options) *Connection {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connection{
		id:      uuid.NewString(),
		name:    opts.Name,
		rwc:     rwc,
		enc:     json.NewEncoder(rwc),
		dec:     json.NewDecoder(rwc),
		rec:     opts.Recorder,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.logger = logger.With(zap.String("conn", c.name), zap.String("conn_id", c.id))
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// ID returns the connection's unique id.
func (c *Connection) ID() string { return c.id }

// Name returns the connection's display name.
func (c *Connection) Name() string { return c.name }

// SetHandler installs the handler used for inbound pushes and requests.
func (c *Connection) SetHandler(h Handler) {
	c.handler.Store(&h)
}

// Start launches the reader and dispatcher goroutines.
func (c *Connection) Start() {
	go c.readLoop()
	go c.dispatchLoop()
}

// Done is closed when the connection has shut down.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection closed, or nil while it is open.
func (c *Connection) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

// Close shuts the connection down. Outstanding Asks fail with ErrClosed.
func (c *Connection) Close() error {
	return c.closeWith(ErrClosed)
}

func (c *Connection) closeWith(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.closeErr = reason
		close(c.done)
		err = c.rwc.Close()
	})
	return err
}

// Send writes a fire-and-forget message.
func (c *Connection) Send(ctx context.Context, msg *message.Message) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.write(message.Frame{Kind: message.KindPush, Msg: msg.ToWire()})
}

// SendAndWait writes a request and blocks until the peer has handled it,
// discarding the reply.
func (c *Connection) SendAndWait(ctx context.Context, msg *message.Message) error {
	_, err := c.Ask(ctx, msg)
	return err
}

// Ask writes a request and blocks until its reply arrives. There is no
// mid-flight cancellation: ctx only bounds the rate limiter wait. A peer
// that handled the request without reply data answers with an "ok"
// message, so a nil error always comes with a non-nil reply.
func (c *Connection) Ask(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	ch := make(chan *message.Message, 1)

	c.writeMu.Lock()
	select {
	case <-c.done:
		c.writeMu.Unlock()
		return nil, ErrClosed
	default:
	}
	c.pendingMu.Lock()
	c.pending = append(c.pending, ch)
	c.pendingMu.Unlock()
	if err := c.write(message.Frame{Kind: message.KindRequest, Msg: msg.ToWire()}); err != nil {
		c.dropLastPending(ch)
		c.writeMu.Unlock()
		return nil, err
	}
	c.writeMu.Unlock()

	select {
	case reply := <-ch:
		return reply, nil
	case <-c.done:
		select {
		case reply := <-ch:
			return reply, nil
		default:
		}
		return nil, ErrClosed
	}
}

func (c *Connection) dropLastPending(ch chan *message.Message) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if n := len(c.pending); n > 0 && c.pending[n-1] == ch {
		c.pending = c.pending[:n-1]
	}
}

// Pending returns the number of requests awaiting a reply.
func (c *Connection) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

func (c *Connection) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// write encodes one frame. Must be called with writeMu held.
func (c *Connection) write(f message.Frame) error {
	if err := c.enc.Encode(f); err != nil {
		c.logger.Warn("write failed", zap.String("kind", string(f.Kind)), zap.Error(err))
		_ = c.closeWith(fmt.Errorf("write: %w", err))
		return fmt.Errorf("write %s: %w", f.Kind, err)
	}
	if c.rec != nil {
		c.rec.Record(c.id, Outbound, f)
	}
	return nil
}

func (c *Connection) readLoop() {
	for {
		var f message.Frame
		if err := c.dec.Decode(&f); err != nil {
			select {
			case <-c.done:
			default:
				if errors.Is(err, io.EOF) {
					c.logger.Info("peer closed connection")
					_ = c.closeWith(ErrClosed)
				} else {
					c.logger.Warn("read failed", zap.Error(err))
					_ = c.closeWith(fmt.Errorf("read: %w", err))
				}
			}
			return
		}
		if c.rec != nil {
			c.rec.Record(c.id, Inbound, f)
		}

		switch f.Kind {
		case message.KindReply:
			c.deliverReply(message.FromWire(f.Msg))
		case message.KindPush, message.KindRequest:
			c.enqueue(f)
		default:
			c.logger.Warn("dropping frame of unknown kind", zap.String("kind", string(f.Kind)))
		}
	}
}

func (c *Connection) deliverReply(reply *message.Message) {
	c.pendingMu.Lock()
	if len(c.pending) == 0 {
		c.pendingMu.Unlock()
		c.logger.Warn("reply with no outstanding request", zap.Stringer("msg", reply))
		return
	}
	ch := c.pending[0]
	c.pending = c.pending[1:]
	c.pendingMu.Unlock()
	ch <- reply
}

func (c *Connection) enqueue(f message.Frame) {
	c.inboundMu.Lock()
	c.inbound = append(c.inbound, f)
	c.inboundMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// dequeue pops the oldest inbound frame.
func (c *Connection) dequeue() (message.Frame, bool) {
	c.inboundMu.Lock()
	defer c.inboundMu.Unlock()
	if len(c.inbound) == 0 {
		return message.Frame{}, false
	}
	f := c.inbound[0]
	c.inbound[0] = message.Frame{}
	c.inbound = c.inbound[1:]
	return f, true
}

// Backlog reports how many inbound frames wait for dispatch.
func (c *Connection) Backlog() int {
	c.inboundMu.Lock()
	defer c.inboundMu.Unlock()
	return len(c.inbound)
}

func (c *Connection) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			select {
			case <-c.done:
				return
			default:
			}
			f, ok := c.dequeue()
			if !ok {
				break
			}
			c.handle(f)
		}
	}
}

func (c *Connection) handle(f message.Frame) {
	msg := message.FromWire(f.Msg)

	var reply *message.Message
	if hp := c.handler.Load(); hp != nil && msg != nil {
		var err error
		reply, err = (*hp).Dispatch(c, msg)
		if err != nil {
			c.logger.Error("closing connection", zap.Stringer("msg", msg), zap.Error(err))
			_ = c.closeWith(err)
			return
		}
	} else {
		c.logger.Warn("no handler installed", zap.Stringer("msg", msg))
	}

	switch f.Kind {
	case message.KindRequest:
		if reply == nil {
			reply = message.New(message.TagOK)
		}
		c.writeMu.Lock()
		err := c.write(message.Frame{Kind: message.KindReply, Msg: reply.ToWire()})
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Warn("reply not sent", zap.Error(err))
		}
	case message.KindPush:
		if reply != nil {
			if err := c.Send(context.Background(), reply); err != nil {
				c.logger.Warn("push reply not sent", zap.Error(err))
			}
		}
	}
}
