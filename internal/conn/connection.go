// internal/conn/connection.go
// Provides Connection, a duplex message channel over one byte stream with
// independent receive and send goroutines.
package conn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/erilali/bombnet/internal/logger"
	"github.com/erilali/bombnet/internal/message"
	"github.com/google/uuid"
)

// DefaultPort is the well-known TCP port the game server listens on.
const DefaultPort = 4321

const (
	maxLineSize = 64 * 1024
	// drainTimeout bounds the final flush in Disconnect.
	drainTimeout = 500 * time.Millisecond
)

type options struct {
	heartbeat time.Duration
	logger    *logger.Logger
}

// Option configures a Connection.
type Option func(*options)

// WithHeartbeat makes the send goroutine write a Heartbeat every d. A peer
// that went away is then noticed by a failing write even when the game is idle.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithLogger replaces the default "conn" component logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Connection exchanges messages with exactly one peer. Send and Receive only
// touch in-memory queues; the stream is read and written by two goroutines
// started in New.
type Connection struct {
	id     string
	peer   string
	stream net.Conn
	log    *logger.Logger

	heartbeat time.Duration

	inMu    sync.Mutex
	inbound []message.Message

	outMu    sync.Mutex
	outbound []message.Message
	wake     chan struct{}

	stateMu  sync.Mutex
	err      error // sticky, nil while live
	done     chan struct{}
	sendDone chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial opens a TCP stream to host:port and wraps it in a Connection.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Connection, error) {
	var d net.Dialer
	stream, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s:%d: %w", host, port, err)
	}
	return New(stream, opts...), nil
}

// New takes ownership of stream and starts the receive and send goroutines.
func New(stream net.Conn, opts ...Option) *Connection {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewLogger("conn")
	}

	peer := "unknown"
	if addr := stream.RemoteAddr(); addr != nil {
		peer = addr.String()
	}

	c := &Connection{
		id:        uuid.NewString(),
		peer:      peer,
		stream:    stream,
		heartbeat: o.heartbeat,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		sendDone:  make(chan struct{}),
	}
	c.log = o.logger.WithFields(map[string]interface{}{
		"conn": c.id,
		"peer": c.peer,
	})

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	c.wg.Add(2)
	go c.receiveLoop(scanner)
	go c.sendLoop()

	c.log.Debug("connection started")
	return c
}

// ID is a random identifier used to correlate log lines.
func (c *Connection) ID() string { return c.id }

// PeerAddress is the remote address captured at construction. It stays
// valid after the connection dies.
func (c *Connection) PeerAddress() string { return c.peer }

// Err returns the sticky error, or nil while the connection is live.
func (c *Connection) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.err
}

func (c *Connection) IsConnected() bool { return c.Err() == nil }

// Pending reports how many received messages are waiting for Receive.
func (c *Connection) Pending() int {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	return len(c.inbound)
}

// Send queues m for the send goroutine and returns immediately. A message
// that does not pass message.Validate is rejected before it is queued.
func (c *Connection) Send(m message.Message) error {
	if m == nil {
		return ErrNilMessage
	}
	if err := message.Validate(m); err != nil {
		return err
	}
	if err := c.Err(); err != nil {
		return err
	}

	c.outMu.Lock()
	c.outbound = append(c.outbound, m)
	c.outMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
		// a wake-up is already pending and the flush will pick this one up
	}
	return nil
}

// Receive removes and returns every queued message in arrival order.
func (c *Connection) Receive() ([]message.Message, error) {
	return c.take(-1)
}

// ReceiveN removes and returns at most limit queued messages in arrival order,
// leaving the rest for the next call. A negative limit behaves like Receive.
func (c *Connection) ReceiveN(limit int) ([]message.Message, error) {
	return c.take(limit)
}

func (c *Connection) take(limit int) ([]message.Message, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}

	c.inMu.Lock()
	defer c.inMu.Unlock()

	n := len(c.inbound)
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]message.Message, n)
	copy(out, c.inbound[:n])
	if n == len(c.inbound) {
		c.inbound = nil
	} else {
		c.inbound = append([]message.Message(nil), c.inbound[n:]...)
	}
	return out, nil
}

// Disconnect stops both goroutines and closes the stream. Messages already
// accepted by Send get one last flush, bounded by drainTimeout; whatever the
// peer does not take in that time is dropped. It fails with
// ErrAlreadyDisconnected if the connection is already dead, whatever killed it.
func (c *Connection) Disconnect() error {
	c.stateMu.Lock()
	if c.err != nil {
		c.stateMu.Unlock()
		return ErrAlreadyDisconnected
	}
	c.err = fmt.Errorf("%w: %w", ErrNotConnected, ErrDisconnected)
	close(c.done)
	c.stateMu.Unlock()

	_ = c.stream.SetWriteDeadline(time.Now().Add(drainTimeout))
	timer := time.NewTimer(drainTimeout)
	select {
	case <-c.sendDone:
	case <-timer.C:
	}
	timer.Stop()

	// closing the stream is what unblocks a reader stuck in Read
	c.closeStream()
	c.wg.Wait()

	c.log.LogEvent("info", "peer_disconnected", c.peer, "")
	return nil
}

// fail records cause as the sticky error. It reports whether this call was
// the one that killed the connection.
func (c *Connection) fail(cause error) bool {
	c.stateMu.Lock()
	if c.err != nil {
		c.stateMu.Unlock()
		return false
	}
	c.err = fmt.Errorf("%w: %w", ErrNotConnected, cause)
	close(c.done)
	c.stateMu.Unlock()

	c.closeStream()
	return true
}

func (c *Connection) closeStream() {
	c.closeOnce.Do(func() {
		if err := c.stream.Close(); err != nil {
			c.log.Debugf("closing stream: %v", err)
		}
	})
}

func (c *Connection) receiveLoop(scanner *bufio.Scanner) {
	defer c.wg.Done()

	for scanner.Scan() {
		msg, err := message.Decode(scanner.Text())
		if err != nil {
			if c.fail(err) {
				c.log.LogEvent("error", "read_error", c.peer, err.Error())
			}
			return
		}
		if _, ok := msg.(message.Heartbeat); ok {
			continue
		}

		c.inMu.Lock()
		c.inbound = append(c.inbound, msg)
		c.inMu.Unlock()
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	if c.fail(err) {
		if err == io.EOF {
			c.log.LogEvent("info", "peer_disconnected", c.peer, "closed by peer")
		} else {
			c.log.LogEvent("error", "read_error", c.peer, err.Error())
		}
	}
}

func (c *Connection) sendLoop() {
	defer c.wg.Done()
	defer close(c.sendDone)

	var tick <-chan time.Time
	if c.heartbeat > 0 {
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			c.drain()
			return
		case <-c.wake:
		case <-tick:
			c.outMu.Lock()
			c.outbound = append(c.outbound, message.Heartbeat{})
			c.outMu.Unlock()
		}

		if err := c.flush(); err != nil {
			if c.fail(err) {
				c.log.LogEvent("error", "write_error", c.peer, err.Error())
			}
			return
		}
	}
}

// drain is the last flush after the connection was marked dead. After a
// stream failure the write fails at once and the queue is simply dropped.
func (c *Connection) drain() {
	if err := c.flush(); err != nil {
		c.log.Debugf("dropped queued messages: %v", err)
	}
}

// flush writes everything queued so far as one block of lines.
func (c *Connection) flush() error {
	c.outMu.Lock()
	batch := c.outbound
	c.outbound = nil
	c.outMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var b strings.Builder
	for _, m := range batch {
		b.WriteString(message.Encode(m))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(c.stream, b.String())
	return err
}
