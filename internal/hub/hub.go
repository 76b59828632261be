// internal/hub/hub.go
// Provides the Hub, which accepts peers on a listener and presents them as one
// many-to-many message channel.
package hub

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/erilali/bombnet/internal/conn"
	"github.com/erilali/bombnet/internal/logger"
	"github.com/erilali/bombnet/internal/message"
	"go.uber.org/multierr"
)

const maxAcceptBackoff = time.Second

// Peer is the part of a connection the hub relies on. *conn.Connection
// satisfies it.
type Peer interface {
	Send(m message.Message) error
	Receive() ([]message.Message, error)
	Disconnect() error
	IsConnected() bool
	PeerAddress() string
	Pending() int
}

// Mirror observes traffic passing through the hub. Implementations must not
// block; they are called on the caller's goroutine.
type Mirror interface {
	Outbound(m message.Message)
	Inbound(msgs []message.Message)
}

// Generator yields the next message for SendUniqueToEach.
type Generator func() message.Message

// Option configures a Hub.
type Option func(*Hub)

// WithConnOptions is applied to every accepted connection.
func WithConnOptions(opts ...conn.Option) Option {
	return func(h *Hub) { h.connOpts = append(h.connOpts, opts...) }
}

func WithLogger(l *logger.Logger) Option {
	return func(h *Hub) { h.log = l }
}

func WithMirror(m Mirror) Option {
	return func(h *Hub) { h.mirror = m }
}

// Hub owns a listener and the peers accepted from it, kept in arrival order.
// Dead peers are dropped lazily at the start of every operation that walks
// the peer list.
type Hub struct {
	ln       net.Listener
	connOpts []conn.Option
	log      *logger.Logger
	mirror   Mirror

	mu    sync.Mutex
	peers []Peer

	acceptMu   sync.Mutex
	accepting  bool
	acceptDone chan struct{}
}

// Listen opens a TCP listener on port and starts a Hub on it.
func Listen(port int, opts ...Option) (*Hub, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return New(ln, opts...), nil
}

// New takes ownership of ln and starts accepting peers from it.
func New(ln net.Listener, opts ...Option) *Hub {
	h := &Hub{
		ln:         ln,
		accepting:  true,
		acceptDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.NewLogger("hub")
	}

	go h.acceptLoop()

	h.log.Infof("Accepting peers on %s", ln.Addr())
	return h
}

func (h *Hub) acceptLoop() {
	defer close(h.acceptDone)

	var delay time.Duration
	for {
		stream, err := h.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !h.IsAccepting() {
				h.log.LogEvent("info", "accept_stopped", "", "")
				return
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > maxAcceptBackoff {
				delay = maxAcceptBackoff
			}
			h.log.Errorf("Failed to accept connection: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		c := conn.New(stream, h.connOpts...)
		h.add(c)
		h.log.LogEvent("info", "peer_connected", c.PeerAddress(), "")
	}
}

func (h *Hub) add(p Peer) {
	h.mu.Lock()
	h.peers = append(h.peers, p)
	h.mu.Unlock()
}

// prune drops dead peers and returns a snapshot of the survivors in arrival
// order. The snapshot is safe to use without holding the lock.
func (h *Hub) prune() []Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	live := h.peers[:0]
	for _, p := range h.peers {
		if p.IsConnected() {
			live = append(live, p)
			continue
		}
		h.log.Debugf("Pruned dead peer %s", p.PeerAddress())
	}
	clear(h.peers[len(live):])
	h.peers = live

	return slices.Clone(live)
}

// Broadcast sends m to every live peer. A failing peer does not stop the
// others; all failures are returned together once every peer was tried.
// A message that cannot be encoded is rejected before any peer sees it.
func (h *Hub) Broadcast(m message.Message) error {
	if m == nil {
		return conn.ErrNilMessage
	}
	if err := message.Validate(m); err != nil {
		return err
	}

	var errs error
	for _, p := range h.prune() {
		if err := p.Send(m); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", p.PeerAddress(), err))
		}
	}
	if h.mirror != nil {
		h.mirror.Outbound(m)
	}
	return errs
}

// SendUniqueToEach calls gen once per live peer, in arrival order, and sends
// the result to that peer only. The i-th peer always gets the i-th generated
// message: a peer whose Send fails still uses up its message. A nil message
// ends the pass with ErrInvalidGenerator.
func (h *Hub) SendUniqueToEach(gen Generator) error {
	if gen == nil {
		return fmt.Errorf("%w: nil generator", ErrInvalidGenerator)
	}

	var errs error
	for i, p := range h.prune() {
		m := gen()
		if m == nil {
			return multierr.Append(errs, fmt.Errorf("%w: peer %d (%s)", ErrInvalidGenerator, i, p.PeerAddress()))
		}
		if err := p.Send(m); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", p.PeerAddress(), err))
		}
		if h.mirror != nil {
			h.mirror.Outbound(m)
		}
	}
	return errs
}

// ReceiveAll drains every live peer and concatenates the results: all of the
// first peer's messages, then all of the second's, and so on. It is not a
// time-ordered merge. A peer that dies mid-call contributes nothing and its
// error is returned alongside the messages from the others.
func (h *Hub) ReceiveAll() ([]message.Message, error) {
	out := []message.Message{}
	var errs error
	for _, p := range h.prune() {
		msgs, err := p.Receive()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", p.PeerAddress(), err))
			continue
		}
		out = append(out, msgs...)
	}
	if h.mirror != nil && len(out) > 0 {
		h.mirror.Inbound(out)
	}
	return out, errs
}

// StopAccepting closes the listener. Peers that are already connected keep
// working.
func (h *Hub) StopAccepting() error {
	h.acceptMu.Lock()
	if !h.accepting {
		h.acceptMu.Unlock()
		return ErrAlreadyStopped
	}
	h.accepting = false
	h.acceptMu.Unlock()

	err := h.ln.Close()
	<-h.acceptDone
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

func (h *Hub) IsAccepting() bool {
	h.acceptMu.Lock()
	defer h.acceptMu.Unlock()
	return h.accepting
}

// ConnectedCount is the number of live peers after pruning.
func (h *Hub) ConnectedCount() int {
	return len(h.prune())
}

// Peers returns the addresses of the live peers in arrival order.
func (h *Hub) Peers() []string {
	peers := h.prune()
	addrs := make([]string, 0, len(peers))
	for _, p := range peers {
		addrs = append(addrs, p.PeerAddress())
	}
	return addrs
}

// DisconnectAll stops accepting new peers, then disconnects every live one.
// The listener is closed first so no peer can join after the sweep.
func (h *Hub) DisconnectAll() error {
	var errs error
	if err := h.StopAccepting(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
		errs = multierr.Append(errs, err)
	}

	for _, p := range h.prune() {
		// a peer may die on its own between prune and here
		if err := p.Disconnect(); err != nil && !errors.Is(err, conn.ErrAlreadyDisconnected) {
			errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", p.PeerAddress(), err))
		}
	}
	h.prune()
	return errs
}
