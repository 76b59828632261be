// internal/transport/websocket.go
// Adapts browser websocket peers to net.Conn so they can join a hub next to
// plain TCP peers.
package transport

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/erilali/bombnet/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	webSocketReadLimit     = 64 * 1024
	webSocketWriteDeadline = 10 * time.Second
	webSocketCloseDeadline = time.Second
)


// wsConn presents a websocket as a byte stream. Each incoming frame holds one
// or more lines; a frame that does not end in a newline is terminated with
// one. Each Write becomes one text frame.
type wsConn struct {
	ws *websocket.Conn

	readMu      sync.Mutex
	frame       io.Reader
	lastByte    byte
	frameBytes  int
	needNewline bool

	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ws.SetReadLimit(webSocketReadLimit)
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.needNewline {
			c.needNewline = false
			p[0] = '\n'
			return 1, nil
		}

		if c.frame == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.frame = r
			c.frameBytes = 0
		}

		n, err := c.frame.Read(p)
		if n > 0 {
			c.lastByte = p[n-1]
			c.frameBytes += n
		}
		if err == io.EOF {
			c.frame = nil
			if c.frameBytes > 0 && c.lastByte != '\n' {
				c.needNewline = true
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline)); err != nil {
		return 0, err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	// WriteControl may run alongside a Write, so the close frame does not need writeMu
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(webSocketCloseDeadline))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

type wsAddr string

func (a wsAddr) Network() string { return "ws" }
func (a wsAddr) String() string  { return string(a) }

// Listener is a net.Listener fed by an HTTP handler. Mount it on a mux; every
// successful upgrade is handed to the next Accept call.
type Listener struct {
	addr     wsAddr
	upgrader websocket.Upgrader
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
	log      *logger.Logger
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithAllowedOrigins accepts upgrades from the listed origins (scheme://host)
// in addition to same-origin requests and clients that send no Origin
// header. "*" allows every origin.
func WithAllowedOrigins(origins ...string) ListenerOption {
	return func(l *Listener) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
		}
		l.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] || allowed[strings.ToLower(origin)] {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
	}
}

func WithListenerLogger(log *logger.Logger) ListenerOption {
	return func(l *Listener) { l.log = log }
}

// NewListener returns a Listener that reports addr from Addr. Unless
// WithAllowedOrigins says otherwise, only same-origin browser upgrades are
// accepted.
func NewListener(addr string, opts ...ListenerOption) *Listener {
	l := &Listener{
		addr: wsAddr(addr),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.NewLogger("websocket")
	}
	return l
}

// ServeHTTP upgrades the request and waits for the hub to accept it.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.done:
		http.Error(w, "not accepting peers", http.StatusServiceUnavailable)
		return
	default:
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	c := newWSConn(ws)
	select {
	case l.conns <- c:
	case <-l.done:
		_ = c.Close()
	case <-r.Context().Done():
		_ = c.Close()
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *Listener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *Listener) Addr() net.Addr { return l.addr }
