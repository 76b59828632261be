package transport

import (
	"errors"
	"net"
	"sync"

	"go.uber.org/multierr"
)

type acceptResult struct {
	conn net.Conn
	err  error
}

type multiListener struct {
	listeners []net.Listener
	results   chan acceptResult
	done      chan struct{}
	once      sync.Once
}

// Merge joins several listeners into one. Accept returns connections from
// whichever listener produces one first; Close closes all of them. With no
// listeners Accept blocks until Close.
func Merge(listeners ...net.Listener) net.Listener {
	m := &multiListener{
		listeners: listeners,
		results:   make(chan acceptResult),
		done:      make(chan struct{}),
	}
	for _, l := range listeners {
		go m.pump(l)
	}
	return m
}

func (m *multiListener) pump(l net.Listener) {
	for {
		c, err := l.Accept()
		if err != nil && errors.Is(err, net.ErrClosed) {
			return
		}
		select {
		case m.results <- acceptResult{conn: c, err: err}:
		case <-m.done:
			if c != nil {
				_ = c.Close()
			}
			return
		}
	}
}

func (m *multiListener) Accept() (net.Conn, error) {
	select {
	case r := <-m.results:
		return r.conn, r.err
	case <-m.done:
		return nil, net.ErrClosed
	}
}

func (m *multiListener) Close() error {
	var errs error
	closed := false
	m.once.Do(func() {
		closed = true
		close(m.done)
		for _, l := range m.listeners {
			errs = multierr.Append(errs, l.Close())
		}
	})
	if !closed {
		return net.ErrClosed
	}
	return errs
}

// Addr reports the first listener's address, or an empty "merged" address
// when there are no listeners.
func (m *multiListener) Addr() net.Addr {
	if len(m.listeners) == 0 {
		return mergedAddr{}
	}
	return m.listeners[0].Addr()
}

type mergedAddr struct{}

func (mergedAddr) Network() string { return "merged" }
func (mergedAddr) String() string  { return "" }
