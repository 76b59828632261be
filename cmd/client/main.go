// Bombnet console client: prints what the server sends and turns typed
// commands into key inputs.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/erilali/bombnet/internal/conn"
	"github.com/erilali/bombnet/internal/logger"
	"github.com/erilali/bombnet/internal/message"
)

const pollInterval = 50 * time.Millisecond

var (
	host     = flag.String("host", "localhost", "Server host")
	port     = flag.Int("port", conn.DefaultPort, "Server port")
	logLevel = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
)

var errNoIdentity = errors.New("no player identity assigned yet")

// parseCommand turns "<KEY> <PRESS|DEPRESS>" into a key input for player id.
func parseCommand(line string, id int) (message.Message, error) {
	fields := strings.Fields(strings.ToUpper(line))
	if len(fields) != 2 {
		return nil, fmt.Errorf("usage: <UP|DOWN|LEFT|RIGHT|SPACE> <PRESS|DEPRESS>")
	}
	key, err := message.ParseKey(fields[0])
	if err != nil {
		return nil, err
	}
	action, err := message.ParseKeyAction(fields[1])
	if err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, errNoIdentity
	}
	return message.KeyInput{ObjectID: id, Key: key, Action: action}, nil
}

type client struct {
	c       *conn.Connection
	display *Display
	id      atomic.Int64
}

func newClient(c *conn.Connection, display *Display) *client {
	cl := &client{c: c, display: display}
	cl.id.Store(-1)
	return cl
}

// poll drains the connection every pollInterval until it dies or ctx ends.
func (cl *client) poll(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		msgs, err := cl.c.Receive()
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if p, ok := m.(message.PlayerIdentity); ok {
				cl.id.Store(int64(p.ObjectID))
			}
			cl.display.PrintMessage(m)
		}
	}
}

// readCommands sends one key input per line of in until in ends or "quit".
func (cl *client) readCommands(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "quit"):
			return nil
		}

		m, err := parseCommand(line, int(cl.id.Load()))
		if err != nil {
			cl.display.PrintWarning(err.Error())
			continue
		}
		if err := cl.c.Send(m); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func main() {
	flag.Parse()

	config := logger.DefaultLogConfig()
	config.Level = *logLevel
	logger.InitLogger(config)

	display := NewDisplay(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := conn.Dial(ctx, *host, *port, conn.WithLogger(logger.NewLogger("client")))
	if err != nil {
		display.PrintWarning(err.Error())
		os.Exit(1)
	}
	display.PrintServerStatus(fmt.Sprintf("Connected to %s", c.PeerAddress()))

	cl := newClient(c, display)
	pollDone := make(chan error, 1)
	go func() { pollDone <- cl.poll(ctx) }()

	inputDone := make(chan error, 1)
	go func() { inputDone <- cl.readCommands(os.Stdin) }()

	select {
	case err := <-pollDone:
		if err != nil {
			display.PrintServerStatus(fmt.Sprintf("Connection lost: %v", err))
		}
	case err := <-inputDone:
		if err != nil {
			display.PrintWarning(err.Error())
		}
	case <-ctx.Done():
	}

	_ = c.Disconnect()
	display.PrintServerStatus("Disconnected")
}
