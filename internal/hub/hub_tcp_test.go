package hub

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/erilali/bombnet/internal/conn"
	"github.com/erilali/bombnet/internal/logger"
	"github.com/erilali/bombnet/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type client struct {
	net.Conn
	r *bufio.Reader
}

func (c *client) readLine(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(waitFor)))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h := New(ln, WithLogger(logger.Nop()), WithConnOptions(conn.WithLogger(logger.Nop())))
	t.Cleanup(func() { _ = h.DisconnectAll() })
	return h, ln.Addr().String()
}

// dialInOrder connects n clients one after another, waiting for each to be
// accepted so arrival order matches slice order.
func dialInOrder(t *testing.T, h *Hub, addr string, n int) []*client {
	t.Helper()
	clients := make([]*client, 0, n)
	for i := range n {
		raw, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		t.Cleanup(func() { _ = raw.Close() })
		clients = append(clients, &client{Conn: raw, r: bufio.NewReader(raw)})
		require.Eventually(t, func() bool { return h.ConnectedCount() == i+1 }, waitFor, tick)
	}
	return clients
}

func pendingTotal(h *Hub) int {
	total := 0
	for _, p := range h.prune() {
		total += p.Pending()
	}
	return total
}

func TestHubTCP_SendUniqueToEachFollowsArrivalOrder(t *testing.T) {
	h, addr := startHub(t)
	clients := dialInOrder(t, h, addr, 3)

	require.NoError(t, h.SendUniqueToEach(identities(10, 20, 30)))
	require.NoError(t, h.Broadcast(message.GameStatus{Action: message.GameStart, PlayerCount: 3}))

	for i, c := range clients {
		assert.Equal(t, fmt.Sprintf("PLAYER_GAME_OBJECT_IDENTIFIER %d\n", (i+1)*10), c.readLine(t))
		// the next line is the broadcast, so each peer got exactly one identity
		assert.Equal(t, "GAME START 3\n", c.readLine(t))
	}
}

func TestHubTCP_FaultIsolation(t *testing.T) {
	h, addr := startHub(t)
	clients := dialInOrder(t, h, addr, 3)

	require.NoError(t, clients[1].Close())
	require.Eventually(t, func() bool { return h.ConnectedCount() == 2 }, waitFor, tick)

	require.NoError(t, h.Broadcast(message.GameObjectDestroyed{ObjectID: 4}))
	assert.Equal(t, "GAME_OBJECT_DESTROYED 4\n", clients[0].readLine(t))
	assert.Equal(t, "GAME_OBJECT_DESTROYED 4\n", clients[2].readLine(t))
	assert.Equal(t, 2, h.ConnectedCount())
}

func TestHubTCP_ReceiveAllPeerByPeer(t *testing.T) {
	h, addr := startHub(t)
	clients := dialInOrder(t, h, addr, 2)

	// the second peer speaks first; it must still come second
	_, err := io.WriteString(clients[1], "KEY 2 LEFT PRESS\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return pendingTotal(h) == 1 }, waitFor, tick)
	_, err = io.WriteString(clients[0], "STATUS\nKEY 1 UP PRESS\nSTATUS\nKEY 1 UP DEPRESS\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return pendingTotal(h) == 3 }, waitFor, tick)

	got, err := h.ReceiveAll()
	require.NoError(t, err)
	assert.Equal(t, []message.Message{
		message.KeyInput{ObjectID: 1, Key: message.KeyUp, Action: message.Press},
		message.KeyInput{ObjectID: 1, Key: message.KeyUp, Action: message.Depress},
		message.KeyInput{ObjectID: 2, Key: message.KeyLeft, Action: message.Press},
	}, got)
}

func TestHubTCP_StopAccepting(t *testing.T) {
	h, addr := startHub(t)
	clients := dialInOrder(t, h, addr, 1)

	require.True(t, h.IsAccepting())
	require.NoError(t, h.StopAccepting())
	assert.False(t, h.IsAccepting())
	assert.ErrorIs(t, h.StopAccepting(), ErrAlreadyStopped)

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)

	// the existing peer is unaffected
	require.NoError(t, h.Broadcast(message.GameTime{SecondsRemaining: 60}))
	assert.Equal(t, "GAME_TIME 60\n", clients[0].readLine(t))
	assert.Equal(t, 1, h.ConnectedCount())
}

func TestHubTCP_DisconnectAll(t *testing.T) {
	h, addr := startHub(t)
	clients := dialInOrder(t, h, addr, 2)

	require.NoError(t, h.DisconnectAll())
	assert.Equal(t, 0, h.ConnectedCount())
	assert.False(t, h.IsAccepting())

	for _, c := range clients {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(waitFor)))
		_, err := c.r.ReadString('\n')
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestHubTCP_MalformedPeerIsDropped(t *testing.T) {
	h, addr := startHub(t)
	clients := dialInOrder(t, h, addr, 2)

	_, err := io.WriteString(clients[0], "GAME_TIME soon\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.ConnectedCount() == 1 }, waitFor, tick)
	require.NoError(t, h.Broadcast(message.ScoreUpdated{ObjectID: 2, Score: -1}))
	assert.Equal(t, "SCORE_UPDATED 2 -1\n", clients[1].readLine(t))
}

func TestHubTCP_Listen(t *testing.T) {
	h, err := Listen(0, WithLogger(logger.Nop()), WithConnOptions(conn.WithLogger(logger.Nop())))
	require.NoError(t, err)
	defer h.DisconnectAll()

	_, port, err := net.SplitHostPort(h.ln.Addr().String())
	require.NoError(t, err)
	clients := dialInOrder(t, h, net.JoinHostPort("127.0.0.1", port), 1)

	require.NoError(t, h.Broadcast(message.GameStatus{Action: message.GameWaiting, PlayerCount: 1}))
	assert.Equal(t, "GAME WAITING 1\n", clients[0].readLine(t))
}

func TestHubTCP_ListenFailsOnBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	_, err = Listen(busy.Addr().(*net.TCPAddr).Port, WithLogger(logger.Nop()))
	assert.ErrorContains(t, err, "failed to listen on port")
}

func TestHubTCP_DisconnectAllWhilePeersKeepJoining(t *testing.T) {
	h, addr := startHub(t)
	dialInOrder(t, h, addr, 2)

	var (
		mu     sync.Mutex
		dialed []net.Conn
	)
	stop := make(chan struct{})
	dialerDone := make(chan struct{})
	go func() {
		defer close(dialerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			raw, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
			if err != nil {
				continue
			}
			mu.Lock()
			dialed = append(dialed, raw)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, raw := range dialed {
			_ = raw.Close()
		}
	})

	require.Eventually(t, func() bool { return h.ConnectedCount() >= 4 }, waitFor, tick)
	require.NoError(t, h.DisconnectAll())
	close(stop)
	<-dialerDone

	assert.Equal(t, 0, h.ConnectedCount())

	mu.Lock()
	defer mu.Unlock()
	for _, raw := range dialed {
		require.NoError(t, raw.SetReadDeadline(time.Now().Add(waitFor)))
		_, err := raw.Read(make([]byte, 1))
		// accepted peers see EOF; ones left in the backlog are reset
		require.Error(t, err)
		var ne net.Error
		if errors.As(err, &ne) {
			assert.False(t, ne.Timeout(), "client %s was left connected", raw.LocalAddr())
		}
	}
}
