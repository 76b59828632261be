// internal/lobby/lobby.go
// Drives rounds over the hub: waits for enough players, hands out player
// identities, counts the round down and stops it.
package lobby

import (
	"context"
	"time"

	"github.com/erilali/bombnet/internal/hub"
	"github.com/erilali/bombnet/internal/logger"
	"github.com/erilali/bombnet/internal/message"
)

// Multiplexer is the part of the hub a lobby drives.
type Multiplexer interface {
	Broadcast(m message.Message) error
	SendUniqueToEach(gen hub.Generator) error
	ReceiveAll() ([]message.Message, error)
	ConnectedCount() int
}

type Config struct {
	MinPlayers   int
	RoundSeconds int
	Tick         time.Duration
}

type Lobby struct {
	mux Multiplexer
	cfg Config
	log *logger.Logger

	running   bool
	players   int
	remaining int
	lastCount int
}

func New(mux Multiplexer, cfg Config, log *logger.Logger) *Lobby {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.MinPlayers < 1 {
		cfg.MinPlayers = 1
	}
	if log == nil {
		log = logger.NewLogger("lobby")
	}
	return &Lobby{mux: mux, cfg: cfg, log: log, lastCount: -1}
}

// Run calls Step once per tick until ctx is cancelled.
func (l *Lobby) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step advances the lobby by one tick.
func (l *Lobby) Step() {
	msgs, err := l.mux.ReceiveAll()
	if err != nil {
		l.log.Warnf("Receive failed for some peers: %v", err)
	}

	if l.running {
		l.relay(msgs)
		l.countDown()
		return
	}
	l.wait()
}

func (l *Lobby) wait() {
	n := l.mux.ConnectedCount()
	if n >= l.cfg.MinPlayers {
		l.startRound(n)
		return
	}
	if n != l.lastCount {
		l.lastCount = n
		l.broadcast(message.GameStatus{Action: message.GameWaiting, PlayerCount: n})
	}
}

func (l *Lobby) startRound(n int) {
	next := 0
	err := l.mux.SendUniqueToEach(func() message.Message {
		next++
		return message.PlayerIdentity{ObjectID: next}
	})
	if err != nil {
		l.log.Warnf("Identity assignment incomplete: %v", err)
	}

	l.running = true
	l.players = n
	l.remaining = l.cfg.RoundSeconds
	l.broadcast(message.GameStatus{Action: message.GameStart, PlayerCount: n})
	l.broadcast(message.GameTime{SecondsRemaining: l.remaining})
	l.log.Infof("Round started with %d players", n)
}

func (l *Lobby) countDown() {
	if l.mux.ConnectedCount() == 0 {
		l.log.Info("All players left")
		l.stopRound()
		return
	}

	l.remaining--
	l.broadcast(message.GameTime{SecondsRemaining: l.remaining})
	if l.remaining <= 0 {
		l.stopRound()
	}
}

func (l *Lobby) stopRound() {
	l.broadcast(message.GameStatus{Action: message.GameStop, PlayerCount: l.players})
	l.log.Infof("Round stopped after %d seconds", l.cfg.RoundSeconds-l.remaining)

	l.running = false
	l.players = 0
	l.lastCount = -1
}

func (l *Lobby) relay(msgs []message.Message) {
	for _, m := range msgs {
		if k, ok := m.(message.KeyInput); ok {
			l.log.Debugf("Player %d %s %s", k.ObjectID, k.Key, k.Action)
		}
	}
}

func (l *Lobby) broadcast(m message.Message) {
	if err := l.mux.Broadcast(m); err != nil {
		l.log.Warnf("Broadcast of %s reached only some peers: %v", m.Tag(), err)
	}
}

// Running reports whether a round is in progress.
func (l *Lobby) Running() bool { return l.running }
