// internal/events/events.go
// Mirrors game traffic into a JetStream stream so it can be replayed or
// inspected outside the game server.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erilali/bombnet/internal/logger"
	"github.com/erilali/bombnet/internal/message"
	"github.com/nats-io/nats.go"
)

const (
	StreamName         = "GAME"
	outboundPrefix     = "game.out"
	inboundPrefix      = "game.in"
	jetstreamRetention = 30 * time.Minute
)

// Subjects covered by the GAME stream.
var Subjects = []string{outboundPrefix + ".*", inboundPrefix + ".*"}

type asyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

type streamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Record is the JSON payload published for every mirrored message.
type Record struct {
	Tag       string `json:"tag"`
	Line      string `json:"line"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher mirrors hub traffic to JetStream. A nil *Publisher, or one built
// without a JetStream context, silently drops everything.
type Publisher struct {
	js  asyncPublisher
	log *logger.Logger
	now func() time.Time
}

func NewPublisher(js nats.JetStreamContext, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewLogger("events")
	}
	p := &Publisher{log: log, now: time.Now}
	if js != nil {
		p.js = js
	}
	return p
}

// OutboundSubject is the subject a message sent to peers is published on.
func OutboundSubject(t message.Tag) string {
	return fmt.Sprintf("%s.%s", outboundPrefix, t)
}

// InboundSubject is the subject a message received from a peer is published on.
func InboundSubject(t message.Tag) string {
	return fmt.Sprintf("%s.%s", inboundPrefix, t)
}

func (p *Publisher) Outbound(m message.Message) {
	if p == nil || p.js == nil {
		return
	}
	p.publish(OutboundSubject(m.Tag()), m)
}

func (p *Publisher) Inbound(msgs []message.Message) {
	if p == nil || p.js == nil {
		return
	}
	for _, m := range msgs {
		p.publish(InboundSubject(m.Tag()), m)
	}
}

func (p *Publisher) publish(subject string, m message.Message) {
	data, err := json.Marshal(Record{
		Tag:       string(m.Tag()),
		Line:      message.Encode(m),
		Timestamp: p.now().Unix(),
	})
	if err != nil {
		p.log.Errorf("Failed to marshal %s record: %v", m.Tag(), err)
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Errorf("Failed to publish to %s: %v", subject, err)
	}
}

// EnsureStream creates the GAME stream, or brings an existing one up to date.
func EnsureStream(js streamManager) error {
	cfg := &nats.StreamConfig{
		Name:     StreamName,
		Subjects: Subjects,
		Storage:  nats.FileStorage,
		MaxAge:   jetstreamRetention,
	}
	if _, err := js.StreamInfo(StreamName); err != nil {
		if _, err := js.AddStream(cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
		}
		return nil
	}
	if _, err := js.UpdateStream(cfg); err != nil {
		return fmt.Errorf("failed to update stream %s: %w", StreamName, err)
	}
	return nil
}

// Connect dials NATS and prepares the GAME stream. Any failure is logged and
// reported as nil results so the server can run without persistence.
func Connect(url string, log *logger.Logger) (*nats.Conn, nats.JetStreamContext) {
	if url == "" {
		url = nats.DefaultURL
	}

	log.Infof("Connecting to NATS at %s", url)
	nc, err := nats.Connect(url, nats.Name("bombnet"))
	if err != nil {
		log.Errorf("Error connecting to NATS: %v", err)
		log.Warn("Running without NATS connection. Game traffic will not be mirrored.")
		return nil, nil
	}

	js, err := nc.JetStream()
	if err != nil {
		log.Errorf("Error getting JetStream context: %v", err)
		log.Warn("Running without JetStream. Game traffic will not be mirrored.")
		return nc, nil
	}

	if err := EnsureStream(js); err != nil {
		log.Errorf("%v", err)
		return nc, nil
	}
	log.Infof("JetStream stream %s ready", StreamName)
	return nc, js
}
