package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// NATSBus is a Bus backed by a NATS connection. Messages travel as JSON on
// subjects under a configurable prefix, so multiple organizations can share
// one NATS server. Core NATS has no replay, so the bus keeps its own
// bounded history of everything it sees.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger

	mu      sync.RWMutex
	history []*Message

	feed *nats.Subscription
}

// NewNATSBus connects to the NATS server at url and returns a bus publishing
// under the given subject prefix ("agentdesk" when empty).
func NewNATSBus(url, prefix string, logger *slog.Logger) (*NATSBus, error) {
	if prefix == "" {
		prefix = "agentdesk"
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url, nats.Name("agentdesk-bus"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	b := &NATSBus{conn: conn, prefix: prefix, logger: logger}
	// Record every message on the prefix into the local history ring.
	feed, err := conn.Subscribe(prefix+".>", func(m *nats.Msg) {
		msg, err := decode(m.Data)
		if err != nil {
			b.logger.Warn("discarding undecodable bus message", "subject", m.Subject, "error", err)
			return
		}
		b.record(msg)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe history feed: %w", err)
	}
	b.feed = feed
	return b, nil
}

// Close drains the connection and stops the history feed.
func (b *NATSBus) Close() error {
	if b.feed != nil {
		_ = b.feed.Unsubscribe()
	}
	b.conn.Close()
	return nil
}

// Publish sends a message over NATS. Broadcasts go to the shared broadcast
// subject; direct messages go to the recipient's subject.
func (b *NATSBus) Publish(_ context.Context, msg *Message) error {
	stamp(msg)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode bus message %s: %w", msg.ID, err)
	}
	if err := b.conn.Publish(b.subjectFor(msg), data); err != nil {
		return fmt.Errorf("publish bus message %s: %w", msg.ID, err)
	}
	return nil
}

// Subscribe registers a handler for messages addressed to recipient.
// Recipients also receive broadcasts; RecipientAll receives everything.
// Handler errors are logged, not returned, since the publisher is remote.
func (b *NATSBus) Subscribe(recipient string, handler Handler) (unsubscribe func()) {
	cb := func(m *nats.Msg) {
		msg, err := decode(m.Data)
		if err != nil {
			b.logger.Warn("discarding undecodable bus message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(context.Background(), msg); err != nil {
			b.logger.Warn("bus handler failed", "recipient", recipient, "message", msg.ID, "error", err)
		}
	}

	var subjects []string
	if recipient == RecipientAll {
		subjects = []string{b.prefix + ".>"}
	} else {
		subjects = []string{
			b.prefix + ".desk." + subjectToken(recipient),
			b.prefix + ".broadcast",
		}
	}

	var subs []*nats.Subscription
	for _, subj := range subjects {
		sub, err := b.conn.Subscribe(subj, cb)
		if err != nil {
			b.logger.Error("nats subscribe failed", "subject", subj, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	return func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}
}

// History returns recent messages visible to recipient from the local ring.
// A bus that joined late only sees messages published since it connected.
func (b *NATSBus) History(recipient string, limit int) ([]*Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*Message
	for i := len(b.history) - 1; i >= 0; i-- {
		m := b.history[i]
		if recipient == "" || m.To == recipient || m.From == recipient || broadcast(m) {
			result = append(result, m)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result, nil
}

func (b *NATSBus) subjectFor(msg *Message) string {
	if broadcast(msg) {
		return b.prefix + ".broadcast"
	}
	return b.prefix + ".desk." + subjectToken(msg.To)
}

func (b *NATSBus) record(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, msg)
	if len(b.history) > defaultHistoryCap {
		b.history = b.history[len(b.history)-defaultHistoryCap:]
	}
}

func decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// subjectToken makes an identifier safe to embed as a NATS subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, id)
}
