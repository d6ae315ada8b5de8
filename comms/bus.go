package comms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistoryCap = 1000

// InMemoryBus is a thread-safe in-process message bus.
type InMemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string][]handlerEntry // recipient -> handlers
	history  []*Message
	maxHist  int
}

type handlerEntry struct {
	id      int
	handler Handler
}

// NewInMemoryBus creates an InMemoryBus with a 1000-message history cap.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]handlerEntry),
		maxHist:  defaultHistoryCap,
	}
}

// Publish sends a message to its intended recipients. Broadcast-typed
// messages and messages with an empty To field reach every subscriber;
// direct messages reach the To subscriber plus RecipientAll subscribers.
func (b *InMemoryBus) Publish(ctx context.Context, msg *Message) error {
	stamp(msg)

	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}

	// Collect handlers to invoke outside the lock.
	var targets []Handler
	if broadcast(msg) {
		for _, entries := range b.handlers {
			for _, e := range entries {
				targets = append(targets, e.handler)
			}
		}
	} else {
		for _, e := range b.handlers[msg.To] {
			targets = append(targets, e.handler)
		}
		for _, e := range b.handlers[RecipientAll] {
			targets = append(targets, e.handler)
		}
	}
	b.mu.Unlock()

	var errs []error
	for _, h := range targets {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish: %d handler error(s): %v", len(errs), errs[0])
	}
	return nil
}

// Subscribe registers a handler for messages addressed to recipient.
// The returned function unsubscribes the handler.
func (b *InMemoryBus) Subscribe(recipient string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[recipient] = append(b.handlers[recipient], handlerEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[recipient]
		filtered := entries[:0]
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(b.handlers, recipient)
		} else {
			b.handlers[recipient] = filtered
		}
	}
}

// History returns the most recent limit messages visible to recipient in
// chronological order. Visible means addressed to it, sent by it, or
// broadcast. An empty recipient returns everything.
func (b *InMemoryBus) History(recipient string, limit int) ([]*Message, error) {
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
	// Reverse to chronological order.
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result, nil
}

func broadcast(m *Message) bool {
	return m.Type == TypeBroadcast || m.To == ""
}

func stamp(m *Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
}
