// Package comms provides the notification bus that carries task lifecycle
// events and inter-desk messages.
package comms

import (
	"context"
	"time"
)

// MessageType identifies the kind of bus message.
type MessageType string

const (
	TypeTaskCreated   MessageType = "task_created"
	TypeTaskAssigned  MessageType = "task_assigned"
	TypeTaskStarted   MessageType = "task_started"
	TypeTaskCompleted MessageType = "task_completed"
	TypeTaskFailed    MessageType = "task_failed"
	TypeDeskStatus    MessageType = "desk_status"
	TypeDirect        MessageType = "direct"    // point-to-point message
	TypeBroadcast     MessageType = "broadcast" // delivered to every subscriber
)

// RecipientAll subscribes a handler to every message on the bus.
const RecipientAll = "*"

// Message is a single bus event.
type Message struct {
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	From      string            `json:"from"`         // sender desk ID or "api"
	To        string            `json:"to,omitempty"` // recipient desk ID; empty for broadcast
	Subject   string            `json:"subject"`
	Body      string            `json:"body,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler processes incoming messages for a recipient.
type Handler func(ctx context.Context, msg *Message) error

// Bus is the notification backbone. Desks and the server subscribe to
// receive messages; the organization publishes lifecycle events.
type Bus interface {
	// Publish sends a message. Messages with an empty To field, and
	// broadcast-typed messages, are delivered to every subscriber. Missing
	// IDs and timestamps are stamped before delivery.
	Publish(ctx context.Context, msg *Message) error

	// Subscribe registers a handler for messages addressed to the given
	// recipient. RecipientAll receives every message. Returns an
	// unsubscribe function.
	Subscribe(recipient string, handler Handler) (unsubscribe func())

	// History returns recent messages visible to the given recipient in
	// chronological order. An empty recipient returns the full feed.
	History(recipient string, limit int) ([]*Message, error)
}
