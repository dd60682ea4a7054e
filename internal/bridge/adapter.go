// Package bridge routes Slack events to Langflow flows: it decides which
// inbound messages to handle, maps threads to execution sessions, and sends
// the flow's answer back into the thread.
package bridge

import "context"

// Adapter is the interface a chat-platform implementation must satisfy.
// The adapter owns connection lifecycle and event decoding; everything
// above it works with the platform-neutral message types below.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages. The channel is closed
	// when the context is cancelled or the adapter is closed. Listen must
	// only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage is a message event received from the chat platform.
// Bot-authored and subtyped events are filtered by the adapter before
// they reach this type.
type InboundMessage struct {
	ChannelID   string // channel the message was posted in
	Timestamp   string // the message's own timestamp ID
	ThreadTS    string // thread root timestamp ("" for top-level messages)
	UserID      string // author
	Text        string // raw text, mention decoration included
	ChannelType string // e.g. "im" for direct messages
	Mention     bool   // delivered via an explicit @mention event
}

// OutboundMessage is a reply to be posted into a thread.
type OutboundMessage struct {
	ChannelID string
	ThreadTS  string
	Text      string
}

// BotUserIDer is an optional interface adapters implement to expose the
// bot's own user ID once connected. The router uses it for self-message
// filtering and mention stripping.
type BotUserIDer interface {
	BotUserID() string
}
