// Package channels defines the transport-neutral message types and the
// Channel interface the bot core consumes. The core never sees platform
// event structs, only the normalized shapes below.
package channels

import (
	"context"
	"fmt"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageReaction MessageType = "reaction"
)

// Channel is the interface every transport implements to move messages
// between the platform and the bot core.
type Channel interface {
	// Name returns the transport identifier (e.g. "whatsapp").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send delivers a text message to the recipient chat.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits normalized incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected reports whether the transport is connected.
	IsConnected() bool

	// SelfID returns the bot's own identifier on the platform, empty
	// before login completes. Used to detect mentions of the bot.
	SelfID() string
}

// MediaChannel extends Channel with file-based media sending. Paths point
// at local files produced by the image and voice synthesizers; the sender
// owns cleanup. A non-empty replyTo quotes that message.
type MediaChannel interface {
	Channel

	// SendImage sends an image file with an optional caption.
	SendImage(ctx context.Context, to, path, caption, replyTo string) error

	// SendVoice sends an audio file as a push-to-talk voice note.
	SendVoice(ctx context.Context, to, path, replyTo string) error
}

// IncomingMessage is a platform message normalized for the bot core.
type IncomingMessage struct {
	// ID is the platform message identifier.
	ID string

	// Channel identifies the source transport.
	Channel string

	// From is the sender identifier. In a group this is the member,
	// in a direct chat it equals ChatID.
	From string

	// FromName is the sender display name, when the platform knows it.
	FromName string

	// ChatID is the group or direct-chat identifier.
	ChatID string

	// IsGroup indicates a group chat.
	IsGroup bool

	// FromSelf indicates the bot's own account authored the message.
	FromSelf bool

	// Type is the message content type.
	Type MessageType

	// Content is the text content.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Mentions lists the identifiers tagged in the message body.
	Mentions []string

	// ReplyTo is the ID of the quoted message, when replying.
	ReplyTo string

	// QuotedContent is the text of the quoted message.
	QuotedContent string

	// QuotedFromSelf indicates the quoted message was authored by the
	// bot's own account.
	QuotedFromSelf bool

	// QuotedMentions lists the identifiers tagged in the quoted message.
	QuotedMentions []string

	// Reaction carries reaction data when Type is MessageReaction.
	Reaction *ReactionInfo
}

// ReactionInfo describes an emoji reaction to an earlier message.
type ReactionInfo struct {
	// Emoji is the reaction emoji, empty when removed.
	Emoji string

	// MessageID is the message being reacted to.
	MessageID string

	// TargetFromSelf indicates the reacted-to message was sent by the
	// bot's own account.
	TargetFromSelf bool

	// Remove is true when the reaction is being retracted.
	Remove bool
}

// OutgoingMessage is a text message to send through a transport.
type OutgoingMessage struct {
	// Content is the text content.
	Content string

	// ReplyTo is the ID of the message to quote, when set.
	ReplyTo string
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
	ErrConnectionFailed    = fmt.Errorf("failed to connect to channel")
)
