// Package providers defines the generative capability interfaces the bot
// depends on, plus their OpenAI-backed implementations. Each capability is
// an opaque function: input in, result or error out. The dispatcher and
// scheduler only see the interfaces.
package providers

import (
	"context"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
)

// ReplyGenerator produces a conversational reply for a prompt, steered by
// the user's memory (persona name, fact keys, rolling summary).
type ReplyGenerator interface {
	Generate(ctx context.Context, prompt string, mem *memory.User) (string, error)
}

// Summarizer condenses a conversation transcript into a short synopsis.
type Summarizer interface {
	Summarize(ctx context.Context, conversation string) (string, error)
}

// ImageSynthesizer renders a prompt to an image file and returns its path.
// The caller owns the file and removes it after sending.
type ImageSynthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}
