package bot

import (
	"context"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/channels"
)

// handleReaction answers emoji reactions left on the bot's own messages
// with a short canned reply. Reactions to other people's messages and
// reaction removals are ignored.
func (d *Dispatcher) handleReaction(ctx context.Context, msg *channels.IncomingMessage) {
	r := msg.Reaction
	if r == nil || r.Remove || !r.TargetFromSelf {
		return
	}

	var text string
	switch r.Emoji {
	case "❤", "❤️":
		text = "Aww thanks for the love ❤️"
	case "😆", "😂":
		text = "Glad that hit home 😁"
	default:
		return
	}

	d.sendText(ctx, msg.ChatID, text)
}
