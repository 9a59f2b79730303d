package bot

import (
	"context"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/channels"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
)

// setupPrompt is sent by DM to group members who have no direct chat yet.
// Deferred deliveries and reminders land in the DM, so one exchange there
// is needed before group scheduling works.
const setupPrompt = "Hey, I need a quick reply here to finish setup for group chat features! Please say hi."

// promptGroupSetup DMs the setup nudge to a group member without a direct
// chat, at most once per group (tracked as a memory fact). Failures are
// logged and never interrupt handling of the group message.
func (d *Dispatcher) promptGroupSetup(ctx context.Context, groupID, userID string, user *memory.User) {
	flagKey := "setupPrompted_" + groupID

	if user.HasFact(flagKey) {
		return
	}

	hasDM, err := d.transcripts.HasDirectChat(ctx, userID)
	if err != nil {
		d.logger.Warn("direct chat check failed", "user", userID, "error", err)
		return
	}
	if hasDM {
		return
	}

	err = d.channel.Send(ctx, userID, &channels.OutgoingMessage{Content: setupPrompt})
	if err != nil {
		d.logger.Warn("setup prompt send failed", "user", userID, "error", err)
		return
	}
	if err := d.mem.SetFact(ctx, userID, flagKey, true); err != nil {
		d.logger.Warn("setup flag write failed", "user", userID, "error", err)
	}
}
