// Package whatsapp – events.go converts incoming whatsmeow events into
// the normalized channels.IncomingMessage shape.
package whatsapp

import (
	"fmt"
	"strings"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/channels"
)

// handleEvent is the main whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.connected.Store(true)
		w.reconnectAttempts.Store(0)
		w.logger.Info("whatsapp: connected", "jid", w.SelfID())

	case *events.Disconnected:
		wasConnected := w.connected.Swap(false)
		w.logger.Warn("whatsapp: disconnected", "was_connected", wasConnected)
		if wasConnected && w.ctx.Err() == nil {
			go w.attemptReconnect()
		}

	case *events.StreamReplaced:
		w.connected.Store(false)
		w.logger.Error("whatsapp: stream replaced, another device connected")

	case *events.LoggedOut:
		w.connected.Store(false)
		w.logger.Error("whatsapp: logged out, session invalidated", "reason", evt.Reason)

	case *events.PairSuccess:
		w.logger.Info("whatsapp: device paired", "jid", evt.ID, "platform", evt.Platform)
	}
}

// handleMessageEvt normalizes an incoming WhatsApp message event.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	// Own outgoing messages are not routed back into the bot.
	if evt.Info.IsFromMe {
		return
	}

	// Skip status broadcasts.
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	// WhatsApp may report LID (Linked Identity) JIDs instead of phone
	// numbers. Resolve to phone JIDs so identities stay stable.
	resolvedSender := w.resolveJID(evt.Info.Sender)
	resolvedChat := w.resolveJID(evt.Info.Chat)

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      resolvedSender,
		FromName:  evt.Info.PushName,
		ChatID:    resolvedChat,
		IsGroup:   evt.Info.IsGroup,
		Timestamp: evt.Info.Timestamp,
	}

	// Reactions travel as their own message type.
	if reaction := evt.Message.GetReactionMessage(); reaction != nil {
		msg.Type = channels.MessageReaction
		msg.Reaction = &channels.ReactionInfo{
			Emoji:          reaction.GetText(),
			MessageID:      reaction.GetKey().GetID(),
			TargetFromSelf: reaction.GetKey().GetFromMe(),
			Remove:         reaction.GetText() == "",
		}
		w.emitMessage(msg)
		return
	}

	w.extractText(evt.Message, msg)
	if msg.Type != channels.MessageText || msg.Content == "" {
		return
	}

	w.extractQuoted(evt.Message, msg)
	w.emitMessage(msg)
}

// resolveJID maps a LID JID to its phone JID when the store knows the
// mapping, otherwise returns the input unchanged.
func (w *WhatsApp) resolveJID(jid types.JID) string {
	if jid.Server == "lid" && w.client != nil && w.client.Store != nil {
		if altJID, err := w.client.Store.GetAltJID(w.ctx, jid); err == nil && !altJID.IsEmpty() {
			return altJID.String()
		}
	}
	return jid.String()
}

// extractText pulls text content and mention tags out of the message.
// Image and video captions count as text so captioned mentions of the bot
// still get through.
func (w *WhatsApp) extractText(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	if waMsg == nil {
		return
	}

	if waMsg.Conversation != nil {
		msg.Type = channels.MessageText
		msg.Content = waMsg.GetConversation()
		return
	}

	if ext := waMsg.ExtendedTextMessage; ext != nil {
		msg.Type = channels.MessageText
		msg.Content = ext.GetText()
		msg.Mentions = ext.GetContextInfo().GetMentionedJID()
		return
	}

	if img := waMsg.ImageMessage; img != nil && img.GetCaption() != "" {
		msg.Type = channels.MessageText
		msg.Content = img.GetCaption()
		msg.Mentions = img.GetContextInfo().GetMentionedJID()
		return
	}

	if vid := waMsg.VideoMessage; vid != nil && vid.GetCaption() != "" {
		msg.Type = channels.MessageText
		msg.Content = vid.GetCaption()
		msg.Mentions = vid.GetContextInfo().GetMentionedJID()
		return
	}
}

// extractQuoted pulls reply context out of the message: the quoted
// message's ID, text, author and mention tags.
func (w *WhatsApp) extractQuoted(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	ext := waMsg.GetExtendedTextMessage()
	if ext == nil {
		return
	}
	ctxInfo := ext.GetContextInfo()
	if ctxInfo == nil {
		return
	}

	msg.ReplyTo = ctxInfo.GetStanzaID()
	msg.QuotedFromSelf = w.isSelf(ctxInfo.GetParticipant())

	if quoted := ctxInfo.GetQuotedMessage(); quoted != nil {
		switch {
		case quoted.Conversation != nil:
			msg.QuotedContent = quoted.GetConversation()
		case quoted.ExtendedTextMessage != nil:
			msg.QuotedContent = quoted.ExtendedTextMessage.GetText()
			msg.QuotedMentions = quoted.ExtendedTextMessage.GetContextInfo().GetMentionedJID()
		}
	}
}

// isSelf reports whether a JID string refers to the bot's own account.
// Comparison is on the user part so device suffixes don't matter.
func (w *WhatsApp) isSelf(jid string) bool {
	if jid == "" || w.client == nil || w.client.Store.ID == nil {
		return false
	}
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return false
	}
	return parsed.User == w.client.Store.ID.User
}

// ---------- Helpers ----------

// parseJID converts a string JID to types.JID.
// Accepts "5511999999999", "5511999999999@s.whatsapp.net" or group IDs
// like "123456789-1234@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	// Bare phone number, keep digits only.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}

	return types.NewJID(digits, types.DefaultUserServer), nil
}
