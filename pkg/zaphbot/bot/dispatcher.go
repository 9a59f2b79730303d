// Package bot – dispatcher.go routes one inbound message through the
// addressing gate, text normalization, intent classification and action
// execution. At most one user-visible reply results from one message.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/channels"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/intent"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/providers"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/schedule"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/tts"
)

// Fixed user-visible notices.
const (
	noticeGenericFailure = "⚠️ Something went wrong."
	noticeImageFailure   = "Image generation failed."
	noticeVoiceFailure   = "Failed to generate voice note."
)

// reNumericMention matches raw numeric mention tokens like "@5511999999999".
var reNumericMention = regexp.MustCompile(`@\d+`)

// VoiceSynthesizer renders reply text to audio files. tts.Synthesizer
// satisfies this.
type VoiceSynthesizer interface {
	SynthesizeFiles(ctx context.Context, text string) ([]string, error)
}

// Dispatcher orchestrates the message pipeline. All stores and providers
// are injected; the dispatcher itself holds no persistent state.
type Dispatcher struct {
	defaultName string

	mem         memory.Store
	transcripts memory.TranscriptStore
	jobs        schedule.Store
	classifier  *intent.Classifier
	generator   providers.ReplyGenerator
	imager      providers.ImageSynthesizer
	voice       VoiceSynthesizer
	channel     channels.MediaChannel
	summaries   *summaryRefresher

	// now is the clock, replaceable in tests.
	now func() time.Time

	// loc resolves relative dates in reminders.
	loc *time.Location

	logger *slog.Logger
}

// NewDispatcher wires the pipeline. A nil summarizer disables summary
// refreshes; a nil location means the host timezone.
func NewDispatcher(
	defaultName string,
	mem memory.Store,
	transcripts memory.TranscriptStore,
	jobs schedule.Store,
	classifier *intent.Classifier,
	generator providers.ReplyGenerator,
	imager providers.ImageSynthesizer,
	voice VoiceSynthesizer,
	channel channels.MediaChannel,
	summarizer providers.Summarizer,
	loc *time.Location,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	d := &Dispatcher{
		defaultName: defaultName,
		mem:         mem,
		transcripts: transcripts,
		jobs:        jobs,
		classifier:  classifier,
		generator:   generator,
		imager:      imager,
		voice:       voice,
		channel:     channel,
		now:         time.Now,
		loc:         loc,
		logger:      logger.With("component", "dispatcher"),
	}
	if summarizer != nil {
		d.summaries = newSummaryRefresher(mem, transcripts, summarizer, logger)
	}
	return d
}

// HandleInbound processes one normalized inbound message. A panic inside
// the pipeline is recovered and answered with a generic failure notice so
// one bad message never takes down the receive loop.
func (d *Dispatcher) HandleInbound(ctx context.Context, msg *channels.IncomingMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic handling message", "chat", msg.ChatID, "panic", r)
			d.reply(ctx, msg, noticeGenericFailure)
		}
	}()

	if msg.FromSelf {
		return
	}

	if msg.Type == channels.MessageReaction {
		d.handleReaction(ctx, msg)
		return
	}

	if strings.TrimSpace(msg.Content) == "" {
		return
	}

	// Group messages must address the bot; everything else is ignored
	// without any side effects.
	if msg.IsGroup && !d.addressed(ctx, msg) {
		return
	}

	// In a group the acting identity is the sender; in a direct chat the
	// chat id is the identity.
	userID := msg.ChatID
	if msg.IsGroup {
		userID = msg.From
	}

	user, err := d.mem.GetOrCreate(ctx, userID)
	if err != nil {
		d.logger.Error("memory lookup failed", "user", userID, "error", err)
		d.reply(ctx, msg, noticeGenericFailure)
		return
	}

	// Group chat features need a direct chat for deferred delivery; nudge
	// the sender by DM once per group until they say hi. The group message
	// itself is still processed.
	if msg.IsGroup {
		d.promptGroupSetup(ctx, msg.ChatID, userID, user)
	}

	text := d.stripMentions(msg.Content, personaName(user, d.defaultName))

	res := d.classifier.Classify(intent.Input{
		Text:       text,
		Memory:     user,
		SenderName: msg.FromName,
		Now:        d.now().In(d.loc),
	})

	for _, f := range res.Facts {
		if err := d.mem.SetFact(ctx, userID, f.Key, f.Value); err != nil {
			d.logger.Warn("fact write failed", "user", userID, "key", f.Key, "error", err)
		}
	}

	d.execute(ctx, msg, userID, user, text, res.Action)
}

// execute performs the classified action and its side effects.
func (d *Dispatcher) execute(ctx context.Context, msg *channels.IncomingMessage, userID string, user *memory.User, text string, action intent.Action) {
	d.logger.Debug("action classified",
		"chat", msg.ChatID, "user", userID, "kind", action.Kind.String())

	switch action.Kind {
	case intent.ActionIgnore:
		return

	case intent.ActionSetName:
		if err := d.mem.SetName(ctx, userID, action.Name); err != nil {
			d.logger.Error("rename failed", "user", userID, "error", err)
			d.reply(ctx, msg, noticeGenericFailure)
			return
		}
		d.reply(ctx, msg, fmt.Sprintf("Okay, I'll go by %s now!", action.Name))

	case intent.ActionReplyLiteral:
		d.reply(ctx, msg, action.Text)
		d.record(ctx, msg.ChatID, userID, text, action.Text)

	case intent.ActionDefer:
		job := &schedule.Job{
			ChatID:   msg.ChatID,
			UserID:   userID,
			Payload:  action.Payload,
			FireTime: action.FireTime,
		}
		if err := d.jobs.Add(ctx, job); err != nil {
			d.logger.Error("job enqueue failed", "user", userID, "error", err)
			d.reply(ctx, msg, noticeGenericFailure)
			return
		}
		ack := fmt.Sprintf("Got it%s, I'll remind you at %s to: %s",
			nameSuffix(msg.FromName),
			action.FireTime.In(d.loc).Format("3:04pm on Monday, Jan 2"),
			action.Payload)
		d.reply(ctx, msg, ack)
		d.record(ctx, msg.ChatID, userID, text, ack)

	case intent.ActionReplyVoice:
		d.replyVoice(ctx, msg, userID, user, text, action.Prompt)

	case intent.ActionReplyImage:
		path, err := d.imager.Synthesize(ctx, action.Prompt)
		if err != nil {
			d.logger.Error("image synthesis failed", "user", userID, "error", err)
			d.reply(ctx, msg, noticeImageFailure)
			return
		}
		defer os.Remove(path)
		if err := d.channel.SendImage(ctx, msg.ChatID, path, "", msg.ID); err != nil {
			d.logger.Error("image send failed", "chat", msg.ChatID, "error", err)
			d.reply(ctx, msg, noticeImageFailure)
			return
		}
		d.record(ctx, msg.ChatID, userID, text, "[image]")

	case intent.ActionReply:
		reply, err := d.generator.Generate(ctx, action.Prompt, user)
		if err != nil {
			d.logger.Error("reply generation failed", "user", userID, "error", err)
			d.reply(ctx, msg, noticeGenericFailure)
			return
		}
		d.reply(ctx, msg, reply)
		d.record(ctx, msg.ChatID, userID, text, reply)
	}
}

// replyVoice generates a reply and delivers it as voice notes. Replies too
// long for a voice note fall back to plain text.
func (d *Dispatcher) replyVoice(ctx context.Context, msg *channels.IncomingMessage, userID string, user *memory.User, text, prompt string) {
	reply, err := d.generator.Generate(ctx, prompt, user)
	if err != nil {
		d.logger.Error("voice reply generation failed", "user", userID, "error", err)
		d.reply(ctx, msg, noticeVoiceFailure)
		return
	}

	paths, err := d.voice.SynthesizeFiles(ctx, reply)
	if err != nil {
		if errors.Is(err, tts.ErrTextTooLong) {
			d.reply(ctx, msg, reply)
			d.record(ctx, msg.ChatID, userID, text, reply)
			return
		}
		d.logger.Error("voice synthesis failed", "user", userID, "error", err)
		d.reply(ctx, msg, noticeVoiceFailure)
		return
	}

	for _, path := range paths {
		if err := d.channel.SendVoice(ctx, msg.ChatID, path, msg.ID); err != nil {
			d.logger.Error("voice send failed", "chat", msg.ChatID, "error", err)
			d.reply(ctx, msg, noticeVoiceFailure)
			removeFiles(paths)
			return
		}
	}
	removeFiles(paths)
	d.record(ctx, msg.ChatID, userID, text, reply)
}

// record appends a transcript entry and kicks off an asynchronous summary
// refresh. Neither failure reaches the user.
func (d *Dispatcher) record(ctx context.Context, chatID, userID, text, response string) {
	err := d.transcripts.Append(ctx, memory.TranscriptEntry{
		ChatID:    chatID,
		UserID:    userID,
		Text:      text,
		Response:  response,
		Timestamp: d.now(),
	})
	if err != nil {
		d.logger.Warn("transcript append failed", "user", userID, "error", err)
	}
	if d.summaries != nil {
		d.summaries.Refresh(userID)
	}
}

// addressed applies the group engagement gate. Checks run in order: raw
// ID mentions, persona-name mention, reply-to-bot, mentions inside the
// quoted message. Reads memory without creating a record.
func (d *Dispatcher) addressed(ctx context.Context, msg *channels.IncomingMessage) bool {
	selfID := d.channel.SelfID()

	for _, m := range msg.Mentions {
		if sameUser(m, selfID) {
			return true
		}
	}

	name := d.defaultName
	if user, err := d.mem.Get(ctx, msg.From); err == nil && user != nil && user.Name != "" {
		name = user.Name
	}
	if nameMentionPattern(name).MatchString(msg.Content) {
		return true
	}

	if msg.QuotedFromSelf {
		return true
	}

	for _, m := range msg.QuotedMentions {
		if sameUser(m, selfID) {
			return true
		}
	}

	return false
}

// stripMentions removes numeric mention tokens and persona-name mention
// tokens, collapsing the remaining whitespace. Runs before classification
// so scheduling extraction sees clean text.
func (d *Dispatcher) stripMentions(text, name string) string {
	text = reNumericMention.ReplaceAllString(text, "")
	text = nameMentionPattern(name).ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// reply sends text into the originating chat quoting the triggering
// message, logging failures.
func (d *Dispatcher) reply(ctx context.Context, msg *channels.IncomingMessage, content string) {
	err := d.channel.Send(ctx, msg.ChatID, &channels.OutgoingMessage{
		Content: content,
		ReplyTo: msg.ID,
	})
	if err != nil {
		d.logger.Error("send failed", "chat", msg.ChatID, "error", err)
	}
}

// sendText delivers a plain text message with no quote context. Reaction
// replies use it since a reaction event is not a quotable message.
func (d *Dispatcher) sendText(ctx context.Context, chatID, content string) {
	err := d.channel.Send(ctx, chatID, &channels.OutgoingMessage{Content: content})
	if err != nil {
		d.logger.Error("send failed", "chat", chatID, "error", err)
	}
}

// ---------- Helpers ----------

// personaName returns the user's persona name or the configured default.
func personaName(user *memory.User, def string) string {
	if user != nil && user.Name != "" {
		return user.Name
	}
	return def
}

// nameMentionPattern matches "@<name>" case-insensitively on a word
// boundary.
func nameMentionPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(name) + `\b`)
}

// sameUser compares two JID strings on their user part, ignoring server
// and device suffixes.
func sameUser(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return jidUser(a) == jidUser(b)
}

// jidUser extracts the user part of a JID string ("123:5@s.whatsapp.net"
// yields "123").
func jidUser(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}

// nameSuffix formats an optional " <name>" fragment.
func nameSuffix(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return " " + name
}

func removeFiles(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
