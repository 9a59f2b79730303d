// Package intent maps normalized message text plus user memory to a single
// Action. Classification is an ordered chain of (predicate, handler) rules
// evaluated first-match-wins; fact capture is a non-exclusive pre-step
// layered on top of whatever the chain produces. The classifier performs no
// I/O and never mutates its inputs — executing the Action is the
// dispatcher's job.
package intent

import (
	"regexp"
	"strings"
	"time"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/timeparse"
)

// ActionKind discriminates the Action variants.
type ActionKind int

const (
	// ActionIgnore means no response at all.
	ActionIgnore ActionKind = iota

	// ActionReply runs the reply generator on Prompt and sends the result.
	ActionReply

	// ActionReplyLiteral sends Text verbatim, no generation.
	ActionReplyLiteral

	// ActionReplyVoice runs the reply generator on Prompt and delivers the
	// result as voice notes.
	ActionReplyVoice

	// ActionReplyImage synthesizes an image from Prompt.
	ActionReplyImage

	// ActionSetName persists Name as the bot's persona name for this user.
	ActionSetName

	// ActionDefer enqueues Payload for delivery at FireTime.
	ActionDefer
)

// String returns the kind name for logging.
func (k ActionKind) String() string {
	switch k {
	case ActionIgnore:
		return "ignore"
	case ActionReply:
		return "reply"
	case ActionReplyLiteral:
		return "reply_literal"
	case ActionReplyVoice:
		return "reply_voice"
	case ActionReplyImage:
		return "reply_image"
	case ActionSetName:
		return "set_name"
	case ActionDefer:
		return "defer"
	default:
		return "unknown"
	}
}

// Action is the classified outcome for one message. Only the fields
// relevant to Kind are set.
type Action struct {
	Kind     ActionKind
	Prompt   string    // generation input (Reply, ReplyVoice, ReplyImage)
	Text     string    // literal response text (ReplyLiteral)
	Name     string    // new persona name (SetName)
	Payload  string    // deferred message text (Defer)
	FireTime time.Time // delivery time (Defer)
}

// Fact is a key/value annotation captured as a side effect of classification.
type Fact struct {
	Key   string
	Value any
}

// Result bundles the captured facts with the terminal action. Facts never
// suppress the action; they are persisted alongside it.
type Result struct {
	Facts  []Fact
	Action Action
}

// Input is one classification request.
type Input struct {
	// Text is the message with addressing tokens already stripped.
	Text string

	// Memory is the current snapshot for the acting user. May be nil.
	Memory *memory.User

	// SenderName is the sender's display name, used only to personalize
	// literal responses — never for branching.
	SenderName string

	// Now is the reference instant for date resolution.
	Now time.Time
}

// DateParser extracts time expressions from text relative to a reference
// instant. timeparse.Parse satisfies this.
type DateParser interface {
	Parse(text string, ref time.Time) []timeparse.Match
}

// DateParserFunc adapts a plain function to DateParser.
type DateParserFunc func(text string, ref time.Time) []timeparse.Match

// Parse implements DateParser.
func (f DateParserFunc) Parse(text string, ref time.Time) []timeparse.Match {
	return f(text, ref)
}

// rule is one link in the classification chain.
type rule struct {
	name  string
	apply func(c *Classifier, in Input) (Action, bool)
}

// Classifier holds the rule chain and the injected date extractor.
type Classifier struct {
	parser       DateParser
	rules        []rule
	factTriggers []factTrigger
}

// factTrigger records a fact when its pattern matches the message.
type factTrigger struct {
	key string
	re  *regexp.Regexp
}

// NewClassifier creates a classifier with the default rule chain and the
// built-in fact triggers.
func NewClassifier(parser DateParser) *Classifier {
	c := &Classifier{
		parser: parser,
		factTriggers: []factTrigger{
			{key: "podcast", re: regexp.MustCompile(`(?i)\bpodcast\b`)},
		},
	}
	c.rules = []rule{
		{"rename", (*Classifier).ruleRename},
		{"schedule", (*Classifier).ruleSchedule},
		{"voice", (*Classifier).ruleVoice},
		{"image", (*Classifier).ruleImage},
		{"default", (*Classifier).ruleDefault},
	}
	return c
}

// AddFactTrigger registers an extra fact-capture pattern.
func (c *Classifier) AddFactTrigger(key string, re *regexp.Regexp) {
	c.factTriggers = append(c.factTriggers, factTrigger{key: key, re: re})
}

// Classify runs the chain. Empty text yields Ignore; otherwise exactly one
// rule fires (the default rule always matches).
func (c *Classifier) Classify(in Input) Result {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return Result{Action: Action{Kind: ActionIgnore}}
	}

	var res Result
	for _, t := range c.factTriggers {
		if t.re.MatchString(in.Text) {
			res.Facts = append(res.Facts, Fact{Key: t.key, Value: true})
		}
	}

	for _, r := range c.rules {
		if action, ok := r.apply(c, in); ok {
			res.Action = action
			return res
		}
	}

	// Unreachable: ruleDefault always matches.
	res.Action = Action{Kind: ActionIgnore}
	return res
}

// ---------- Rules ----------

var (
	reRename      = regexp.MustCompile(`(?i)your name is now\s+(.+)`)
	reScheduleCue = regexp.MustCompile(`(?i)\b(send|remind)\b`)
	reVerbPhrase  = regexp.MustCompile(`(?i)^(send|remind)(\s+me)?(\s+to)?\b`)
	reVoice       = regexp.MustCompile(`(?i)^voice:\s*`)
	reImage       = regexp.MustCompile(`(?i)^(generate image:|draw:)\s*(.+)`)
)

// ruleRename matches "your name is now <X>".
func (c *Classifier) ruleRename(in Input) (Action, bool) {
	m := reRename.FindStringSubmatch(in.Text)
	if m == nil {
		return Action{}, false
	}
	name := strings.TrimRight(strings.TrimSpace(m[1]), ".!?,;: ")
	if name == "" {
		return Action{}, false
	}
	return Action{Kind: ActionSetName, Name: name}, true
}

// ruleSchedule matches scheduling cues ("send", "remind") and runs the date
// extractor. A time expression without an explicit clock time gets a
// confirmation prompt instead of a job; no expression at all falls through.
func (c *Classifier) ruleSchedule(in Input) (Action, bool) {
	if !reScheduleCue.MatchString(in.Text) {
		return Action{}, false
	}

	matches := c.parser.Parse(in.Text, in.Now)
	if len(matches) == 0 {
		return Action{}, false
	}
	m := matches[0]

	if !m.HasClockTime {
		return Action{
			Kind: ActionReplyLiteral,
			Text: "Sure" + nameSuffix(in.SenderName) + "! Should I remind you at 9am?",
		}, true
	}

	payload := strings.Replace(in.Text, m.Text, "", 1)
	payload = reVerbPhrase.ReplaceAllString(strings.TrimSpace(payload), "")
	payload = strings.TrimSpace(payload)

	return Action{Kind: ActionDefer, Payload: payload, FireTime: m.Time}, true
}

// ruleVoice matches the "voice:" prefix.
func (c *Classifier) ruleVoice(in Input) (Action, bool) {
	if !reVoice.MatchString(in.Text) {
		return Action{}, false
	}
	topic := strings.TrimSpace(reVoice.ReplaceAllString(in.Text, ""))
	return Action{Kind: ActionReplyVoice, Prompt: topic}, true
}

// ruleImage matches "generate image:" and "draw:" prefixes.
func (c *Classifier) ruleImage(in Input) (Action, bool) {
	m := reImage.FindStringSubmatch(in.Text)
	if m == nil {
		return Action{}, false
	}
	return Action{Kind: ActionReplyImage, Prompt: strings.TrimSpace(m[2])}, true
}

// ruleDefault sends everything else to the reply generator.
func (c *Classifier) ruleDefault(in Input) (Action, bool) {
	return Action{Kind: ActionReply, Prompt: in.Text}, true
}

// nameSuffix formats an optional " <name>" fragment for literal responses.
func nameSuffix(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return " " + name
}
