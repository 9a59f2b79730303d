package intent

import (
	"testing"
	"time"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/timeparse"
)

// ref is Wednesday, March 4 2026, 10:00 local.
var ref = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestClassifier() *Classifier {
	return NewClassifier(DateParserFunc(timeparse.Parse))
}

func TestClassifyRename(t *testing.T) {
	c := newTestClassifier()

	t.Run("captures the new name", func(t *testing.T) {
		res := c.Classify(Input{Text: "your name is now Skippy", Now: ref})
		if res.Action.Kind != ActionSetName {
			t.Fatalf("kind = %s, want set_name", res.Action.Kind)
		}
		if res.Action.Name != "Skippy" {
			t.Errorf("name = %q, want %q", res.Action.Name, "Skippy")
		}
	})

	t.Run("trims trailing punctuation", func(t *testing.T) {
		res := c.Classify(Input{Text: "Your name is now Max!", Now: ref})
		if res.Action.Kind != ActionSetName || res.Action.Name != "Max" {
			t.Errorf("got kind=%s name=%q, want set_name/Max", res.Action.Kind, res.Action.Name)
		}
	})

	t.Run("rename wins over scheduling cue in the name", func(t *testing.T) {
		res := c.Classify(Input{Text: "your name is now Reminder", Now: ref})
		if res.Action.Kind != ActionSetName {
			t.Errorf("kind = %s, want set_name", res.Action.Kind)
		}
	})
}

func TestClassifySchedule(t *testing.T) {
	c := newTestClassifier()

	t.Run("explicit clock time defers with stripped payload", func(t *testing.T) {
		res := c.Classify(Input{Text: "remind me to call mom tomorrow at 3pm", Now: ref})
		if res.Action.Kind != ActionDefer {
			t.Fatalf("kind = %s, want defer", res.Action.Kind)
		}
		if res.Action.Payload != "call mom" {
			t.Errorf("payload = %q, want %q", res.Action.Payload, "call mom")
		}
		want := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
		if !res.Action.FireTime.Equal(want) {
			t.Errorf("fire time = %v, want %v", res.Action.FireTime, want)
		}
	})

	t.Run("day without clock time asks for a default", func(t *testing.T) {
		res := c.Classify(Input{Text: "remind me tomorrow to water the plants", SenderName: "Ana", Now: ref})
		if res.Action.Kind != ActionReplyLiteral {
			t.Fatalf("kind = %s, want reply_literal", res.Action.Kind)
		}
		if res.Action.Text != "Sure Ana! Should I remind you at 9am?" {
			t.Errorf("text = %q", res.Action.Text)
		}
	})

	t.Run("no sender name still reads naturally", func(t *testing.T) {
		res := c.Classify(Input{Text: "remind me tomorrow", Now: ref})
		if res.Action.Text != "Sure! Should I remind you at 9am?" {
			t.Errorf("text = %q", res.Action.Text)
		}
	})

	t.Run("cue without time expression falls through to reply", func(t *testing.T) {
		res := c.Classify(Input{Text: "did you send the photos", Now: ref})
		if res.Action.Kind != ActionReply {
			t.Errorf("kind = %s, want reply", res.Action.Kind)
		}
	})

	t.Run("send verb defers too", func(t *testing.T) {
		res := c.Classify(Input{Text: "send the report in 30 minutes", Now: ref})
		if res.Action.Kind != ActionDefer {
			t.Fatalf("kind = %s, want defer", res.Action.Kind)
		}
		if res.Action.Payload != "the report" {
			t.Errorf("payload = %q, want %q", res.Action.Payload, "the report")
		}
		if !res.Action.FireTime.Equal(ref.Add(30 * time.Minute)) {
			t.Errorf("fire time = %v", res.Action.FireTime)
		}
	})
}

func TestClassifyVoiceAndImage(t *testing.T) {
	c := newTestClassifier()

	t.Run("voice prefix", func(t *testing.T) {
		res := c.Classify(Input{Text: "voice: tell me a joke", Now: ref})
		if res.Action.Kind != ActionReplyVoice {
			t.Fatalf("kind = %s, want reply_voice", res.Action.Kind)
		}
		if res.Action.Prompt != "tell me a joke" {
			t.Errorf("prompt = %q", res.Action.Prompt)
		}
	})

	t.Run("voice prefix is case-insensitive", func(t *testing.T) {
		res := c.Classify(Input{Text: "Voice: good morning", Now: ref})
		if res.Action.Kind != ActionReplyVoice {
			t.Errorf("kind = %s, want reply_voice", res.Action.Kind)
		}
	})

	t.Run("draw prefix", func(t *testing.T) {
		res := c.Classify(Input{Text: "draw: a cat astronaut", Now: ref})
		if res.Action.Kind != ActionReplyImage {
			t.Fatalf("kind = %s, want reply_image", res.Action.Kind)
		}
		if res.Action.Prompt != "a cat astronaut" {
			t.Errorf("prompt = %q, want %q", res.Action.Prompt, "a cat astronaut")
		}
	})

	t.Run("generate image prefix", func(t *testing.T) {
		res := c.Classify(Input{Text: "generate image: a red bridge at dawn", Now: ref})
		if res.Action.Kind != ActionReplyImage {
			t.Fatalf("kind = %s, want reply_image", res.Action.Kind)
		}
		if res.Action.Prompt != "a red bridge at dawn" {
			t.Errorf("prompt = %q", res.Action.Prompt)
		}
	})
}

func TestClassifyDefaultAndIgnore(t *testing.T) {
	c := newTestClassifier()

	t.Run("plain text goes to the generator", func(t *testing.T) {
		res := c.Classify(Input{Text: "what's the capital of France?", Now: ref})
		if res.Action.Kind != ActionReply {
			t.Fatalf("kind = %s, want reply", res.Action.Kind)
		}
		if res.Action.Prompt != "what's the capital of France?" {
			t.Errorf("prompt = %q", res.Action.Prompt)
		}
	})

	t.Run("empty text is ignored", func(t *testing.T) {
		res := c.Classify(Input{Text: "   ", Now: ref})
		if res.Action.Kind != ActionIgnore {
			t.Errorf("kind = %s, want ignore", res.Action.Kind)
		}
	})
}

func TestFactCapture(t *testing.T) {
	c := newTestClassifier()

	t.Run("podcast mention records a fact and still replies", func(t *testing.T) {
		res := c.Classify(Input{Text: "I was on a podcast yesterday", Now: ref})
		if len(res.Facts) != 1 || res.Facts[0].Key != "podcast" {
			t.Fatalf("facts = %+v, want one podcast fact", res.Facts)
		}
		if res.Action.Kind != ActionReply {
			t.Errorf("kind = %s, want reply", res.Action.Kind)
		}
	})

	t.Run("facts attach to non-default actions too", func(t *testing.T) {
		res := c.Classify(Input{Text: "remind me to edit the podcast tomorrow at 2pm", Now: ref})
		if len(res.Facts) != 1 || res.Facts[0].Key != "podcast" {
			t.Fatalf("facts = %+v, want one podcast fact", res.Facts)
		}
		if res.Action.Kind != ActionDefer {
			t.Errorf("kind = %s, want defer", res.Action.Kind)
		}
	})

	t.Run("no trigger no facts", func(t *testing.T) {
		res := c.Classify(Input{Text: "hello there", Now: ref})
		if len(res.Facts) != 0 {
			t.Errorf("facts = %+v, want none", res.Facts)
		}
	})
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"hola como estas", "es"},
		{"¿me puedes ayudar?", "es"},
		{"bonjour mon ami", "fr"},
		{"merci beaucoup", "fr"},
		{"hello how are you", "en"},
		{"", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := DetectLanguage(tt.text); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
