package providers

import (
	"strings"
	"testing"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
)

func TestSystemInstruction(t *testing.T) {
	t.Run("default persona without memory", func(t *testing.T) {
		got := systemInstruction("hello", nil)
		if !strings.Contains(got, "You are zaphar,") {
			t.Errorf("instruction = %q", got)
		}
	})

	t.Run("renamed persona", func(t *testing.T) {
		mem := &memory.User{Name: "Skippy"}
		got := systemInstruction("hello", mem)
		if !strings.Contains(got, "You are Skippy,") {
			t.Errorf("instruction = %q", got)
		}
	})

	t.Run("facts are listed in stable order", func(t *testing.T) {
		mem := &memory.User{Facts: map[string]any{"podcast": true, "city": "lisbon"}}
		got := systemInstruction("hello", mem)
		if !strings.Contains(got, "Known things about this user: city, podcast.") {
			t.Errorf("instruction = %q", got)
		}
	})

	t.Run("summary is carried into the prompt", func(t *testing.T) {
		mem := &memory.User{Summary: "likes hiking"}
		got := systemInstruction("hello", mem)
		if !strings.Contains(got, "Conversation so far: likes hiking") {
			t.Errorf("instruction = %q", got)
		}
	})

	t.Run("spanish input asks for spanish replies", func(t *testing.T) {
		got := systemInstruction("hola, ¿puedes ayudarme?", nil)
		if !strings.Contains(got, "Answer in Spanish.") {
			t.Errorf("instruction = %q", got)
		}
	})

	t.Run("english input adds no language hint", func(t *testing.T) {
		got := systemInstruction("hello there", nil)
		if strings.Contains(got, "Answer in") {
			t.Errorf("instruction = %q", got)
		}
	})
}
