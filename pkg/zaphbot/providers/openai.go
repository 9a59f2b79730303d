package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/intent"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
)

// ErrEmptyCompletion is returned when the API answers with no choices.
var ErrEmptyCompletion = errors.New("openai: empty completion")

// OpenAIOptions configures an OpenAI-backed provider set.
type OpenAIOptions struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string

	// BaseURL overrides the API endpoint for compatible gateways.
	// Empty means the default endpoint.
	BaseURL string

	// ChatModel is the model used for replies and summaries.
	ChatModel string

	// ImageModel is the model used for image synthesis.
	ImageModel string

	// ImageDir is where synthesized images are written. Empty means
	// the system temp directory.
	ImageDir string
}

// OpenAI implements ReplyGenerator, Summarizer and ImageSynthesizer over
// the OpenAI chat and image APIs.
type OpenAI struct {
	client     *openai.Client
	chatModel  string
	imageModel string
	imageDir   string
	logger     *slog.Logger
}

// NewOpenAI builds a provider set from options.
func NewOpenAI(opts OpenAIOptions, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	chatModel := opts.ChatModel
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = openai.CreateImageModelDallE3
	}
	imageDir := opts.ImageDir
	if imageDir == "" {
		imageDir = os.TempDir()
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(cfg),
		chatModel:  chatModel,
		imageModel: imageModel,
		imageDir:   imageDir,
		logger:     logger.With("component", "providers.openai"),
	}
}

// Generate produces a reply for prompt, conditioned on the user's memory.
func (o *OpenAI) Generate(ctx context.Context, prompt string, mem *memory.User) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction(prompt, mem)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Summarize condenses a transcript into a few sentences.
func (o *OpenAI) Summarize(ctx context.Context, conversation string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Summarize the following conversation in a few short sentences. Keep names, commitments and preferences. Output only the summary.",
			},
			{Role: openai.ChatMessageRoleUser, Content: conversation},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Synthesize renders prompt to a PNG on disk and returns the file path.
func (o *OpenAI) Synthesize(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Model:          o.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("image request: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", ErrEmptyCompletion
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return "", fmt.Errorf("decode image payload: %w", err)
	}
	path := filepath.Join(o.imageDir, "img_"+uuid.NewString()+".png")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	o.logger.Debug("image synthesized", "path", path, "bytes", len(raw))
	return path, nil
}

// systemInstruction assembles the steering prompt from the user's memory.
// Replies follow the detected language of the incoming text.
func systemInstruction(prompt string, mem *memory.User) string {
	var b strings.Builder
	name := "zaphar"
	if mem != nil && mem.Name != "" {
		name = mem.Name
	}
	fmt.Fprintf(&b, "You are %s, a helpful assistant chatting over WhatsApp. Keep replies short and conversational.", name)
	if mem != nil {
		if len(mem.Facts) > 0 {
			keys := make([]string, 0, len(mem.Facts))
			for k := range mem.Facts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(&b, " Known things about this user: %s.", strings.Join(keys, ", "))
		}
		if mem.Summary != "" {
			fmt.Fprintf(&b, " Conversation so far: %s", mem.Summary)
		}
	}
	switch intent.DetectLanguage(prompt) {
	case "es":
		b.WriteString(" Answer in Spanish.")
	case "fr":
		b.WriteString(" Answer in French.")
	}
	return b.String()
}
