// Package tts converts reply text into voice-note audio files. Backends
// are pluggable: OpenAI speech (paid), Microsoft Edge read-aloud (free),
// or an auto mode that prefers OpenAI and falls back to Edge.
package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// ErrTextTooLong is returned when the input exceeds MaxTextLen.
var ErrTextTooLong = errors.New("tts: text too long for a voice note")

const (
	// MaxTextLen is the hard cap on voice-note input. Longer replies are
	// sent as plain text instead.
	MaxTextLen = 1000

	// chunkLen is the per-request size. Long text is split into chunks
	// and each chunk becomes its own audio file, sent in order.
	chunkLen = 200
)

// Provider is the interface for speech backends.
type Provider interface {
	// Synthesize converts text to audio.
	// Returns audio bytes, MIME type (e.g. "audio/ogg"), and error.
	Synthesize(ctx context.Context, text, voice string) ([]byte, string, error)
}

// ---------- OpenAI provider ----------

// OpenAIProvider synthesizes speech through the OpenAI audio API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI speech provider.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Synthesize converts text to Opus audio, the format WhatsApp expects
// for voice notes.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if voice == "" {
		voice = string(openai.VoiceNova)
	}
	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
	})
	if err != nil {
		return nil, "", fmt.Errorf("tts: speech request: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, "", fmt.Errorf("tts: reading audio: %w", err)
	}
	return audio, "audio/ogg", nil
}

// ---------- Edge provider ----------

// EdgeProvider synthesizes speech through Microsoft Edge's read-aloud
// service. Same Azure voices as the edge-tts Python package, reached via
// direct HTTP.
//
// Useful voices:
//   - en-US-JennyNeural (US English, female)
//   - en-US-GuyNeural (US English, male)
//   - es-ES-ElviraNeural (Spanish, female)
//   - fr-FR-DeniseNeural (French, female)
type EdgeProvider struct {
	client *http.Client
	logger *slog.Logger
}

// NewEdgeProvider creates an Edge speech provider.
func NewEdgeProvider(logger *slog.Logger) *EdgeProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &EdgeProvider{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("component", "edge-tts"),
	}
}

// edgeEndpoint is the Edge read-aloud synthesis endpoint.
const edgeEndpoint = "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/naturaltts/v1"

// Synthesize converts text to MP3 audio using Edge read-aloud.
func (p *EdgeProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if voice == "" {
		voice = "en-US-JennyNeural"
	}

	text = escapeXML(text)
	ssml := fmt.Sprintf(`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'><voice name='%s'><prosody pitch='+0Hz' rate='+0%%' volume='+0%%'>%s</prosody></voice></speak>`,
		voice, text)

	// Edge normally speaks WebSocket, but the REST endpoint used by the
	// Read Aloud feature works for one-shot synthesis.
	url := edgeEndpoint + "?TrustedClientToken=6A5AA1D4EAFF4E9FB37E23D68491D6F4&ConnectionId=gen&Enc=mp3&OutputFormat=audio-24khz-48kbitrate-mono-mp3"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(ssml))
	if err != nil {
		return nil, "", fmt.Errorf("edge-tts: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0")
	req.Header.Set("Origin", "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("edge-tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("edge-tts: HTTP %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("edge-tts: reading audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("edge-tts: empty audio response")
	}

	// Responses can carry binary framing ahead of the MP3 data.
	audio = stripEdgeFraming(audio)

	return audio, "audio/mpeg", nil
}

// stripEdgeFraming drops any framing bytes ahead of the MP3 sync word.
func stripEdgeFraming(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] == 0xFF && (data[i+1]&0xE0) == 0xE0 {
			return data[i:]
		}
	}
	// No sync word found. If the payload opens with a big-endian header
	// length, skip past it.
	if len(data) > 2 {
		headerLen := int(binary.BigEndian.Uint16(data[:2]))
		if headerLen > 0 && headerLen < len(data) {
			return data[headerLen:]
		}
	}
	return data
}

// escapeXML escapes special XML characters for SSML.
func escapeXML(text string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return r.Replace(text)
}

// ---------- Fallback provider ----------

// FallbackProvider tries the primary backend and falls back to the
// secondary when it fails.
type FallbackProvider struct {
	primary        Provider
	secondary      Provider
	primaryVoice   string
	secondaryVoice string
	logger         *slog.Logger
}

// NewFallbackProvider creates a provider that tries primary first.
func NewFallbackProvider(primary, secondary Provider, primaryVoice, secondaryVoice string, logger *slog.Logger) *FallbackProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackProvider{
		primary:        primary,
		secondary:      secondary,
		primaryVoice:   primaryVoice,
		secondaryVoice: secondaryVoice,
		logger:         logger.With("component", "tts-fallback"),
	}
}

// Synthesize tries the primary provider, then the secondary.
func (p *FallbackProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	primaryV := voice
	if primaryV == "" {
		primaryV = p.primaryVoice
	}
	audio, mime, err := p.primary.Synthesize(ctx, text, primaryV)
	if err == nil {
		return audio, mime, nil
	}

	p.logger.Warn("primary TTS failed, trying fallback", "error", err)

	secondaryV := p.secondaryVoice
	if secondaryV == "" {
		secondaryV = voice
	}
	return p.secondary.Synthesize(ctx, text, secondaryV)
}

// ---------- Synthesizer ----------

// Synthesizer turns reply text into one or more audio files on disk,
// splitting long text into sequential voice notes. Callers send the
// files in order and remove them afterwards.
type Synthesizer struct {
	provider Provider
	voice    string
	dir      string
	logger   *slog.Logger
}

// NewSynthesizer wraps a provider with chunking and file output.
// Empty dir means the system temp directory.
func NewSynthesizer(provider Provider, voice, dir string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &Synthesizer{
		provider: provider,
		voice:    voice,
		dir:      dir,
		logger:   logger.With("component", "tts"),
	}
}

// SynthesizeFiles renders text to audio files and returns their paths in
// speaking order. Returns ErrTextTooLong when text exceeds MaxTextLen.
func (s *Synthesizer) SynthesizeFiles(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("tts: empty text")
	}
	if len(text) > MaxTextLen {
		return nil, ErrTextTooLong
	}

	chunks := splitChunks(text, chunkLen)
	paths := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		audio, mime, err := s.provider.Synthesize(ctx, chunk, s.voice)
		if err != nil {
			removeAll(paths)
			return nil, fmt.Errorf("tts: synthesize chunk: %w", err)
		}
		path := filepath.Join(s.dir, "voice_"+uuid.NewString()+extForMIME(mime))
		if err := os.WriteFile(path, audio, 0o600); err != nil {
			removeAll(paths)
			return nil, fmt.Errorf("tts: write audio file: %w", err)
		}
		paths = append(paths, path)
	}
	s.logger.Debug("voice note synthesized", "chunks", len(paths), "chars", len(text))
	return paths, nil
}

// splitChunks breaks text into pieces of at most max bytes, preferring
// word boundaries. A single word longer than max is split mid-word.
func splitChunks(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var chunks []string
	var cur bytes.Buffer
	for _, word := range strings.Fields(text) {
		for len(word) > max {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			chunks = append(chunks, word[:max])
			word = word[max:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > max {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func extForMIME(mime string) string {
	switch mime {
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".ogg"
	}
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
