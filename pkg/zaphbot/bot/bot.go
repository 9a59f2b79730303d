// Package bot assembles the stores, providers, transport, dispatcher and
// delivery scheduler into a running service.
package bot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/channels"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/channels/whatsapp"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/intent"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/providers"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/schedule"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/store"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/timeparse"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/tts"
)

// Bot is the running service: one transport, one dispatcher, one delivery
// scheduler, all over a shared SQLite database.
type Bot struct {
	cfg    *Config
	logger *slog.Logger

	db         *sql.DB
	channel    *whatsapp.WhatsApp
	dispatcher *Dispatcher
	scheduler  *schedule.Scheduler

	cancel context.CancelFunc
}

// New wires a Bot from config. Nothing connects until Start.
func New(cfg *Config, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	loc := time.Local
	if cfg.Bot.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Bot.Timezone)
		if err != nil {
			logger.Warn("invalid timezone, using host zone",
				"timezone", cfg.Bot.Timezone, "error", err)
			loc = time.Local
		}
	}

	memStore := memory.NewSQLiteStore(db)
	jobStore := schedule.NewSQLiteStore(db)

	ai := providers.NewOpenAI(providers.OpenAIOptions{
		APIKey:     cfg.API.APIKey,
		BaseURL:    cfg.API.BaseURL,
		ChatModel:  cfg.API.ChatModel,
		ImageModel: cfg.API.ImageModel,
	}, logger)

	ttsProvider, ttsVoice := buildTTSProvider(cfg, logger)
	voice := tts.NewSynthesizer(ttsProvider, ttsVoice, cfg.TTS.Dir, logger)

	wa := whatsapp.New(cfg.WhatsApp, logger)

	classifier := intent.NewClassifier(intent.DateParserFunc(timeparse.Parse))

	dispatcher := NewDispatcher(
		cfg.Bot.Name,
		memStore, memStore, jobStore,
		classifier,
		ai, ai, voice,
		wa,
		ai,
		loc,
		logger,
	)

	send := func(ctx context.Context, chatID, text string) error {
		return wa.Send(ctx, chatID, &channels.OutgoingMessage{Content: text})
	}
	scheduler := schedule.New(jobStore, send, ai, memStore, cfg.Scheduler.PollInterval, logger)

	return &Bot{
		cfg:        cfg,
		logger:     logger.With("component", "bot"),
		db:         db,
		channel:    wa,
		dispatcher: dispatcher,
		scheduler:  scheduler,
	}, nil
}

// Start connects the transport, starts the delivery scheduler and begins
// processing inbound messages. Returns once everything is running.
func (b *Bot) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	if err := b.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connecting whatsapp: %w", err)
	}

	if err := b.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	go b.receiveLoop(ctx)

	b.logger.Info("bot running", "name", b.cfg.Bot.Name)
	return nil
}

// Stop shuts everything down in reverse order.
func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.scheduler.Stop()
	_ = b.channel.Disconnect()
	if err := b.db.Close(); err != nil {
		b.logger.Warn("closing database", "error", err)
	}
	b.logger.Info("bot stopped")
}

// receiveLoop drains the transport. Each message is handled in its own
// goroutine so a slow provider call never blocks the queue; HandleInbound
// recovers its own panics.
func (b *Bot) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.channel.Receive():
			if !ok {
				return
			}
			go b.dispatcher.HandleInbound(ctx, msg)
		}
	}
}

// buildTTSProvider picks the speech backend per config and the voice to
// hand it. "auto" prefers OpenAI and falls back to Edge.
func buildTTSProvider(cfg *Config, logger *slog.Logger) (tts.Provider, string) {
	switch cfg.TTS.Provider {
	case "openai":
		return tts.NewOpenAIProvider(cfg.API.APIKey, cfg.API.BaseURL, ""), cfg.TTS.Voice
	case "edge":
		return tts.NewEdgeProvider(logger), cfg.TTS.EdgeVoice
	default:
		// Empty voice lets the fallback apply its per-backend defaults.
		return tts.NewFallbackProvider(
			tts.NewOpenAIProvider(cfg.API.APIKey, cfg.API.BaseURL, ""),
			tts.NewEdgeProvider(logger),
			cfg.TTS.Voice,
			cfg.TTS.EdgeVoice,
			logger,
		), ""
	}
}
