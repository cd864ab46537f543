package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/discord-voice-agent/internal/logging"
	mcpserver "github.com/discord-voice-agent/internal/mcp"
	"github.com/discord-voice-agent/internal/voice"
	"github.com/discord-voice-agent/llm"
)

func main() {
	// Best-effort .env load so local runs don't need exported vars.
	_ = godotenv.Load()

	sugar := logging.Init()
	if sugar == nil {
		l, _ := zap.NewProduction()
		defer l.Sync()
		sugar = l.Sugar()
	}

	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		sugar.Fatal("DISCORD_BOT_TOKEN required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		sugar.Fatalf("discordgo.New: %v", err)
	}

	// Guilds + GuildVoiceStates are sufficient to track who is in which
	// voice channel.
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	sugar.Infow("using gateway intents", "intents", dg.Identify.Intents)

	config := voice.ConfigFromEnv()
	if len(config.Allowlist) == 0 {
		sugar.Warnw("VOICE_ALLOWLIST is empty; every voice request will be rejected")
	}

	manager := voice.NewManager(
		config,
		voice.NewSTTClient(config.STTBaseURL, config.STTAPIKey, config.STTModel),
		voice.NewTTSClient(config.STTBaseURL, config.STTAPIKey, config.TTSModel, config.TTSVoice),
	)

	dg.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		guildID, err := strconv.ParseUint(vs.GuildID, 10, 64)
		if err != nil {
			return
		}
		userID, err := strconv.ParseUint(vs.UserID, 10, 64)
		if err != nil {
			return
		}
		// ChannelID is empty when the user leaves voice entirely.
		var channelID uint64
		if vs.ChannelID != "" {
			channelID, err = strconv.ParseUint(vs.ChannelID, 10, 64)
			if err != nil {
				return
			}
		}
		manager.UpdateUserVoiceState(guildID, userID, channelID)
	})

	sugar.Infow("opening discord session")
	if err := dg.Open(); err != nil {
		sugar.Fatalf("discord session open failed: %v", err)
	}
	sugar.Infow("discord session opened")

	manager.Configure(voice.NewDiscordTransport(dg), llm.NewVoiceResponder(llm.NewClientFromEnv()))

	ctx, cancel := context.WithCancel(context.Background())
	manager.StartIdleReaper(ctx)
	manager.StartArchiveCleaner(ctx)

	port := os.Getenv("MCP_PORT")
	if port == "" {
		port = "9001"
	}
	toolServer := mcpserver.NewVoiceToolServer(manager, "discord-voice-agent", "v0.1.0")
	httpServer := &http.Server{Addr: ":" + port, Handler: mcpserver.Handler(toolServer)}
	go func() {
		sugar.Infow("mcp tool server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("mcp tool server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Infow("shutdown signal received, closing resources")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("mcp server shutdown error: %v", err)
	}
	if err := dg.Close(); err != nil {
		sugar.Warnf("discord session close error: %v", err)
	}

	if l := zap.L(); l != nil {
		_ = l.Sync()
	}
	sugar.Info("shutdown complete")
}
