package mcp

import (
	"context"
	"net/http"

	"github.com/discord-voice-agent/internal/logging"
	"github.com/discord-voice-agent/internal/voice"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// JoinInput is the argument bag for discord_voice_join.
type JoinInput struct {
	GuildID         string `json:"guild_id" jsonschema:"required,Guild hosting the voice channel."`
	RequesterUserID string `json:"requester_user_id" jsonschema:"required,User asking the bot to join."`
	ChannelID       string `json:"channel_id,omitempty" jsonschema:"Voice channel to join. Defaults to the requester's current channel."`
}

// ListenInput is the argument bag for discord_voice_listen_turn. Timing
// overrides are optional and clamped to sane bounds.
type ListenInput struct {
	GuildID         string `json:"guild_id" jsonschema:"required,Guild with an active voice session."`
	RequesterUserID string `json:"requester_user_id" jsonschema:"required,User asking the bot to listen."`
	ListenWindowMs  int64  `json:"listen_window_ms,omitempty" jsonschema:"How long to wait for speech to start, in milliseconds."`
	ChunkGapMs      int64  `json:"chunk_gap_ms,omitempty" jsonschema:"Silence gap that ends a turn, in milliseconds."`
	MaxTurnMs       int64  `json:"max_turn_ms,omitempty" jsonschema:"Hard cap on turn duration, in milliseconds."`
}

// LeaveInput is the argument bag for discord_voice_leave.
type LeaveInput struct {
	GuildID         string `json:"guild_id" jsonschema:"required,Guild with an active voice session."`
	RequesterUserID string `json:"requester_user_id" jsonschema:"required,User asking the bot to leave."`
}

// NewVoiceToolServer builds an MCP server exposing the three voice tools
// backed by the manager.
func NewVoiceToolServer(manager *voice.Manager, name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "discord_voice_join",
		Description: "Join a voice channel and start capturing audio. Without channel_id the bot joins the requester's current channel. Only allowlisted channels are permitted.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input JoinInput) (*mcp.CallToolResult, any, error) {
		status, err := manager.JoinForRequester(ctx, input.GuildID, input.RequesterUserID, voice.JoinArgs{ChannelID: input.ChannelID})
		if err != nil {
			return nil, nil, err
		}
		return textResult(status), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "discord_voice_listen_turn",
		Description: "Capture one speaking turn from the current voice channel, transcribe it, and reply aloud. Blocks until the turn completes or the listen window expires.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ListenInput) (*mcp.CallToolResult, any, error) {
		status, err := manager.ListenAndRespondForRequester(ctx, input.GuildID, input.RequesterUserID, voice.ListenArgs{
			ListenWindowMs: input.ListenWindowMs,
			ChunkGapMs:     input.ChunkGapMs,
			MaxTurnMs:      input.MaxTurnMs,
		})
		if err != nil {
			return nil, nil, err
		}
		return textResult(status), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "discord_voice_leave",
		Description: "Disconnect from the guild's voice channel and drop its capture session. The requester must be in the bot's channel.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input LeaveInput) (*mcp.CallToolResult, any, error) {
		status, err := manager.LeaveForRequester(ctx, input.GuildID, input.RequesterUserID)
		if err != nil {
			return nil, nil, err
		}
		return textResult(status), nil, nil
	})

	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Handler serves the MCP server over websocket at /mcp/ws plus a trivial
// /health endpoint.
func Handler(server *mcp.Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/mcp/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp: ws upgrade failed", "err", err)
			return
		}
		t := NewWebSocketTransport(conn)
		go func() {
			session, err := server.Connect(context.Background(), t, nil)
			if err != nil {
				logging.Warnw("mcp: server connect error", "err", err)
				return
			}
			if err := session.Wait(); err != nil {
				logging.Infow("mcp: session ended with error", "err", err)
			} else {
				logging.Infow("mcp: session ended")
			}
		}()
	})
	return mux
}
