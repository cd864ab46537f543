package voice

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Timing bounds for per-call listen overrides. Values outside these ranges
// are clamped, never rejected.
const (
	minListenWindowMs = 1_000
	maxListenWindowMs = 60_000
	minChunkGapMs     = 100
	maxChunkGapMs     = 3_000

	// maxTTSInputChars bounds synthesis cost for a single reply.
	maxTTSInputChars = 4_000
	// toolResultTranscriptChars bounds the transcript echoed in tool results.
	toolResultTranscriptChars = 220
)

// ChannelPair identifies one allowlisted (guild, channel) combination.
type ChannelPair struct {
	GuildID   uint64
	ChannelID uint64
}

// RuntimeConfig carries the operator-controlled voice settings. Immutable
// after construction.
type RuntimeConfig struct {
	STTBaseURL string
	STTAPIKey  string
	STTModel   string
	TTSModel   string
	TTSVoice   string

	// Allowlist is the set of permitted (guild, channel) pairs. An empty set
	// permits nothing.
	Allowlist map[ChannelPair]struct{}

	IdleTimeout         time.Duration
	DefaultChunkGap     time.Duration
	DefaultListenWindow time.Duration
	DefaultMaxTurn      time.Duration

	// ArchiveDir, when non-empty, enables saving each transcribed turn as a
	// WAV plus JSON sidecar under this directory.
	ArchiveDir       string
	ArchiveRetention time.Duration
	ArchiveMaxFiles  int
}

// ParseAllowlist reads a comma-separated list of guild:channel pairs.
// Malformed entries are dropped so a bad value degrades to "nothing
// permitted" rather than crashing startup.
func ParseAllowlist(raw string) map[ChannelPair]struct{} {
	entries := make(map[ChannelPair]struct{})
	for _, pair := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(pair)
		if trimmed == "" {
			continue
		}
		parts := strings.Split(trimmed, ":")
		if len(parts) != 2 {
			continue
		}
		guildID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			continue
		}
		channelID, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			continue
		}
		entries[ChannelPair{GuildID: guildID, ChannelID: channelID}] = struct{}{}
	}
	return entries
}

// ConfigFromEnv builds a RuntimeConfig from the process environment.
func ConfigFromEnv() RuntimeConfig {
	return RuntimeConfig{
		STTBaseURL: envStr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		STTAPIKey:  os.Getenv("OPENAI_API_KEY"),
		STTModel:   envStr("OPENAI_STT_MODEL", "gpt-4o-mini-transcribe"),
		TTSModel:   envStr("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
		TTSVoice:   envStr("OPENAI_TTS_VOICE", "alloy"),

		Allowlist: ParseAllowlist(os.Getenv("VOICE_ALLOWLIST")),

		IdleTimeout:         time.Duration(envInt("VOICE_IDLE_TIMEOUT_SEC", 300)) * time.Second,
		DefaultChunkGap:     time.Duration(envInt("VOICE_CHUNK_GAP_MS", 700)) * time.Millisecond,
		DefaultListenWindow: time.Duration(envInt("VOICE_LISTEN_WINDOW_MS", 12_000)) * time.Millisecond,
		DefaultMaxTurn:      time.Duration(envInt("VOICE_MAX_TURN_MS", 12_000)) * time.Millisecond,

		ArchiveDir:       archiveDirFromEnv(),
		ArchiveRetention: time.Duration(envInt("SAVE_AUDIO_RETENTION_HOURS", 24)) * time.Hour,
		ArchiveMaxFiles:  envInt("SAVE_AUDIO_MAX_FILES", 500),
	}
}

func archiveDirFromEnv() string {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SAVE_AUDIO_ENABLED")), "true") {
		return ""
	}
	return envStr("SAVE_AUDIO_DIR", "./voice-archive")
}

func envStr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
