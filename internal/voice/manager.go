package voice

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-agent/internal/logging"
	"github.com/google/uuid"
)

// reaperInterval is how often the idle reaper sweeps sessions.
const reaperInterval = 30 * time.Second

type presenceKey struct {
	GuildID uint64
	UserID  uint64
}

// JoinArgs are the optional arguments for a join request. ChannelID, when
// non-empty, overrides the requester's current channel.
type JoinArgs struct {
	ChannelID string
}

// ListenArgs are the optional per-call timing overrides for a listen
// request. Zero means "use the configured default". All values are clamped
// to sane bounds before use.
type ListenArgs struct {
	ListenWindowMs int64
	ChunkGapMs     int64
	MaxTurnMs      int64
}

// Manager owns the per-guild voice sessions and drives the capture →
// transcribe → respond → synthesize → playback pipeline. It is constructed
// unconfigured; Configure must be called once with the transport and
// responder before any tool operation is accepted.
type Manager struct {
	config  RuntimeConfig
	stt     Transcriber
	tts     Synthesizer
	archive *TurnArchive

	sessionsMu sync.RWMutex
	sessions   map[uint64]*VoiceSession

	presenceMu sync.RWMutex
	presence   map[presenceKey]uint64

	collabMu  sync.RWMutex
	transport Transport
	responder Responder
}

func NewManager(config RuntimeConfig, stt Transcriber, tts Synthesizer) *Manager {
	return &Manager{
		config:   config,
		stt:      stt,
		tts:      tts,
		archive:  NewTurnArchive(config.ArchiveDir),
		sessions: make(map[uint64]*VoiceSession),
		presence: make(map[presenceKey]uint64),
	}
}

// Configure installs the late-bound collaborators. Called once at startup;
// the handles are treated as read-only afterwards.
func (m *Manager) Configure(transport Transport, responder Responder) {
	m.collabMu.Lock()
	m.transport = transport
	m.responder = responder
	m.collabMu.Unlock()
}

func (m *Manager) transportHandle() (Transport, error) {
	m.collabMu.RLock()
	defer m.collabMu.RUnlock()
	if m.transport == nil {
		return nil, fmt.Errorf("%w: transport not set", ErrNotConfigured)
	}
	return m.transport, nil
}

func (m *Manager) responderHandle() (Responder, error) {
	m.collabMu.RLock()
	defer m.collabMu.RUnlock()
	if m.responder == nil {
		return nil, fmt.Errorf("%w: responder not set", ErrNotConfigured)
	}
	return m.responder, nil
}

// UpdateUserVoiceState maintains the presence map from inbound voice-state
// events. channelID 0 means the user left voice entirely. Pure bookkeeping;
// no authorization happens here.
func (m *Manager) UpdateUserVoiceState(guildID, userID, channelID uint64) {
	m.presenceMu.Lock()
	defer m.presenceMu.Unlock()
	key := presenceKey{GuildID: guildID, UserID: userID}
	if channelID == 0 {
		delete(m.presence, key)
		return
	}
	m.presence[key] = channelID
}

func (m *Manager) presentChannel(guildID, userID uint64) (uint64, bool) {
	m.presenceMu.RLock()
	defer m.presenceMu.RUnlock()
	channelID, ok := m.presence[presenceKey{GuildID: guildID, UserID: userID}]
	return channelID, ok
}

func (m *Manager) sessionFor(guildID uint64) (*VoiceSession, bool) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	session, ok := m.sessions[guildID]
	return session, ok
}

// JoinForRequester connects the bot to a voice channel on behalf of the
// requesting user and installs a fresh capture session for the guild.
func (m *Manager) JoinForRequester(ctx context.Context, guildIDRaw, requesterIDRaw string, args JoinArgs) (string, error) {
	guildID, err := parseID(guildIDRaw, "guild_id")
	if err != nil {
		return "", err
	}
	requesterID, err := parseID(requesterIDRaw, "requester_user_id")
	if err != nil {
		return "", err
	}

	var channelID uint64
	if args.ChannelID != "" {
		channelID, err = parseID(args.ChannelID, "channel_id")
		if err != nil {
			return "", err
		}
	} else {
		current, ok := m.presentChannel(guildID, requesterID)
		if !ok {
			return "", ErrNotInVoice
		}
		channelID = current
	}

	if err := m.ensureAllowlisted(guildID, channelID); err != nil {
		return "", err
	}

	transport, err := m.transportHandle()
	if err != nil {
		return "", err
	}
	call, err := transport.Join(ctx, guildID, channelID)
	if err != nil {
		return "", fmt.Errorf("%w: failed to join channel %d in guild %d: %v", ErrTransport, channelID, guildID, err)
	}

	session := NewVoiceSession(channelID)
	// Installing the sink replaces any listener left over from a prior join,
	// so an orphaned session can never see new chunks.
	call.InstallSink(newSessionSink(session))
	session.Touch()

	m.sessionsMu.Lock()
	m.sessions[guildID] = session
	m.sessionsMu.Unlock()

	logging.Infow("voice join succeeded", "guild_id", guildID, "channel_id", channelID)
	return fmt.Sprintf("Joined voice channel %d", channelID), nil
}

// LeaveForRequester disconnects the guild's voice session. The requester
// must be in the session's channel.
func (m *Manager) LeaveForRequester(ctx context.Context, guildIDRaw, requesterIDRaw string) (string, error) {
	guildID, err := parseID(guildIDRaw, "guild_id")
	if err != nil {
		return "", err
	}
	requesterID, err := parseID(requesterIDRaw, "requester_user_id")
	if err != nil {
		return "", err
	}

	session, ok := m.sessionFor(guildID)
	if !ok {
		return "", ErrNoActiveSession
	}
	if err := m.ensureRequesterInChannel(guildID, requesterID, session.ChannelID()); err != nil {
		return "", err
	}

	transport, err := m.transportHandle()
	if err != nil {
		return "", err
	}
	if err := transport.Leave(ctx, guildID); err != nil {
		return "", fmt.Errorf("%w: failed to leave voice in guild %d: %v", ErrTransport, guildID, err)
	}

	m.sessionsMu.Lock()
	delete(m.sessions, guildID)
	m.sessionsMu.Unlock()

	logging.Infow("voice session removed", "guild_id", guildID)
	return "Left the voice channel.", nil
}

// ListenAndRespondForRequester runs one full capture cycle: wait for a
// speaking turn, transcribe it, ask the responder for a reply, synthesize
// the reply, and play it back into the channel.
func (m *Manager) ListenAndRespondForRequester(ctx context.Context, guildIDRaw, requesterIDRaw string, args ListenArgs) (string, error) {
	guildID, err := parseID(guildIDRaw, "guild_id")
	if err != nil {
		return "", err
	}
	requesterID, err := parseID(requesterIDRaw, "requester_user_id")
	if err != nil {
		return "", err
	}

	session, ok := m.sessionFor(guildID)
	if !ok {
		return "", ErrNoActiveSession
	}
	if err := m.ensureRequesterInChannel(guildID, requesterID, session.ChannelID()); err != nil {
		return "", err
	}
	if err := m.ensureAllowlisted(guildID, session.ChannelID()); err != nil {
		return "", err
	}
	responder, err := m.responderHandle()
	if err != nil {
		return "", err
	}
	transport, err := m.transportHandle()
	if err != nil {
		return "", err
	}

	listenWindow, chunkGap, maxTurn := m.resolveListenParams(args)
	correlationID := uuid.NewString()
	logging.Debugw("voice listen starting",
		"guild_id", guildID, "channel_id", session.ChannelID(), "correlation_id", correlationID,
		"listen_window", listenWindow, "chunk_gap", chunkGap, "max_turn", maxTurn)

	// The listen lock covers only clear+capture. The STT/responder/TTS
	// network calls below run unlocked so a slow pipeline never blocks the
	// next capture attempt from starting once this one is past capture.
	if err := session.acquireListen(ctx); err != nil {
		return "", err
	}
	session.ClearChunks()
	turn, err := session.CaptureTurn(ctx, listenWindow, chunkGap, maxTurn)
	session.releaseListen()
	session.Touch()
	if err != nil {
		return "", err
	}

	wavPayload := BuildWAV(turn.Samples, 2, 48_000)
	transcript, err := m.stt.Transcribe(ctx, wavPayload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSttFailed, err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", ErrEmptyTranscript
	}
	if m.archive != nil {
		go m.archive.SaveTurn(correlationID, guildID, session.ChannelID(), turn.Speakers, wavPayload, transcript)
	}

	content := transcript
	if len(turn.Speakers) > 0 {
		content = fmt.Sprintf("[speakers:%s] %s", strings.Join(turn.Speakers, ","), transcript)
	}

	reply, err := responder.HandleVoiceTranscript(ctx, MessageCtx{
		MessageID: "voice-turn-" + correlationID,
		UserID:    fmt.Sprintf("voice:%d:%d", guildID, session.ChannelID()),
		GuildID:   strconv.FormatUint(guildID, 10),
		ChannelID: strconv.FormatUint(session.ChannelID(), 10),
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReplyGeneration, err)
	}

	audio, err := m.tts.Synthesize(ctx, clampTTSInput(reply))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTtsFailed, err)
	}

	call, ok := transport.Call(guildID)
	if !ok {
		return "", ErrNotConnected
	}
	if err := call.Play(ctx, audio); err != nil {
		return "", fmt.Errorf("%w: playback failed: %v", ErrTransport, err)
	}
	session.Touch()

	logging.Infow("voice turn processed",
		"guild_id", guildID, "correlation_id", correlationID,
		"speakers", len(turn.Speakers), "transcript_len", len(transcript), "reply_len", len(reply))
	return "Processed voice turn and replied in voice. Transcript: " + truncateForToolResult(transcript, toolResultTranscriptChars), nil
}

// StartIdleReaper spawns the background sweep that evicts sessions idle for
// at least IdleTimeout. Runs until ctx is canceled. Errors are logged, never
// propagated.
func (m *Manager) StartIdleReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reapIdleSessions(ctx)
			}
		}
	}()
}

// StartArchiveCleaner starts the retention sweep for the turn archive, if
// archiving is enabled.
func (m *Manager) StartArchiveCleaner(ctx context.Context) {
	if m.archive == nil {
		return
	}
	m.archive.StartCleaner(ctx, m.config.ArchiveRetention, time.Hour, m.config.ArchiveMaxFiles)
}

func (m *Manager) reapIdleSessions(ctx context.Context) {
	if m.config.IdleTimeout == 0 {
		return
	}

	var stale []uint64
	m.sessionsMu.RLock()
	for guildID, session := range m.sessions {
		if session.ElapsedSinceLastActivity() >= m.config.IdleTimeout {
			stale = append(stale, guildID)
		}
	}
	m.sessionsMu.RUnlock()
	if len(stale) == 0 {
		return
	}

	transport, err := m.transportHandle()
	if err != nil {
		logging.Warnw("voice idle cleanup skipped", "err", err)
		return
	}
	for _, guildID := range stale {
		if err := transport.Leave(ctx, guildID); err != nil {
			logging.Warnw("failed leaving idle voice session", "guild_id", guildID, "err", err)
		}
	}

	m.sessionsMu.Lock()
	for _, guildID := range stale {
		delete(m.sessions, guildID)
		logging.Infow("idle voice session removed", "guild_id", guildID)
	}
	m.sessionsMu.Unlock()
}

func (m *Manager) resolveListenParams(args ListenArgs) (listenWindow, chunkGap, maxTurn time.Duration) {
	listenWindowMs := args.ListenWindowMs
	if listenWindowMs == 0 {
		listenWindowMs = m.config.DefaultListenWindow.Milliseconds()
	}
	listenWindowMs = clampInt64(listenWindowMs, minListenWindowMs, maxListenWindowMs)

	chunkGapMs := args.ChunkGapMs
	if chunkGapMs == 0 {
		chunkGapMs = m.config.DefaultChunkGap.Milliseconds()
	}
	chunkGapMs = clampInt64(chunkGapMs, minChunkGapMs, maxChunkGapMs)

	maxTurnMs := args.MaxTurnMs
	if maxTurnMs == 0 {
		maxTurnMs = m.config.DefaultMaxTurn.Milliseconds()
	}
	// A turn must be allowed to run at least one silence-gap worth of time.
	if maxTurnMs < chunkGapMs {
		maxTurnMs = chunkGapMs
	}

	return time.Duration(listenWindowMs) * time.Millisecond,
		time.Duration(chunkGapMs) * time.Millisecond,
		time.Duration(maxTurnMs) * time.Millisecond
}

func (m *Manager) ensureAllowlisted(guildID, channelID uint64) error {
	if len(m.config.Allowlist) == 0 {
		return fmt.Errorf("%w: allowlist is empty; no channel is currently permitted", ErrChannelNotAllowed)
	}
	if _, ok := m.config.Allowlist[ChannelPair{GuildID: guildID, ChannelID: channelID}]; !ok {
		return ErrChannelNotAllowed
	}
	return nil
}

func (m *Manager) ensureRequesterInChannel(guildID, requesterID, expectedChannelID uint64) error {
	current, ok := m.presentChannel(guildID, requesterID)
	if !ok {
		return ErrNotInVoice
	}
	if current != expectedChannelID {
		return ErrRequesterNotCollocated
	}
	return nil
}

func parseID(raw, fieldName string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, fieldName, raw)
	}
	return id, nil
}

func clampTTSInput(input string) string {
	trimmed := strings.TrimSpace(input)
	runes := []rune(trimmed)
	if len(runes) <= maxTTSInputChars {
		return trimmed
	}
	return string(runes[:maxTTSInputChars])
}

func truncateForToolResult(input string, maxChars int) string {
	compact := strings.ReplaceAll(input, "\n", " ")
	runes := []rune(compact)
	if len(runes) <= maxChars {
		return compact
	}
	return string(runes[:maxChars]) + "..."
}
