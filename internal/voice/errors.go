package voice

import "errors"

// Failure kinds surfaced by the manager and session. Precondition errors
// (identifier, presence, allowlist, configuration) mean the caller asked for
// something that cannot happen; pipeline errors abort one listen cycle but
// leave the session usable for the next attempt. Callers classify with
// errors.Is.
var (
	ErrInvalidIdentifier      = errors.New("invalid identifier")
	ErrNotInVoice             = errors.New("requesting user is not currently in a voice channel")
	ErrChannelNotAllowed      = errors.New("voice channel is not in configured allowlist")
	ErrTransport              = errors.New("voice transport error")
	ErrNoActiveSession        = errors.New("no active voice session for this guild")
	ErrRequesterNotCollocated = errors.New("requesting user must be in the same voice channel as the bot")
	ErrCaptureTimeout         = errors.New("timed out waiting for a speaking event")
	ErrEmptyTurn              = errors.New("captured speaking turn had no PCM audio")
	ErrSttFailed              = errors.New("speech-to-text transcription failed")
	ErrEmptyTranscript        = errors.New("transcription returned empty text")
	ErrReplyGeneration        = errors.New("failed to generate assistant reply for voice turn")
	ErrTtsFailed              = errors.New("text-to-speech synthesis failed")
	ErrNotConnected           = errors.New("bot is no longer connected to voice")
	ErrNotConfigured          = errors.New("voice manager is not configured")
)
