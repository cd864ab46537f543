package voice

import "time"

// AudioChunk is one decoded ~20ms packet of PCM from one audio source. It is
// owned by the session queue until the capture loop consumes it.
type AudioChunk struct {
	SpeakerLabel string
	Samples      []int16
}

// CapturedTurn is the result of one turn-capture cycle: every speaker heard
// during the turn (sorted for determinism) and the concatenated PCM samples
// in arrival order.
type CapturedTurn struct {
	Speakers []string
	Samples  []int16
}

// MessageCtx is the synthetic message handed to the reasoning responder for a
// captured voice turn. The "user" is the guild+channel pair, not a human.
type MessageCtx struct {
	MessageID string
	UserID    string
	GuildID   string
	ChannelID string
	Content   string
	Timestamp time.Time
}
