package voice

import "context"

// ChunkSink receives decoded PCM for one speaking source per audio tick.
// Implementations must not block: the transport's receive loop calls this
// inline.
type ChunkSink interface {
	OnDecodedAudio(ssrc uint32, pcm []int16)
}

// Call is one live voice connection. Installing a sink replaces whatever
// sink was previously installed, so a stale session can never receive
// chunks after a rejoin.
type Call interface {
	InstallSink(sink ChunkSink)
	RemoveSink()
	Play(ctx context.Context, wav []byte) error
}

// Transport joins and leaves guild voice channels and hands out live call
// handles. Implemented by the Discord adapter in production and by fakes in
// tests.
type Transport interface {
	Join(ctx context.Context, guildID, channelID uint64) (Call, error)
	Leave(ctx context.Context, guildID uint64) error
	Call(guildID uint64) (Call, bool)
}

// Transcriber converts a WAV payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Synthesizer converts reply text into WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Responder decides what to say back for a captured voice transcript.
type Responder interface {
	HandleVoiceTranscript(ctx context.Context, msg MessageCtx) (string, error)
}
