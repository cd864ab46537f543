package voice

import "fmt"

// sessionSink bridges the transport's per-tick decoded audio into a
// session's chunk queue. Pure translation layer: label by wire identifier,
// skip empty payloads, copy the samples so the decoder may reuse its buffer.
type sessionSink struct {
	session *VoiceSession
}

func newSessionSink(session *VoiceSession) *sessionSink {
	return &sessionSink{session: session}
}

func (k *sessionSink) OnDecodedAudio(ssrc uint32, pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	k.session.PushChunk(AudioChunk{
		SpeakerLabel: fmt.Sprintf("ssrc:%d", ssrc),
		Samples:      append([]int16(nil), pcm...),
	})
}
