package voice

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// VoiceSession is the per-guild capture state for one active voice
// connection. The chunk queue has its own lock so a push from the audio
// receive path is never blocked by an in-flight capture beyond the enqueue
// critical section. listenLock serializes whole capture cycles; it is a
// 1-slot channel so acquisition can be abandoned when the caller's context
// is canceled.
type VoiceSession struct {
	channelID uint64

	queueMu sync.Mutex
	queue   []AudioChunk
	wake    chan struct{}

	listenLock chan struct{}

	activityMu   sync.Mutex
	lastActivity time.Time
}

func NewVoiceSession(channelID uint64) *VoiceSession {
	return &VoiceSession{
		channelID:    channelID,
		wake:         make(chan struct{}, 1),
		listenLock:   make(chan struct{}, 1),
		lastActivity: time.Now(),
	}
}

// ChannelID returns the voice channel this session is bound to.
func (s *VoiceSession) ChannelID() uint64 { return s.channelID }

// Touch records activity for idle-eviction purposes.
func (s *VoiceSession) Touch() {
	s.activityMu.Lock()
	s.lastActivity = time.Now()
	s.activityMu.Unlock()
}

// ElapsedSinceLastActivity reports how long the session has been idle.
func (s *VoiceSession) ElapsedSinceLastActivity() time.Duration {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return time.Since(s.lastActivity)
}

// PushChunk appends a chunk to the queue tail and wakes any waiter.
func (s *VoiceSession) PushChunk(chunk AudioChunk) {
	s.queueMu.Lock()
	s.queue = append(s.queue, chunk)
	s.queueMu.Unlock()
	s.Touch()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ClearChunks drops every queued chunk. Called before a fresh capture so
// backlog accumulated while nobody was listening is not mistaken for speech.
func (s *VoiceSession) ClearChunks() {
	s.queueMu.Lock()
	s.queue = nil
	s.queueMu.Unlock()
}

func (s *VoiceSession) popChunk() (AudioChunk, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return AudioChunk{}, false
	}
	chunk := s.queue[0]
	s.queue = s.queue[1:]
	return chunk, true
}

// NextChunk pops the queue head, blocking until a chunk arrives or ctx ends.
func (s *VoiceSession) NextChunk(ctx context.Context) (AudioChunk, error) {
	for {
		if chunk, ok := s.popChunk(); ok {
			return chunk, nil
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return AudioChunk{}, ctx.Err()
		}
	}
}

// acquireListen takes the session's capture lock, waiting until the current
// holder releases it or ctx ends.
func (s *VoiceSession) acquireListen(ctx context.Context) error {
	select {
	case s.listenLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *VoiceSession) releaseListen() {
	<-s.listenLock
}

// CaptureTurn waits up to listenWindow for speech to start, then accumulates
// chunks until either a silence gap of chunkGap occurs or the turn has run
// for maxTurn. The turn clock starts when the first chunk arrives, so waiting
// for someone to start talking never eats into the turn budget.
func (s *VoiceSession) CaptureTurn(ctx context.Context, listenWindow, chunkGap, maxTurn time.Duration) (CapturedTurn, error) {
	firstCtx, cancel := context.WithTimeout(ctx, listenWindow)
	first, err := s.NextChunk(firstCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return CapturedTurn{}, ctx.Err()
		}
		return CapturedTurn{}, fmt.Errorf("%w (no chunk within %s)", ErrCaptureTimeout, listenWindow)
	}

	turnStartedAt := time.Now()
	speakers := map[string]struct{}{first.SpeakerLabel: {}}
	samples := append([]int16(nil), first.Samples...)

	for {
		elapsed := time.Since(turnStartedAt)
		if elapsed >= maxTurn {
			break
		}
		maxWait := maxTurn - elapsed
		if chunkGap < maxWait {
			maxWait = chunkGap
		}
		waitCtx, cancel := context.WithTimeout(ctx, maxWait)
		next, err := s.NextChunk(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return CapturedTurn{}, ctx.Err()
			}
			// Silence gap: the turn is over.
			break
		}
		speakers[next.SpeakerLabel] = struct{}{}
		samples = append(samples, next.Samples...)
	}

	if len(samples) == 0 {
		return CapturedTurn{}, ErrEmptyTurn
	}

	labels := make([]string, 0, len(speakers))
	for label := range speakers {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return CapturedTurn{Speakers: labels, Samples: samples}, nil
}
