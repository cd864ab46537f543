package voice

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCaptureTurnTimesOutWithoutSpeech(t *testing.T) {
	session := NewVoiceSession(1)

	start := time.Now()
	_, err := session.CaptureTurn(context.Background(), 100*time.Millisecond, 50*time.Millisecond, time.Second)
	if !errors.Is(err, ErrCaptureTimeout) {
		t.Fatalf("expected ErrCaptureTimeout, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("returned before the listen window elapsed: %s", elapsed)
	}
}

func TestCaptureTurnStopsOnSilenceGap(t *testing.T) {
	session := NewVoiceSession(1)

	go func() {
		session.PushChunk(AudioChunk{SpeakerLabel: "ssrc:2", Samples: []int16{1, 2}})
		time.Sleep(50 * time.Millisecond)
		session.PushChunk(AudioChunk{SpeakerLabel: "ssrc:1", Samples: []int16{3, 4}})
		time.Sleep(50 * time.Millisecond)
		session.PushChunk(AudioChunk{SpeakerLabel: "ssrc:2", Samples: []int16{5, 6}})
		// After this, nothing else: the chunk gap ends the turn.
	}()

	turn, err := session.CaptureTurn(context.Background(), time.Second, 300*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("CaptureTurn: %v", err)
	}

	want := []int16{1, 2, 3, 4, 5, 6}
	if len(turn.Samples) != len(want) {
		t.Fatalf("sample count: want=%d got=%d", len(want), len(turn.Samples))
	}
	for i := range want {
		if turn.Samples[i] != want[i] {
			t.Fatalf("sample %d: want=%d got=%d", i, want[i], turn.Samples[i])
		}
	}
	if len(turn.Speakers) != 2 || turn.Speakers[0] != "ssrc:1" || turn.Speakers[1] != "ssrc:2" {
		t.Fatalf("speakers not deduped and sorted: %v", turn.Speakers)
	}
}

func TestCaptureTurnHonorsMaxTurn(t *testing.T) {
	session := NewVoiceSession(1)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				session.PushChunk(AudioChunk{SpeakerLabel: "ssrc:9", Samples: []int16{0}})
			}
		}
	}()

	start := time.Now()
	turn, err := session.CaptureTurn(context.Background(), time.Second, 300*time.Millisecond, 400*time.Millisecond)
	if err != nil {
		t.Fatalf("CaptureTurn: %v", err)
	}
	// Generous ceiling: the cap plus one chunk-gap wait of slack.
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Fatalf("turn ran past the cap: %s", elapsed)
	}
	if len(turn.Samples) == 0 {
		t.Fatal("expected captured samples")
	}
}

func TestCaptureTurnPropagatesCancellation(t *testing.T) {
	session := NewVoiceSession(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := session.CaptureTurn(ctx, time.Minute, 500*time.Millisecond, time.Minute)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("CaptureTurn did not return after cancellation")
	}
}

func TestNextChunkFIFO(t *testing.T) {
	session := NewVoiceSession(1)
	session.PushChunk(AudioChunk{SpeakerLabel: "a", Samples: []int16{1}})
	session.PushChunk(AudioChunk{SpeakerLabel: "b", Samples: []int16{2}})
	session.PushChunk(AudioChunk{SpeakerLabel: "c", Samples: []int16{3}})

	for _, want := range []string{"a", "b", "c"} {
		chunk, err := session.NextChunk(context.Background())
		if err != nil {
			t.Fatalf("NextChunk: %v", err)
		}
		if chunk.SpeakerLabel != want {
			t.Fatalf("order violated: want=%s got=%s", want, chunk.SpeakerLabel)
		}
	}
}

func TestClearChunksDropsBacklog(t *testing.T) {
	session := NewVoiceSession(1)
	session.PushChunk(AudioChunk{SpeakerLabel: "a", Samples: []int16{1}})
	session.PushChunk(AudioChunk{SpeakerLabel: "b", Samples: []int16{2}})
	session.ClearChunks()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := session.NextChunk(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected empty queue after clear, got: %v", err)
	}
}

func TestListenLockSerializesCaptures(t *testing.T) {
	session := NewVoiceSession(1)

	if err := session.acquireListen(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := session.acquireListen(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second acquire should block until timeout, got: %v", err)
	}

	session.releaseListen()
	if err := session.acquireListen(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	session.releaseListen()
}

func TestTouchResetsIdleClock(t *testing.T) {
	session := NewVoiceSession(1)
	time.Sleep(30 * time.Millisecond)
	if session.ElapsedSinceLastActivity() < 20*time.Millisecond {
		t.Fatal("idle clock did not advance")
	}
	session.Touch()
	if session.ElapsedSinceLastActivity() > 20*time.Millisecond {
		t.Fatal("Touch did not reset the idle clock")
	}
}
