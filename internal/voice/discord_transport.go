package voice

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/discord-voice-agent/internal/logging"
	"github.com/hraban/opus"
)

const (
	discordSampleRate = 48_000
	discordChannels   = 2
	// 20ms of audio per opus frame at 48kHz.
	frameSamplesPerChannel = 960
	maxOpusFrameBytes      = 1275
)

// DiscordTransport implements Transport on top of a discordgo session. One
// live call per guild; joining again reuses or replaces the call handle.
type DiscordTransport struct {
	session *discordgo.Session

	mu    sync.Mutex
	calls map[uint64]*discordCall
}

func NewDiscordTransport(session *discordgo.Session) *DiscordTransport {
	return &DiscordTransport{
		session: session,
		calls:   make(map[uint64]*discordCall),
	}
}

func (t *DiscordTransport) Join(ctx context.Context, guildID, channelID uint64) (Call, error) {
	vc, err := t.session.ChannelVoiceJoin(
		strconv.FormatUint(guildID, 10),
		strconv.FormatUint(channelID, 10),
		false, false,
	)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.calls[guildID]; ok {
		if existing.vc == vc {
			// Moved channel on the same connection; the receive loop keeps
			// running and the caller installs a fresh sink over the old one.
			return existing, nil
		}
		existing.stop()
	}
	call := newDiscordCall(vc)
	t.calls[guildID] = call
	return call, nil
}

func (t *DiscordTransport) Leave(ctx context.Context, guildID uint64) error {
	t.mu.Lock()
	call, ok := t.calls[guildID]
	delete(t.calls, guildID)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no voice connection for guild %d", guildID)
	}
	call.stop()
	return call.vc.Disconnect()
}

func (t *DiscordTransport) Call(guildID uint64) (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.calls[guildID]
	return call, ok
}

// discordCall wraps one VoiceConnection: a receive loop that decodes inbound
// opus packets for the installed sink, and WAV playback over OpusSend.
type discordCall struct {
	vc *discordgo.VoiceConnection

	sinkMu sync.RWMutex
	sink   ChunkSink

	decoders map[uint32]*opus.Decoder

	done     chan struct{}
	stopOnce sync.Once
}

func newDiscordCall(vc *discordgo.VoiceConnection) *discordCall {
	c := &discordCall{
		vc:       vc,
		decoders: make(map[uint32]*opus.Decoder),
		done:     make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

func (c *discordCall) InstallSink(sink ChunkSink) {
	c.sinkMu.Lock()
	c.sink = sink
	c.sinkMu.Unlock()
}

func (c *discordCall) RemoveSink() {
	c.sinkMu.Lock()
	c.sink = nil
	c.sinkMu.Unlock()
}

func (c *discordCall) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *discordCall) receiveLoop() {
	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			c.handlePacket(pkt)
		}
	}
}

func (c *discordCall) handlePacket(pkt *discordgo.Packet) {
	c.sinkMu.RLock()
	sink := c.sink
	c.sinkMu.RUnlock()
	if sink == nil || len(pkt.Opus) == 0 {
		return
	}

	dec, ok := c.decoders[pkt.SSRC]
	if !ok {
		d, err := opus.NewDecoder(discordSampleRate, discordChannels)
		if err != nil {
			logging.Errorw("opus decoder init failed", "ssrc", pkt.SSRC, "err", err)
			return
		}
		dec = d
		c.decoders[pkt.SSRC] = dec
	}

	pcm := make([]int16, frameSamplesPerChannel*discordChannels)
	n, err := dec.Decode(pkt.Opus, pcm)
	if err != nil {
		logging.Errorw("opus decode error", "ssrc", pkt.SSRC, "err", err)
		return
	}
	sink.OnDecodedAudio(pkt.SSRC, pcm[:n*discordChannels])
}

// Play decodes the WAV payload, resamples it to the Discord frame format,
// and streams opus frames onto the connection at the 20ms wire cadence.
func (c *discordCall) Play(ctx context.Context, wav []byte) error {
	samples, channels, sampleRate, err := ParseWAV(wav)
	if err != nil {
		return fmt.Errorf("invalid wav payload: %w", err)
	}
	pcm := resampleForPlayback(samples, channels, sampleRate)

	enc, err := opus.NewEncoder(discordSampleRate, discordChannels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("opus encoder init: %w", err)
	}

	if err := c.vc.Speaking(true); err != nil {
		return err
	}
	defer func() {
		if err := c.vc.Speaking(false); err != nil {
			logging.Debugw("failed clearing speaking state", "err", err)
		}
	}()

	frame := frameSamplesPerChannel * discordChannels
	buf := make([]byte, maxOpusFrameBytes)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for offset := 0; offset < len(pcm); offset += frame {
		end := offset + frame
		if end > len(pcm) {
			// Pad the trailing partial frame with silence.
			padded := make([]int16, frame)
			copy(padded, pcm[offset:])
			pcm = append(pcm[:offset], padded...)
			end = offset + frame
		}
		n, err := enc.Encode(pcm[offset:end], buf)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		packet := append([]byte(nil), buf[:n]...)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("voice connection closed during playback")
		case <-ticker.C:
		}
		select {
		case c.vc.OpusSend <- packet:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("voice connection closed during playback")
		}
	}
	return nil
}

// resampleForPlayback converts arbitrary-rate mono/stereo PCM to 48kHz
// stereo. Linear interpolation is plenty for synthesized speech.
func resampleForPlayback(samples []int16, channels uint16, sampleRate uint32) []int16 {
	if len(samples) == 0 {
		return nil
	}

	// Collapse to mono first so rate conversion is channel-independent.
	var mono []int16
	if channels >= 2 {
		mono = make([]int16, len(samples)/int(channels))
		for i := range mono {
			var sum int32
			for ch := 0; ch < int(channels); ch++ {
				sum += int32(samples[i*int(channels)+ch])
			}
			mono[i] = int16(sum / int32(channels))
		}
	} else {
		mono = samples
	}

	if sampleRate != discordSampleRate {
		ratio := float64(discordSampleRate) / float64(sampleRate)
		out := make([]int16, int(float64(len(mono))*ratio))
		for i := range out {
			pos := float64(i) / ratio
			idx := int(pos)
			if idx >= len(mono)-1 {
				out[i] = mono[len(mono)-1]
				continue
			}
			frac := pos - float64(idx)
			out[i] = int16(float64(mono[idx])*(1-frac) + float64(mono[idx+1])*frac)
		}
		mono = out
	}

	stereo := make([]int16, len(mono)*discordChannels)
	for i, s := range mono {
		stereo[2*i] = s
		stereo[2*i+1] = s
	}
	return stereo
}
