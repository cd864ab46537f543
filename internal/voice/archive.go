package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/discord-voice-agent/internal/logging"
)

// TurnArchive saves each transcribed turn to disk for offline inspection: a
// WAV file plus a JSON sidecar per turn. Everything here is best-effort
// housekeeping; failures are logged and never surfaced to the listen cycle.
type TurnArchive struct {
	Dir string
}

// NewTurnArchive returns nil when dir is empty, which disables archiving.
func NewTurnArchive(dir string) *TurnArchive {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &TurnArchive{Dir: dir}
}

type turnSidecar struct {
	CorrelationID string   `json:"correlation_id"`
	CapturedUTC   string   `json:"captured_utc"`
	GuildID       uint64   `json:"guild_id"`
	ChannelID     uint64   `json:"channel_id"`
	Speakers      []string `json:"speakers"`
	SampleCount   int      `json:"sample_count"`
	DurationMs    int      `json:"duration_ms"`
	Transcript    string   `json:"transcript"`
	WavPath       string   `json:"wav_path"`
}

// SaveTurn writes the WAV and sidecar for one turn. Runs in the caller's
// goroutine; the manager invokes it asynchronously.
func (a *TurnArchive) SaveTurn(correlationID string, guildID, channelID uint64, speakers []string, wav []byte, transcript string) {
	if a == nil {
		return
	}
	ts := time.Now().UTC().Format("20060102T150405.000Z")
	base := filepath.Join(a.Dir, fmt.Sprintf("%s_cid%s", ts, correlationID))
	wavPath := base + ".wav"

	if err := saveFileAtomic(wavPath, wav, 0o644); err != nil {
		logging.Warnw("archive: failed to save turn wav", "path", wavPath, "err", err, "correlation_id", correlationID)
		return
	}

	sampleCount := (len(wav) - 44) / 2
	sc := turnSidecar{
		CorrelationID: correlationID,
		CapturedUTC:   time.Now().UTC().Format(time.RFC3339Nano),
		GuildID:       guildID,
		ChannelID:     channelID,
		Speakers:      speakers,
		SampleCount:   sampleCount,
		DurationMs:    sampleCount * 1000 / (discordSampleRate * discordChannels),
		Transcript:    transcript,
		WavPath:       wavPath,
	}
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		logging.Warnw("archive: failed to marshal sidecar", "err", err, "correlation_id", correlationID)
		return
	}
	if err := saveFileAtomic(base+".json", b, 0o644); err != nil {
		logging.Warnw("archive: failed to save sidecar", "path", base+".json", "err", err, "correlation_id", correlationID)
		return
	}
	logging.Infow("archive: saved turn", "path", wavPath, "correlation_id", correlationID)
}

// StartCleaner prunes archived pairs older than retention and enforces
// maxFiles, oldest first. Runs until ctx is canceled.
func (a *TurnArchive) StartCleaner(ctx context.Context, retention, interval time.Duration, maxFiles int) {
	if a == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.cleanOnce(retention, maxFiles)
			}
		}
	}()
}

func (a *TurnArchive) cleanOnce(retention time.Duration, maxFiles int) {
	files, err := os.ReadDir(a.Dir)
	if err != nil {
		logging.Debugw("archive: cleanup readDir failed", "dir", a.Dir, "err", err)
		return
	}

	type pairInfo struct {
		jsonPath string
		wavPath  string
		mod      time.Time
	}
	var pairs []pairInfo
	for _, fi := range files {
		name := fi.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		jsonPath := filepath.Join(a.Dir, name)
		st, err := os.Stat(jsonPath)
		if err != nil {
			continue
		}
		pairs = append(pairs, pairInfo{
			jsonPath: jsonPath,
			wavPath:  strings.TrimSuffix(jsonPath, ".json") + ".wav",
			mod:      st.ModTime(),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].mod.Before(pairs[j].mod) })

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, p := range pairs {
		if p.mod.Before(cutoff) {
			_ = os.Remove(p.jsonPath)
			_ = os.Remove(p.wavPath)
			removed++
		}
	}
	if maxFiles > 0 {
		excess := len(pairs) - removed - maxFiles
		for i := 0; i < len(pairs) && excess > 0; i++ {
			if _, err := os.Stat(pairs[i].jsonPath); err != nil {
				continue
			}
			_ = os.Remove(pairs[i].jsonPath)
			_ = os.Remove(pairs[i].wavPath)
			excess--
		}
	}
}

// saveFileAtomic writes data via a tmp file in the same directory, fsyncs,
// and renames into place.
func saveFileAtomic(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
