package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSTTClientSendsMultipartAndDecodesText(t *testing.T) {
	wav := BuildWAV([]int16{1, 2, 3}, 2, 48_000)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization header: %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			http.Error(w, "bad form", 400)
			return
		}
		if got := r.FormValue("model"); got != "whisper-x" {
			t.Errorf("model field: %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "missing file", 400)
			return
		}
		defer file.Close()
		if header.Filename != "voice-turn.wav" {
			t.Errorf("filename: %q", header.Filename)
		}
		var buf bytes.Buffer
		buf.ReadFrom(file)
		if !bytes.Equal(buf.Bytes(), wav) {
			t.Error("uploaded audio does not match the wav payload")
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "transcribed words"})
	}))
	defer ts.Close()

	client := NewSTTClient(ts.URL, "sk-test", "whisper-x")
	text, err := client.Transcribe(context.Background(), wav)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "transcribed words" {
		t.Fatalf("transcript: %q", text)
	}
}

func TestSTTClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "flaky", 500)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "finally"})
	}))
	defer ts.Close()

	client := NewSTTClient(ts.URL, "", "whisper-x")
	text, err := client.Transcribe(context.Background(), BuildWAV([]int16{0}, 1, 48_000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "finally" {
		t.Fatalf("transcript: %q", text)
	}
	if hits.Load() != 3 {
		t.Fatalf("attempts: want=3 got=%d", hits.Load())
	}
}

func TestSTTClientReportsClientErrors(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad audio", 400)
	}))
	defer ts.Close()

	client := NewSTTClient(ts.URL, "", "whisper-x")
	_, err := client.Transcribe(context.Background(), BuildWAV([]int16{0}, 1, 48_000))
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected a status-400 error, got: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("client errors must not be retried, saw %d attempts", hits.Load())
	}
}

func TestTTSClientRequestsWav(t *testing.T) {
	audio := []byte("fake-wav-bytes")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var p map[string]string
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if p["model"] != "tts-x" || p["voice"] != "alloy" || p["input"] != "say this" {
			t.Errorf("unexpected payload: %v", p)
		}
		if p["response_format"] != "wav" {
			t.Errorf("response_format: %q", p["response_format"])
		}
		fmt.Fprint(w, string(audio))
	}))
	defer ts.Close()

	client := NewTTSClient(ts.URL, "sk-test", "tts-x", "alloy")
	got, err := client.Synthesize(context.Background(), "say this")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Fatalf("audio mismatch: %q", got)
	}
}
