package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/discord-voice-agent/internal/voice"
)

func TestHealthEndpoint(t *testing.T) {
	manager := voice.NewManager(voice.RuntimeConfig{}, nil, nil)
	server := NewVoiceToolServer(manager, "voice-agent-test", "0.0.0")

	ts := httptest.NewServer(Handler(server))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", resp.StatusCode)
	}
}

func TestWsEndpointRejectsPlainHTTP(t *testing.T) {
	manager := voice.NewManager(voice.RuntimeConfig{}, nil, nil)
	server := NewVoiceToolServer(manager, "voice-agent-test", "0.0.0")

	ts := httptest.NewServer(Handler(server))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/mcp/ws")
	if err != nil {
		t.Fatalf("GET /mcp/ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatal("non-websocket request should not succeed")
	}
}
