package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/discord-voice-agent/internal/voice"
)

// VoiceResponder answers captured voice transcripts with a chat completion.
// It implements voice.Responder.
type VoiceResponder struct {
	Client       *Client
	SystemPrompt string
}

const defaultVoiceSystemPrompt = "You are a helpful voice assistant in a Discord call. " +
	"Replies are spoken aloud, so keep them short and conversational. " +
	"The transcript may be prefixed with a bracketed list of speaker labels."

func NewVoiceResponder(client *Client) *VoiceResponder {
	return &VoiceResponder{Client: client, SystemPrompt: defaultVoiceSystemPrompt}
}

func (r *VoiceResponder) HandleVoiceTranscript(ctx context.Context, msg voice.MessageCtx) (string, error) {
	messages := []Message{
		{Role: "system", Content: fmt.Sprintf("%s\nsource: %s; guild_id: %s; channel_id: %s; message_id: %s",
			r.SystemPrompt, msg.UserID, msg.GuildID, msg.ChannelID, msg.MessageID)},
		{Role: "user", Content: msg.Content},
	}
	reply, err := r.Client.CreateChatCompletion(ctx, messages)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errors.New("model returned an empty reply")
	}
	return reply, nil
}
