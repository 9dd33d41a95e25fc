package chat

import "time"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one entry of a follow-up conversation transcript.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
