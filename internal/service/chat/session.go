package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/lucid-weaver/backend/internal/model/chat"
	"github.com/zhouzirui/lucid-weaver/backend/internal/service/ai"
)

const (
	// WelcomeText opens every transcript.
	WelcomeText = "Do you have any questions about the symbols or feelings in your dream? Feel free to ask."
	// ApologyText replaces the reply of a turn that failed or was abandoned.
	ApologyText = "Sorry, I encountered an error. Please try again."
)

var (
	ErrEmptyTurn      = errors.New("message is empty")
	ErrTurnInProgress = errors.New("a reply is still streaming")
	ErrSessionClosed  = errors.New("session is closed")
)

// Session is a follow-up conversation about one dream. At most one turn
// streams at a time; every turn ends with exactly one assistant entry in the
// transcript.
type Session struct {
	store *Service
	conv  ai.Conversation
	info  chat.Session

	mu         sync.Mutex
	streaming  bool
	closed     bool
	cancelTurn context.CancelFunc
}

// NewSession creates the transcript for recordID and seeds the welcome turn.
func NewSession(ctx context.Context, store *Service, conv ai.Conversation, recordID string) (*Session, error) {
	info, err := store.CreateSession(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if _, err := store.SaveTurn(ctx, chat.Turn{
		SessionID: info.ID,
		Speaker:   chat.SpeakerAssistant,
		Text:      WelcomeText,
	}); err != nil {
		store.DeleteSession(ctx, info.ID)
		return nil, fmt.Errorf("seed welcome turn: %w", err)
	}

	return &Session{store: store, conv: conv, info: info}, nil
}

// Info returns the session metadata.
func (s *Session) Info() chat.Session {
	return s.info
}

// Transcript returns the ordered turns so far.
func (s *Session) Transcript(ctx context.Context) ([]chat.Turn, error) {
	return s.store.LoadTranscript(ctx, s.info.ID)
}

// LastTurn returns the most recent transcript entry. After a reader from Send
// reached io.EOF it is the assistant turn of that exchange.
func (s *Session) LastTurn(ctx context.Context) (chat.Turn, error) {
	turns, err := s.Transcript(ctx)
	if err != nil {
		return chat.Turn{}, err
	}
	return turns[len(turns)-1], nil
}

// Streaming reports whether a reply is being delivered.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Send appends a user turn and streams the reply fragments. The reader ends
// with io.EOF once the assistant turn is in the transcript; provider errors
// never reach the reader, they are recorded as the apology turn instead.
// Closing the reader abandons the turn.
func (s *Session) Send(ctx context.Context, text string) (*schema.StreamReader[string], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTurn
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.streaming = true
	s.cancelTurn = cancel
	s.mu.Unlock()

	if _, err := s.store.SaveTurn(ctx, chat.Turn{
		SessionID: s.info.ID,
		Speaker:   chat.SpeakerUser,
		Text:      text,
	}); err != nil {
		s.finish()
		cancel()
		return nil, err
	}

	upstream, err := s.conv.SendStream(turnCtx, text)
	if err != nil {
		log.Printf("[chat] session %s: send failed: %v", s.info.ID, err)
	}

	sr, sw := schema.Pipe[string](8)
	go s.deliver(upstream, sw, cancel, err != nil)
	return sr, nil
}

func (s *Session) deliver(upstream *schema.StreamReader[string], sw *schema.StreamWriter[string], cancel context.CancelFunc, failed bool) {
	defer sw.Close()

	var reply strings.Builder
	abandoned := false
	if upstream != nil {
		for {
			fragment, err := upstream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				log.Printf("[chat] session %s: stream failed: %v", s.info.ID, err)
				failed = true
				break
			}
			if fragment == "" {
				continue
			}

			reply.WriteString(fragment)
			if closed := sw.Send(fragment, nil); closed {
				log.Printf("[chat] session %s: reader left before reply completed", s.info.ID)
				abandoned = true
				break
			}
		}
		upstream.Close()
	}

	text := reply.String()
	if failed || abandoned || strings.TrimSpace(text) == "" {
		text = ApologyText
	}

	if _, err := s.store.SaveTurn(context.Background(), chat.Turn{
		SessionID: s.info.ID,
		Speaker:   chat.SpeakerAssistant,
		Text:      text,
	}); err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Printf("[chat] session %s: save reply failed: %v", s.info.ID, err)
	}

	s.finish()
	cancel()
}

func (s *Session) finish() {
	s.mu.Lock()
	s.streaming = false
	s.cancelTurn = nil
	s.mu.Unlock()
}

// Close stops any streaming turn and drops the transcript.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancelTurn != nil {
		s.cancelTurn()
	}
	s.mu.Unlock()

	s.store.DeleteSession(context.Background(), s.info.ID)
}
