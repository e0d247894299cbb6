// Package session implements the streaming conversation controller: it owns
// the active thread, accepts user turns, applies streamed model deltas to the
// thread store and finalizes or fails each turn.
package session

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/malonaz/wgpt/internal/attachment"
	"github.com/malonaz/wgpt/internal/llm"
	"github.com/malonaz/wgpt/internal/model"
	"github.com/malonaz/wgpt/internal/thread"
)

var (
	// ErrEmptyTurn is returned when a turn carries neither text nor files.
	// Callers treat it as a no-op rather than an error surfaced to the user.
	ErrEmptyTurn = errors.New("turn has no text and no attachments")
	// ErrStreamInFlight is returned when a turn is started while another one
	// is still streaming. Only one turn may stream at a time, system-wide.
	ErrStreamInFlight = errors.New("a turn is already streaming")
)

// Delta is one incremental fragment of model output forwarded to the view.
type Delta struct {
	Text      string          `json:"text"`
	Grounding json.RawMessage `json:"groundingMetadata,omitempty"`
}

// Session orchestrates turns between the view, the thread store and the
// model backend. The active thread id and the streaming flag are explicit
// session state, guarded for concurrent view access.
type Session struct {
	store          *thread.Store
	client         llm.Client
	requestTimeout time.Duration

	mu             sync.Mutex
	activeThreadID string
	selectedModel  string
	streaming      bool
}

// New instantiates a session. An empty store is seeded with one fresh thread
// so there is always an active thread to render.
func New(store *thread.Store, client llm.Client, defaultModel string, requestTimeout time.Duration) (*Session, error) {
	if _, err := model.Parse(defaultModel); err != nil {
		return nil, errors.Wrap(err, "parsing default model")
	}
	s := &Session{
		store:          store,
		client:         client,
		requestTimeout: requestTimeout,
		selectedModel:  defaultModel,
	}

	threads := store.Threads()
	if len(threads) == 0 {
		created, err := store.Create(defaultModel)
		if err != nil {
			return nil, errors.Wrap(err, "creating initial thread")
		}
		s.activeThreadID = created.ID
		return s, nil
	}
	s.activeThreadID = threads[0].ID
	return s, nil
}

// Threads returns all threads, most recently updated first.
func (s *Session) Threads() []*thread.Thread {
	return s.store.Threads()
}

// ActiveThread returns the currently active thread.
func (s *Session) ActiveThread() *thread.Thread {
	s.mu.Lock()
	id := s.activeThreadID
	s.mu.Unlock()
	active, _ := s.store.Get(id)
	return active
}

// Select makes the named thread active.
func (s *Session) Select(id string) error {
	if _, ok := s.store.Get(id); !ok {
		return errors.Errorf("thread does not exist (%s)", id)
	}
	s.mu.Lock()
	s.activeThreadID = id
	s.mu.Unlock()
	return nil
}

// NewThread creates an empty thread bound to the selected model and makes it
// active.
func (s *Session) NewThread() (*thread.Thread, error) {
	s.mu.Lock()
	selectedModel := s.selectedModel
	s.mu.Unlock()
	created, err := s.store.Create(selectedModel)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.activeThreadID = created.ID
	s.mu.Unlock()
	return created, nil
}

// DeleteThread removes a thread. When the active thread is deleted,
// activation moves to the most recently updated remaining thread; deleting
// the last thread synthesizes a fresh one, so the store never goes empty.
func (s *Session) DeleteThread(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}

	threads := s.store.Threads()
	if len(threads) == 0 {
		created, err := s.NewThread()
		if err != nil {
			return err
		}
		threads = []*thread.Thread{created}
	}

	s.mu.Lock()
	if s.activeThreadID == id {
		s.activeThreadID = threads[0].ID
	}
	s.mu.Unlock()
	return nil
}

// SelectModel binds subsequent new threads to the named model variant.
func (s *Session) SelectModel(name string) error {
	parsed, err := model.Parse(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.selectedModel = parsed.ID
	s.mu.Unlock()
	return nil
}

// Model returns the model bound to new threads.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedModel
}

// Streaming reports whether a turn is currently in flight. Views consult it
// to disable further sends.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// SendTurn records a user turn on the named thread and streams the model's
// reply into it. It returns a channel of deltas for the view; the channel is
// closed once the turn finalizes or fails. Failures after this call returns
// are surfaced in-band, as replacement text inside the placeholder message.
//
// Cancelling ctx stops delta application and finalizes the turn with
// whatever partial text has accumulated. Expiry of the per-turn timeout is
// surfaced as an in-band error instead.
func (s *Session) SendTurn(ctx context.Context, threadID, text string, files []attachment.File, useSearchGrounding bool) (<-chan Delta, error) {
	if text == "" && len(files) == 0 {
		return nil, ErrEmptyTurn
	}
	active, ok := s.store.Get(threadID)
	if !ok {
		return nil, errors.Errorf("thread does not exist (%s)", threadID)
	}

	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrStreamInFlight
	}
	s.streaming = true
	s.mu.Unlock()

	// Encode attachments before any state mutation: a turn whose attachments
	// fail to encode records no user message.
	attachments, err := attachment.Encode(ctx, files)
	if err != nil {
		s.setStreaming(false)
		return nil, errors.Wrap(err, "encoding attachments")
	}

	// Snapshot the history before appending this turn's messages; the model
	// call receives the prior turns only.
	history := active.Messages

	userID, placeholderID := thread.NewTurnIDs()
	parts := make([]thread.Part, 0, len(attachments)+1)
	parts = append(parts, thread.TextPart(text))
	for _, attached := range attachments {
		parts = append(parts, thread.DataPart(attached.MimeType, attached.Data))
	}
	userMessage := &thread.Message{
		ID:        userID,
		Role:      thread.RoleUser,
		Parts:     parts,
		Timestamp: time.Now().UnixMicro(),
	}
	if err := s.store.Append(threadID, userMessage); err != nil {
		s.setStreaming(false)
		return nil, errors.Wrap(err, "appending user message")
	}

	placeholder := &thread.Message{
		ID:        placeholderID,
		Role:      thread.RoleModel,
		Parts:     []thread.Part{thread.TextPart("")},
		Timestamp: time.Now().UnixMicro(),
	}
	if err := s.store.Append(threadID, placeholder); err != nil {
		s.setStreaming(false)
		return nil, errors.Wrap(err, "appending placeholder message")
	}

	request := &llm.ChatRequest{
		Model:              active.Model,
		History:            history,
		Text:               text,
		UseSearchGrounding: useSearchGrounding,
		Attachments:        attachments,
	}
	deltas := make(chan Delta, 16)
	go s.stream(ctx, threadID, placeholderID, request, deltas)
	return deltas, nil
}

// stream consumes the model's delta sequence, applying each one to the
// originating thread. Updates are addressed by (threadID, placeholderID), so
// they land correctly even if the user has navigated to another thread.
func (s *Session) stream(ctx context.Context, threadID, placeholderID string, request *llm.ChatRequest, deltas chan<- Delta) {
	defer close(deltas)
	defer s.setStreaming(false)

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	stream, err := s.client.StreamChat(ctx, request)
	if err != nil {
		s.failTurn(threadID, placeholderID, err)
		return
	}
	defer stream.Close()

	var full strings.Builder
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			// Natural exhaustion; the placeholder already holds the full
			// response.
			return
		}
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// The per-turn timeout expired; unlike a user cancellation
				// this is surfaced as an error.
				s.failTurn(threadID, placeholderID, errors.Errorf("request timed out after %s", s.requestTimeout))
				return
			}
			if ctx.Err() != nil {
				// Cancelled mid-stream: finalize with the partial text.
				return
			}
			s.failTurn(threadID, placeholderID, err)
			return
		}

		full.WriteString(delta.Text)
		s.replaceParts(threadID, placeholderID, []thread.Part{thread.TextPart(full.String())})

		select {
		case deltas <- Delta{Text: delta.Text, Grounding: delta.Grounding}:
		case <-ctx.Done():
			return
		}
	}
}

// failTurn replaces the placeholder's parts entirely with a human-readable
// error description. The replacement is total: accumulated partial text is
// discarded, not appended to.
func (s *Session) failTurn(threadID, placeholderID string, turnErr error) {
	s.replaceParts(threadID, placeholderID, []thread.Part{
		thread.TextPart("Error: " + turnErr.Error()),
	})
}

func (s *Session) replaceParts(threadID, placeholderID string, parts []thread.Part) {
	if err := s.store.ReplaceParts(threadID, placeholderID, parts); err != nil {
		// Persistence failures must not corrupt the in-flight stream; warn
		// and carry on.
		log.Printf("warning: persisting thread %s: %v", threadID, err)
	}
}

func (s *Session) setStreaming(streaming bool) {
	s.mu.Lock()
	s.streaming = streaming
	s.mu.Unlock()
}
