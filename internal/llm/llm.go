// Package llm defines the contract with the model backend: a request built
// from a thread's history and a lazy stream of incremental text deltas.
package llm

import (
	"context"
	"encoding/json"

	"github.com/malonaz/wgpt/internal/attachment"
	"github.com/malonaz/wgpt/internal/thread"
)

// ChatRequest describes one turn sent to the model.
type ChatRequest struct {
	// Model identifier bound to the thread.
	Model string
	// Prior turns, excluding the new user message and its placeholder.
	History []*thread.Message
	// The new user text.
	Text string
	// Whether the model may consult web search to ground its answer.
	UseSearchGrounding bool
	// Encoded attachments for the new turn.
	Attachments []attachment.Attachment
}

// Delta is one incremental fragment of model output. Text is a suffix to be
// appended to the response so far, never the full text.
type Delta struct {
	Text string
	// Grounding metadata, when the backend consulted a search capability.
	// Opaque to this package. The OpenAI-compatible backend emits none; it
	// stays nil there and is omitted from views downstream.
	Grounding json.RawMessage
}

// Stream is a lazy, finite sequence of deltas. Recv returns io.EOF once the
// sequence is exhausted.
type Stream interface {
	Recv() (*Delta, error)
	Close()
}

// Client is the model-call collaborator.
type Client interface {
	StreamChat(ctx context.Context, request *ChatRequest) (Stream, error)
}
