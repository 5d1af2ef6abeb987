package provider

import (
	"context"
	"sync"

	"github.com/codeassist/codeassist/internal/message"
)

// Fake is a test double Adapter. It replays queued responses in order,
// records every request, and can inject an error at a given call index.
type Fake struct {
	mu sync.Mutex

	// Responses are returned in order; the last one repeats when the queue
	// runs dry.
	Responses []message.CompletionResponse

	// Calls records the options of every Stream invocation.
	Calls []CompletionOptions

	// ErrorAt injects ErrorValue on the Nth call (1-based). Zero disables.
	ErrorAt    int
	ErrorValue error

	callCount int
}

// NewFake creates a fake adapter with the given response queue.
func NewFake(responses ...message.CompletionResponse) *Fake {
	return &Fake{Responses: responses}
}

func (f *Fake) Name() string { return "fake" }

// Stream replays the next queued response as a single done chunk.
func (f *Fake) Stream(ctx context.Context, opts CompletionOptions) <-chan message.StreamChunk {
	f.mu.Lock()
	f.callCount++
	n := f.callCount
	f.Calls = append(f.Calls, opts)

	var chunk message.StreamChunk
	if f.ErrorAt > 0 && n == f.ErrorAt {
		chunk = message.StreamChunk{Type: message.ChunkTypeError, Error: f.ErrorValue}
	} else {
		resp := f.next()
		chunk = message.StreamChunk{Type: message.ChunkTypeDone, Response: &resp}
	}
	f.mu.Unlock()

	ch := make(chan message.StreamChunk, 2)
	go func() {
		defer close(ch)
		select {
		case <-ctx.Done():
			ch <- message.StreamChunk{Type: message.ChunkTypeError, Error: ctx.Err()}
		case ch <- chunk:
		}
	}()
	return ch
}

// CallCount returns how many times Stream has been invoked.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

func (f *Fake) next() message.CompletionResponse {
	if len(f.Responses) == 0 {
		return message.CompletionResponse{StopReason: "end_turn"}
	}
	resp := f.Responses[0]
	if len(f.Responses) > 1 {
		f.Responses = f.Responses[1:]
	}
	return resp
}

var _ Adapter = (*Fake)(nil)
