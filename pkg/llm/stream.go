package llm

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/solar/internal/models"
)

// Stream is a finite, non-restartable sequence of completion fragments.
// Read Chunks until it is closed, then check Err.
type Stream struct {
	chunks chan string
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Err returns the terminal error. It blocks until the producer has finished.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Close stops the producer and aborts the underlying request.
func (s *Stream) Close() {
	s.cancel()
	for range s.chunks {
	}
	<-s.done
}

// Collect drains the stream into a single string.
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for chunk := range s.chunks {
		sb.WriteString(chunk)
	}
	return sb.String(), s.Err()
}

// StreamGenerate starts a streaming completion. Empty fragments are dropped.
// Connection failures are retried only until the first fragment has been delivered.
func (c *Client) StreamGenerate(ctx context.Context, messages []models.Message, model string, options ...llms.CallOption) *Stream {
	if model == "" {
		model = c.config.ChatModel
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	content := toMessageContent(messages)
	var delivered atomic.Bool

	push := func(ctx context.Context, chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		select {
		case s.chunks <- string(chunk):
			delivered.Store(true)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	opts := make([]llms.CallOption, 0, len(options)+2)
	opts = append(opts, llms.WithModel(model))
	opts = append(opts, options...)
	opts = append(opts, llms.WithStreamingFunc(push))

	go func() {
		defer close(s.done)
		defer close(s.chunks)
		defer cancel()

		s.err = c.do(ctx, "stream completion", func(ctx context.Context) error {
			c.logger.Info("Generating stream completion",
				slog.String("model", model),
				slog.Int("messages", len(messages)))

			_, err := c.backend.GenerateContent(ctx, content, opts...)
			if err != nil && delivered.Load() {
				return backoff.Permanent(err)
			}
			return err
		})
	}()

	return s
}
