package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/HendryAvila/zenyth/internal/cli"
)

// sseWriter emits chat.completion.chunk events for one completion.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	id      string
	model   string
	created int64
}

func (s *sseWriter) data(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) chunk(delta Delta, finish *string) error {
	return s.data(ChatCompletionChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	})
}

func (s *sseWriter) done() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// streamCompletion relays the tool's text events as SSE chunks: a role
// delta, content deltas, a finish chunk and the [DONE] marker. Failures
// before the first byte get a JSON error response; later failures are
// sent as an error event followed by [DONE].
func (s *Server) streamCompletion(ctx context.Context, w http.ResponseWriter, log *slog.Logger, model, prompt string, opts cli.Options) {
	events, err := s.tool.Stream(ctx, prompt, opts)
	if err != nil {
		log.Error("cli stream failed to start", "error", err)
		writeError(w, http.StatusInternalServerError, ErrTypeServer, serverErrorMessage(err))
		return
	}

	flusher, _ := w.(http.Flusher)
	out := &sseWriter{w: w, flusher: flusher, id: newCompletionID(), model: model, created: timeNow().Unix()}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := out.chunk(Delta{Role: "assistant"}, nil); err != nil {
		log.Warn("client went away", "error", err)
		return
	}

	streamed := false
	for ev := range events {
		switch ev.Type {
		case cli.EventText:
			if ev.Content == "" {
				continue
			}
			streamed = true
			if err := out.chunk(Delta{Content: ev.Content}, nil); err != nil {
				log.Warn("client went away", "error", err)
				return
			}
		case cli.EventResult:
			if ev.Result != nil && ev.Result.IsError {
				log.Error("cli stream returned an error result", "error", ev.Result.Text)
				_ = out.data(ErrorEnvelope{Error: ErrorBody{Message: serverErrorMessage(&cli.ExitError{Code: 1, Stderr: ev.Result.Text}), Type: ErrTypeServer}})
				out.done()
				return
			}
			if !streamed && ev.Result != nil && ev.Result.Text != "" {
				if err := out.chunk(Delta{Content: ev.Result.Text}, nil); err != nil {
					return
				}
			}
			stop := "stop"
			_ = out.chunk(Delta{}, &stop)
			out.done()
			s.markSession()
			return
		case cli.EventError:
			log.Error("cli stream failed", "error", ev.Err)
			_ = out.data(ErrorEnvelope{Error: ErrorBody{Message: serverErrorMessage(ev.Err), Type: ErrTypeServer}})
			out.done()
			return
		}
	}
	// The channel closed without a terminal event: the request was
	// cancelled.
	log.Warn("cli stream ended early", "error", ctx.Err())
}
