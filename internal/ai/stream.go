package ai

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
)

// SSEStream writes events as Server-Sent Events frames and flushes after each one.
type SSEStream struct {
	mu sync.Mutex
	w  io.Writer
	f  http.Flusher
}

// NewSSEStream sets the event-stream headers on w and returns a writer for it.
func NewSSEStream(w http.ResponseWriter) *SSEStream {
	var f http.Flusher
	if w != nil {
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		if fl, ok := w.(http.Flusher); ok {
			f = fl
		}
	}
	return &SSEStream{w: w, f: f}
}

// Send writes "event: <kind>\ndata: <json>\n\n".
func (s *SSEStream) Send(ev Event) error {
	if s == nil || s.w == nil {
		return errors.New("stream not ready")
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	frame := make([]byte, 0, len(b)+len(ev.Kind)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, ev.Kind...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, b...)
	frame = append(frame, '\n', '\n')
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if s.f != nil {
		s.f.Flush()
	}
	return nil
}
