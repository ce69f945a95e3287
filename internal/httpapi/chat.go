package httpapi

import (
	"errors"
	"net/http"

	"github.com/floegence/datachat-agent/internal/ai"
)

type chatReq struct {
	ThreadID string `json:"thread_id"`
	Question string `json:"question"`
	Mode     string `json:"mode,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := ai.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := s.chat.Chat(r.Context(), ai.ChatRequest{ThreadID: req.ThreadID, Question: req.Question, Mode: mode})
	if err != nil {
		if errors.Is(err, ai.ErrInvalidRequest) || errors.Is(err, ai.ErrUnknownMode) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("chat setup failed", "thread_id", req.ThreadID, "error", err)
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	stream := ai.NewSSEStream(w)
	w.WriteHeader(http.StatusOK)
	for ev, err := range turn.Events {
		if err != nil {
			// The stream ends without a done event; the client treats that as a failure.
			s.log.Error("chat turn failed", "thread_id", req.ThreadID, "mode", turn.Mode, "error", err)
			return
		}
		if err := stream.Send(ev); err != nil {
			s.log.Warn("chat stream write failed", "thread_id", req.ThreadID, "error", err)
			return
		}
	}
}
