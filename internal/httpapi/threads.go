package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/floegence/datachat-agent/internal/ai"
	"github.com/floegence/datachat-agent/internal/ai/threadstore"
)

type threadResp struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Mode      string `json:"mode"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type threadDetailResp struct {
	threadResp
	Messages []ai.ThreadMessage `json:"messages"`
}

type threadReq struct {
	Title *string `json:"title,omitempty"`
	Mode  *string `json:"mode,omitempty"`
}

func toThreadResp(t threadstore.Thread) threadResp {
	return threadResp{
		ID:        t.ID,
		Title:     t.Title,
		Mode:      t.Mode,
		CreatedAt: unixMsRFC3339(t.CreatedAtUnixMs),
		UpdatedAt: unixMsRFC3339(t.UpdatedAtUnixMs),
	}
}

func unixMsRFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.threads.ListThreads(r.Context())
	if err != nil {
		s.internalError(w, "list threads", err)
		return
	}
	out := make([]threadResp, 0, len(threads))
	for _, t := range threads {
		out = append(out, toThreadResp(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req threadReq
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	t := threadstore.Thread{}
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Mode != nil {
		mode, err := ai.ParseMode(*req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		t.Mode = string(mode)
	}
	created, err := s.threads.CreateThread(r.Context(), t)
	if err != nil {
		if strings.Contains(err.Error(), "too long") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, "create thread", err)
		return
	}
	writeJSON(w, http.StatusCreated, toThreadResp(created))
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.threads.GetThread(r.Context(), id)
	if err != nil {
		s.threadError(w, "get thread", err)
		return
	}
	created := time.UnixMilli(t.CreatedAtUnixMs).UTC()
	msgs, err := s.chat.ThreadMessages(r.Context(), t.ID, created)
	if err != nil {
		s.internalError(w, "load thread messages", err)
		return
	}
	for i := range msgs {
		msgs[i].CreatedAt = msgs[i].CreatedAt.UTC().Truncate(time.Second)
	}
	writeJSON(w, http.StatusOK, threadDetailResp{threadResp: toThreadResp(t), Messages: msgs})
}

func (s *Server) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	var req threadReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := threadstore.ThreadUpdate{Title: req.Title}
	if req.Mode != nil {
		mode, err := ai.ParseMode(*req.Mode)
		if err != nil || mode == "" {
			writeError(w, http.StatusBadRequest, "invalid mode")
			return
		}
		m := string(mode)
		u.Mode = &m
	}
	t, err := s.threads.UpdateThread(r.Context(), r.PathValue("id"), u)
	if err != nil {
		s.threadError(w, "update thread", err)
		return
	}
	writeJSON(w, http.StatusOK, toThreadResp(t))
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.threads.DeleteThread(r.Context(), id); err != nil {
		s.threadError(w, "delete thread", err)
		return
	}
	if err := s.chat.ClearThread(r.Context(), id); err != nil {
		s.log.Warn("clear thread history failed", "thread_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) threadError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, threadstore.ErrThreadNotFound):
		writeError(w, http.StatusNotFound, "Thread not found")
	case strings.Contains(err.Error(), "too long"):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, op, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}
