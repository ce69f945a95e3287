package httpapi

import (
	"errors"
	"net/http"

	"github.com/floegence/datachat-agent/internal/ai/threadstore"
	"github.com/floegence/datachat-agent/internal/knowledge"
)

// Multipart framing on top of the file itself.
const uploadOverhead = 1 << 20

type documentResp struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	FileType     string `json:"file_type"`
	FileSize     int64  `json:"file_size"`
	Status       string `json:"status"`
	ChunkCount   int    `json:"chunk_count"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toDocumentResp(d threadstore.Document) documentResp {
	return documentResp{
		ID:           d.ID,
		Filename:     d.Filename,
		FileType:     d.FileType,
		FileSize:     d.FileSize,
		Status:       d.Status,
		ChunkCount:   d.ChunkCount,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    unixMsRFC3339(d.CreatedAtUnixMs),
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.List(r.Context())
	if err != nil {
		s.internalError(w, "list documents", err)
		return
	}
	out := make([]documentResp, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResp(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.docs.MaxFileSize()+uploadOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusBadRequest, knowledge.ErrFileTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	doc, err := s.docs.Upload(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, knowledge.ErrFileTypeNotAllowed),
			errors.Is(err, knowledge.ErrFileTooLarge),
			errors.Is(err, knowledge.ErrMissingFilename):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, "upload document", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResp(doc))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.documentError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResp(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.documentError(w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) documentError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, threadstore.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	s.internalError(w, op, err)
}
