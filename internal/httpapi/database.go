package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/floegence/datachat-agent/internal/ai/tools"
)

const (
	defaultPreviewLimit = 10
	maxPreviewLimit     = 1000
)

type tableSchema struct {
	Name string `json:"name"`
	Info string `json:"info"`
}

type schemaResp struct {
	Tables []tableSchema `json:"tables"`
}

type tablePreviewResp struct {
	TableName string `json:"table_name"`
	Result    string `json:"result"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	names, err := s.db.UsableTableNames(r.Context())
	if err != nil {
		s.internalError(w, "list tables", err)
		return
	}
	out := schemaResp{Tables: make([]tableSchema, 0, len(names))}
	for _, name := range names {
		info, err := s.db.TableInfo(r.Context(), []string{name})
		if err != nil {
			s.internalError(w, "table info", err)
			return
		}
		out.Tables = append(out.Tables, tableSchema{Name: name, Info: info})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTablePreview(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit := defaultPreviewLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxPreviewLimit)
	}
	result, err := s.db.Preview(r.Context(), name, limit)
	if err != nil {
		if errors.Is(err, tools.ErrTableNotFound) {
			writeError(w, http.StatusNotFound, "Table '"+name+"' not found")
			return
		}
		s.internalError(w, "preview table", err)
		return
	}
	writeJSON(w, http.StatusOK, tablePreviewResp{TableName: name, Result: result})
}
