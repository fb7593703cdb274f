package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"botadmin/internal/audit"
	"botadmin/internal/config"
	"botadmin/internal/domain"
	"botadmin/internal/ingest"
)

const maxDocumentBytes = 1 << 20

type Server struct {
	configs  *config.Manager
	auditLog *audit.Logger
	sources  ingest.SourceStore
	ingester *ingest.Service
}

// NewServer builds the admin config API. All routes except /health require
// a bearer token; mutations additionally require the editor or admin role.
func NewServer(configs *config.Manager, auditLog *audit.Logger, sources ingest.SourceStore, ingester *ingest.Service, secret []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{configs: configs, auditLog: auditLog, sources: sources, ingester: ingester}

	r.Get("/health", s.health)

	r.Group(func(r chi.Router) {
		r.Use(Auth(secret))

		r.Get("/config/tasks", s.listTasks)
		r.Get("/config/tasks/{name}", s.getTask)
		r.Put("/config/tasks/{name}", RequireWriter(s.putTask))
		r.Put("/config/tasks/{name}/toggle", RequireWriter(s.toggleTask))
		r.Post("/config/tasks/{name}/invalidate", RequireWriter(s.invalidateTask))

		r.Get("/audit/records", s.listAudit)

		r.Get("/content/sources", s.listSources)
		r.Post("/content/sources", RequireWriter(s.createSource))
		r.Post("/content/sources/{id}/ingest", RequireWriter(s.ingestSource))
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var (
		configs []domain.TaskConfig
		err     error
	)
	if r.URL.Query().Get("enabled") == "true" {
		configs, err = s.configs.ListEnabled(r.Context())
	} else {
		configs, err = s.configs.List(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tc, err := s.configs.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) putTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		http.Error(w, "body too large or unreadable", http.StatusBadRequest)
		return
	}
	tc, err := s.configs.Put(r.Context(), name, doc, actor(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) toggleTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		http.Error(w, "enabled must be true or false", http.StatusBadRequest)
		return
	}
	tc, err := s.configs.Toggle(r.Context(), name, enabled, actor(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) invalidateTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.configs.Invalidate(name); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		ActionType: q.Get("action_type"),
		ActionName: q.Get("action_name"),
	}
	if v := q.Get("success"); v != "" {
		success, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "success must be true or false", http.StatusBadRequest)
			return
		}
		f.Success = &success
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	records, err := s.auditLog.List(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type createSourceReq struct {
	Name       string `json:"name"`
	SourceType string `json:"source_type"`
	Location   string `json:"location"`
	Collection string `json:"collection"`
	Enabled    bool   `json:"enabled"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Location == "" {
		http.Error(w, "name and location are required", http.StatusBadRequest)
		return
	}
	if req.SourceType != "file" && req.SourceType != "dir" {
		http.Error(w, "source_type must be file or dir", http.StatusBadRequest)
		return
	}
	src, err := s.sources.Create(r.Context(), domain.ContentSource{
		Name:       req.Name,
		SourceType: req.SourceType,
		Location:   req.Location,
		Collection: req.Collection,
		Enabled:    req.Enabled,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) ingestSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stats, err := s.ingester.IngestSource(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"issues": ve.Issues,
		})
		return
	}
	if errors.Is(err, config.ErrNotFound) || errors.Is(err, ingest.ErrSourceNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	var pw *config.PartialWriteError
	if errors.As(err, &pw) {
		// The document is committed; only the invalidation needs a retry.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "config written but cache invalidation failed",
			"code":      "partial_write",
			"task_name": pw.TaskName,
		})
		return
	}
	var su *config.StoreUnavailableError
	if errors.As(err, &su) {
		http.Error(w, "config store unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
