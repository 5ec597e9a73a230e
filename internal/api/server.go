// Package api serves the catalog and the import operations over HTTP.
package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"chatvault/internal/metrics"
	"chatvault/internal/models"
	"chatvault/internal/reconcile"
	"chatvault/internal/storage"
)

// maxUploadBytes bounds one import request.
const maxUploadBytes = 1 << 30

// Server wraps the HTTP handlers for the import API.
type Server struct {
	importer *reconcile.Importer
	log      zerolog.Logger
}

// New creates a new Server instance.
func New(im *reconcile.Importer, log zerolog.Logger) *Server {
	return &Server{importer: im, log: log.With().Str("component", "api").Logger()}
}

// Router returns a router with every route registered.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

// Register wires the API routes onto r.
func (s *Server) Register(r *mux.Router) {
	r.Use(recoverMiddleware(s.log))

	r.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog", s.listCatalog).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/prune", s.pruneCatalog).Methods(http.MethodPost)
	r.HandleFunc("/api/catalog/{id}", s.getEntry).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/{id}", s.deleteEntry).Methods(http.MethodDelete)
	r.HandleFunc("/api/imports", s.createImport).Methods(http.MethodPost)
	r.HandleFunc("/api/notes", s.importNote).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.importer.Entries(r.Context())
	if err != nil {
		s.log.Error().Stack().Err(err).Msg("Failed to list catalog")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.CatalogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": entries,
	})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.importer.Entry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.importer.Forget(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pruneCatalog(w http.ResponseWriter, r *http.Request) {
	removed, err := s.importer.Prune(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if removed == nil {
		removed = []models.CatalogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error().Stack().Err(err).Msg("Catalog request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

type importResponse struct {
	reconcile.BatchOutcome
	Report      string `json:"report"`
	ReportError string `json:"reportError,omitempty"`
	// Error is set when catalog state could not be loaded or saved. Notes
	// listed in the report may already have been written.
	Error string `json:"error,omitempty"`
}

// createImport accepts either a multipart form with one or more "archive"
// files, or a raw body named by the "name" query parameter. "force=true"
// re-processes archives that were imported before.
func (s *Server) createImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	inputs, err := readArchives(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); force {
		ctx = reconcile.WithConfirmer(ctx, reconcile.AlwaysReimport)
	}

	out, err := s.importer.ImportBatch(ctx, inputs)
	s.writeOutcome(w, out, err)
}

func (s *Server) importNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	defer r.Body.Close()

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		writeError(w, http.StatusBadRequest, "note body is required")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "note.md"
	}

	out, err := s.importer.ReconcileSingleNote(r.Context(), string(data), name)
	s.writeOutcome(w, out, err)
}

func (s *Server) writeOutcome(w http.ResponseWriter, out reconcile.BatchOutcome, err error) {
	status := http.StatusOK
	resp := importResponse{BatchOutcome: out}
	if err != nil {
		s.log.Error().Stack().Err(err).Str("batch_id", out.BatchID).Msg("Import finished with a state error")
		status = http.StatusInternalServerError
		resp.Error = err.Error()
	}
	if out.Report != nil {
		resp.Report = out.Report.Render()
	}
	if out.ReportErr != nil {
		resp.ReportError = out.ReportErr.Error()
	}
	writeJSON(w, status, resp)
}

func readArchives(r *http.Request) ([]reconcile.ArchiveInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		defer r.Body.Close()
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("archive body is required")
		}
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			name = "upload.zip"
		}
		return []reconcile.ArchiveInput{{Name: name, Data: data, ExportedAt: exportedAt(r.URL.Query().Get("exportedAt"))}}, nil
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	var inputs []reconcile.ArchiveInput
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "archive" || part.FileName() == "" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, reconcile.ArchiveInput{
			Name:       part.FileName(),
			Data:       data,
			ExportedAt: exportedAt(part.Header.Get("X-Exported-At")),
		})
	}
	if len(inputs) == 0 {
		return nil, errors.New(`no "archive" files in form`)
	}
	return inputs, nil
}

// exportedAt parses an RFC 3339 time; anything else sorts first.
func exportedAt(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return t
}
