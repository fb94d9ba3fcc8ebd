package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/filevet/filevet/internal/pipeline"
	"github.com/filevet/filevet/internal/record"
	"github.com/filevet/filevet/internal/storage"
)

// handleUpload ingests one file under the policy named by {kind}.
// The multipart part is handed to the pipeline unread; all validation
// happens behind the trust boundary.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	policy, ok := s.policies[kind]
	if !ok {
		http.Error(w, `{"error":"unknown upload kind"}`, http.StatusNotFound)
		return
	}

	// Bound the request body itself; the pipeline enforces the per-file
	// ceiling independently.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Pipeline.MaxFileSize + (1 << 20)) // per-file ceiling plus multipart framing

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, pipeline.ErrMissingPayload)
		return
	}
	file.Close()

	if err := storage.ValidateFilename(header.Filename); err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.processor.Process(r.Context(), header, policy)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, rec)
}

// handleGetFile returns the metadata record for a stored file.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.records.Find(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// handleGetFileByHash returns the most recent record whose content hash
// matches, scoped to a namespace.
func (s *Server) handleGetFileByHash(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	hash := chi.URLParam(r, "hash")

	rec, err := s.records.FindByHash(r.Context(), namespace, hash)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// handleDeleteFile removes a file's bytes (primary and variants) and
// its metadata record.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.records.Find(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	locations := []string{rec.StoragePath}
	for _, v := range rec.Variants {
		locations = append(locations, v.StoragePath)
	}
	for _, loc := range locations {
		if err := s.store.Delete(r.Context(), loc); err != nil && !isNotExist(err) {
			s.respondError(w, r, &pipeline.StorageError{Op: "delete", Location: loc, Err: err})
			return
		}
	}

	if err := s.records.Delete(r.Context(), id); err != nil && !errors.Is(err, record.ErrNotFound) {
		s.respondError(w, r, &pipeline.StorageError{Op: "delete record", Location: id, Err: err})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports service health and pipeline backpressure state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uploads": s.processor.LimiterStatus(),
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func isNotExist(err error) bool {
	return errors.Is(err, storage.ErrNotExist)
}
