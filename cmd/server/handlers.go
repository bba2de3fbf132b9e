package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/gosimulado"
	"github.com/brunobiangulo/gosimulado/export"
	"github.com/brunobiangulo/gosimulado/store"
)

type handler struct {
	engine gosimulado.Engine
}

func newHandler(e gosimulado.Engine) *handler {
	return &handler{engine: e}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gosimulado.ErrDocumentNotFound), errors.Is(err, gosimulado.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, gosimulado.ErrUnsupportedBackend):
		return http.StatusBadRequest
	case errors.Is(err, gosimulado.ErrNoQuestions), errors.Is(err, gosimulado.ErrLoadFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gosimulado.ErrStoreDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// documentRequest is the JSON alternative to a multipart upload.
type documentRequest struct {
	Path    string `json:"path"`
	Backend string `json:"backend,omitempty"`
	Force   bool   `json:"force,omitempty"`
}

// resolveDocument returns a local path for the request's document: an
// uploaded "file" part saved to a temp dir, or a JSON path that must name
// an existing file. cleanup must be called when done.
func resolveDocument(r *http.Request) (path string, req documentRequest, cleanup func(), status int, msg string) {
	cleanup = func() {}

	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			tmpDir, err := os.MkdirTemp("", "gosimulado-upload-")
			if err != nil {
				slog.Error("creating temp dir", "error", err)
				return "", req, cleanup, http.StatusInternalServerError, "failed to process file"
			}
			cleanup = func() { os.RemoveAll(tmpDir) }

			// Sanitise filename to prevent path traversal; the extension
			// selects the loader.
			tmpPath := filepath.Join(tmpDir, filepath.Base(header.Filename))
			dst, err := os.Create(tmpPath)
			if err != nil {
				slog.Error("creating temp file", "error", err)
				return "", req, cleanup, http.StatusInternalServerError, "failed to process file"
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				slog.Error("saving uploaded file", "error", err)
				return "", req, cleanup, http.StatusInternalServerError, "failed to save file"
			}
			dst.Close()

			req.Backend = r.FormValue("backend")
			req.Force = r.FormValue("force") == "true"
			return tmpPath, req, cleanup, 0, ""
		}
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", req, cleanup, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'"
	}
	if req.Path == "" {
		return "", req, cleanup, http.StatusBadRequest, "path is required"
	}

	// Validate that path is a real file (prevents directory traversal probing).
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		return "", req, cleanup, http.StatusBadRequest, "invalid path"
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		return "", req, cleanup, http.StatusBadRequest, "path must be an existing file"
	}
	return absPath, req, cleanup, 0, ""
}

// POST /extract
// Runs the pipeline and returns the rows as JSON, or as CSV with ?format=csv.
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	path, req, cleanup, status, msg := resolveDocument(r)
	defer cleanup()
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	var opts []gosimulado.Option
	if req.Backend != "" {
		opts = append(opts, gosimulado.WithBackend(req.Backend))
	}

	res, err := h.engine.Extract(ctx, path, opts...)
	if err != nil {
		writeError(w, statusFor(err), "extraction failed: "+err.Error())
		slog.Error("extract error", "file", filepath.Base(path), "error", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="simulados.csv"`)
		if err := export.WriteCSV(w, res.Rows); err != nil {
			slog.Error("writing csv response", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /ingest
// Accepts multipart file upload or JSON with file path.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	path, req, cleanup, status, msg := resolveDocument(r)
	defer cleanup()
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	var opts []gosimulado.Option
	if req.Backend != "" {
		opts = append(opts, gosimulado.WithBackend(req.Backend))
	}
	if req.Force {
		opts = append(opts, gosimulado.WithForceReparse())
	}

	docID, err := h.engine.Ingest(ctx, path, opts...)
	if err != nil {
		writeError(w, statusFor(err), "ingestion failed")
		slog.Error("ingest error", "file", filepath.Base(path), "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": docID,
		"filename":    filepath.Base(path),
	})
}

// POST /update
func (h *handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	changed, err := h.engine.Update(ctx, req.Path)
	if err != nil {
		writeError(w, statusFor(err), "update failed")
		slog.Error("update error", "path", req.Path, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":    req.Path,
		"changed": changed,
	})
}

// POST /update-all
func (h *handler) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	results, err := h.engine.UpdateAll(ctx)
	if err != nil {
		writeError(w, statusFor(err), "update-all failed")
		slog.Error("update-all error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		writeError(w, statusFor(err), "delete failed")
		slog.Error("delete error", "document_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
	})
}

// GET /questions?document_id=&exam=&theme=&limit=&offset=
func (h *handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.QuestionFilter
	var err error
	if f.DocumentID, err = queryInt64(q.Get("document_id")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document_id")
		return
	}
	ints := []struct {
		name string
		dst  *int
	}{{"exam", &f.ExamNumber}, {"limit", &f.Limit}, {"offset", &f.Offset}}
	for _, p := range ints {
		n, err := queryInt64(q.Get(p.name))
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+p.name)
			return
		}
		*p.dst = int(n)
	}
	f.Theme = q.Get("theme")
	if f.Limit == 0 || f.Limit > 1000 {
		f.Limit = 100
	}

	questions, err := h.engine.ListQuestions(r.Context(), f)
	if err != nil {
		writeError(w, statusFor(err), "failed to list questions")
		slog.Error("list questions error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
	})
}

// GET /questions/{id}
func (h *handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q, err := h.engine.GetQuestion(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "failed to load question")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GET /questions/{id}/images/{n}
// Serves the n-th (0-based) image of a question.
func (h *handler) handleQuestionImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid image index")
		return
	}
	q, err := h.engine.GetQuestion(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "failed to load question")
		return
	}
	if n >= len(q.Images) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	img := q.Images[n]
	w.Header().Set("Content-Type", http.DetectContentType(img.Data))
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// GET /questions/{id}/similar?k=
func (h *handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	k, err := queryInt64(r.URL.Query().Get("k"))
	if err != nil || k < 0 || k > 100 {
		writeError(w, http.StatusBadRequest, "invalid k")
		return
	}
	results, err := h.engine.Similar(r.Context(), id, int(k))
	if err != nil {
		writeError(w, statusFor(err), "similarity search failed")
		slog.Error("similar error", "question_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// GET /search?q=&limit=
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryInt64(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 || limit > 100 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	results, err := h.engine.Search(r.Context(), query, int(limit))
	if err != nil {
		writeError(w, statusFor(err), "search failed")
		slog.Error("search error", "q", query, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s := h.engine.Store(); s != nil {
		if stats, err := s.DBStats(r.Context()); err == nil {
			resp["db"] = stats
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// pathID parses the {id} path value, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional integer query value; empty is zero.
func queryInt64(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
