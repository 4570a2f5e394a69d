// Package http exposes the document metadata API. The editing path is
// websocket-only; these endpoints cover creation, listing, inspection, and
// deletion.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
	"github.com/vishu2124/OT-editor/internal/usecase"
)

// Handler handles the REST endpoints.
type Handler struct {
	manager *usecase.EngineManager
	store   domain.DocumentStore
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(manager *usecase.EngineManager, store domain.DocumentStore, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, store: store, logger: logger}
}

type createRequest struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// Documents routes /api/documents: POST creates, GET lists.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createDocument(w, r)
	case http.MethodGet:
		h.listDocuments(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Document routes /api/documents/{id} and /api/documents/{id}/stats.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "missing document id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getDocument(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		h.deleteDocument(w, r, id)
	case sub == "stats" && r.Method == http.MethodGet:
		h.getStats(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Healthz reports liveness and the number of live engines.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"activeDocuments": h.manager.ActiveCount(),
	})
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	doc, err := h.store.Create(r.Context(), req.ID, req.Title, req.UserID)
	if err != nil {
		h.logger.Error("failed to create document", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create document")
		return
	}
	writeJSON(w, http.StatusCreated, domain.Snapshot{
		ID:          doc.ID,
		Title:       doc.Title,
		Content:     doc.Content,
		Version:     doc.Version,
		Metadata:    doc.Metadata,
		ActiveUsers: []domain.Presence{},
	})
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": ids})
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	snap, err := h.manager.Snapshot(r.Context(), id)
	if err != nil {
		h.writeLoadError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request, id string) {
	stats, err := h.manager.Stats(r.Context(), id)
	if err != nil {
		h.writeLoadError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	err := h.manager.Delete(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrDocumentActive):
		writeError(w, http.StatusConflict, "document has active sessions")
	case err != nil:
		h.logger.Error("failed to delete document",
			zap.String("document_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete document")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) writeLoadError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound), errors.Is(err, domain.ErrCorruptSnapshot):
		writeError(w, http.StatusNotFound, "document not found")
	default:
		h.logger.Error("failed to load document",
			zap.String("document_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load document")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
