package reconcile

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hasanat-app/hasanat/internal/pkg/httputil"
)

// maxBodyBytes bounds a sync request body. The legacy path can carry a whole
// local history, so this is generous.
const maxBodyBytes = 4 << 20

// Handler handles HTTP requests for the reconciliation endpoint.
type Handler struct {
	service *Service
}

// NewHandler creates a reconciliation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers sync routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sync", h.Sync)
}

// Sync handles POST /sync. The wire format is detected by payload shape: a
// JSON array is a typed batch of queue entries, a JSON object is the legacy
// bulk payload. There is no version field.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "unreadable body")
		return
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		httputil.Error(w, http.StatusBadRequest, "empty body")
		return
	}

	switch trimmed[0] {
	case '[':
		h.syncBatch(w, r, userID, trimmed)
	case '{':
		h.syncLegacy(w, r, userID, trimmed)
	default:
		httputil.Error(w, http.StatusBadRequest, "invalid json")
	}
}

func (h *Handler) syncBatch(w http.ResponseWriter, r *http.Request, userID string, body []byte) {
	var entries []SyncEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(entries) == 0 {
		httputil.Error(w, http.StatusBadRequest, "empty batch")
		return
	}

	resp := h.service.ApplyBatch(r.Context(), userID, entries)
	httputil.JSON(w, http.StatusOK, resp)
}

func (h *Handler) syncLegacy(w http.ResponseWriter, r *http.Request, userID string, body []byte) {
	var payload LegacyBulkPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.Empty() {
		httputil.Error(w, http.StatusBadRequest, "empty payload")
		return
	}

	resp, err := h.service.ApplyLegacy(r.Context(), userID, payload)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.JSON(w, http.StatusOK, resp)
}
