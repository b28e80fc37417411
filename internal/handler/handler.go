package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"footprint/internal/codec"
	"footprint/internal/domain"
	"footprint/internal/module"
	"footprint/internal/repository"
	"footprint/internal/service"
)

// ScanHandler handles scan API requests
type ScanHandler struct {
	svc      *service.ScanService
	registry *module.Registry
	logger   *log.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(svc *service.ScanService, registry *module.Registry, logger *log.Logger) *ScanHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &ScanHandler{svc: svc, registry: registry, logger: logger}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScanDetail is a stored scan plus live module state while it runs
type ScanDetail struct {
	*repository.Scan
	Running bool                   `json:"running"`
	States  []module.StateSnapshot `json:"module_states,omitempty"`
}

// CreateScan starts a scan. With ?wait=true the request blocks until the
// scan finishes and returns its result.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	var req service.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		h.writeError(w, "Target is required", "", http.StatusBadRequest)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		res, err := h.svc.Run(r.Context(), req)
		if err != nil && res == nil {
			h.fail(w, "Failed to run scan", err)
			return
		}
		h.writeJSON(w, res, http.StatusOK)
		return
	}

	scan, err := h.svc.Start(r.Context(), req)
	if err != nil {
		h.fail(w, "Failed to start scan", err)
		return
	}
	h.writeJSON(w, scan, http.StatusAccepted)
}

// ListScans returns every stored scan
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, "Failed to list scans", err)
		return
	}
	if scans == nil {
		scans = []*repository.Scan{}
	}
	h.writeJSON(w, scans, http.StatusOK)
}

// GetScan returns one scan
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	scan, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get scan", err)
		return
	}

	detail := ScanDetail{Scan: scan}
	if states, ok := h.svc.ModuleStates(id); ok {
		detail.Running = true
		detail.States = states
	}
	h.writeJSON(w, detail, http.StatusOK)
}

// StopScan asks a running scan to stop
func (h *ScanHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Stop(id); err != nil {
		h.fail(w, "Failed to stop scan", err)
		return
	}
	h.writeJSON(w, map[string]string{"id": id, "status": "stopping"}, http.StatusAccepted)
}

// DeleteScan stops a scan if needed and removes it with its events
func (h *ScanHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "Failed to delete scan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents returns a scan's stored events. Query: types (comma-separated),
// limit.
func (h *ScanHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := repository.EventFilter{Types: splitList(r.URL.Query().Get("types"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit", v, http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	events, err := h.svc.Events(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		h.fail(w, "Failed to list events", err)
		return
	}
	if events == nil {
		events = []repository.EventRecord{}
	}
	h.writeJSON(w, events, http.StatusOK)
}

// GetGraph exports a scan's entity graph. Query: format (json, gexf, yaml),
// types (entity types to keep).
func (h *ScanHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if _, err := codec.Lookup(format); err != nil {
		h.writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	// render before writing so failures still get a proper status
	var buf bytes.Buffer
	if err := h.svc.Graph(r.Context(), chi.URLParam(r, "id"), format, splitList(r.URL.Query().Get("types")), &buf); err != nil {
		h.fail(w, "Failed to export graph", err)
		return
	}
	w.Header().Set("Content-Type", codec.ContentType(format))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("failed to write graph", "error", err)
	}
}

// GetTree returns the nested event tree of a scan
func (h *ScanHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.Tree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to build tree", err)
		return
	}
	h.writeJSON(w, tree, http.StatusOK)
}

// GetConfig returns the flattened options a scan ran with
func (h *ScanHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.ScanConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get scan config", err)
		return
	}
	h.writeJSON(w, cfg, http.StatusOK)
}

// ListModules returns every registered module with its configuration
func (h *ScanHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.registry.List(), http.StatusOK)
}

// Healthz reports that the server is up
func (h *ScanHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrScanNotRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTargetType),
		errors.Is(err, domain.ErrEmptyTarget),
		errors.Is(err, service.ErrUnknownModule),
		errors.Is(err, service.ErrNoModules),
		errors.Is(err, codec.ErrUnknownFormat):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *ScanHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	}
	h.writeError(w, msg, err.Error(), status)
}

func (h *ScanHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *ScanHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
