package transfer

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flyingMooncake/SentinelKarma-sub000/metrics"
)

// Handler exposes the Service over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler wraps the service for route registration.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the transfer endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/logs", h.uploadLog)
	r.Get("/logs/{logID}", h.downloadLog)
	r.Get("/logs/{logID}/metadata", h.logMetadata)
	r.Get("/recent_logs", h.recentLogs)
	r.Get("/health", h.health)
	r.Get("/stats", h.stats)
}

// reject writes the rejection category and counts it. Only the category is
// revealed; detail stays in the logs.
func (h *Handler) reject(w http.ResponseWriter, err error) {
	metrics.RejectedRequests.WithLabelValues(reasonFor(err)).Inc()
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.svc.log.Error("transfer request failed", "err", err)
		msg = "internal error"
	}
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) uploadLog(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = r.Header.Get("filename")
	}
	if filename == "" {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}

	auth, err := h.svc.auth.Authenticate(r, func(pubkeyHex, timestamp string) []byte {
		return UploadMessage(filename, timestamp, pubkeyHex)
	})
	if err != nil {
		h.reject(w, err)
		return
	}

	result, err := h.svc.Upload(r.Context(), filename, auth.pubkeyHex, r.Body)
	if err != nil {
		h.reject(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) downloadLog(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")

	auth, err := h.svc.auth.Authenticate(r, func(pubkeyHex, timestamp string) []byte {
		return DownloadMessage(logID, timestamp, pubkeyHex)
	})
	if err != nil {
		h.reject(w, err)
		return
	}

	record, body, err := h.svc.Download(r.Context(), logID, auth.pubkeyHex)
	if err != nil {
		h.reject(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+record.Filename+"\"")
	w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	n, err := io.Copy(w, body)
	if err != nil {
		// Headers already went out; nothing to send but the abort. Give the
		// undelivered bytes back to the peer's budget.
		h.svc.log.Warn("download stream aborted", "log_id", logID, "sent", n, "err", err)
		h.svc.RefundDownload(auth.pubkeyHex, record.SizeBytes-n)
		return
	}
	h.svc.CompleteDownload()
}

func (h *Handler) logMetadata(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.Metadata(r.Context(), chi.URLParam(r, "logID"))
	if err != nil {
		h.reject(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) recentLogs(w http.ResponseWriter, r *http.Request) {
	minutes := 60
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "invalid minutes", http.StatusBadRequest)
			return
		}
		minutes = v
	}
	logs, err := h.svc.Recent(r.Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		h.reject(w, err)
		return
	}
	if logs == nil {
		logs = []StoredLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.reject(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
