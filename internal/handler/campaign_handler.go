// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/wablast-backend/internal/repository"
	"github.com/unclebandit/wablast-backend/internal/service"
)

// ProgressHandler serves the read side of campaign progress: live
// counters from the scheduler, plus the persisted attempt history when a
// database is configured.
type ProgressHandler struct {
	Scheduler *service.Scheduler
	Progress  repository.ProgressRepositoryInterface // optional
}

func NewProgressHandler(sched *service.Scheduler, progress repository.ProgressRepositoryInterface) *ProgressHandler {
	return &ProgressHandler{
		Scheduler: sched,
		Progress:  progress,
	}
}

// GetProgressHandler returns the live progress of one campaign.
func (h *ProgressHandler) GetProgressHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, ok := h.Scheduler.Snapshot(id)
	if !ok {
		http.Error(w, "campaign not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"id":            snap.ID,
		"status":        snap.Status,
		"current_index": snap.CurrentIndex,
		"total":         snap.Total(),
		"remaining":     snap.Remaining(),
		"sent":          snap.SentCount,
		"failed":        snap.FailedCount,
		"failures":      snap.Failures,
		"progress_pct":  snap.Progress(),
		"last_activity": snap.LastActivity,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetAttemptsHandler returns the persisted per-recipient attempt log.
// Only available when the progress database is configured.
func (h *ProgressHandler) GetAttemptsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.Progress == nil {
		http.Error(w, "attempt log not configured", http.StatusNotImplemented)
		return
	}

	attempts, err := h.Progress.History(id)
	if err != nil {
		log.Println("❌ Error fetching attempt history:", err)
		http.Error(w, "failed to fetch attempts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	sent, failed, err := h.Progress.Counts(id)
	if err != nil {
		http.Error(w, "failed to fetch counts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id": id,
		"sent":        sent,
		"failed":      failed,
		"attempts":    attempts,
	})
}
