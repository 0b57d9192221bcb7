// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unclebandit/wablast-backend/internal/delay"
	appErrors "github.com/unclebandit/wablast-backend/internal/errors"
	"github.com/unclebandit/wablast-backend/internal/model"
	"github.com/unclebandit/wablast-backend/internal/repository"
	"github.com/unclebandit/wablast-backend/internal/service"
	"github.com/unclebandit/wablast-backend/internal/validator"
)

type CampaignController struct {
	Scheduler *service.Scheduler
	Monitor   *service.HealthMonitor
	Progress  repository.ProgressRepositoryInterface // optional
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID         string   `json:"id"`
		Numbers    []string `json:"numbers"`
		Message    string   `json:"message"`
		MediaPath  string   `json:"media_path"`
		MediaMime  string   `json:"media_mime"`
		DelayRange string   `json:"delay_range"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if body.Message == "" && body.MediaPath == "" {
		http.Error(w, "message or media_path is required", http.StatusBadRequest)
		return
	}

	valid, invalid := validator.FormatBatch(body.Numbers)
	if invalid == nil {
		invalid = []string{}
	}
	if len(valid) == 0 {
		http.Error(w, "no valid recipients", http.StatusBadRequest)
		return
	}

	if body.DelayRange == "" {
		body.DelayRange = delay.DefaultRange
	}
	if _, _, err := delay.ParseRange(body.DelayRange); err != nil {
		http.Error(w, "invalid delay_range: "+err.Error(), http.StatusBadRequest)
		return
	}

	// Bigger batches demand a slower pace; the cap scales with the
	// chosen delay range.
	limit := delay.MaxRecipients(body.DelayRange)
	if len(valid) > limit {
		log.Printf("⚠️ Rejecting batch of %d recipients, cap for delay range %s is %d", len(valid), body.DelayRange, limit)
		http.Error(w, fmt.Sprintf("too many recipients: %d exceeds the cap of %d for delay range %s", len(valid), limit, body.DelayRange), http.StatusBadRequest)
		return
	}

	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	campaign := model.NewCampaign(body.ID, valid, model.MessagePayload{
		Text:      body.Message,
		MediaPath: body.MediaPath,
		MediaMime: body.MediaMime,
	}, body.DelayRange)
	resumedFrom := c.recoverProgress(campaign)

	startedNow := c.Scheduler.Submit(campaign)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id":     campaign.ID,
		"recipients":      len(valid),
		"invalid_numbers": invalid,
		"started":         startedNow,
		"resumed_from":    resumedFrom,
		"queue_position":  c.Scheduler.QueueLength(),
	})
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := c.Scheduler.Pause(id)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	writeCampaign(w, snap)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := c.Scheduler.Resume(id)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	writeCampaign(w, snap)
}

func (c *CampaignController) RestartCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := c.Scheduler.Restart(id)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	writeCampaign(w, snap)
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := c.Scheduler.Snapshot(id)
	if !ok {
		http.Error(w, "campaign not found", http.StatusNotFound)
		return
	}
	writeCampaign(w, snap)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns := c.Scheduler.List()
	out := make([]map[string]interface{}, 0, len(campaigns))
	for _, snap := range campaigns {
		out = append(out, campaignView(snap))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":         out,
		"active_id":    c.Scheduler.ActiveID(),
		"queue_length": c.Scheduler.QueueLength(),
	})
}

func (c *CampaignController) SessionStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c.Monitor.Status())
}

func (c *CampaignController) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"active_id":    c.Scheduler.ActiveID(),
		"queue_length": c.Scheduler.QueueLength(),
	})
}

// recoverProgress seeds a resubmitted campaign's cursor and counters
// from the persisted attempt log, so a process restart picks up where
// the previous run left off. Returns the recovered cursor, 0 for a
// fresh campaign.
func (c *CampaignController) recoverProgress(campaign *model.Campaign) int {
	if c.Progress == nil {
		return 0
	}

	next, err := c.Progress.NextIndex(campaign.ID)
	if err != nil {
		log.Printf("⚠️ Failed to read progress log for %s, starting fresh: %v", campaign.ID, err)
		return 0
	}
	if next <= 0 {
		return 0
	}
	if next > campaign.Total() {
		next = campaign.Total()
	}

	sent, failed, err := c.Progress.Counts(campaign.ID)
	if err != nil {
		log.Printf("⚠️ Failed to read progress counts for %s, starting fresh: %v", campaign.ID, err)
		return 0
	}

	campaign.CurrentIndex = next
	campaign.SentCount = sent
	campaign.FailedCount = failed
	log.Printf("🔁 Campaign %s resumes from index %d (%d sent, %d failed logged)", campaign.ID, next, sent, failed)
	return next
}

func writeCampaign(w http.ResponseWriter, snap model.Campaign) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaignView(snap))
}

func campaignView(snap model.Campaign) map[string]interface{} {
	return map[string]interface{}{
		"id":            snap.ID,
		"status":        snap.Status,
		"current_index": snap.CurrentIndex,
		"total":         snap.Total(),
		"sent":          snap.SentCount,
		"failed":        snap.FailedCount,
		"failures":      snap.Failures,
		"progress":      snap.Progress(),
		"delay_range":   snap.DelayRange,
		"created_at":    snap.CreatedAt,
		"started_at":    snap.StartedAt,
		"paused_at":     snap.PausedAt,
		"resumed_at":    snap.ResumedAt,
	}
}

func writeCampaignError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	var badState *appErrors.ErrInvalidCampaignState
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &badState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
