package service

import (
	"context"
	"log"
	"sync"
	"time"

	appErrors "github.com/unclebandit/wablast-backend/internal/errors"
	"github.com/unclebandit/wablast-backend/internal/model"
	"github.com/unclebandit/wablast-backend/internal/queue"
	"github.com/unclebandit/wablast-backend/internal/store"
)

// Scheduler admits campaigns, enforces at-most-one-active execution and
// advances the strict FIFO queue as campaigns finish or pause.
type Scheduler struct {
	Store  *store.CampaignStore
	Sender *Sender
	Bus    queue.Bus

	ctx context.Context

	mu       sync.Mutex
	pending  []*model.Campaign
	activeID string
}

func NewScheduler(ctx context.Context, st *store.CampaignStore, sender *Sender, bus queue.Bus) *Scheduler {
	s := &Scheduler{
		Store:  st,
		Sender: sender,
		Bus:    bus,
		ctx:    ctx,
	}
	sender.OnComplete = s.CompleteActive
	return s
}

// Submit enqueues a campaign. When no campaign is running it is
// activated immediately; otherwise it waits its turn in FIFO order.
// Returns true when the campaign started right away.
func (s *Scheduler) Submit(c *model.Campaign) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Status = model.StatusPending
	s.pending = append(s.pending, c)
	log.Printf("📨 Campaign %s submitted with %d recipients (queue length %d)", c.ID, c.Total(), len(s.pending))

	if s.activeID == "" {
		s.promoteLocked()
		return true
	}
	return false
}

// promoteLocked activates the head of the pending queue. Caller holds mu.
func (s *Scheduler) promoteLocked() {
	if len(s.pending) == 0 {
		s.activeID = ""
		return
	}

	c := s.pending[0]
	s.pending = s.pending[1:]

	now := time.Now()
	c.Status = model.StatusActive
	c.IsPaused = false
	if c.StartedAt == nil {
		c.StartedAt = &now
	} else {
		c.ResumedAt = &now
	}
	c.Touch()

	s.Store.PutActive(c)
	s.activeID = c.ID

	s.publish(queue.Event{
		Type:       queue.EventCampaignStarted,
		CampaignID: c.ID,
		Sent:       c.SentCount,
		Failed:     c.FailedCount,
		Total:      c.Total(),
	})
	log.Printf("▶️ Campaign %s is now active", c.ID)

	go s.Sender.Run(s.ctx, c.ID)
}

// CompleteActive retires the finished campaign and promotes the next
// queued one. Wired as the Sender's OnComplete hook.
func (s *Scheduler) CompleteActive(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Store.Remove(campaignID)
	if s.activeID == campaignID {
		s.promoteLocked()
	}
}

// Pause stops the active campaign at the next recipient boundary and
// immediately promotes the next queued campaign; pausing never blocks
// the queue. An in-flight send is allowed to finish first.
func (s *Scheduler) Pause(campaignID string) (model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if campaignID != s.activeID {
		snap, ok := s.Store.Snapshot(campaignID)
		if !ok {
			return model.Campaign{}, appErrors.NewCampaignNotFound(campaignID)
		}
		return model.Campaign{}, appErrors.NewInvalidCampaignState(campaignID, "pause", string(snap.Status))
	}

	now := time.Now()
	s.Store.Update(campaignID, func(c *model.Campaign) {
		c.IsPaused = true
		c.Status = model.StatusPaused
		c.PausedAt = &now
	})
	s.Store.MoveToPaused(campaignID)
	s.activeID = ""
	s.promoteLocked()

	snap, _ := s.Store.Snapshot(campaignID)
	s.publish(queue.Event{
		Type:       queue.EventCampaignPaused,
		CampaignID: campaignID,
		Sent:       snap.SentCount,
		Failed:     snap.FailedCount,
		Total:      snap.Total(),
	})
	log.Printf("⏸️ Campaign %s paused at index %d", campaignID, snap.CurrentIndex)
	return snap, nil
}

// Resume moves a paused campaign back to execution, continuing from its
// saved cursor. When another campaign holds the active slot it joins the
// back of the pending queue instead.
func (s *Scheduler) Resume(campaignID string) (model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Store.IsPaused(campaignID) {
		snap, ok := s.Store.Snapshot(campaignID)
		if !ok {
			return model.Campaign{}, appErrors.NewCampaignNotFound(campaignID)
		}
		return model.Campaign{}, appErrors.NewInvalidCampaignState(campaignID, "resume", string(snap.Status))
	}

	if s.activeID == "" {
		now := time.Now()
		s.Store.MoveToActive(campaignID)
		s.Store.Update(campaignID, func(c *model.Campaign) {
			c.IsPaused = false
			c.Status = model.StatusActive
			c.ResumedAt = &now
			c.Touch()
		})
		s.activeID = campaignID

		snap, _ := s.Store.Snapshot(campaignID)
		s.publish(queue.Event{
			Type:       queue.EventCampaignResumed,
			CampaignID: campaignID,
			Sent:       snap.SentCount,
			Failed:     snap.FailedCount,
			Total:      snap.Total(),
		})
		log.Printf("▶️ Campaign %s resumed from index %d", campaignID, snap.CurrentIndex)

		go s.Sender.Run(s.ctx, campaignID)
		return snap, nil
	}

	c, ok := s.Store.TakePaused(campaignID)
	if !ok {
		return model.Campaign{}, appErrors.NewCampaignNotFound(campaignID)
	}
	c.IsPaused = false
	c.Status = model.StatusPending
	s.pending = append(s.pending, c)
	log.Printf("📨 Campaign %s re-queued behind the active campaign", campaignID)
	return *c, nil
}

// Restart resets a paused campaign to the beginning and resumes it.
func (s *Scheduler) Restart(campaignID string) (model.Campaign, error) {
	s.mu.Lock()
	if !s.Store.IsPaused(campaignID) {
		snap, ok := s.Store.Snapshot(campaignID)
		s.mu.Unlock()
		if !ok {
			return model.Campaign{}, appErrors.NewCampaignNotFound(campaignID)
		}
		return model.Campaign{}, appErrors.NewInvalidCampaignState(campaignID, "restart", string(snap.Status))
	}
	s.Store.Update(campaignID, func(c *model.Campaign) {
		c.CurrentIndex = 0
		c.SentCount = 0
		c.FailedCount = 0
		c.Failures = map[string]int{}
	})
	s.mu.Unlock()

	return s.Resume(campaignID)
}

// Revive re-invokes the delivery loop for an active campaign whose loop
// is suspected dead. No-op when a loop is still running; the Sender's
// per-campaign guard makes this safe to call repeatedly.
func (s *Scheduler) Revive(campaignID string) bool {
	if !s.Store.IsActive(campaignID) || s.Sender.Running(campaignID) {
		return false
	}
	log.Printf("🔄 Reviving delivery loop for campaign %s", campaignID)
	go s.Sender.Run(s.ctx, campaignID)
	return true
}

// ActiveID returns the id of the campaign currently holding the active
// slot, or "".
func (s *Scheduler) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// QueueLength returns the number of campaigns waiting in the FIFO queue.
func (s *Scheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Snapshot returns a copy of a campaign wherever it lives: active pool,
// paused pool or pending queue.
func (s *Scheduler) Snapshot(campaignID string) (model.Campaign, bool) {
	if snap, ok := s.Store.Snapshot(campaignID); ok {
		return snap, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.pending {
		if c.ID == campaignID {
			return *c, true
		}
	}
	return model.Campaign{}, false
}

// List returns copies of every known campaign: active, paused, pending.
func (s *Scheduler) List() []model.Campaign {
	out := s.Store.ActiveSnapshots()
	out = append(out, s.Store.PausedSnapshots()...)
	s.mu.Lock()
	for _, c := range s.pending {
		out = append(out, *c)
	}
	s.mu.Unlock()
	return out
}

func (s *Scheduler) publish(evt queue.Event) {
	if s.Bus != nil {
		s.Bus.Publish(queue.TopicCampaignEvents, evt)
	}
}
