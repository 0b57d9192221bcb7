package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/unclebandit/wablast-backend/internal/delay"
	appErrors "github.com/unclebandit/wablast-backend/internal/errors"
	"github.com/unclebandit/wablast-backend/internal/model"
	"github.com/unclebandit/wablast-backend/internal/queue"
	"github.com/unclebandit/wablast-backend/internal/repository"
	"github.com/unclebandit/wablast-backend/internal/session"
	"github.com/unclebandit/wablast-backend/internal/store"
)

// DefaultMaxAttempts is the per-recipient send ceiling. Only
// connection-classified failures are retried up to it.
const DefaultMaxAttempts = 3

// DefaultRetryBackoff spaces the retries of one recipient.
const DefaultRetryBackoff = 2 * time.Second

// Sender runs the sequential delivery loop for the active campaign:
// one recipient at a time, in list order, with randomized pacing, until
// the list is exhausted or the campaign is paused.
type Sender struct {
	Store    *store.CampaignStore
	Session  session.Session
	Bus      queue.Bus
	Progress repository.ProgressRepositoryInterface // optional

	// NewPolicy builds the pacing strategy for a campaign's delay range.
	NewPolicy func(rangeSpec string) (delay.Policy, error)

	MaxAttempts  int
	RetryBackoff time.Duration

	// OnComplete is invoked after the completion event fires, so the
	// scheduler can retire the campaign and promote the next one.
	OnComplete func(campaignID string)

	mu      sync.Mutex
	running map[string]bool
}

func NewSender(st *store.CampaignStore, sess session.Session, bus queue.Bus) *Sender {
	return &Sender{
		Store:        st,
		Session:      sess,
		Bus:          bus,
		NewPolicy:    func(spec string) (delay.Policy, error) { return delay.NewRandomPolicy(spec) },
		MaxAttempts:  DefaultMaxAttempts,
		RetryBackoff: DefaultRetryBackoff,
		running:      make(map[string]bool),
	}
}

// Running reports whether a delivery loop is currently iterating the
// campaign.
func (s *Sender) Running(campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[campaignID]
}

func (s *Sender) acquire(campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[campaignID] {
		return false
	}
	s.running[campaignID] = true
	return true
}

func (s *Sender) release(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, campaignID)
}

// Run drives one campaign from its current cursor. It returns when the
// list is exhausted, the campaign is paused or the context is cancelled.
// At most one loop per campaign runs at a time; a second Run is a no-op,
// which is what makes supervisory restarts storm-proof.
func (s *Sender) Run(ctx context.Context, campaignID string) {
	if !s.acquire(campaignID) {
		log.Printf("Delivery loop for campaign %s already running", campaignID)
		return
	}
	defer s.release(campaignID)

	snap, ok := s.Store.Snapshot(campaignID)
	if !ok {
		return
	}

	policy, err := s.NewPolicy(snap.DelayRange)
	if err != nil {
		log.Printf("⚠️ Campaign %s has bad delay range %q, using default: %v", campaignID, snap.DelayRange, err)
		policy, _ = s.NewPolicy(delay.DefaultRange)
	}

	log.Printf("🚀 Delivery loop started for campaign %s at index %d/%d", campaignID, snap.CurrentIndex, snap.Total())

	first := true
	for {
		if ctx.Err() != nil {
			return
		}

		snap, ok = s.Store.Snapshot(campaignID)
		if !ok {
			return
		}
		if snap.IsPaused {
			log.Printf("⏸️ Campaign %s paused at index %d", campaignID, snap.CurrentIndex)
			return
		}
		if snap.CurrentIndex >= snap.Total() {
			s.complete(campaignID)
			return
		}

		recipient := snap.Recipients[snap.CurrentIndex]

		if !first {
			wait := policy.PreProcessing()
			s.publish(queue.Event{
				Type:       queue.EventHumanBehavior,
				CampaignID: campaignID,
				Recipient:  recipient,
				Detail:     fmt.Sprintf("waiting %s before opening next chat", wait.Round(time.Second)),
				Sent:       snap.SentCount,
				Failed:     snap.FailedCount,
				Total:      snap.Total(),
			})
			if !sleepCtx(ctx, wait) {
				return
			}
		}
		first = false

		result := s.attempt(ctx, recipient, snap.Message, policy)
		s.record(campaignID, snap.CurrentIndex, result)

		// The core pacing delay between two sends. This is what makes
		// the sender look like a person and not a script.
		if cur, ok := s.Store.Snapshot(campaignID); ok && !cur.IsPaused && cur.CurrentIndex < cur.Total() {
			wait := policy.InterMessage()
			log.Printf("💤 Campaign %s: sleeping %s before next recipient", campaignID, wait.Round(time.Second))
			if !sleepCtx(ctx, wait) {
				return
			}
		}
	}
}

// attempt delivers to a single recipient. It never panics out: any
// failure is contained in the returned result.
func (s *Sender) attempt(ctx context.Context, recipient string, payload model.MessagePayload, policy delay.Policy) (result model.AttemptResult) {
	result = model.AttemptResult{Recipient: recipient}
	defer func() {
		if r := recover(); r != nil {
			result.Outcome = model.OutcomeGenericFailure
			result.Detail = fmt.Sprintf("panic during send: %v", r)
			if result.Attempts == 0 {
				result.Attempts = 1
			}
		}
	}()

	// Fail fast when the session is down; skipping silently would hide
	// the recipient from the final summary.
	if !s.Session.Ready() || !s.Session.Authenticated() {
		err := appErrors.NewSessionNotReady(string(s.Session.State()))
		result.Outcome = model.OutcomeConnectionFailure
		result.Detail = err.Error()
		result.Attempts = 1
		return result
	}

	registered, err := s.Session.IsRegisteredUser(ctx, recipient)
	if err != nil {
		result.Outcome = outcomeFor(appErrors.Classify(err))
		result.Detail = err.Error()
		result.Attempts = 1
		return result
	}
	if !registered {
		result.Outcome = model.OutcomeUnavailable
		result.Detail = "recipient not registered on the platform"
		result.Attempts = 1
		return result
	}

	// Look at the chat, then type, like a person would.
	if !sleepCtx(ctx, policy.Reading(len(payload.Text))) {
		result.Outcome = model.OutcomeConnectionFailure
		result.Detail = "cancelled"
		result.Attempts = 1
		return result
	}
	if err := s.Session.SimulateTyping(ctx, recipient, policy.Typing(len(payload.Text))); err != nil {
		log.Printf("⚠️ Typing simulation failed for %s: %v", recipient, err)
	}

	for n := 1; n <= s.MaxAttempts; n++ {
		result.Attempts = n
		err := s.Session.SendMessage(ctx, recipient, payload)
		if err == nil {
			result.Outcome = model.OutcomeSent
			result.Detail = ""
			return result
		}

		category := appErrors.Classify(err)
		result.Detail = err.Error()
		result.Outcome = outcomeFor(category)

		// Only transient connection trouble earns another attempt;
		// an unavailable recipient stays unavailable.
		if category != appErrors.CategoryConnection || n == s.MaxAttempts {
			return result
		}
		log.Printf("⚠️ Send to %s failed (attempt %d/%d): %v", recipient, n, s.MaxAttempts, err)
		if !sleepCtx(ctx, s.RetryBackoff) {
			return result
		}
	}
	return result
}

// record applies one attempt outcome to the campaign and emits the
// per-recipient progress event.
func (s *Sender) record(campaignID string, index int, result model.AttemptResult) {
	var snap model.Campaign
	updated := s.Store.Update(campaignID, func(c *model.Campaign) {
		c.CurrentIndex = index + 1
		if result.Sent() {
			c.SentCount++
		} else {
			c.FailedCount++
			c.Failures[result.Category()]++
		}
		c.Touch()
	})
	if !updated {
		return
	}
	snap, _ = s.Store.Snapshot(campaignID)

	if s.Progress != nil {
		if err := s.Progress.Append(campaignID, index, result); err != nil {
			log.Printf("⚠️ Failed to append progress log for %s: %v", campaignID, err)
		}
	}

	s.publish(queue.Event{
		Type:       queue.EventRecipientResult,
		CampaignID: campaignID,
		Recipient:  result.Recipient,
		Outcome:    string(result.Outcome),
		Detail:     result.Detail,
		Sent:       snap.SentCount,
		Failed:     snap.FailedCount,
		Total:      snap.Total(),
	})

	if result.Sent() {
		log.Printf("✅ Sent to %s (%d/%d)", result.Recipient, snap.CurrentIndex, snap.Total())
	} else {
		log.Printf("❌ Failed for %s after %d attempt(s): %s", result.Recipient, result.Attempts, result.Detail)
	}
}

func (s *Sender) complete(campaignID string) {
	s.Store.Update(campaignID, func(c *model.Campaign) {
		c.Status = model.StatusCompleted
		c.Message.Release()
		c.Touch()
	})
	snap, ok := s.Store.Snapshot(campaignID)
	if !ok {
		return
	}

	log.Printf("🏁 Campaign %s completed: %d sent, %d failed of %d", campaignID, snap.SentCount, snap.FailedCount, snap.Total())

	s.publish(queue.Event{
		Type:       queue.EventCampaignCompleted,
		CampaignID: campaignID,
		Sent:       snap.SentCount,
		Failed:     snap.FailedCount,
		Total:      snap.Total(),
		Failures:   snap.Failures,
	})

	if s.OnComplete != nil {
		s.OnComplete(campaignID)
	}
}

func (s *Sender) publish(evt queue.Event) {
	if s.Bus != nil {
		s.Bus.Publish(queue.TopicCampaignEvents, evt)
	}
}

func outcomeFor(category appErrors.Category) model.Outcome {
	switch category {
	case appErrors.CategoryUnavailable:
		return model.OutcomeUnavailable
	case appErrors.CategoryConnection:
		return model.OutcomeConnectionFailure
	default:
		return model.OutcomeGenericFailure
	}
}

// sleepCtx waits for d unless the context is cancelled first. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
