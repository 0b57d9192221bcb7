package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/unclebandit/wablast-backend/internal/model"
	"github.com/unclebandit/wablast-backend/internal/queue"
	"github.com/unclebandit/wablast-backend/internal/service"
)

func newMonitor(h *harness) *service.HealthMonitor {
	m := service.NewHealthMonitor(h.session, h.store, h.scheduler, h.bus)
	m.ReconnectBackoff = time.Millisecond
	return m
}

func TestHealthMonitorForcesReconnectAfterThreshold(t *testing.T) {
	h := newHarness(t)
	m := newMonitor(h)
	ctx := context.Background()

	h.session.setReady(false, false)

	m.Check(ctx)
	m.Check(ctx)
	if h.session.destroys != 0 {
		t.Fatalf("reconnect fired after %d failures, threshold is %d", 2, m.MaxFailures)
	}

	m.Check(ctx)
	if h.session.destroys != 1 {
		t.Errorf("destroys = %d, want 1 after hitting the threshold", h.session.destroys)
	}
	if h.session.inits != 1 {
		t.Errorf("inits = %d, want 1", h.session.inits)
	}
	if evts := h.recorder.ofType(queue.EventReconnecting); len(evts) != 1 {
		t.Errorf("reconnecting events = %d, want 1", len(evts))
	}

	// Initialize restored the fake session, so the failure streak is
	// gone and further checks stay quiet.
	m.Check(ctx)
	if h.session.destroys != 1 {
		t.Errorf("destroys = %d after recovery, want still 1", h.session.destroys)
	}
}

func TestHealthMonitorResetsFailureStreakOnSuccess(t *testing.T) {
	h := newHarness(t)
	m := newMonitor(h)
	ctx := context.Background()

	h.session.setReady(false, false)
	m.Check(ctx)
	m.Check(ctx)

	h.session.setReady(true, true)
	m.Check(ctx)

	status := m.Status()
	if got := status["consecutive_failures"].(int); got != 0 {
		t.Errorf("consecutive_failures = %d, want 0 after a healthy probe", got)
	}

	// The streak starts over: two more failures still sit below the
	// threshold.
	h.session.setReady(false, false)
	m.Check(ctx)
	m.Check(ctx)
	if h.session.destroys != 0 {
		t.Errorf("destroys = %d, want 0", h.session.destroys)
	}
}

func TestHealthMonitorRestartsStalledCampaignOnce(t *testing.T) {
	h := newHarness(t)
	m := newMonitor(h)
	ctx := context.Background()

	stuck := "911111111111@s.whatsapp.net"
	blocked := make(chan struct{})
	h.session.sendHook = func(string) { <-blocked }

	c := campaignWith("camp-a", stuck)
	c.Status = model.StatusActive
	h.store.PutActive(c)
	go h.sender.Run(ctx, "camp-a")

	waitFor(t, "loop to wedge inside the send", func() bool {
		return h.session.attemptCount(stuck) == 1
	})

	h.store.Update("camp-a", func(c *model.Campaign) {
		c.LastActivity = time.Now().Add(-10 * time.Minute)
	})

	m.Check(ctx)
	m.Check(ctx)

	// One stuck alert despite two scans: the cooldown suppresses the
	// second. The revive itself is a no-op while the old loop is alive.
	if evts := h.recorder.ofType(queue.EventCampaignStuck); len(evts) != 1 {
		t.Errorf("stuck events = %d, want 1", len(evts))
	}

	close(blocked)
	waitFor(t, "loop to finish", func() bool {
		return !h.sender.Running("camp-a")
	})
}

func TestHealthMonitorRevivesDeadLoop(t *testing.T) {
	h := newHarness(t)
	m := newMonitor(h)
	ctx := context.Background()

	// An active campaign with no delivery loop at all, stale activity:
	// the scan must bring it back to life.
	c := campaignWith("camp-a", "911111111111@s.whatsapp.net")
	c.Status = model.StatusActive
	c.LastActivity = time.Now().Add(-10 * time.Minute)
	h.store.PutActive(c)

	m.Check(ctx)

	waitFor(t, "revived loop to deliver", func() bool {
		return h.session.attemptCount("911111111111@s.whatsapp.net") == 1
	})
}

func TestHealthMonitorIgnoresPausedAndFreshCampaigns(t *testing.T) {
	h := newHarness(t)
	m := newMonitor(h)
	ctx := context.Background()

	paused := campaignWith("camp-paused", "911111111111@s.whatsapp.net")
	paused.Status = model.StatusPaused
	paused.IsPaused = true
	paused.LastActivity = time.Now().Add(-10 * time.Minute)
	h.store.PutPaused(paused)

	fresh := campaignWith("camp-fresh", "912222222222@s.whatsapp.net")
	fresh.Status = model.StatusActive
	h.store.PutActive(fresh)

	m.Check(ctx)

	if evts := h.recorder.ofType(queue.EventCampaignStuck); len(evts) != 0 {
		t.Errorf("stuck events = %d, want 0", len(evts))
	}
}
