package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/unclebandit/wablast-backend/internal/model"
	"github.com/unclebandit/wablast-backend/internal/queue"
)

// runDirect drives the delivery loop synchronously on a campaign that is
// already in the active pool. The completion hook is detached so the
// finished campaign stays inspectable in the store.
func runDirect(h *harness, c *model.Campaign) {
	h.sender.OnComplete = nil
	c.Status = model.StatusActive
	h.store.PutActive(c)
	h.sender.Run(context.Background(), c.ID)
}

func TestSenderDeliversInListOrder(t *testing.T) {
	h := newHarness(t)

	recipients := []string{
		"911111111111@s.whatsapp.net",
		"912222222222@s.whatsapp.net",
		"913333333333@s.whatsapp.net",
	}
	runDirect(h, campaignWith("camp-a", recipients...))

	sent := h.session.sentList()
	if len(sent) != len(recipients) {
		t.Fatalf("sent %d messages, want %d", len(sent), len(recipients))
	}
	for i, want := range recipients {
		if sent[i] != want {
			t.Errorf("send order[%d] = %s, want %s", i, sent[i], want)
		}
	}
}

func TestSenderSkipsUnregisteredWithoutSending(t *testing.T) {
	h := newHarness(t)

	dead := "911111111111@s.whatsapp.net"
	alive := "912222222222@s.whatsapp.net"
	h.session.unregistered[dead] = true

	runDirect(h, campaignWith("camp-a", dead, alive))

	// An unavailable recipient never reaches the transport, and never
	// earns a retry.
	if got := h.session.attemptCount(dead); got != 0 {
		t.Errorf("unregistered recipient got %d send attempts, want 0", got)
	}
	if got := h.session.attemptCount(alive); got != 1 {
		t.Errorf("registered recipient got %d send attempts, want 1", got)
	}

	snap, _ := h.store.Snapshot("camp-a")
	if snap.SentCount != 1 || snap.FailedCount != 1 {
		t.Errorf("counts = %d sent / %d failed, want 1/1", snap.SentCount, snap.FailedCount)
	}
	if snap.Failures["unavailable"] != 1 {
		t.Errorf("Failures = %v, want unavailable:1", snap.Failures)
	}
}

func TestSenderRetriesConnectionFailures(t *testing.T) {
	h := newHarness(t)

	flaky := "911111111111@s.whatsapp.net"
	h.session.sendErrs[flaky] = []error{
		errors.New("websocket: close 1006"),
		errors.New("websocket: close 1006"),
	}

	runDirect(h, campaignWith("camp-a", flaky))

	// Two connection hiccups, then success on the third attempt.
	if got := h.session.attemptCount(flaky); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	snap, _ := h.store.Snapshot("camp-a")
	if snap.SentCount != 1 || snap.FailedCount != 0 {
		t.Errorf("counts = %d sent / %d failed, want 1/0", snap.SentCount, snap.FailedCount)
	}
}

func TestSenderStopsAtAttemptCeiling(t *testing.T) {
	h := newHarness(t)

	down := "911111111111@s.whatsapp.net"
	h.session.sendErrs[down] = []error{
		errors.New("connection reset by peer"),
		errors.New("connection reset by peer"),
		errors.New("connection reset by peer"),
		errors.New("connection reset by peer"),
	}

	runDirect(h, campaignWith("camp-a", down))

	if got := h.session.attemptCount(down); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}
	snap, _ := h.store.Snapshot("camp-a")
	if snap.FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", snap.FailedCount)
	}
	if snap.Failures["connection"] != 1 {
		t.Errorf("Failures = %v, want connection:1", snap.Failures)
	}
	// One recipient, one failure recorded, regardless of attempts.
	if results := h.recorder.ofType(queue.EventRecipientResult); len(results) != 1 {
		t.Errorf("recipient result events = %d, want 1", len(results))
	}
}

func TestSenderDoesNotRetryGenericFailures(t *testing.T) {
	h := newHarness(t)

	bad := "911111111111@s.whatsapp.net"
	h.session.sendErrs[bad] = []error{errors.New("media encryption failure")}

	runDirect(h, campaignWith("camp-a", bad))

	if got := h.session.attemptCount(bad); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
	snap, _ := h.store.Snapshot("camp-a")
	if snap.Failures["generic"] != 1 {
		t.Errorf("Failures = %v, want generic:1", snap.Failures)
	}
}

func TestSenderFailsFastWhenSessionDown(t *testing.T) {
	h := newHarness(t)
	h.session.setReady(false, false)

	recipients := []string{
		"911111111111@s.whatsapp.net",
		"912222222222@s.whatsapp.net",
	}
	runDirect(h, campaignWith("camp-a", recipients...))

	for _, r := range recipients {
		if got := h.session.attemptCount(r); got != 0 {
			t.Errorf("recipient %s got %d attempts with session down, want 0", r, got)
		}
	}
	snap, _ := h.store.Snapshot("camp-a")
	if snap.FailedCount != 2 {
		t.Errorf("FailedCount = %d, want 2", snap.FailedCount)
	}
	if snap.Failures["connection"] != 2 {
		t.Errorf("Failures = %v, want connection:2", snap.Failures)
	}
	// Every recipient still counted: failures are recorded, not skipped.
	if snap.SentCount+snap.FailedCount != snap.Total() {
		t.Errorf("sent+failed = %d, want %d", snap.SentCount+snap.FailedCount, snap.Total())
	}
}

func TestSenderMixedOutcomesCounterInvariant(t *testing.T) {
	h := newHarness(t)

	recipients := []string{
		"911111111111@s.whatsapp.net",
		"912222222222@s.whatsapp.net",
		"913333333333@s.whatsapp.net",
		"914444444444@s.whatsapp.net",
		"915555555555@s.whatsapp.net",
	}
	h.session.unregistered[recipients[1]] = true
	h.session.sendErrs[recipients[3]] = []error{
		errors.New("connection reset by peer"),
		errors.New("connection reset by peer"),
		errors.New("connection reset by peer"),
	}

	runDirect(h, campaignWith("camp-a", recipients...))

	snap, _ := h.store.Snapshot("camp-a")
	if snap.CurrentIndex != len(recipients) {
		t.Errorf("CurrentIndex = %d, want %d", snap.CurrentIndex, len(recipients))
	}
	if snap.SentCount+snap.FailedCount != snap.Total() {
		t.Errorf("sent+failed = %d, want %d", snap.SentCount+snap.FailedCount, snap.Total())
	}
	if snap.SentCount != 3 || snap.FailedCount != 2 {
		t.Errorf("counts = %d sent / %d failed, want 3/2", snap.SentCount, snap.FailedCount)
	}
	if snap.Status != model.StatusCompleted {
		t.Errorf("status = %s, want %s", snap.Status, model.StatusCompleted)
	}
}

func TestSenderSecondRunIsNoOp(t *testing.T) {
	h := newHarness(t)

	release := make(chan struct{})
	h.session.sendHook = func(string) { <-release }

	c := campaignWith("camp-a", "911111111111@s.whatsapp.net")
	c.Status = model.StatusActive
	h.store.PutActive(c)

	go h.sender.Run(context.Background(), "camp-a")
	waitFor(t, "loop to reach the send", func() bool {
		return h.session.attemptCount("911111111111@s.whatsapp.net") == 1
	})

	// A concurrent Run must bounce off the per-campaign guard.
	h.sender.Run(context.Background(), "camp-a")

	close(release)
	waitFor(t, "loop to finish", func() bool {
		return !h.sender.Running("camp-a")
	})

	if got := h.session.attemptCount("911111111111@s.whatsapp.net"); got != 1 {
		t.Errorf("attempts = %d, want 1 despite double Run", got)
	}
}
