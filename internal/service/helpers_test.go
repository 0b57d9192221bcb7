package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unclebandit/wablast-backend/internal/delay"
	"github.com/unclebandit/wablast-backend/internal/model"
	"github.com/unclebandit/wablast-backend/internal/queue"
	"github.com/unclebandit/wablast-backend/internal/service"
	"github.com/unclebandit/wablast-backend/internal/session"
	"github.com/unclebandit/wablast-backend/internal/store"
)

// fakeSession is a scripted automation session: per-recipient error
// queues, registration answers and a hook fired inside SendMessage.
type fakeSession struct {
	mu           sync.Mutex
	ready        bool
	authed       bool
	unregistered map[string]bool
	sendErrs     map[string][]error
	sent         []string
	attempts     map[string]int
	sendHook     func(recipient string)
	destroys     int
	inits        int
	events       chan session.Event
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		ready:        true,
		authed:       true,
		unregistered: map[string]bool{},
		sendErrs:     map[string][]error{},
		attempts:     map[string]int{},
		events:       make(chan session.Event, 8),
	}
}

func (f *fakeSession) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	f.ready = true
	f.authed = true
	return nil
}

func (f *fakeSession) State() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case !f.ready:
		return session.StatusDisconnected
	case !f.authed:
		return session.StatusPairing
	default:
		return session.StatusConnected
	}
}

func (f *fakeSession) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSession) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeSession) IsRegisteredUser(ctx context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unregistered[address], nil
}

func (f *fakeSession) SendMessage(ctx context.Context, address string, payload model.MessagePayload) error {
	f.mu.Lock()
	f.attempts[address]++
	var err error
	if queued := f.sendErrs[address]; len(queued) > 0 {
		err = queued[0]
		f.sendErrs[address] = queued[1:]
	}
	if err == nil {
		f.sent = append(f.sent, address)
	}
	hook := f.sendHook
	f.mu.Unlock()

	if hook != nil {
		hook(address)
	}
	return err
}

func (f *fakeSession) SimulateTyping(ctx context.Context, address string, d time.Duration) error {
	return nil
}

func (f *fakeSession) Logout(ctx context.Context) error { return nil }

func (f *fakeSession) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys++
	f.ready = false
	f.authed = false
	return nil
}

func (f *fakeSession) Events() <-chan session.Event { return f.events }

func (f *fakeSession) setReady(ready, authed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
	f.authed = authed
}

func (f *fakeSession) sentList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeSession) attemptCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[address]
}

// zeroPolicy removes all pacing so tests run instantly.
type zeroPolicy struct{}

func (zeroPolicy) PreProcessing() time.Duration { return 0 }
func (zeroPolicy) InterMessage() time.Duration  { return 0 }
func (zeroPolicy) Typing(int) time.Duration     { return 0 }
func (zeroPolicy) Reading(int) time.Duration    { return 0 }

// eventRecorder collects bus events in publish order.
type eventRecorder struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *eventRecorder) attach(bus queue.Bus) {
	bus.Subscribe(queue.TopicCampaignEvents, func(evt queue.Event) {
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.mu.Unlock()
	})
}

func (r *eventRecorder) ofType(eventType string) []queue.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []queue.Event
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type harness struct {
	store     *store.CampaignStore
	session   *fakeSession
	bus       *queue.InMemoryBus
	recorder  *eventRecorder
	sender    *service.Sender
	scheduler *service.Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewCampaignStore()
	sess := newFakeSession()
	bus := queue.NewInMemoryBus()
	rec := &eventRecorder{}
	rec.attach(bus)

	sender := service.NewSender(st, sess, bus)
	sender.NewPolicy = func(string) (delay.Policy, error) { return zeroPolicy{}, nil }
	sender.RetryBackoff = 0

	sched := service.NewScheduler(context.Background(), st, sender, bus)

	return &harness{store: st, session: sess, bus: bus, recorder: rec, sender: sender, scheduler: sched}
}

func campaignWith(id string, recipients ...string) *model.Campaign {
	return model.NewCampaign(id, recipients, model.MessagePayload{Text: "hello there"}, "5-10")
}

func asErr(err error, target interface{}) bool {
	return errors.As(err, target)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
