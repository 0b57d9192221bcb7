package queue

import (
	"sync"
	"time"
)

// Topic all campaign progress events are published on.
const TopicCampaignEvents = "campaign_events"

// Event types emitted by the engine.
const (
	EventCampaignStarted   = "campaign_started"
	EventHumanBehavior     = "human_behavior"
	EventRecipientResult   = "recipient_result"
	EventCampaignPaused    = "campaign_paused"
	EventCampaignResumed   = "campaign_resumed"
	EventCampaignCompleted = "campaign_completed"
	EventCampaignStuck     = "campaign_stuck"
	EventReconnecting      = "session_reconnecting"
)

// Event is one progress notification: per-recipient outcomes, campaign
// milestones and supervisory alerts all share this shape.
type Event struct {
	Type       string         `json:"type"`
	CampaignID string         `json:"campaign_id,omitempty"`
	Recipient  string         `json:"recipient,omitempty"`
	Outcome    string         `json:"outcome,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	Total      int            `json:"total"`
	Failures   map[string]int `json:"failures,omitempty"`
	At         time.Time      `json:"at"`
}

// Bus interface
type Bus interface {
	Publish(topic string, evt Event)
	Subscribe(topic string, handler func(Event))
}

// InMemoryBus fans events out to subscribers in-process. Delivery is
// synchronous and in publish order; handlers must not block.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]func(Event)
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]func(Event)),
	}
}

func (b *InMemoryBus) Publish(topic string, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(evt)
	}
}

func (b *InMemoryBus) Subscribe(topic string, handler func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

var _ Bus = (*InMemoryBus)(nil)
