package model

import "time"

type CampaignStatus string

const (
	StatusPending   CampaignStatus = "pending"
	StatusActive    CampaignStatus = "active"
	StatusPaused    CampaignStatus = "paused"
	StatusCompleted CampaignStatus = "completed"
)

// Campaign is one bulk-send job: an ordered recipient list, a message and
// the progress cursor/counters the delivery loop mutates as it walks the list.
type Campaign struct {
	ID           string         `json:"id"`
	Recipients   []string       `json:"recipients"`
	Message      MessagePayload `json:"message"`
	DelayRange   string         `json:"delay_range"`
	Status       CampaignStatus `json:"status"`
	CurrentIndex int            `json:"current_index"`
	SentCount    int            `json:"sent_count"`
	FailedCount  int            `json:"failed_count"`
	Failures     map[string]int `json:"failures"` // failure category -> count
	IsPaused     bool           `json:"is_paused"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	PausedAt     *time.Time     `json:"paused_at,omitempty"`
	ResumedAt    *time.Time     `json:"resumed_at,omitempty"`
	LastActivity time.Time      `json:"last_activity"`
}

func NewCampaign(id string, recipients []string, message MessagePayload, delayRange string) *Campaign {
	now := time.Now()
	return &Campaign{
		ID:           id,
		Recipients:   recipients,
		Message:      message,
		DelayRange:   delayRange,
		Status:       StatusPending,
		Failures:     map[string]int{},
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (c *Campaign) Total() int {
	return len(c.Recipients)
}

func (c *Campaign) Remaining() int {
	return len(c.Recipients) - c.CurrentIndex
}

// Progress returns the percentage of processed recipients, 0-100.
func (c *Campaign) Progress() float64 {
	if len(c.Recipients) == 0 {
		return 100
	}
	return float64(c.CurrentIndex) / float64(len(c.Recipients)) * 100
}

func (c *Campaign) Touch() {
	c.LastActivity = time.Now()
}
