package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrSessionNotReady is raised when a send is attempted while the
// automation session is not connected or not authenticated. Its text
// deliberately carries a connection keyword so Classify buckets it right.
type ErrSessionNotReady struct {
	State string
}

func (e *ErrSessionNotReady) Error() string {
	return fmt.Sprintf("session not connected (state: %s)", e.State)
}

func NewSessionNotReady(state string) error {
	return &ErrSessionNotReady{State: state}
}

// ErrInvalidCampaignState rejects pause/resume calls that do not apply
// to the campaign's current lifecycle state.
type ErrInvalidCampaignState struct {
	CampaignID string
	Op         string
	State      string
}

func (e *ErrInvalidCampaignState) Error() string {
	return fmt.Sprintf("cannot %s campaign %s in state %s", e.Op, e.CampaignID, e.State)
}

func NewInvalidCampaignState(id, op, state string) error {
	return &ErrInvalidCampaignState{CampaignID: id, Op: op, State: state}
}
