package model

type Outcome string

const (
	OutcomeSent              Outcome = "sent"
	OutcomeUnavailable       Outcome = "unavailable"
	OutcomeConnectionFailure Outcome = "connection_failure"
	OutcomeGenericFailure    Outcome = "generic_failure"
)

// AttemptResult is the outcome of delivering to a single recipient.
// It only lives long enough to bump campaign counters and feed a progress
// event; it is not stored on the campaign itself.
type AttemptResult struct {
	Recipient string  `json:"recipient"`
	Outcome   Outcome `json:"outcome"`
	Detail    string  `json:"detail,omitempty"`
	Attempts  int     `json:"attempts"`
}

func (r AttemptResult) Sent() bool {
	return r.Outcome == OutcomeSent
}

// Category maps the outcome to the failure-category key used in the
// campaign's failure breakdown. Sent outcomes have no category.
func (r AttemptResult) Category() string {
	switch r.Outcome {
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeConnectionFailure:
		return "connection"
	case OutcomeGenericFailure:
		return "generic"
	}
	return ""
}
