package appErrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{errors.New("recipient 919876543210 is not registered"), CategoryUnavailable},
		{errors.New("server returned item-not-found"), CategoryUnavailable},
		{errors.New("websocket disconnected before ack"), CategoryConnection},
		{errors.New("request timed out"), CategoryConnection},
		{errors.New("unexpected EOF"), CategoryConnection},
		{NewSessionNotReady("STARTING"), CategoryConnection},
		{errors.New("something exploded"), CategoryGeneric},
		{nil, CategoryGeneric},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestUnavailableWinsOverConnection(t *testing.T) {
	// A message that matches both buckets must classify as unavailable so
	// the retry budget is never spent on a dead recipient.
	err := fmt.Errorf("connection ok but recipient unavailable")
	if got := Classify(err); got != CategoryUnavailable {
		t.Errorf("Classify = %s, want %s", got, CategoryUnavailable)
	}
}

func TestSentinelErrors(t *testing.T) {
	var notFound *ErrCampaignNotFound
	if !errors.As(NewCampaignNotFound("abc"), &notFound) {
		t.Fatal("NewCampaignNotFound should yield *ErrCampaignNotFound")
	}
	if notFound.CampaignID != "abc" {
		t.Errorf("CampaignID = %q", notFound.CampaignID)
	}
}
