package store

import (
	"testing"

	"github.com/unclebandit/wablast-backend/internal/model"
)

func newCampaign(id string) *model.Campaign {
	return model.NewCampaign(id, []string{"a", "b"}, model.MessagePayload{Text: "hi"}, "5-10")
}

func TestPoolsAreExclusive(t *testing.T) {
	s := NewCampaignStore()
	s.PutActive(newCampaign("c1"))

	if !s.IsActive("c1") || s.IsPaused("c1") {
		t.Fatal("campaign should start in the active pool only")
	}

	if !s.MoveToPaused("c1") {
		t.Fatal("MoveToPaused failed")
	}
	if s.IsActive("c1") || !s.IsPaused("c1") {
		t.Fatal("campaign should be in the paused pool only")
	}

	if !s.MoveToActive("c1") {
		t.Fatal("MoveToActive failed")
	}
	if !s.IsActive("c1") || s.IsPaused("c1") {
		t.Fatal("campaign should be back in the active pool only")
	}
}

func TestPutActiveEvictsPausedEntry(t *testing.T) {
	s := NewCampaignStore()
	c := newCampaign("c1")
	s.PutPaused(c)
	s.PutActive(c)
	if s.IsPaused("c1") {
		t.Fatal("PutActive must remove the paused entry")
	}
}

func TestUpdateReachesBothPools(t *testing.T) {
	s := NewCampaignStore()
	s.PutActive(newCampaign("c1"))
	s.PutPaused(newCampaign("c2"))

	for _, id := range []string{"c1", "c2"} {
		if !s.Update(id, func(c *model.Campaign) { c.SentCount = 5 }) {
			t.Fatalf("Update(%s) did not find the campaign", id)
		}
		snap, _ := s.Snapshot(id)
		if snap.SentCount != 5 {
			t.Errorf("Snapshot(%s).SentCount = %d", id, snap.SentCount)
		}
	}

	if s.Update("missing", func(c *model.Campaign) {}) {
		t.Error("Update on unknown id should return false")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewCampaignStore()
	s.PutActive(newCampaign("c1"))

	snap, _ := s.Snapshot("c1")
	snap.Recipients[0] = "mutated"
	snap.Failures["generic"] = 99

	fresh, _ := s.Snapshot("c1")
	if fresh.Recipients[0] == "mutated" || fresh.Failures["generic"] == 99 {
		t.Fatal("mutating a snapshot must not leak into the store")
	}
}

func TestRemove(t *testing.T) {
	s := NewCampaignStore()
	s.PutActive(newCampaign("c1"))
	s.Remove("c1")
	if _, ok := s.Snapshot("c1"); ok {
		t.Fatal("campaign should be gone after Remove")
	}
}
