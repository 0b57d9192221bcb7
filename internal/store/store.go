package store

import (
	"sync"

	"github.com/unclebandit/wablast-backend/internal/model"
)

// CampaignStore is the in-memory home of all campaigns the engine knows
// about. Two pools: active (being or about to be iterated) and paused.
// A campaign id lives in at most one pool at any instant.
type CampaignStore struct {
	mu     sync.RWMutex
	active map[string]*model.Campaign
	paused map[string]*model.Campaign
}

func NewCampaignStore() *CampaignStore {
	return &CampaignStore{
		active: make(map[string]*model.Campaign),
		paused: make(map[string]*model.Campaign),
	}
}

func (s *CampaignStore) PutActive(c *model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, c.ID)
	s.active[c.ID] = c
}

func (s *CampaignStore) PutPaused(c *model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, c.ID)
	s.paused[c.ID] = c
}

// MoveToPaused shifts a campaign from the active pool to the paused one.
func (s *CampaignStore) MoveToPaused(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[id]
	if !ok {
		return false
	}
	delete(s.active, id)
	s.paused[id] = c
	return true
}

// MoveToActive shifts a campaign from the paused pool to the active one.
func (s *CampaignStore) MoveToActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.paused[id]
	if !ok {
		return false
	}
	delete(s.paused, id)
	s.active[id] = c
	return true
}

// TakePaused removes a campaign from the paused pool and hands its
// pointer back to the caller (used to re-queue a resumed campaign).
func (s *CampaignStore) TakePaused(id string) (*model.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.paused[id]
	if !ok {
		return nil, false
	}
	delete(s.paused, id)
	return c, true
}

func (s *CampaignStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
	delete(s.paused, id)
}

func (s *CampaignStore) IsActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[id]
	return ok
}

func (s *CampaignStore) IsPaused(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.paused[id]
	return ok
}

// Update mutates a campaign under the store lock. The delivery loop and
// the HTTP layer both go through here, so counter updates never race.
func (s *CampaignStore) Update(id string, fn func(*model.Campaign)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.active[id]; ok {
		fn(c)
		return true
	}
	if c, ok := s.paused[id]; ok {
		fn(c)
		return true
	}
	return false
}

// Snapshot returns a value copy of a campaign from either pool.
func (s *CampaignStore) Snapshot(id string) (model.Campaign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.active[id]; ok {
		return copyCampaign(c), true
	}
	if c, ok := s.paused[id]; ok {
		return copyCampaign(c), true
	}
	return model.Campaign{}, false
}

// ActiveSnapshots returns copies of every campaign in the active pool.
func (s *CampaignStore) ActiveSnapshots() []model.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Campaign, 0, len(s.active))
	for _, c := range s.active {
		out = append(out, copyCampaign(c))
	}
	return out
}

// PausedSnapshots returns copies of every campaign in the paused pool.
func (s *CampaignStore) PausedSnapshots() []model.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Campaign, 0, len(s.paused))
	for _, c := range s.paused {
		out = append(out, copyCampaign(c))
	}
	return out
}

func copyCampaign(c *model.Campaign) model.Campaign {
	cp := *c
	cp.Recipients = append([]string(nil), c.Recipients...)
	cp.Failures = make(map[string]int, len(c.Failures))
	for k, v := range c.Failures {
		cp.Failures[k] = v
	}
	return cp
}
