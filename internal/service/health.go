package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/unclebandit/wablast-backend/internal/queue"
	"github.com/unclebandit/wablast-backend/internal/session"
	"github.com/unclebandit/wablast-backend/internal/store"
)

// HealthMonitor supervises the automation session and the delivery
// loops. It is the backstop for failure modes that never surface as a
// catchable error: a wedged browser session or a loop that silently died.
type HealthMonitor struct {
	Session   session.Session
	Store     *store.CampaignStore
	Scheduler *Scheduler
	Bus       queue.Bus

	Interval         time.Duration // liveness probe period
	MaxFailures      int           // consecutive probe failures before forced reconnect
	StaleAfter       time.Duration // no campaign activity for this long means stalled
	RestartCooldown  time.Duration // minimum gap between supervisory restarts per campaign
	ReconnectBackoff time.Duration // pause between teardown and re-init

	mu                  sync.Mutex
	consecutiveFailures int
	lastSuccess         time.Time
	lastRestart         map[string]time.Time
	reconnecting        bool
}

func NewHealthMonitor(sess session.Session, st *store.CampaignStore, sched *Scheduler, bus queue.Bus) *HealthMonitor {
	return &HealthMonitor{
		Session:          sess,
		Store:            st,
		Scheduler:        sched,
		Bus:              bus,
		Interval:         60 * time.Second,
		MaxFailures:      3,
		StaleAfter:       5 * time.Minute,
		RestartCooldown:  10 * time.Minute,
		ReconnectBackoff: 5 * time.Second,
		lastRestart:      make(map[string]time.Time),
	}
}

// Start runs the periodic checks and drains session lifecycle events
// until the context is cancelled.
func (m *HealthMonitor) Start(ctx context.Context) {
	go m.watchSessionEvents(ctx)

	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Check performs one supervision pass: session liveness, then stalls.
func (m *HealthMonitor) Check(ctx context.Context) {
	m.checkSession(ctx)
	m.scanStalls()
}

func (m *HealthMonitor) checkSession(ctx context.Context) {
	state := m.Session.State()

	m.mu.Lock()
	if state == session.StatusConnected {
		m.consecutiveFailures = 0
		m.lastSuccess = time.Now()
		m.mu.Unlock()
		return
	}

	m.consecutiveFailures++
	failures := m.consecutiveFailures
	alreadyReconnecting := m.reconnecting
	m.mu.Unlock()

	log.Printf("⚠️ Session liveness check failed (state %s, %d/%d)", state, failures, m.MaxFailures)

	if failures >= m.MaxFailures && !alreadyReconnecting {
		m.forceReconnect(ctx)
	}
}

// forceReconnect tears the session down and re-establishes it. Queued
// and paused campaigns are untouched; any in-flight send fails and gets
// classified as a connection failure by the delivery loop.
func (m *HealthMonitor) forceReconnect(ctx context.Context) {
	m.mu.Lock()
	m.reconnecting = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.reconnecting = false
		m.consecutiveFailures = 0
		m.mu.Unlock()
	}()

	log.Println("🔌 Forcing session reconnect")
	m.publish(queue.Event{Type: queue.EventReconnecting})

	if err := m.Session.Destroy(); err != nil {
		log.Printf("⚠️ Session teardown failed: %v", err)
	}

	select {
	case <-time.After(m.ReconnectBackoff):
	case <-ctx.Done():
		return
	}

	if err := m.Session.Initialize(ctx); err != nil {
		log.Printf("❌ Session re-initialization failed: %v", err)
		return
	}
	log.Println("✅ Session re-established")
}

// scanStalls restarts delivery loops that stopped recording progress.
// The per-campaign cooldown guarantees one restart attempt per stall,
// not a storm.
func (m *HealthMonitor) scanStalls() {
	now := time.Now()
	for _, snap := range m.Store.ActiveSnapshots() {
		if snap.IsPaused || snap.CurrentIndex >= snap.Total() {
			continue
		}
		if now.Sub(snap.LastActivity) < m.StaleAfter {
			continue
		}

		m.mu.Lock()
		last, seen := m.lastRestart[snap.ID]
		if seen && now.Sub(last) < m.RestartCooldown {
			m.mu.Unlock()
			continue
		}
		m.lastRestart[snap.ID] = now
		m.mu.Unlock()

		log.Printf("🚨 Campaign %s looks stuck (no activity for %s)", snap.ID, now.Sub(snap.LastActivity).Round(time.Second))
		m.publish(queue.Event{
			Type:       queue.EventCampaignStuck,
			CampaignID: snap.ID,
			Detail:     "no recorded activity, restarting delivery loop",
			Sent:       snap.SentCount,
			Failed:     snap.FailedCount,
			Total:      snap.Total(),
		})
		m.Scheduler.Revive(snap.ID)
	}
}

func (m *HealthMonitor) watchSessionEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-m.Session.Events():
			if !ok {
				return
			}
			log.Printf("Session event: %s %s", evt.Kind, evt.Detail)
			m.publish(queue.Event{
				Type:   "session_" + string(evt.Kind),
				Detail: evt.Detail,
				At:     evt.At,
			})
		}
	}
}

// Status reports the monitor's view of the session for the HTTP layer.
func (m *HealthMonitor) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{
		"state":                string(m.Session.State()),
		"ready":                m.Session.Ready(),
		"authenticated":        m.Session.Authenticated(),
		"consecutive_failures": m.consecutiveFailures,
		"last_success":         m.lastSuccess,
		"reconnecting":         m.reconnecting,
	}
}

func (m *HealthMonitor) publish(evt queue.Event) {
	if m.Bus != nil {
		m.Bus.Publish(queue.TopicCampaignEvents, evt)
	}
}
