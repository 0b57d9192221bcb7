package session

import (
	"context"
	"time"

	"github.com/unclebandit/wablast-backend/internal/model"
)

// Status mirrors the automation client's connection state string.
type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusConnected     Status = "CONNECTED"
	StatusPairing       Status = "PAIRING"
	StatusDisconnected  Status = "DISCONNECTED"
)

// EventKind names a session lifecycle transition.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
)

// Event is a lifecycle notification published by the session adapter.
type Event struct {
	Kind   EventKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Session is the automation-session capability the engine consumes.
// The delivery loop is its sole writer during a run; the health monitor
// reads its state concurrently and may tear it down for a forced
// reconnect via Destroy + Initialize.
type Session interface {
	Initialize(ctx context.Context) error
	State() Status
	Ready() bool
	Authenticated() bool
	IsRegisteredUser(ctx context.Context, address string) (bool, error)
	SendMessage(ctx context.Context, address string, payload model.MessagePayload) error
	SimulateTyping(ctx context.Context, address string, d time.Duration) error
	Logout(ctx context.Context) error
	Destroy() error
	Events() <-chan Event
}
