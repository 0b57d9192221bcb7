package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/unclebandit/wablast-backend/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config for the whatsmeow-backed session.
type Config struct {
	SessionDir string // where the sqlite session store lives
	QRDir      string // where pairing QR images are written
}

// Client drives a single WhatsApp account through whatsmeow and exposes
// it as the Session capability.
type Client struct {
	cfg    Config
	events chan Event

	mu        sync.RWMutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	loggedIn  bool
}

var _ Session = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.SessionDir == "" {
		cfg.SessionDir = "./sessions"
	}
	if cfg.QRDir == "" {
		cfg.QRDir = "./qrcodes"
	}
	return &Client{
		cfg:    cfg,
		events: make(chan Event, 32),
	}
}

// Initialize opens the session store, connects and, when no device is
// paired yet, runs the QR flow. Safe to call again after Destroy.
func (c *Client) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(c.cfg.SessionDir, 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := os.MkdirAll(c.cfg.QRDir, 0o755); err != nil {
		return fmt.Errorf("failed to create qr dir: %w", err)
	}

	dbPath := filepath.Join(c.cfg.SessionDir, "session.db")
	dbURI := fmt.Sprintf("file:%s?_foreign_keys=on", dbPath)

	dbLog := waLog.Stdout("SessionDB", "WARN", true)
	container, err := sqlstore.New(ctx, "sqlite3", dbURI, dbLog)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return fmt.Errorf("failed to get device: %w", err)
	}

	clientLog := waLog.Stdout("Session", "INFO", true)
	client := whatsmeow.NewClient(device, clientLog)
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true
	client.AddEventHandler(c.handleEvent)

	c.mu.Lock()
	c.client = client
	c.container = container
	c.mu.Unlock()

	if client.Store.ID != nil {
		log.Println("Existing session found, connecting...")
		if err := client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	// No paired device: run the QR flow.
	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		if err == whatsmeow.ErrQRStoreContainsID {
			return client.Connect()
		}
		return fmt.Errorf("failed to get QR channel: %w", err)
	}

	go func() {
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				qrPath := filepath.Join(c.cfg.QRDir, "pairing.png")
				if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, qrPath); err != nil {
					log.Printf("Failed to write QR image: %v", err)
				} else {
					log.Printf("📱 Scan the QR code at %s to pair", qrPath)
				}
				c.emit(Event{Kind: EventQR, Detail: evt.Code, At: time.Now()})
			case "success":
				log.Println("✅ Paired via QR")
				c.emit(Event{Kind: EventAuthenticated, At: time.Now()})
			case "timeout":
				log.Println("⚠️ QR pairing timed out")
				c.emit(Event{Kind: EventAuthFailure, Detail: "qr timeout", At: time.Now()})
			}
		}
	}()

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.mu.Lock()
		c.loggedIn = true
		c.mu.Unlock()
		c.emit(Event{Kind: EventReady, At: time.Now()})
	case *events.PairSuccess:
		c.mu.Lock()
		c.loggedIn = true
		c.mu.Unlock()
		c.emit(Event{Kind: EventAuthenticated, Detail: v.ID.String(), At: time.Now()})
	case *events.LoggedOut:
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		c.emit(Event{Kind: EventAuthFailure, Detail: fmt.Sprintf("logged out: %v", v.Reason), At: time.Now()})
	case *events.Disconnected:
		c.emit(Event{Kind: EventDisconnected, At: time.Now()})
	}
}

func (c *Client) State() Status {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		return StatusUninitialized
	}
	if !client.IsConnected() {
		return StatusDisconnected
	}
	if !client.IsLoggedIn() {
		return StatusPairing
	}
	return StatusConnected
}

func (c *Client) Ready() bool {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	return client != nil && client.IsConnected()
}

func (c *Client) Authenticated() bool {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	return client != nil && client.IsLoggedIn()
}

// IsRegisteredUser asks the platform whether the address can receive
// messages at all.
func (c *Client) IsRegisteredUser(ctx context.Context, address string) (bool, error) {
	client, err := c.connectedClient()
	if err != nil {
		return false, err
	}
	resp, err := client.IsOnWhatsApp([]string{"+" + numberPart(address)})
	if err != nil {
		return false, fmt.Errorf("registration check failed: %w", err)
	}
	if len(resp) == 0 {
		return false, nil
	}
	return resp[0].IsIn, nil
}

// SendMessage delivers text, or media with the text as caption.
func (c *Client) SendMessage(ctx context.Context, address string, payload model.MessagePayload) error {
	client, err := c.connectedClient()
	if err != nil {
		return err
	}

	jid, err := parseJID(address)
	if err != nil {
		return err
	}

	var msg *waE2E.Message
	if payload.HasMedia() {
		msg, err = c.buildMediaMessage(ctx, client, payload)
		if err != nil {
			return err
		}
	} else {
		msg = &waE2E.Message{Conversation: proto.String(payload.Text)}
	}

	if _, err := client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) buildMediaMessage(ctx context.Context, client *whatsmeow.Client, payload model.MessagePayload) (*waE2E.Message, error) {
	data, err := os.ReadFile(payload.MediaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read media %s: %w", payload.MediaPath, err)
	}
	uploaded, err := client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return nil, fmt.Errorf("media upload failed: %w", err)
	}
	mime := payload.MediaMime
	if mime == "" {
		mime = "image/jpeg"
	}
	return &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(payload.Text),
			Mimetype:      proto.String(mime),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		},
	}, nil
}

// SimulateTyping shows "typing..." to the recipient for roughly d.
func (c *Client) SimulateTyping(ctx context.Context, address string, d time.Duration) error {
	client, err := c.connectedClient()
	if err != nil {
		return err
	}
	jid, err := parseJID(address)
	if err != nil {
		return err
	}
	if err := client.SendChatPresence(jid, types.ChatPresenceComposing, types.ChatPresenceMediaText); err != nil {
		return err
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	return client.SendChatPresence(jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
}

func (c *Client) Logout(ctx context.Context) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return nil
	}
	return client.Logout(ctx)
}

// Destroy tears the session down. Initialize can be called afterwards to
// re-establish it; pairing state survives in the sqlite store.
func (c *Client) Destroy() error {
	c.mu.Lock()
	client := c.client
	container := c.container
	c.client = nil
	c.container = nil
	c.loggedIn = false
	c.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	if container != nil {
		container.Close()
	}
	return nil
}

func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) connectedClient() (*whatsmeow.Client, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return nil, fmt.Errorf("session not connected")
	}
	if !client.IsLoggedIn() {
		return nil, fmt.Errorf("session not logged in")
	}
	return client, nil
}

// emit never blocks; a slow consumer loses old events rather than
// wedging the whatsmeow event handler.
func (c *Client) emit(evt Event) {
	select {
	case c.events <- evt:
	default:
	}
}

func numberPart(address string) string {
	if i := strings.IndexByte(address, '@'); i >= 0 {
		return address[:i]
	}
	return address
}

func parseJID(address string) (types.JID, error) {
	user := numberPart(address)
	if user == "" {
		return types.JID{}, fmt.Errorf("invalid recipient address %q", address)
	}
	return types.NewJID(user, types.DefaultUserServer), nil
}
