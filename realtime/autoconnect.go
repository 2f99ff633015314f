package realtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mamafit/realtime-sdk-go/realtime/rest"
)

// AuthState is the snapshot of the external auth-state collaborator.
type AuthState struct {
	AccessToken   string
	Authenticated bool
	UserID        string
}

// Preferences exposes the persisted user settings the controller reads.
type Preferences interface {
	DesktopNotificationsEnabled() bool
}

// Controller binds the hub client's lifecycle to the authentication
// lifecycle: connect on login, disconnect on logout, no duplicate connects,
// no leaked connections. It also owns the session-global chat listener,
// attached per (authenticated, userID) rather than per connection, so
// transient reconnects never drop the registration.
type Controller struct {
	client *Client
	dedup  *Dedup
	log    *zap.Logger

	mu        sync.Mutex
	history   *rest.Client
	prefs     Preferences
	desktop   Notifier
	onMessage func(ChatMessage)
	authed    bool
	attempted bool
	userID    string
	msgSub    *Subscription
	histSub   *Subscription
}

// NewController constructs an auto-connect controller over client and dedup.
func NewController(client *Client, dedup *Dedup, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{client: client, dedup: dedup, log: log}
}

// SetMessageHandler registers the application hook receiving each
// deduplicated inbound chat message. Safe to call while messages are being
// delivered.
func (c *Controller) SetMessageHandler(fn func(ChatMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// SetHistoryClient enables BackfillHistory via the REST fallback.
func (c *Controller) SetHistoryClient(h *rest.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = h
}

// SetPreferences provides the persisted settings read for desktop
// notification gating.
func (c *Controller) SetPreferences(p Preferences) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs = p
}

// SetDesktopNotifier provides the surface for desktop notifications about
// messages from other users.
func (c *Controller) SetDesktopNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desktop = n
}

// Run consumes auth-state updates until ctx is cancelled or the channel
// closes.
func (c *Controller) Run(ctx context.Context, updates <-chan AuthState) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			c.Apply(ctx, st)
		}
	}
}

// Apply processes one auth-state snapshot. Only transitions have effects;
// re-applying an unchanged state is a no-op.
func (c *Controller) Apply(ctx context.Context, st AuthState) {
	if st.Authenticated {
		c.onLogin(ctx, st)
	} else {
		c.onLogout()
	}
}

func (c *Controller) onLogin(ctx context.Context, st AuthState) {
	c.mu.Lock()
	c.authed = true
	if c.msgSub == nil || c.userID != st.UserID {
		c.detachListenersLocked()
		c.attachListenersLocked(st.UserID)
	}
	if c.client.State() == StateConnected || c.attempted {
		c.mu.Unlock()
		return
	}
	c.attempted = true
	c.mu.Unlock()

	if err := c.client.Connect(ctx); err != nil {
		// Reset so the next auth-state change retries.
		c.mu.Lock()
		c.attempted = false
		c.mu.Unlock()
		c.log.Warn("auto-connect failed", zap.Error(err))
	}
}

func (c *Controller) onLogout() {
	c.mu.Lock()
	wasAuthed := c.authed
	c.authed = false
	c.attempted = false
	c.userID = ""
	c.detachListenersLocked()
	c.mu.Unlock()

	if !wasAuthed {
		return
	}
	if err := c.client.Disconnect(); err != nil {
		c.log.Warn("disconnect on logout failed", zap.Error(err))
	}
	// Session boundary: a new login must not suppress messages seen in the
	// previous session.
	c.dedup.Reset()
}

func (c *Controller) attachListenersLocked(userID string) {
	c.userID = userID
	c.msgSub = c.client.OnReceiveMessage(func(msg ChatMessage) {
		c.deliver(userID, msg)
	})
	c.histSub = c.client.OnMessageHistory(func(msgs []ChatMessage) {
		for _, msg := range msgs {
			c.deliver(userID, msg)
		}
	})
}

func (c *Controller) detachListenersLocked() {
	c.msgSub.Cancel()
	c.histSub.Cancel()
	c.msgSub = nil
	c.histSub = nil
}

// deliver routes one inbound message through the dedup; fresh messages reach
// the app hook, and messages from other users may additionally raise a
// desktop notification when the preference flag allows it.
func (c *Controller) deliver(userID string, msg ChatMessage) {
	c.dedup.Process(msg, func(m ChatMessage) {
		c.mu.Lock()
		onMessage := c.onMessage
		desktop := c.desktop
		prefs := c.prefs
		c.mu.Unlock()

		if onMessage != nil {
			onMessage(m)
		}
		if m.SenderID == userID || m.SenderID == "" {
			return
		}
		if desktop == nil || prefs == nil || !prefs.DesktopNotificationsEnabled() {
			return
		}
		title := m.SenderName
		if title == "" {
			title = "New message"
		}
		desktop.Notify(Toast{Message: fmt.Sprintf("%s: %s", title, m.Message)})
	})
}

// BackfillHistory fetches one page of room history over REST and merges it
// into the same dedup path as pushed messages. Returns whether more pages
// remain.
func (c *Controller) BackfillHistory(ctx context.Context, roomID string, index, pageSize int) (bool, error) {
	c.mu.Lock()
	history := c.history
	c.mu.Unlock()
	if history == nil {
		return false, NewError(CodeValidation, "no history client configured")
	}
	page, err := history.GetMessages(ctx, roomID, index, pageSize)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	for _, m := range page.Messages {
		c.deliver(userID, ChatMessage{
			ID:               m.ID,
			ChatRoomID:       m.ChatRoomID,
			SenderID:         m.SenderID,
			SenderName:       m.SenderName,
			Message:          m.Message,
			Type:             m.Type,
			MessageTimestamp: m.MessageTimestamp,
		})
	}
	return page.HasMore, nil
}
