package realtime

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultDedupCapacity bounds the processed-id set. Insert-only LRU traffic
// evicts oldest first, keeping the most recent ids.
const DefaultDedupCapacity = 1000

// Dedup guarantees each logical chat message is forwarded downstream exactly
// once, even when it arrives via both a live push and a history backfill, or
// is redelivered after a reconnect. One instance per authenticated session;
// Reset on logout.
type Dedup struct {
	log *zap.Logger
	ids *lru.Cache[string, struct{}]
}

// NewDedup constructs a deduplicator with the given capacity; capacity <= 0
// falls back to DefaultDedupCapacity.
func NewDedup(capacity int, log *zap.Logger) *Dedup {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	ids, _ := lru.New[string, struct{}](capacity)
	return &Dedup{log: log, ids: ids}
}

// Key derives the dedup key for a message: the server-assigned id when
// present, else a room+timestamp composite. The composite is a best-effort
// heuristic: two distinct messages in the same room in the same millisecond
// collide. Messages without a timestamp use the arrival time.
func (d *Dedup) Key(msg ChatMessage) string {
	if msg.ID != "" {
		return msg.ID
	}
	ts := msg.MessageTimestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return fmt.Sprintf("%s-%d", msg.ChatRoomID, ts)
}

// Process forwards msg exactly once. A message whose key was already seen is
// dropped silently (debug log only).
func (d *Dedup) Process(msg ChatMessage, forward func(ChatMessage)) {
	key := d.Key(msg)
	if seen, _ := d.ids.ContainsOrAdd(key, struct{}{}); seen {
		d.log.Debug("duplicate message dropped",
			zap.String("key", key),
			zap.String("room", msg.ChatRoomID))
		return
	}
	forward(msg)
}

// Len returns the current size of the processed-id set.
func (d *Dedup) Len() int {
	return d.ids.Len()
}

// Reset clears the processed-id set. Called at the session boundary (logout).
func (d *Dedup) Reset() {
	d.ids.Purge()
}
