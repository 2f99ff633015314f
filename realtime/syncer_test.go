package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCache records the order of cache operations and applies patches
// to a backing map.
type recordingCache struct {
	mu      sync.Mutex
	ops     []string
	entries map[string]any
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string]any)}
}

func (c *recordingCache) set(key QueryKey, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = v
}

func (c *recordingCache) get(key QueryKey) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key.String()]
}

func (c *recordingCache) Patch(key QueryKey, fn PatchFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, "patch:"+key.String())
	v, ok := c.entries[key.String()]
	if !ok {
		return
	}
	if updated, applied := fn(v); applied {
		c.entries[key.String()] = updated
	}
}

func (c *recordingCache) Invalidate(key QueryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, "invalidate:"+key.String())
}

func (c *recordingCache) Refetch(key QueryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, "refetch:"+key.String())
}

type recordingNotifier struct {
	toasts []Toast
}

func (n *recordingNotifier) Notify(t Toast) { n.toasts = append(n.toasts, t) }

func taskEvent() TaskUpdatedEvent {
	return TaskUpdatedEvent{
		OrderID:       "o1",
		OrderItemID:   "i1",
		TaskName:      "Sewing",
		Status:        "IN_PROGRESS",
		MilestoneName: "Production",
		ProductName:   "Wrap dress",
		OrderCode:     "MF-1042",
		Timestamp:     1700000000000,
	}
}

func TestTaskUpdatePatchesDetailAndList(t *testing.T) {
	cache := newRecordingCache()
	cache.set(OrderKey("o1"), &Order{
		ID: "o1", Code: "MF-1042",
		Items: []OrderItem{{ID: "i1", Status: "PENDING"}, {ID: "i2", Status: "PENDING"}},
	})
	cache.set(OrdersKey(), []Order{
		{ID: "o1", Items: []OrderItem{{ID: "i1", Status: "PENDING"}}},
		{ID: "o2", Items: []OrderItem{{ID: "i9", Status: "PENDING"}}},
	})

	s := NewSyncer(cache, nil, nil, nil)
	s.HandleTaskUpdated(taskEvent())

	detail := cache.get(OrderKey("o1")).(*Order)
	assert.Equal(t, "IN_PROGRESS", detail.Items[0].Status)
	assert.Equal(t, "Sewing", detail.Items[0].TaskName)
	assert.Equal(t, "Production", detail.Items[0].MilestoneName)
	assert.Equal(t, "PENDING", detail.Items[1].Status, "other items untouched")
	assert.False(t, detail.UpdatedAt.IsZero())

	list := cache.get(OrdersKey()).([]Order)
	assert.Equal(t, "IN_PROGRESS", list[0].Items[0].Status)
	assert.Equal(t, "PENDING", list[1].Items[0].Status, "non-matching orders preserved")
}

func TestTaskUpdatePatchPrecedesInvalidation(t *testing.T) {
	cache := newRecordingCache()
	s := NewSyncer(cache, nil, nil, nil)
	s.HandleTaskUpdated(taskEvent())

	lastPatch, firstInvalidate := -1, -1
	for i, op := range cache.ops {
		if op[:5] == "patch" && i > lastPatch {
			lastPatch = i
		}
		if op[:10] == "invalidate" && firstInvalidate == -1 {
			firstInvalidate = i
		}
	}
	require.NotEqual(t, -1, lastPatch)
	require.NotEqual(t, -1, firstInvalidate)
	assert.Less(t, lastPatch, firstInvalidate, "patch first, invalidate second")
}

func TestTaskUpdateInvalidatesAllQueryGroups(t *testing.T) {
	cache := newRecordingCache()
	s := NewSyncer(cache, nil, nil, nil)
	s.HandleTaskUpdated(taskEvent())

	for _, key := range []QueryKey{
		OrderKey("o1"), OrderItemKey("i1"), OrdersKey(),
		TasksKey(), AdminTasksKey(), StaffTasksKey(), DashboardKey(),
	} {
		assert.Contains(t, cache.ops, "invalidate:"+key.String())
	}
}

func TestTaskUpdateWithoutCachedOrder(t *testing.T) {
	cache := newRecordingCache() // nothing cached at all
	s := NewSyncer(cache, nil, nil, nil)

	assert.NotPanics(t, func() { s.HandleTaskUpdated(taskEvent()) })
	assert.Contains(t, cache.ops, "invalidate:"+OrderKey("o1").String(),
		"invalidation must still run so a future fetch can populate the entry")
}

func TestTaskUpdateShapeMismatchSkipsPatch(t *testing.T) {
	cache := newRecordingCache()
	cache.set(OrderKey("o1"), "not an order")
	cache.set(OrdersKey(), map[string]int{"weird": 1})

	s := NewSyncer(cache, nil, nil, nil)
	assert.NotPanics(t, func() { s.HandleTaskUpdated(taskEvent()) })

	assert.Equal(t, "not an order", cache.get(OrderKey("o1")), "mismatched entry left untouched")
	assert.Contains(t, cache.ops, "invalidate:"+OrderKey("o1").String())
}

func TestTaskUpdatePanicInPatchRecovered(t *testing.T) {
	cache := &panickyCache{}
	s := NewSyncer(cache, nil, nil, nil)

	assert.NotPanics(t, func() { s.HandleTaskUpdated(taskEvent()) })
	assert.NotZero(t, cache.invalidated, "invalidation still proceeds after a patch failure")
}

type panickyCache struct {
	invalidated int
}

func (c *panickyCache) Patch(QueryKey, PatchFunc) { panic("shape mismatch") }
func (c *panickyCache) Invalidate(QueryKey)       { c.invalidated++ }
func (c *panickyCache) Refetch(QueryKey)          {}

func TestTaskUpdateToastWithRoleRouting(t *testing.T) {
	cache := newRecordingCache()
	notifier := &recordingNotifier{}
	s := NewSyncer(cache, notifier, func() string { return "/staff/manage-task" }, nil)
	s.HandleTaskUpdated(taskEvent())

	require.Len(t, notifier.toasts, 1)
	toast := notifier.toasts[0]
	assert.Equal(t, "Sewing: In progress (Wrap dress)", toast.Message)
	assert.Equal(t, "/staff/manage-order/o1", toast.ActionURL)
}

func TestOrderStatusEventPatchesAndToasts(t *testing.T) {
	cache := newRecordingCache()
	cache.set(OrderKey("o1"), &Order{ID: "o1", Status: "PENDING"})
	notifier := &recordingNotifier{}
	s := NewSyncer(cache, notifier, nil, nil)

	s.HandleOrderStatus(OrderStatusEvent{OrderID: "o1", OrderCode: "MF-1042", Status: "COMPLETED"})

	detail := cache.get(OrderKey("o1")).(*Order)
	assert.Equal(t, "COMPLETED", detail.Status)
	require.Len(t, notifier.toasts, 1)
	assert.Equal(t, "Order MF-1042: Completed", notifier.toasts[0].Message)
	assert.Equal(t, "/admin/manage-order/o1", notifier.toasts[0].ActionURL,
		"missing path provider defaults to the admin scope")
}

func TestRoleFromPath(t *testing.T) {
	assert.Equal(t, "admin", RoleFromPath("/admin/manage-order/o1"))
	assert.Equal(t, "branch", RoleFromPath("/branch/orders"))
	assert.Equal(t, "manager", RoleFromPath("/manager"))
	assert.Equal(t, "staff", RoleFromPath("/staff/tasks/t1"))
	assert.Equal(t, "admin", RoleFromPath("/something-else"))
	assert.Equal(t, "admin", RoleFromPath(""))
}

func TestSyncerBindAndClose(t *testing.T) {
	conn := newFakeConn()
	c := newTestClient(t, func(ctx context.Context, url, token string) (transport, error) {
		return conn, nil
	})
	cache := newRecordingCache()
	s := NewSyncer(cache, nil, nil, nil)
	s.Bind(c)

	assert.Equal(t, 1, c.Dispatcher().Len(EventTaskUpdated))
	assert.Equal(t, 1, c.Dispatcher().Len(EventOrderStatus))

	s.Close()
	assert.Zero(t, c.Dispatcher().Len(EventTaskUpdated))
	assert.Zero(t, c.Dispatcher().Len(EventOrderStatus))
}
