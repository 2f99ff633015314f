package realtime

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OrderItem is the cached shape of one item within an order.
type OrderItem struct {
	ID            string    `json:"id"`
	ProductName   string    `json:"productName,omitempty"`
	TaskName      string    `json:"taskName,omitempty"`
	Status        string    `json:"status"`
	MilestoneName string    `json:"milestoneName,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Order is the cached shape of an order, as held under OrderKey (detail) and
// inside the slice under OrdersKey (list).
type Order struct {
	ID        string      `json:"id"`
	Code      string      `json:"code,omitempty"`
	Status    string      `json:"status"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Items     []OrderItem `json:"items,omitempty"`
}

// Toast is a user-visible notification with an optional deep-link action.
type Toast struct {
	Message     string
	ActionLabel string
	ActionURL   string
}

// Notifier is the toast surface collaborator.
type Notifier interface {
	Notify(t Toast)
}

// PathProvider returns the current UI path; the Syncer reads the leading role
// segment from it to build deep links inside the user's permission scope.
type PathProvider func() string

// RoleFromPath extracts the role segment (admin, branch, manager, staff)
// from a UI path, defaulting to admin.
func RoleFromPath(path string) string {
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "admin", "branch", "manager", "staff":
			return seg
		}
	}
	return "admin"
}

// Syncer keeps client-held query caches fresh on server push: it patches
// cached entries optimistically for immediate UI feedback, then invalidates
// the authoritative keys so a background refetch reconciles any drift. The
// patch always precedes the invalidation. A patch that cannot apply is
// skipped, never thrown; invalidation alone corrects the state.
type Syncer struct {
	cache  Cache
	notify Notifier
	path   PathProvider
	log    *zap.Logger

	subs []*Subscription
}

// NewSyncer constructs a cache synchronizer. notify and path may be nil, in
// which case no toasts are raised and deep links default to the admin scope.
func NewSyncer(cache Cache, notify Notifier, path PathProvider, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{cache: cache, notify: notify, path: path, log: log}
}

// Bind subscribes the syncer to the unified hub client's task and order
// events. Call Close to detach.
func (s *Syncer) Bind(c *Client) {
	s.subs = append(s.subs,
		c.OnTaskUpdated(s.HandleTaskUpdated),
		c.OnOrderStatus(s.HandleOrderStatus),
	)
}

// Close cancels the subscriptions created by Bind.
func (s *Syncer) Close() {
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = nil
}

// HandleTaskUpdated applies a production task update: patch the cached order
// detail and orders list, invalidate the affected query groups, then toast.
func (s *Syncer) HandleTaskUpdated(ev TaskUpdatedEvent) {
	now := eventTime(ev.Timestamp)

	s.patch(OrderKey(ev.OrderID), func(cached any) (any, bool) {
		return patchOrderEntry(cached, func(o *Order) {
			applyTaskUpdate(o, ev, now)
		})
	})
	s.patch(OrdersKey(), func(cached any) (any, bool) {
		return patchOrderList(cached, ev.OrderID, func(o *Order) {
			applyTaskUpdate(o, ev, now)
		})
	})

	for _, key := range []QueryKey{
		OrderKey(ev.OrderID),
		OrderItemKey(ev.OrderItemID),
		OrdersKey(),
		TasksKey(),
		AdminTasksKey(),
		StaffTasksKey(),
		DashboardKey(),
	} {
		s.cache.Invalidate(key)
	}

	s.toast(taskToastMessage(ev), ev.OrderID)
}

// HandleOrderStatus applies an order-level status change from the unified hub.
func (s *Syncer) HandleOrderStatus(ev OrderStatusEvent) {
	now := eventTime(ev.Timestamp)

	s.patch(OrderKey(ev.OrderID), func(cached any) (any, bool) {
		return patchOrderEntry(cached, func(o *Order) {
			o.Status = ev.Status
			o.UpdatedAt = now
		})
	})
	s.patch(OrdersKey(), func(cached any) (any, bool) {
		return patchOrderList(cached, ev.OrderID, func(o *Order) {
			o.Status = ev.Status
			o.UpdatedAt = now
		})
	})

	for _, key := range []QueryKey{
		OrderKey(ev.OrderID),
		OrdersKey(),
		DashboardKey(),
	} {
		s.cache.Invalidate(key)
	}

	s.toast(orderToastMessage(ev), ev.OrderID)
}

// patch runs one optimistic cache patch, recovering any panic so a shape
// mismatch degrades to invalidate-only instead of propagating.
func (s *Syncer) patch(key QueryKey, fn PatchFunc) {
	defer func() {
		if r := recover(); r != nil {
			err := NewError(CodeCachePatch, fmt.Sprint(r))
			s.log.Warn("cache patch skipped",
				zap.String("key", key.String()), zap.Error(err))
		}
	}()
	s.cache.Patch(key, fn)
}

func (s *Syncer) toast(message, orderID string) {
	if s.notify == nil {
		return
	}
	role := "admin"
	if s.path != nil {
		role = RoleFromPath(s.path())
	}
	s.notify.Notify(Toast{
		Message:     message,
		ActionLabel: "View order",
		ActionURL:   fmt.Sprintf("/%s/manage-order/%s", role, orderID),
	})
}

// applyTaskUpdate patches one order in place: bump the order timestamp and
// update the matching item. Orders without the item are left otherwise
// untouched; the follow-up invalidation reconciles them.
func applyTaskUpdate(o *Order, ev TaskUpdatedEvent, now time.Time) {
	o.UpdatedAt = now
	for i := range o.Items {
		if o.Items[i].ID != ev.OrderItemID {
			continue
		}
		item := &o.Items[i]
		item.Status = ev.Status
		item.TaskName = ev.TaskName
		item.UpdatedAt = now
		if ev.MilestoneName != "" {
			item.MilestoneName = ev.MilestoneName
		}
		if ev.ProductName != "" {
			item.ProductName = ev.ProductName
		}
	}
}

// patchOrderEntry applies mutate to a cached order detail entry, accepting
// either *Order or Order. Any other shape is skipped.
func patchOrderEntry(cached any, mutate func(*Order)) (any, bool) {
	switch o := cached.(type) {
	case *Order:
		mutate(o)
		return o, true
	case Order:
		mutate(&o)
		return o, true
	default:
		return cached, false
	}
}

// patchOrderList applies mutate to the matching order inside a cached list,
// accepting []Order or []*Order. Non-matching entries are preserved.
func patchOrderList(cached any, orderID string, mutate func(*Order)) (any, bool) {
	switch list := cached.(type) {
	case []Order:
		patched := false
		for i := range list {
			if list[i].ID == orderID {
				mutate(&list[i])
				patched = true
			}
		}
		return list, patched
	case []*Order:
		patched := false
		for _, o := range list {
			if o != nil && o.ID == orderID {
				mutate(o)
				patched = true
			}
		}
		return list, patched
	default:
		return cached, false
	}
}

func taskToastMessage(ev TaskUpdatedEvent) string {
	msg := fmt.Sprintf("%s: %s", ev.TaskName, StatusLabel(ev.Status))
	switch {
	case ev.ProductName != "":
		return fmt.Sprintf("%s (%s)", msg, ev.ProductName)
	case ev.OrderCode != "":
		return fmt.Sprintf("%s (order %s)", msg, ev.OrderCode)
	}
	return msg
}

func orderToastMessage(ev OrderStatusEvent) string {
	if ev.OrderCode != "" {
		return fmt.Sprintf("Order %s: %s", ev.OrderCode, StatusLabel(ev.Status))
	}
	return fmt.Sprintf("Order updated: %s", StatusLabel(ev.Status))
}

func eventTime(unixMilli int64) time.Time {
	if unixMilli == 0 {
		return time.Now()
	}
	return time.UnixMilli(unixMilli)
}
