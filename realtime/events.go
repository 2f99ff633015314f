package realtime

// ChatMessage is a single chat message pushed by the hub or returned by the
// history endpoint.
type ChatMessage struct {
	ID               string `json:"id"`
	ChatRoomID       string `json:"chatRoomId"`
	SenderID         string `json:"senderId"`
	SenderName       string `json:"senderName,omitempty"`
	Message          string `json:"message"`
	Type             string `json:"type,omitempty"`
	MessageTimestamp int64  `json:"messageTimestamp,omitempty"` // unix millis
}

// TaskUpdatedEvent is pushed on the unified hub when a production task of an
// order item changes state.
type TaskUpdatedEvent struct {
	OrderID       string `json:"orderId"`
	OrderItemID   string `json:"orderItemId"`
	TaskName      string `json:"taskName"`
	Status        string `json:"status"`
	MilestoneName string `json:"milestoneName,omitempty"`
	ProductName   string `json:"productName,omitempty"`
	OrderCode     string `json:"orderCode,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"` // unix millis
}

// OrderStatusEvent is pushed on the unified hub when an order moves to a new
// overall status.
type OrderStatusEvent struct {
	OrderID   string `json:"orderId"`
	OrderCode string `json:"orderCode,omitempty"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NotificationEvent is a generic user-facing notification from the unified hub.
type NotificationEvent struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	Type      string `json:"type,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// UserStatusEvent reports another user going online or offline.
type UserStatusEvent struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// StatusLabel maps a server task/order status code to a human-readable label
// for toast messages. Unknown statuses pass through unchanged.
func StatusLabel(status string) string {
	switch status {
	case "PENDING":
		return "Pending"
	case "IN_PROGRESS":
		return "In progress"
	case "QUALITY_CHECK":
		return "Quality check"
	case "COMPLETED", "DONE":
		return "Completed"
	case "CANCELLED":
		return "Cancelled"
	case "FAILED":
		return "Failed"
	default:
		return status
	}
}
