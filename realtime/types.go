package realtime

import "encoding/json"

const (
	frameInvocation = "invocation"
	frameEvent      = "event"

	// Client → server invocation targets.
	targetJoinRoom    = "JoinRoom"
	targetSendMessage = "SendMessage"

	// Server → client event targets.
	EventReceiveMessage    = "ReceiveMessage"
	EventMessageHistory    = "MessageHistory"
	EventTaskUpdated       = "TaskUpdated"
	EventOrderStatus       = "OrderStatusChanged"
	EventNotification      = "Notification"
	EventUserStatusChanged = "UserStatusChanged"
)

// invocation is the envelope client → server.
type invocation struct {
	Type      string `json:"type"`
	ID        string `json:"invocationId"`
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
}

// frame is the envelope server → client.
type frame struct {
	Type      string            `json:"type"`
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// SendMessagePayload is the argument of the SendMessage invocation.
type SendMessagePayload struct {
	Message    string `json:"Message"`
	ChatRoomID string `json:"ChatRoomId"`
	Type       string `json:"Type,omitempty"`
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}
