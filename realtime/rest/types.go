package rest

import "encoding/json"

// RoomInfo represents chat room metadata.
type RoomInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	LastMessage  string `json:"lastMessage,omitempty"`
	LastActivity int64  `json:"lastActivity,omitempty"` // unix millis
}

// Message is a single message in the history. Older API versions serialize
// the timestamp as "timestamp" instead of "messageTimestamp"; decoding
// normalizes both spellings onto MessageTimestamp so downstream dedup sees
// one field.
type Message struct {
	ID               string `json:"id"`
	ChatRoomID       string `json:"chatRoomId"`
	SenderID         string `json:"senderId"`
	SenderName       string `json:"senderName,omitempty"`
	Message          string `json:"message"`
	Type             string `json:"type,omitempty"`
	MessageTimestamp int64  `json:"messageTimestamp,omitempty"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type wire struct {
		ID               string `json:"id"`
		ChatRoomID       string `json:"chatRoomId"`
		SenderID         string `json:"senderId"`
		SenderName       string `json:"senderName"`
		Message          string `json:"message"`
		Type             string `json:"type"`
		MessageTimestamp int64  `json:"messageTimestamp"`
		Timestamp        int64  `json:"timestamp"` // legacy alias
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.MessageTimestamp == 0 {
		w.MessageTimestamp = w.Timestamp
	}
	*m = Message{
		ID:               w.ID,
		ChatRoomID:       w.ChatRoomID,
		SenderID:         w.SenderID,
		SenderName:       w.SenderName,
		Message:          w.Message,
		Type:             w.Type,
		MessageTimestamp: w.MessageTimestamp,
	}
	return nil
}

// MessagesPage contains one page of messages with pagination info.
type MessagesPage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
