package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMessagesPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Chat/rooms/r1/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("index"))
		assert.Equal(t, "25", r.URL.Query().Get("pageSize"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","chatRoomId":"r1","message":"hi"}],"hasMore":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() string { return "tok" })
	page, err := c.GetMessages(context.Background(), "r1", 2, 25)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].ID)
	assert.False(t, page.HasMore)
}

func TestGetMessagesEmptyRoomID(t *testing.T) {
	c := NewClient("http://unused", nil)
	_, err := c.GetMessages(context.Background(), "", 0, 20)
	assert.Error(t, err)
}

func TestGetMessagesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"not a participant"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.GetMessages(context.Background(), "r1", 0, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a participant")
	assert.Contains(t, err.Error(), "403")
}

func TestListRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Chat/rooms", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"r1","name":"Order MF-1042"},{"id":"r2"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Order MF-1042", rooms[0].Name)
}

func TestMessageTimestampNormalization(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int64
	}{
		{"current field", `{"id":"m1","messageTimestamp":111}`, 111},
		{"legacy field", `{"id":"m2","timestamp":222}`, 222},
		{"current wins over legacy", `{"id":"m3","messageTimestamp":333,"timestamp":999}`, 333},
		{"neither", `{"id":"m4"}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m Message
			require.NoError(t, json.Unmarshal([]byte(tc.in), &m))
			assert.Equal(t, tc.want, m.MessageTimestamp)
		})
	}
}
