package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMessagesCursorAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/chats/c1/messages", r.URL.Path)
		if r.URL.Query().Get("cursor") == "" {
			_, _ = io.WriteString(w, `{"items":[{"id":"m2","chatId":"c1","senderId":"u1","type":"text","content":"b","createdAt":"2026-01-01T00:00:01Z","updatedAt":"2026-01-01T00:00:01Z"}],"nextCursor":"m2"}`)
			return
		}
		assert.Equal(t, "m2", r.URL.Query().Get("cursor"))
		_, _ = io.WriteString(w, `{"items":[{"id":"m1","chatId":"c1","senderId":null,"type":"text","content":"a","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}],"nextCursor":null}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok", nil)
	first, err := c.FetchMessages(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "m2", first.NextCursor)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "u1", first.Items[0].Sender())

	older, err := c.FetchMessages(context.Background(), "c1", first.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "", older.NextCursor)
	assert.Nil(t, older.Items[0].SenderID)
}

func TestPostMessageSendsClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body postMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "temp-1", body.ClientID)
		_, _ = io.WriteString(w, `{"id":"m1","chatId":"c1","senderId":"me","type":"text","content":"`+body.Content+`","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}`)
	}))
	defer srv.Close()

	msg, err := New(srv.URL, "", nil).PostMessage(context.Background(), "c1", "hello", "temp-1")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hello", msg.Content)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error string", `{"error":"forbidden chat"}`, "forbidden chat"},
		{"nested", `{"error":{"message":"nope"}}`, "nope"},
		{"message", `{"message":"bad"}`, "bad"},
		{"plain", "oops\n", "oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, "", nil).FetchChats(context.Background())
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusForbidden, apiErr.Status)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}
