package syncagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ListNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/notifications", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("cursor"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"notifications": []map[string]any{{"id": "n1", "type": "collab:proposed", "title": "New proposal"}},
				"next_cursor":   "3",
				"has_more":      true,
				"unread_count":  4,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v1/", "tok")
	page, err := c.ListNotifications(context.Background(), "7", 20)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, "n1", page.Notifications[0].ID)
	assert.Equal(t, "3", page.NextCursor)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(4), page.UnreadCount)
}

func TestClient_SignDecodesFullySigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collaborations/c-1/contract/sign", r.URL.Path)
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"collaboration": map[string]any{"id": "c-1", "status": "accepted"},
				"fully_signed":  true,
			},
		})
	}))
	defer srv.Close()

	collab, fully, err := NewClient(srv.URL, "").Sign(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", collab.ID)
	assert.True(t, fully)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "completed", body["outcome"])
		writeEnvelope(w, http.StatusConflict, map[string]any{
			"success": false,
			"error":   map[string]any{"code": "NOT_ACTIVE", "message": "collaboration is not active"},
		})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok").Terminate(context.Background(), "c-1", "completed")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "NOT_ACTIVE", apiErr.Code)
}

func TestClient_WebSocketURL(t *testing.T) {
	u, err := NewClient("https://api.example.com/api/v1/", "a b").WebSocketURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/api/v1/ws?token=a+b", u)

	u, err = NewClient("http://localhost:8080/api/v1", "t").WebSocketURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/v1/ws?token=t", u)
}
