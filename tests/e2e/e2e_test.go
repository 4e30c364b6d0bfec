package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatecollab/internal/app"
	"estatecollab/internal/config"
	"estatecollab/internal/database"
	"estatecollab/internal/directory"
	"estatecollab/internal/domain/collaboration"
	"estatecollab/internal/syncagent"
)

const (
	ownerID        int64 = 1
	collaboratorID int64 = 2
)

type E2ETestSuite struct {
	app    *app.App
	server *httptest.Server
	owner  *syncagent.Client
	collab *syncagent.Client
	cancel context.CancelFunc
}

func setupTestSuite(t *testing.T) *E2ETestSuite {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		AppEnv:                   "test",
		DatabaseURL:              "file:e2e_" + t.Name() + "?mode=memory&cache=shared",
		JWTSecret:                "test_secret_key_32_characters_min",
		JWTTTL:                   time.Hour,
		AllowActiveContractEdits: true,
		RelayPollInterval:        50 * time.Millisecond,
		RelayBatchSize:           100,
		DigestInterval:           time.Hour,
		DigestDelay:              time.Hour,
		NotificationPurgeAfter:   time.Hour,
		CleanupInterval:          time.Hour,
	}

	db, err := database.Connect(cfg.DatabaseURL)
	require.NoError(t, err, "Failed to connect to test database")

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.NewWithDB(ctx, cfg, db)
	require.NoError(t, err)

	require.NoError(t, a.Users.Upsert(ctx, &directory.User{ID: ownerID, Email: "owner@test.com", Name: "Olivia Owner", Role: "agent"}))
	require.NoError(t, a.Users.Upsert(ctx, &directory.User{ID: collaboratorID, Email: "colin@test.com", Name: "Colin Agent", Role: "agent"}))
	require.NoError(t, a.Posts.Upsert(ctx, directory.Listing{
		Ref:     collaboration.PropertyRef("prop-1"),
		OwnerID: ownerID,
		Title:   "Two-bedroom flat",
		City:    "Lyon",
		Amount:  320000,
	}))

	a.Start(ctx)
	srv := httptest.NewServer(a.Router)

	ownerToken, err := a.Tokens.GenerateToken(ownerID, "agent")
	require.NoError(t, err)
	collabToken, err := a.Tokens.GenerateToken(collaboratorID, "agent")
	require.NoError(t, err)

	s := &E2ETestSuite{
		app:    a,
		server: srv,
		owner:  syncagent.NewClient(srv.URL+"/api/v1", ownerToken),
		collab: syncagent.NewClient(srv.URL+"/api/v1", collabToken),
		cancel: cancel,
	}
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = a.Close()
	})
	return s
}

// connectAgent bootstraps a sync agent for the client and waits for its
// websocket to be up.
func (s *E2ETestSuite) connectAgent(t *testing.T, ctx context.Context, userID int64, client *syncagent.Client) *syncagent.Agent {
	url, err := client.WebSocketURL()
	require.NoError(t, err)

	ch := syncagent.NewWSChannel(url, syncagent.WSChannelConfig{MinBackoff: 20 * time.Millisecond, MaxBackoff: 100 * time.Millisecond})
	agent := syncagent.NewAgent(client, syncagent.NewSessionCache(), nil, syncagent.Config{UserID: userID})
	agent.Attach(ctx, ch)
	require.NoError(t, agent.Bootstrap(ctx))

	connected := make(chan struct{})
	var once sync.Once
	ch.OnConnect(func(bool) { once.Do(func() { close(connected) }) })
	go func() { _ = ch.Run(ctx) }()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("websocket did not connect")
	}
	return agent
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *syncagent.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, status, apiErr.StatusCode)
	assert.Equal(t, code, apiErr.Code)
}

func TestHealth(t *testing.T) {
	s := setupTestSuite(t)

	resp, err := http.Get(s.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	s := setupTestSuite(t)

	_, err := syncagent.NewClient(s.server.URL+"/api/v1", "").ListCollaborations(context.Background(), "")
	var apiErr *syncagent.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = syncagent.NewClient(s.server.URL+"/api/v1", "garbage").UnreadCount(context.Background())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

// =============================================================================
// Full collaboration lifecycle with live delivery to the post owner
// =============================================================================

func TestFlow_CollaborationLifecycle(t *testing.T) {
	s := setupTestSuite(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ownerAgent := s.connectAgent(t, ctx, ownerID, s.owner)
	assert.Empty(t, ownerAgent.State().Items)

	var collabID string

	t.Run("propose delivers a live notification to the owner", func(t *testing.T) {
		amount := 5000.0
		c, err := s.collab.Propose(ctx, syncagent.ProposeParams{
			Post:               syncagent.PostRef{Type: "property", ID: "prop-1"},
			Amount:             &amount,
			ProposedCommission: 2.5,
			Message:            "I have a buyer for this flat",
		})
		require.NoError(t, err)
		assert.Equal(t, "pending", c.Status)
		assert.Equal(t, ownerID, c.OwnerID)
		assert.Equal(t, collaboratorID, c.CollaboratorID)
		collabID = c.ID

		require.Eventually(t, func() bool {
			st := ownerAgent.State()
			return len(st.Items) == 1 && st.Unread == 1
		}, 5*time.Second, 20*time.Millisecond)

		n := ownerAgent.State().Items[0]
		assert.Equal(t, "collab:proposal_received", n.Type)
		assert.Equal(t, collabID, n.CollaborationID())
	})

	t.Run("second open proposal on the same post is refused", func(t *testing.T) {
		amount := 1000.0
		_, err := s.collab.Propose(ctx, syncagent.ProposeParams{
			Post:   syncagent.PostRef{Type: "property", ID: "prop-1"},
			Amount: &amount,
		})
		requireAPIError(t, err, http.StatusConflict, "DUPLICATE_PROPOSAL")
	})

	t.Run("only the owner responds", func(t *testing.T) {
		_, err := s.collab.Respond(ctx, collabID, "accepted")
		requireAPIError(t, err, http.StatusForbidden, "FORBIDDEN")

		c, err := s.owner.Respond(ctx, collabID, "accepted")
		require.NoError(t, err)
		assert.Equal(t, "accepted", c.Status)
	})

	t.Run("activation waits for both signatures", func(t *testing.T) {
		_, err := s.collab.Activate(ctx, collabID)
		requireAPIError(t, err, http.StatusConflict, "CONTRACT_NOT_SIGNED")

		_, fully, err := s.owner.Sign(ctx, collabID)
		require.NoError(t, err)
		assert.False(t, fully)

		_, fully, err = s.collab.Sign(ctx, collabID)
		require.NoError(t, err)
		assert.True(t, fully)

		c, err := s.collab.Activate(ctx, collabID)
		require.NoError(t, err)
		assert.Equal(t, "active", c.Status)
		assert.Equal(t, "agreement", c.CurrentProgressStep)
	})

	t.Run("a step completes once both sides validate", func(t *testing.T) {
		c, err := s.owner.ValidateStep(ctx, collabID, "agreement", "Mandate signed")
		require.NoError(t, err)
		assert.Equal(t, "agreement", c.CurrentProgressStep)

		c, err = s.collab.ValidateStep(ctx, collabID, "agreement", "")
		require.NoError(t, err)
		assert.Equal(t, "first_contact", c.CurrentProgressStep)
	})

	t.Run("contract edit while active blocks progress until re-signed", func(t *testing.T) {
		_, err := s.owner.UpdateContract(ctx, collabID, "Revised terms: 3% commission")
		require.NoError(t, err)

		_, err = s.collab.ValidateStep(ctx, collabID, "first_contact", "")
		requireAPIError(t, err, http.StatusConflict, "CONTRACT_NOT_SIGNED")

		_, _, err = s.owner.Sign(ctx, collabID)
		require.NoError(t, err)
		_, fully, err := s.collab.Sign(ctx, collabID)
		require.NoError(t, err)
		assert.True(t, fully)

		_, err = s.collab.ValidateStep(ctx, collabID, "first_contact", "")
		require.NoError(t, err)
	})

	t.Run("terminate ends the collaboration", func(t *testing.T) {
		c, err := s.owner.Terminate(ctx, collabID, "completed")
		require.NoError(t, err)
		assert.Equal(t, "completed", c.Status)

		_, err = s.collab.Terminate(ctx, collabID, "cancelled")
		var apiErr *syncagent.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	})

	t.Run("live state matches a fresh fetch", func(t *testing.T) {
		require.Eventually(t, func() bool {
			page, err := s.owner.ListNotifications(ctx, "", syncagent.DefaultBootstrapLimit)
			if err != nil {
				return false
			}
			st := ownerAgent.State()
			if len(st.Items) != len(page.Notifications) || st.Unread != page.UnreadCount {
				return false
			}
			for i := range st.Items {
				if st.Items[i].ID != page.Notifications[i].ID {
					return false
				}
			}
			return true
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("read-all reaches the live session", func(t *testing.T) {
		_, err := s.owner.MarkAllRead(ctx)
		require.NoError(t, err)

		require.Eventually(t, func() bool { return ownerAgent.State().Unread == 0 }, 5*time.Second, 20*time.Millisecond)
		for _, n := range ownerAgent.State().Items {
			assert.True(t, n.Read)
		}
	})
}
