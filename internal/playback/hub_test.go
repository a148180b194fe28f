package playback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/voice-studio/internal/asset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attach starts a test server for hub and connects one player to sessionID
func attach(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, sessionID)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Players(sessionID) == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readCommand(t *testing.T, conn *websocket.Conn) Command {
	t.Helper()

	var cmd Command
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&cmd))
	return cmd
}

func TestChannel_Play(t *testing.T) {
	hub := NewHub("http://studio.local", []string{"*"})
	conn := attach(t, hub, "session-1")

	assets := asset.NewManager(0)
	a, err := assets.Materialize([]byte("mp3"), "audio/mpeg")
	require.NoError(t, err)

	require.NoError(t, hub.Channel("session-1").Play(context.Background(), a, 0.8))

	cmd := readCommand(t, conn)
	assert.Equal(t, CommandPlay, cmd.Type)
	assert.Equal(t, a.ID(), cmd.AssetID)
	assert.Equal(t, "http://studio.local/assets/"+a.ID(), cmd.URL)
	assert.Equal(t, "audio/mpeg", cmd.ContentType)
	assert.Equal(t, 0.8, cmd.Rate)
	require.NotNil(t, cmd.Position)
	assert.Equal(t, 0.0, *cmd.Position)
}

func TestChannel_PlayReleased(t *testing.T) {
	hub := NewHub("", []string{"*"})
	assets := asset.NewManager(0)
	a, err := assets.Materialize([]byte("mp3"), "audio/mpeg")
	require.NoError(t, err)
	require.NoError(t, assets.Release(a))

	err = hub.Channel("session-1").Play(context.Background(), a, 1.0)
	assert.ErrorIs(t, err, asset.ErrReleased)
}

func TestChannel_PlayWithoutPlayers(t *testing.T) {
	hub := NewHub("", []string{"*"})
	assets := asset.NewManager(0)
	a, err := assets.Materialize([]byte("mp3"), "audio/mpeg")
	require.NoError(t, err)

	assert.NoError(t, hub.Channel("nobody").Play(context.Background(), a, 0.5))
}

func TestChannel_Report(t *testing.T) {
	hub := NewHub("", []string{"*"})
	conn := attach(t, hub, "session-1")

	hub.Channel("session-1").Report("rate limited")

	cmd := readCommand(t, conn)
	assert.Equal(t, CommandError, cmd.Type)
	assert.Equal(t, "rate limited", cmd.Message)
	assert.Nil(t, cmd.Position)
}

func TestHub_RevokeOnRelease(t *testing.T) {
	hub := NewHub("", []string{"*"})
	conn := attach(t, hub, "session-1")

	assets := asset.NewManager(0)
	assets.OnRelease(hub.AssetReleased)

	a, err := assets.Materialize([]byte("mp3"), "audio/mpeg")
	require.NoError(t, err)
	require.NoError(t, hub.Channel("session-1").Play(context.Background(), a, 0.5))
	assert.Equal(t, CommandPlay, readCommand(t, conn).Type)

	require.NoError(t, assets.Release(a))

	cmd := readCommand(t, conn)
	assert.Equal(t, CommandRevoke, cmd.Type)
	assert.Equal(t, a.ID(), cmd.AssetID)
}

func TestHub_SessionsAreIsolated(t *testing.T) {
	hub := NewHub("", []string{"*"})
	first := attach(t, hub, "session-1")
	attach(t, hub, "session-2")

	hub.Channel("session-2").Report("only for session two")
	hub.Channel("session-1").Report("only for session one")

	assert.Equal(t, "only for session one", readCommand(t, first).Message)
}

func TestHub_Detach(t *testing.T) {
	hub := NewHub("", []string{"*"})
	conn := attach(t, hub, "session-1")

	hub.Detach("session-1")

	assert.Equal(t, CommandClosed, readCommand(t, conn).Type)
	assert.Equal(t, 0, hub.Players("session-1"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})

	allowed := httptest.NewRequest(http.MethodGet, "/", nil)
	allowed.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(allowed))

	denied := httptest.NewRequest(http.MethodGet, "/", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(denied))

	noOrigin := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(noOrigin))
}
