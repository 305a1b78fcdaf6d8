package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/milanh34/linkUp/internal/auth"
	"github.com/milanh34/linkUp/internal/blob"
	"github.com/milanh34/linkUp/internal/middleware"
	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store/memory"
	"github.com/milanh34/linkUp/internal/ws"
)

type testEnv struct {
	ts       *httptest.Server
	chats    *memory.Store
	users    *memory.Directory
	verifier *auth.Verifier
	blobs    *blob.DiskStore
	hub      *ws.Hub
}

// newTestEnv builds the full API surface over the in-memory store with a
// running hub, mirroring the production router.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	chats := memory.New()
	users := memory.NewDirectory()
	verifier := auth.NewVerifier("test-secret")
	blobs := blob.NewDiskStore(t.TempDir(), 1<<20, "/media")

	hub := ws.NewHub(chats, 100)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()
	t.Cleanup(func() {
		hubCancel()
		<-hubDone
	})

	chatH := NewChatHandler(chats, users, hub)
	groupH := NewGroupHandler(chats, users, hub, blobs)
	mediaH := NewMediaHandler(blobs, 1<<20)
	wsH := NewWSHandler(hub, verifier, nil)

	r := chi.NewRouter()
	r.Use(middleware.RecoverJSON)
	r.Get("/media/{filename}", mediaH.Serve)
	r.Get("/ws", wsH.ServeWS)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(verifier))
		r.Post("/api/messages", chatH.SendMessage)
		r.Get("/api/chats", chatH.ListChats)
		r.Get("/api/chats/{id}", chatH.GetChatDetail)
		r.Post("/api/chats/{id}/read", chatH.MarkAsRead)
		r.Post("/api/groups", groupH.CreateGroup)
		r.Put("/api/groups/{id}", groupH.EditGroupSettings)
		r.Post("/api/groups/{id}/participants", groupH.AddParticipants)
		r.Delete("/api/groups/{id}/participants/{participantId}", groupH.RemoveParticipant)
		r.Delete("/api/groups/{id}", groupH.DeleteGroup)
		r.Post("/api/media/upload", mediaH.Upload)
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, chats: chats, users: users, verifier: verifier, blobs: blobs, hub: hub}
}

// newUser registers a profile and returns its id and a valid token.
func (e *testEnv) newUser(t *testing.T, username string) (string, string) {
	t.Helper()
	id := uuid.New().String()
	e.users.Put(model.UserProfile{ID: id, Username: username})
	token, err := e.verifier.Sign(id, time.Hour)
	require.NoError(t, err)
	return id, token
}

// do issues an authenticated JSON request and decodes the response body into
// out when it is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
