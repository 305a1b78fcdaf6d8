package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milanh34/linkUp/internal/model"
)

func TestSendMessage_LazyDirectChatCreation(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.newUser(t, "alice")
	bobID, _ := env.newUser(t, "bob")

	var msg model.Message
	status := env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID, "text": "hi"}, &msg)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 0, msg.Index)
	assert.Equal(t, aliceID, msg.SenderID)
	assert.Equal(t, "hi", msg.Text)
	assert.False(t, msg.IsRead)
	assert.Empty(t, msg.ReadBy)

	var summaries []ChatSummary
	status = env.do(t, http.MethodGet, "/api/chats", aliceToken, nil, &summaries)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].TotalMessages)
	assert.Equal(t, "bob", summaries[0].Name)
	assert.Equal(t, 0, summaries[0].UnreadCount)

	chatID := summaries[0].ID
	var detail ChatView
	status = env.do(t, http.MethodGet, "/api/chats/"+chatID, aliceToken, nil, &detail)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, detail.IsGroup)
	require.NotNil(t, detail.Participant)
	assert.Equal(t, bobID, detail.Participant.UserID)
}

func TestGetChatDetail_DirectChatProjectsPeerOnly(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.newUser(t, "alice")
	bobID, bobToken := env.newUser(t, "bob")

	env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID, "text": "hi"}, nil)
	var summaries []ChatSummary
	env.do(t, http.MethodGet, "/api/chats", aliceToken, nil, &summaries)
	chatID := summaries[0].ID

	// Each side sees the other as the single participant record; the member
	// list stays empty for direct chats.
	var detail ChatView
	env.do(t, http.MethodGet, "/api/chats/"+chatID, aliceToken, nil, &detail)
	require.NotNil(t, detail.Participant)
	assert.Equal(t, bobID, detail.Participant.UserID)
	assert.Equal(t, "bob", detail.Participant.Username)
	assert.Empty(t, detail.Participants)

	env.do(t, http.MethodGet, "/api/chats/"+chatID, bobToken, nil, &detail)
	require.NotNil(t, detail.Participant)
	assert.Equal(t, aliceID, detail.Participant.UserID)
	assert.Empty(t, detail.Participants)
}

func TestSendMessage_SecondMessageReusesChat(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.newUser(t, "alice")
	bobID, bobToken := env.newUser(t, "bob")

	var first model.Message
	env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID, "text": "hi"}, &first)

	// Bob replies by recipient id; no new chat may appear.
	var second model.Message
	status := env.do(t, http.MethodPost, "/api/messages", bobToken,
		map[string]any{"recipient_id": aliceID, "text": "hey"}, &second)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, second.Index)

	var summaries []ChatSummary
	env.do(t, http.MethodGet, "/api/chats", aliceToken, nil, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].TotalMessages)
	assert.Equal(t, 1, summaries[0].UnreadCount)
}

func TestSendMessage_ByChatID(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.newUser(t, "alice")
	bobID, _ := env.newUser(t, "bob")

	env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID, "text": "hi"}, nil)

	var summaries []ChatSummary
	env.do(t, http.MethodGet, "/api/chats", aliceToken, nil, &summaries)
	require.Len(t, summaries, 1)

	var msg model.Message
	status := env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"chat_id": summaries[0].ID, "text": "again"}, &msg)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, msg.Index)
}

func TestSendMessage_WithMedia(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.newUser(t, "alice")
	bobID, _ := env.newUser(t, "bob")

	var msg model.Message
	status := env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{
			"recipient_id": bobID,
			"media":        map[string]string{"url": "/media/x.png", "kind": "image"},
		}, &msg)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, msg.Media)
	assert.Equal(t, model.MediaKindImage, msg.Media.Kind)
	assert.Empty(t, msg.Text)
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.newUser(t, "alice")
	bobID, _ := env.newUser(t, "bob")

	// Neither text nor media.
	status := env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Neither chat nor recipient.
	status = env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"text": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Messaging yourself.
	aliceID, _ := env.newUser(t, "alice2")
	token2, _ := env.verifier.Sign(aliceID, time.Hour)
	status = env.do(t, http.MethodPost, "/api/messages", token2,
		map[string]any{"recipient_id": aliceID, "text": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Unknown chat id.
	status = env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"chat_id": uuid.New().String(), "text": "hi"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Unknown recipient.
	status = env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": uuid.New().String(), "text": "hi"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSendMessage_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	bobID, _ := env.newUser(t, "bob")

	status := env.do(t, http.MethodPost, "/api/messages", "",
		map[string]any{"recipient_id": bobID, "text": "hi"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = env.do(t, http.MethodPost, "/api/messages", "garbage-token",
		map[string]any{"recipient_id": bobID, "text": "hi"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGetChatDetail_Access(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.newUser(t, "alice")
	bobID, bobToken := env.newUser(t, "bob")
	_, malloryToken := env.newUser(t, "mallory")

	env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID, "text": "hi"}, nil)
	var summaries []ChatSummary
	env.do(t, http.MethodGet, "/api/chats", aliceToken, nil, &summaries)
	chatID := summaries[0].ID

	var detail ChatView
	status := env.do(t, http.MethodGet, "/api/chats/"+chatID, bobToken, nil, &detail)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", detail.Name)
	assert.Equal(t, -1, detail.LastReadIndex)
	require.Len(t, detail.Messages, 1)

	status = env.do(t, http.MethodGet, "/api/chats/"+chatID, malloryToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.do(t, http.MethodGet, "/api/chats/"+uuid.New().String(), aliceToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListChats_RecencyOrderEmptyLast(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.newUser(t, "alice")
	bobID, _ := env.newUser(t, "bob")
	carolID, _ := env.newUser(t, "carol")

	// Older chat with bob, newer chat with carol, plus an empty group.
	env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID, "text": "first"}, nil)
	env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": carolID, "text": "second"}, nil)
	env.do(t, http.MethodPost, "/api/groups", aliceToken,
		map[string]any{"name": "Empty room"}, nil)

	var summaries []ChatSummary
	status := env.do(t, http.MethodGet, "/api/chats", aliceToken, nil, &summaries)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, summaries, 3)
	assert.Equal(t, "carol", summaries[0].Name)
	assert.Equal(t, "bob", summaries[1].Name)
	assert.Equal(t, "Empty room", summaries[2].Name)
	assert.Nil(t, summaries[2].LastMessage)
}

func TestMarkAsRead_FlagsAndIdempotency(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.newUser(t, "alice")
	bobID, bobToken := env.newUser(t, "bob")

	env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID, "text": "hi"}, nil)
	var summaries []ChatSummary
	env.do(t, http.MethodGet, "/api/chats", aliceToken, nil, &summaries)
	chatID := summaries[0].ID

	status := env.do(t, http.MethodPost, "/api/chats/"+chatID+"/read", bobToken, nil, nil)
	require.Equal(t, http.StatusOK, status)

	var detail ChatView
	env.do(t, http.MethodGet, "/api/chats/"+chatID, bobToken, nil, &detail)
	require.Len(t, detail.Messages, 1)
	assert.True(t, detail.Messages[0].IsRead)
	require.Len(t, detail.Messages[0].ReadBy, 1)
	assert.Equal(t, bobID, detail.Messages[0].ReadBy[0].UserID)
	assert.Equal(t, 0, detail.LastReadIndex)

	// Second call changes nothing.
	status = env.do(t, http.MethodPost, "/api/chats/"+chatID+"/read", bobToken, nil, nil)
	require.Equal(t, http.StatusOK, status)
	env.do(t, http.MethodGet, "/api/chats/"+chatID, bobToken, nil, &detail)
	assert.Len(t, detail.Messages[0].ReadBy, 1)

	// Unread count for bob is now zero; alice still has none to read.
	env.do(t, http.MethodGet, "/api/chats", bobToken, nil, &summaries)
	assert.Equal(t, 0, summaries[0].UnreadCount)
}

func TestMarkAsRead_Access(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.newUser(t, "alice")
	bobID, _ := env.newUser(t, "bob")
	_, malloryToken := env.newUser(t, "mallory")

	env.do(t, http.MethodPost, "/api/messages", aliceToken,
		map[string]any{"recipient_id": bobID, "text": "hi"}, nil)
	var summaries []ChatSummary
	env.do(t, http.MethodGet, "/api/chats", aliceToken, nil, &summaries)
	chatID := summaries[0].ID

	status := env.do(t, http.MethodPost, "/api/chats/"+chatID+"/read", malloryToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.do(t, http.MethodPost, "/api/chats/"+uuid.New().String()+"/read", aliceToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
