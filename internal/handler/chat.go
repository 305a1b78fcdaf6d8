package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/milanh34/linkUp/internal/logger"
	"github.com/milanh34/linkUp/internal/middleware"
	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store"
	"github.com/milanh34/linkUp/internal/ws"
)

type ChatHandler struct {
	chats store.ChatStore
	users store.UserDirectory
	hub   *ws.Hub
}

func NewChatHandler(chats store.ChatStore, users store.UserDirectory, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{chats: chats, users: users, hub: hub}
}

type MediaRef struct {
	URL  string          `json:"url" validate:"required"`
	Kind model.MediaKind `json:"kind" validate:"required,oneof=image video audio file"`
}

type SendMessageRequest struct {
	ChatID      string    `json:"chat_id" validate:"omitempty,uuid4"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text"`
	Media       *MediaRef `json:"media"`
}

// SendMessage appends a message to an existing chat or lazily creates the
// direct chat with the recipient on first contact.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.SendMessage", time.Now())()
	var req SendMessageRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if req.Text == "" && req.Media == nil {
		writeError(w, http.StatusBadRequest, "text or media is required")
		return
	}
	if req.ChatID == "" && req.RecipientID == "" {
		writeError(w, http.StatusBadRequest, "chat_id or recipient_id is required")
		return
	}

	ctx := r.Context()
	senderID := middleware.GetUserID(ctx)

	var chat *model.Chat
	var isNewChat bool
	if req.ChatID != "" {
		var err error
		chat, err = h.chats.Get(ctx, req.ChatID)
		if err != nil {
			writeStoreError(w, err, "send message: get chat")
			return
		}
	} else {
		if req.RecipientID == senderID {
			writeError(w, http.StatusBadRequest, "cannot message yourself")
			return
		}
		if _, err := h.users.GetByID(ctx, req.RecipientID); err != nil {
			writeStoreError(w, err, "send message: resolve recipient")
			return
		}
		var err error
		chat, isNewChat, err = h.chats.FindOrCreateDirect(ctx, senderID, req.RecipientID, time.Now().UTC())
		if err != nil {
			writeStoreError(w, err, "send message: find or create chat")
			return
		}
	}

	msg := &model.Message{
		SenderID: senderID,
		Text:     req.Text,
		ReadBy:   []model.ReadReceipt{},
	}
	if req.Media != nil {
		msg.Media = &model.Media{URL: req.Media.URL, Kind: req.Media.Kind}
	}

	appended, err := h.chats.Append(ctx, chat.ID, msg)
	if err != nil {
		writeStoreError(w, err, "send message: append")
		return
	}

	fresh, err := h.chats.Get(ctx, chat.ID)
	if err != nil {
		writeStoreError(w, err, "send message: reload chat")
		return
	}

	if isNewChat {
		for _, uid := range fresh.ParticipantIDs() {
			view, err := buildChatView(ctx, h.users, fresh, uid)
			if err != nil {
				logger.Errorf("send message: chatCreated view for %s: %v", uid, err)
				continue
			}
			h.hub.EmitToUser(uid, ws.OutgoingMessage{Type: ws.EventChatCreated, Payload: view})
		}
	}
	h.emitChatUpdated(fresh, isNewChat)

	writeJSON(w, http.StatusCreated, appended)
}

// emitChatUpdated sends one chatUpdated per participant room, each carrying
// that participant's own unread count.
func (h *ChatHandler) emitChatUpdated(chat *model.Chat, isNewChat bool) {
	for _, uid := range chat.ParticipantIDs() {
		h.hub.EmitToUser(uid, ws.OutgoingMessage{
			Type: ws.EventChatUpdated,
			Payload: ws.ChatUpdatedPayload{
				ChatID:      chat.ID,
				IsNewChat:   isNewChat,
				LastMessage: chat.LastMessage(),
				Messages:    chat.Messages,
				UnreadCount: chat.UnreadCountFor(uid),
			},
		})
	}
}

// ListChats returns the requester's chats ordered by recency, empty chats
// last.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.ListChats", time.Now())()
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	chats, err := h.chats.ListForUser(ctx, userID)
	if err != nil {
		writeStoreError(w, err, "list chats")
		return
	}
	summaries, err := buildSummaries(ctx, h.users, chats, userID)
	if err != nil {
		writeStoreError(w, err, "list chats: summaries")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetChatDetail returns the full chat projection for a participant.
func (h *ChatHandler) GetChatDetail(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.GetChatDetail", time.Now())()
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	chat, err := h.chats.Get(ctx, chatID)
	if err != nil {
		writeStoreError(w, err, "get chat detail")
		return
	}
	if _, ok := chat.Participant(userID); !ok {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}
	view, err := buildChatView(ctx, h.users, chat, userID)
	if err != nil {
		writeStoreError(w, err, "get chat detail: view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// MarkAsRead advances the requester's read cursor to the end of the sequence
// and notifies the other participants when anything actually changed.
func (h *ChatHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.MarkAsRead", time.Now())()
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	chat, err := h.chats.Get(ctx, chatID)
	if err != nil {
		writeStoreError(w, err, "mark read: get chat")
		return
	}
	if _, ok := chat.Participant(userID); !ok {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	changed, err := h.chats.MarkRead(ctx, chatID, userID, time.Now().UTC())
	if err != nil {
		writeStoreError(w, err, "mark read")
		return
	}

	if changed {
		out := ws.OutgoingMessage{
			Type: ws.EventMessageRead,
			Payload: ws.MessageReadPayload{
				ChatID:   chatID,
				ReaderID: userID,
				IsGroup:  chat.IsGroup,
			},
		}
		for _, uid := range chat.ParticipantIDs() {
			if uid != userID {
				h.hub.EmitToUser(uid, out)
			}
		}
	}

	writeJSON(w, http.StatusOK, struct{}{})
}
