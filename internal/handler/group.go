package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/milanh34/linkUp/internal/blob"
	"github.com/milanh34/linkUp/internal/logger"
	"github.com/milanh34/linkUp/internal/middleware"
	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store"
	"github.com/milanh34/linkUp/internal/ws"
)

type GroupHandler struct {
	chats store.ChatStore
	users store.UserDirectory
	hub   *ws.Hub
	blobs blob.Store
}

func NewGroupHandler(chats store.ChatStore, users store.UserDirectory, hub *ws.Hub, blobs blob.Store) *GroupHandler {
	return &GroupHandler{chats: chats, users: users, hub: hub, blobs: blobs}
}

// loadGroupAsAdmin fetches the chat and enforces the admin gate, writing the
// appropriate error response on failure.
func (h *GroupHandler) loadGroupAsAdmin(w http.ResponseWriter, r *http.Request) (*model.Chat, bool) {
	chatID := chi.URLParam(r, "id")
	chat, err := h.chats.Get(r.Context(), chatID)
	if err != nil {
		writeStoreError(w, err, "load group")
		return nil, false
	}
	if !chat.IsGroup {
		writeError(w, http.StatusBadRequest, "not a group chat")
		return nil, false
	}
	userID := middleware.GetUserID(r.Context())
	if _, ok := chat.Participant(userID); !ok {
		writeStoreError(w, store.ErrNotParticipant, "load group")
		return nil, false
	}
	if chat.GroupAdmin != userID {
		writeStoreError(w, store.ErrNotAdmin, "load group")
		return nil, false
	}
	return chat, true
}

// emitGroupEvent builds a per-recipient chat view and delivers the event to
// every listed room.
func (h *GroupHandler) emitGroupEvent(r *http.Request, chat *model.Chat, audience []string, build func(view *ChatView) ws.OutgoingMessage) {
	for _, uid := range audience {
		view, err := buildChatView(r.Context(), h.users, chat, uid)
		if err != nil {
			logger.Errorf("group event view for %s: %v", uid, err)
			continue
		}
		h.hub.EmitToUser(uid, build(view))
	}
}

type CreateGroupRequest struct {
	Name      string `json:"name" validate:"required"`
	AvatarURL string `json:"avatar_url"`
}

// CreateGroup creates a group chat with the requester as admin and sole
// participant.
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.CreateGroup", time.Now())()
	var req CreateGroupRequest
	if !decodeValid(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	now := time.Now().UTC()
	chat := &model.Chat{
		ID:             uuid.New().String(),
		IsGroup:        true,
		GroupName:      req.Name,
		GroupAvatarURL: req.AvatarURL,
		GroupAdmin:     userID,
		Participants:   []model.Participant{{UserID: userID, LastReadIndex: -1, JoinedAt: now}},
		Messages:       []model.Message{},
		CreatedAt:      now,
	}
	if err := h.chats.CreateGroup(ctx, chat); err != nil {
		writeStoreError(w, err, "create group")
		return
	}

	view, err := buildChatView(ctx, h.users, chat, userID)
	if err != nil {
		writeStoreError(w, err, "create group: view")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type EditGroupRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1"`
	AvatarURL *string `json:"avatar_url"`
}

// EditGroupSettings updates the group name and/or avatar. A replaced avatar
// asset is released from the blob store.
func (h *GroupHandler) EditGroupSettings(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.EditGroupSettings", time.Now())()
	var req EditGroupRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if req.Name == nil && req.AvatarURL == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	chat, ok := h.loadGroupAsAdmin(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if err := h.chats.UpdateGroupSettings(ctx, chat.ID, req.Name, req.AvatarURL); err != nil {
		writeStoreError(w, err, "edit group")
		return
	}
	if req.AvatarURL != nil && chat.GroupAvatarURL != "" && chat.GroupAvatarURL != *req.AvatarURL {
		if err := h.blobs.Release(chat.GroupAvatarURL); err != nil {
			logger.Errorf("edit group: release old avatar: %v", err)
		}
	}

	fresh, err := h.chats.Get(ctx, chat.ID)
	if err != nil {
		writeStoreError(w, err, "edit group: reload")
		return
	}

	h.emitGroupEvent(r, fresh, fresh.ParticipantIDs(), func(view *ChatView) ws.OutgoingMessage {
		return ws.OutgoingMessage{Type: ws.EventGroupEdited, Payload: ws.GroupEditedPayload{Chat: view}}
	})

	view, err := buildChatView(ctx, h.users, fresh, middleware.GetUserID(ctx))
	if err != nil {
		writeStoreError(w, err, "edit group: view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type AddParticipantsRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,unique,dive,uuid4"`
}

// AddParticipants appends new members at cursor -1, silently skipping ids
// already in the group.
func (h *GroupHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.AddParticipants", time.Now())()
	var req AddParticipantsRequest
	if !decodeValid(w, r, &req) {
		return
	}

	chat, ok := h.loadGroupAsAdmin(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	existing := chat.ParticipantIDs()
	addedIDs := lo.Without(req.UserIDs, existing...)

	if err := h.chats.AddParticipants(ctx, chat.ID, req.UserIDs, time.Now().UTC()); err != nil {
		writeStoreError(w, err, "add participants")
		return
	}

	fresh, err := h.chats.Get(ctx, chat.ID)
	if err != nil {
		writeStoreError(w, err, "add participants: reload")
		return
	}

	h.emitGroupEvent(r, fresh, fresh.ParticipantIDs(), func(view *ChatView) ws.OutgoingMessage {
		return ws.OutgoingMessage{Type: ws.EventGroupUpdated, Payload: ws.GroupUpdatedPayload{Chat: view, AddedIDs: addedIDs}}
	})

	view, err := buildChatView(ctx, h.users, fresh, middleware.GetUserID(ctx))
	if err != nil {
		writeStoreError(w, err, "add participants: view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemoveParticipant drops a member from the group. The removed user is
// notified too. Admin self-removal is allowed and leaves the group without
// an acting admin.
func (h *GroupHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.RemoveParticipant", time.Now())()
	chat, ok := h.loadGroupAsAdmin(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	removedID := chi.URLParam(r, "participantId")

	if err := h.chats.RemoveParticipant(ctx, chat.ID, removedID); err != nil {
		writeStoreError(w, err, "remove participant")
		return
	}

	fresh, err := h.chats.Get(ctx, chat.ID)
	if err != nil {
		writeStoreError(w, err, "remove participant: reload")
		return
	}

	audience := fresh.ParticipantIDs()
	if _, ok := fresh.Participant(removedID); !ok {
		audience = append(audience, removedID)
	}
	h.emitGroupEvent(r, fresh, audience, func(view *ChatView) ws.OutgoingMessage {
		return ws.OutgoingMessage{Type: ws.EventGroupRemoved, Payload: ws.GroupRemovedPayload{Chat: view, RemovedID: removedID}}
	})

	view, err := buildChatView(ctx, h.users, fresh, middleware.GetUserID(ctx))
	if err != nil {
		writeStoreError(w, err, "remove participant: view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteGroup permanently removes the group, releases its avatar asset and
// notifies every former participant.
func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.DeleteGroup", time.Now())()
	chat, ok := h.loadGroupAsAdmin(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	former := chat.ParticipantIDs()
	if err := h.chats.Delete(ctx, chat.ID); err != nil {
		writeStoreError(w, err, "delete group")
		return
	}
	if chat.GroupAvatarURL != "" {
		if err := h.blobs.Release(chat.GroupAvatarURL); err != nil {
			logger.Errorf("delete group: release avatar: %v", err)
		}
	}

	h.hub.EmitToUsers(former, ws.OutgoingMessage{
		Type: ws.EventGroupDeleted,
		Payload: ws.GroupDeletedPayload{
			ChatID:         chat.ID,
			GroupName:      chat.GroupName,
			GroupAvatarURL: chat.GroupAvatarURL,
		},
	})

	writeJSON(w, http.StatusOK, struct{}{})
}
