package handler

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store"
)

// ParticipantView joins the stored cursor with the directory profile.
type ParticipantView struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	LastReadIndex int    `json:"last_read_index"`
}

// ChatView is the detail projection for one requester: display fields from
// the group or the other participant, the full message sequence, and the
// requester's own read cursor. Groups carry the member list in Participants;
// a direct chat carries the peer's single record in Participant instead.
type ChatView struct {
	ID            string            `json:"id"`
	IsGroup       bool              `json:"is_group"`
	Name          string            `json:"name"`
	AvatarURL     string            `json:"avatar_url,omitempty"`
	GroupAdmin    string            `json:"group_admin,omitempty"`
	Participant   *ParticipantView  `json:"participant,omitempty"`
	Participants  []ParticipantView `json:"participants,omitempty"`
	Messages      []model.Message   `json:"messages"`
	LastReadIndex int               `json:"last_read_index"`
	TotalMessages int               `json:"total_messages"`
}

// ChatSummary is one row of the chat list.
type ChatSummary struct {
	ID            string         `json:"id"`
	IsGroup       bool           `json:"is_group"`
	Name          string         `json:"name"`
	AvatarURL     string         `json:"avatar_url,omitempty"`
	LastMessage   *model.Message `json:"last_message,omitempty"`
	UnreadCount   int            `json:"unread_count"`
	TotalMessages int            `json:"total_messages"`
	LastMessageAt time.Time      `json:"last_message_at,omitempty"`
}

// displayFields resolves the name/avatar shown for a chat: group fields, or
// the peer's profile for direct chats.
func displayFields(chat *model.Chat, viewerID string, profiles map[string]model.UserProfile) (name, avatar string) {
	if chat.IsGroup {
		return chat.GroupName, chat.GroupAvatarURL
	}
	other, ok := chat.OtherParticipant(viewerID)
	if !ok {
		return "", ""
	}
	p, ok := profiles[other.UserID]
	if !ok {
		return other.UserID, ""
	}
	name = p.Username
	if p.FullName != "" {
		name = p.FullName
	}
	return name, p.AvatarURL
}

// buildChatView projects chat for one viewer, joining participant profiles
// from the directory.
func buildChatView(ctx context.Context, users store.UserDirectory, chat *model.Chat, viewerID string) (*ChatView, error) {
	profiles, err := users.GetMany(ctx, chat.ParticipantIDs())
	if err != nil {
		return nil, err
	}

	name, avatar := displayFields(chat, viewerID, profiles)

	project := func(p model.Participant) ParticipantView {
		pv := ParticipantView{UserID: p.UserID, LastReadIndex: p.LastReadIndex}
		if prof, ok := profiles[p.UserID]; ok {
			pv.Username = prof.Username
			pv.FullName = prof.FullName
			pv.AvatarURL = prof.AvatarURL
		}
		return pv
	}

	// Groups expose the full member list; direct chats expose only the peer.
	var peer *ParticipantView
	var participants []ParticipantView
	if chat.IsGroup {
		participants = lo.Map(chat.Participants, func(p model.Participant, _ int) ParticipantView {
			return project(p)
		})
	} else if other, ok := chat.OtherParticipant(viewerID); ok {
		pv := project(*other)
		peer = &pv
	}

	lastRead := -1
	if p, ok := chat.Participant(viewerID); ok {
		lastRead = p.LastReadIndex
	}

	messages := chat.Messages
	if messages == nil {
		messages = []model.Message{}
	}

	return &ChatView{
		ID:            chat.ID,
		IsGroup:       chat.IsGroup,
		Name:          name,
		AvatarURL:     avatar,
		GroupAdmin:    chat.GroupAdmin,
		Participant:   peer,
		Participants:  participants,
		Messages:      messages,
		LastReadIndex: lastRead,
		TotalMessages: chat.TotalMessages,
	}, nil
}

// buildSummaries projects the chat list for one viewer and orders it by
// recency, chats with no messages last.
func buildSummaries(ctx context.Context, users store.UserDirectory, chats []*model.Chat, viewerID string) ([]ChatSummary, error) {
	peerIDs := lo.Uniq(lo.FilterMap(chats, func(c *model.Chat, _ int) (string, bool) {
		if c.IsGroup {
			return "", false
		}
		other, ok := c.OtherParticipant(viewerID)
		if !ok {
			return "", false
		}
		return other.UserID, true
	}))
	profiles, err := users.GetMany(ctx, peerIDs)
	if err != nil {
		return nil, err
	}

	summaries := lo.Map(chats, func(c *model.Chat, _ int) ChatSummary {
		name, avatar := displayFields(c, viewerID, profiles)
		return ChatSummary{
			ID:            c.ID,
			IsGroup:       c.IsGroup,
			Name:          name,
			AvatarURL:     avatar,
			LastMessage:   c.LastMessage(),
			UnreadCount:   c.UnreadCountFor(viewerID),
			TotalMessages: c.TotalMessages,
			LastMessageAt: c.LastMessageAt,
		}
	})

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if (a.LastMessage == nil) != (b.LastMessage == nil) {
			return b.LastMessage == nil
		}
		if a.LastMessage == nil {
			return false
		}
		return a.LastMessage.SentAt.After(b.LastMessage.SentAt)
	})
	return summaries, nil
}
