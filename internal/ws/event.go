package ws

type EventType string

// Client-originated control events.
const (
	EventJoin       EventType = "join"
	EventTyping     EventType = "typing"
	EventStopTyping EventType = "stopTyping"
)

// Server-originated events.
const (
	EventChatCreated       EventType = "chatCreated"
	EventChatUpdated       EventType = "chatUpdated"
	EventMessageRead       EventType = "messageRead"
	EventGroupUpdated      EventType = "groupUpdated"
	EventGroupRemoved      EventType = "groupRemoved"
	EventGroupEdited       EventType = "groupEdited"
	EventGroupDeleted      EventType = "groupDeleted"
	EventUserTyping        EventType = "userTyping"
	EventUserStoppedTyping EventType = "userStoppedTyping"
	EventError             EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type   EventType `json:"type"`
	ChatID string    `json:"chatId,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ChatUpdatedPayload carries the message sequence and the receiving user's
// unread count; built once per recipient.
type ChatUpdatedPayload struct {
	ChatID      string `json:"chatId"`
	IsNewChat   bool   `json:"isNewChat"`
	LastMessage any    `json:"lastMessage"`
	Messages    any    `json:"messages"`
	UnreadCount int    `json:"unreadCount"`
}

// MessageReadPayload is sent to the other participants when a reader's
// cursor advanced.
type MessageReadPayload struct {
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
	IsGroup  bool   `json:"isGroup"`
}

// GroupUpdatedPayload is sent after participants were added.
type GroupUpdatedPayload struct {
	Chat     any      `json:"chat"`
	AddedIDs []string `json:"addedIds"`
}

// GroupRemovedPayload is sent after a participant was removed, including to
// the removed user.
type GroupRemovedPayload struct {
	Chat      any    `json:"chat"`
	RemovedID string `json:"removedId"`
}

// GroupEditedPayload is sent after name/avatar changes.
type GroupEditedPayload struct {
	Chat any `json:"chat"`
}

// GroupDeletedPayload is sent to every former participant.
type GroupDeletedPayload struct {
	ChatID         string `json:"chatId"`
	GroupName      string `json:"groupName"`
	GroupAvatarURL string `json:"groupAvatar"`
}

// TypingPayload relays a typing indicator; no server-side timeout, the
// counterpart stopTyping comes from the client.
type TypingPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}
