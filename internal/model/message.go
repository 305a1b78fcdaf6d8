package model

import "time"

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
	MediaKindFile  MediaKind = "file"
)

// Media is an uploaded asset attached to a message.
type Media struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// Message is one element of a chat's append-only sequence. Index is the
// position in the sequence and never changes. After creation only IsRead and
// ReadBy are mutated, by the read tracker.
type Message struct {
	Index    int           `json:"index"`
	SenderID string        `json:"sender_id"`
	Text     string        `json:"text,omitempty"`
	Media    *Media        `json:"media,omitempty"`
	SentAt   time.Time     `json:"sent_at"`
	IsRead   bool          `json:"is_read"`
	ReadBy   []ReadReceipt `json:"read_by"`
}

// ReadReceipt records that a participant has read the message. At most one
// entry per user id.
type ReadReceipt struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// ReadByUser reports whether userID already has a read receipt.
func (m *Message) ReadByUser(userID string) bool {
	for i := range m.ReadBy {
		if m.ReadBy[i].UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Media != nil {
		media := *m.Media
		cp.Media = &media
	}
	cp.ReadBy = make([]ReadReceipt, len(m.ReadBy))
	copy(cp.ReadBy, m.ReadBy)
	return &cp
}
