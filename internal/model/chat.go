package model

import "time"

// Chat is the aggregate for a conversation: participants with their read
// cursors and the append-only message sequence. Direct chats have exactly two
// participants and no group fields; group chats carry a name, an optional
// avatar and an admin who must be a participant.
type Chat struct {
	ID             string        `json:"id"`
	IsGroup        bool          `json:"is_group"`
	GroupName      string        `json:"group_name,omitempty"`
	GroupAvatarURL string        `json:"group_avatar_url,omitempty"`
	GroupAdmin     string        `json:"group_admin,omitempty"`
	Participants   []Participant `json:"participants"`
	Messages       []Message     `json:"messages"`
	TotalMessages  int           `json:"total_messages"`
	LastMessageAt  time.Time     `json:"last_message_at"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Participant references a user by id only; profile fields are joined at read
// time from the user directory. LastReadIndex is a cursor into Messages,
// -1 meaning nothing read.
type Participant struct {
	UserID        string    `json:"user_id"`
	LastReadIndex int       `json:"last_read_index"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Participant returns the participant record for userID.
func (c *Chat) Participant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// ParticipantIDs returns the id set in participant order.
func (c *Chat) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for i := range c.Participants {
		ids = append(ids, c.Participants[i].UserID)
	}
	return ids
}

// OtherParticipant returns the peer of userID in a direct chat.
func (c *Chat) OtherParticipant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// LastMessage returns the newest message, or nil for an empty chat.
func (c *Chat) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// UnreadCountFor counts messages after the participant's read cursor that were
// not sent by the participant. Zero for non-participants and for a cursor
// already at the end of the sequence.
func (c *Chat) UnreadCountFor(userID string) int {
	p, ok := c.Participant(userID)
	if !ok {
		return 0
	}
	count := 0
	for i := p.LastReadIndex + 1; i < len(c.Messages); i++ {
		if c.Messages[i].SenderID != userID {
			count++
		}
	}
	return count
}

// Clone returns a deep copy so callers can never mutate store-owned state.
func (c *Chat) Clone() *Chat {
	cp := *c
	cp.Participants = make([]Participant, len(c.Participants))
	copy(cp.Participants, c.Participants)
	cp.Messages = make([]Message, len(c.Messages))
	for i := range c.Messages {
		cp.Messages[i] = *c.Messages[i].Clone()
	}
	return &cp
}
