// Package memory implements store.ChatStore without external dependencies.
// It backs the -inmemory run mode and the test suite. Semantics are identical
// to the postgres implementation: a registry lock guards the maps and each
// chat carries its own mutex so Append/MarkRead on one chat serialize while
// other chats proceed in parallel.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store"
)

type chatEntry struct {
	mu   sync.Mutex
	chat *model.Chat
}

type Store struct {
	mu     sync.RWMutex
	chats  map[string]*chatEntry
	direct map[string]string // DirectKey -> chat id
}

func New() *Store {
	return &Store{
		chats:  make(map[string]*chatEntry),
		direct: make(map[string]string),
	}
}

func (s *Store) FindOrCreateDirect(ctx context.Context, a, b string, now time.Time) (*model.Chat, bool, error) {
	key := store.DirectKey(a, b)

	// Exclusive lock makes lookup-or-create atomic for the pair.
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.direct[key]; ok {
		return s.chats[id].chat.Clone(), false, nil
	}

	chat := &model.Chat{
		ID:      newID(),
		IsGroup: false,
		Participants: []model.Participant{
			{UserID: a, LastReadIndex: -1, JoinedAt: now},
			{UserID: b, LastReadIndex: -1, JoinedAt: now},
		},
		Messages:  []model.Message{},
		CreatedAt: now,
	}
	s.chats[chat.ID] = &chatEntry{chat: chat}
	s.direct[key] = chat.ID
	return chat.Clone(), true, nil
}

func (s *Store) CreateGroup(ctx context.Context, chat *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = &chatEntry{chat: chat.Clone()}
	return nil
}

func (s *Store) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	entry, err := s.entry(chatID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.chat.Clone(), nil
}

func (s *Store) ListForUser(ctx context.Context, userID string) ([]*model.Chat, error) {
	s.mu.RLock()
	entries := make([]*chatEntry, 0, len(s.chats))
	for _, e := range s.chats {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	chats := make([]*model.Chat, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if _, ok := e.chat.Participant(userID); ok {
			chats = append(chats, e.chat.Clone())
		}
		e.mu.Unlock()
	}
	return chats, nil
}

func (s *Store) Append(ctx context.Context, chatID string, msg *model.Message) (*model.Message, error) {
	entry, err := s.entry(chatID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	c := entry.chat
	m := msg.Clone()
	m.Index = len(c.Messages)
	m.SentAt = time.Now().UTC()
	m.IsRead = false
	m.ReadBy = []model.ReadReceipt{}
	c.Messages = append(c.Messages, *m)
	c.TotalMessages = len(c.Messages)
	c.LastMessageAt = m.SentAt
	return m.Clone(), nil
}

func (s *Store) MarkRead(ctx context.Context, chatID, userID string, at time.Time) (bool, error) {
	entry, err := s.entry(chatID)
	if err != nil {
		return false, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	c := entry.chat
	p, ok := c.Participant(userID)
	if !ok {
		return false, store.ErrNotParticipant
	}

	changed := false
	for i := p.LastReadIndex + 1; i < len(c.Messages); i++ {
		m := &c.Messages[i]
		if m.SenderID == userID || m.ReadByUser(userID) {
			continue
		}
		m.IsRead = true
		m.ReadBy = append(m.ReadBy, model.ReadReceipt{UserID: userID, ReadAt: at})
		changed = true
	}
	// The cursor covers the whole history, own messages included.
	p.LastReadIndex = len(c.Messages) - 1
	return changed, nil
}

func (s *Store) UpdateGroupSettings(ctx context.Context, chatID string, name, avatarURL *string) error {
	entry, err := s.entry(chatID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if name != nil {
		entry.chat.GroupName = *name
	}
	if avatarURL != nil {
		entry.chat.GroupAvatarURL = *avatarURL
	}
	return nil
}

func (s *Store) AddParticipants(ctx context.Context, chatID string, userIDs []string, now time.Time) error {
	entry, err := s.entry(chatID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	for _, id := range userIDs {
		if _, ok := entry.chat.Participant(id); ok {
			continue
		}
		entry.chat.Participants = append(entry.chat.Participants, model.Participant{
			UserID:        id,
			LastReadIndex: -1,
			JoinedAt:      now,
		})
	}
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	entry, err := s.entry(chatID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	parts := entry.chat.Participants
	for i := range parts {
		if parts[i].UserID == userID {
			entry.chat.Participants = append(parts[:i], parts[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.chats[chatID]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.chats, chatID)
	if !entry.chat.IsGroup && len(entry.chat.Participants) == 2 {
		delete(s.direct, store.DirectKey(entry.chat.Participants[0].UserID, entry.chat.Participants[1].UserID))
	}
	return nil
}

func (s *Store) entry(chatID string) (*chatEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.chats[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return entry, nil
}
