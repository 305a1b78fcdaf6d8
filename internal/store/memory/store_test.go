package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store"
)

func TestFindOrCreateDirect_ConcurrentCallersGetOneChat(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	const n = 32
	ids := make([]string, n)
	created := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			// Alternate argument order; both map to the same pair.
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			chat, c, err := s.FindOrCreateDirect(ctx, a, b, now)
			require.NoError(t, err)
			ids[i] = chat.ID
			created[i] = c
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			creators++
		}
	}
	assert.Equal(t, 1, creators)
}

func TestFindOrCreateDirect_InitialState(t *testing.T) {
	s := New()
	chat, created, err := s.FindOrCreateDirect(context.Background(), "alice", "bob", time.Now())
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, chat.Participants, 2)
	assert.False(t, chat.IsGroup)
	for _, p := range chat.Participants {
		assert.Equal(t, -1, p.LastReadIndex)
	}
	assert.Empty(t, chat.Messages)
	assert.Zero(t, chat.TotalMessages)
}

func TestAppend_CountersAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	chat, _, err := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())
	require.NoError(t, err)

	m1, err := s.Append(ctx, chat.ID, &model.Message{SenderID: "alice", Text: "hi"})
	require.NoError(t, err)
	m2, err := s.Append(ctx, chat.ID, &model.Message{SenderID: "bob", Text: "hey"})
	require.NoError(t, err)

	assert.Equal(t, 0, m1.Index)
	assert.Equal(t, 1, m2.Index)
	assert.False(t, m1.IsRead)
	assert.Empty(t, m1.ReadBy)
	assert.False(t, m1.SentAt.IsZero())
	assert.False(t, m2.SentAt.Before(m1.SentAt))

	fresh, err := s.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalMessages)
	assert.Equal(t, m2.SentAt, fresh.LastMessageAt)
	require.Len(t, fresh.Messages, 2)
	assert.Equal(t, "hi", fresh.Messages[0].Text)
}

func TestAppend_TimestampsFollowInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	chat, _, _ := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())

	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := s.Append(ctx, chat.ID, &model.Message{SenderID: sender, Text: "m"})
				require.NoError(t, err)
			}
		}(sender)
	}
	wg.Wait()

	fresh, err := s.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, fresh.Messages, 50)
	for i := 1; i < len(fresh.Messages); i++ {
		assert.False(t, fresh.Messages[i].SentAt.Before(fresh.Messages[i-1].SentAt),
			"message %d sent before its predecessor", i)
	}
}

func TestAppend_UnknownChat(t *testing.T) {
	s := New()
	_, err := s.Append(context.Background(), uuid.New().String(), &model.Message{SenderID: "x", Text: "y"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkRead_FlagsReceiptsAndCursor(t *testing.T) {
	s := New()
	ctx := context.Background()
	chat, _, _ := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())
	_, err := s.Append(ctx, chat.ID, &model.Message{SenderID: "alice", Text: "hi"})
	require.NoError(t, err)
	_, err = s.Append(ctx, chat.ID, &model.Message{SenderID: "bob", Text: "hey"})
	require.NoError(t, err)

	at := time.Now()
	changed, err := s.MarkRead(ctx, chat.ID, "bob", at)
	require.NoError(t, err)
	assert.True(t, changed)

	fresh, err := s.Get(ctx, chat.ID)
	require.NoError(t, err)

	// Only alice's message gets a receipt; bob's own message is skipped but
	// the cursor still covers it.
	assert.True(t, fresh.Messages[0].IsRead)
	require.Len(t, fresh.Messages[0].ReadBy, 1)
	assert.Equal(t, "bob", fresh.Messages[0].ReadBy[0].UserID)
	assert.Empty(t, fresh.Messages[1].ReadBy)

	p, ok := fresh.Participant("bob")
	require.True(t, ok)
	assert.Equal(t, 1, p.LastReadIndex)

	// Alice's cursor is untouched.
	pa, _ := fresh.Participant("alice")
	assert.Equal(t, -1, pa.LastReadIndex)
}

func TestMarkRead_Idempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	chat, _, _ := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())
	_, err := s.Append(ctx, chat.ID, &model.Message{SenderID: "alice", Text: "hi"})
	require.NoError(t, err)

	changed, err := s.MarkRead(ctx, chat.ID, "bob", time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.MarkRead(ctx, chat.ID, "bob", time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	fresh, _ := s.Get(ctx, chat.ID)
	assert.Len(t, fresh.Messages[0].ReadBy, 1)
	p, _ := fresh.Participant("bob")
	assert.Equal(t, 0, p.LastReadIndex)
}

func TestMarkRead_NonParticipant(t *testing.T) {
	s := New()
	ctx := context.Background()
	chat, _, _ := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())
	_, err := s.MarkRead(ctx, chat.ID, "mallory", time.Now())
	assert.ErrorIs(t, err, store.ErrNotParticipant)
}

func TestConcurrentAppendAndMarkRead(t *testing.T) {
	s := New()
	ctx := context.Background()
	chat, _, _ := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())

	const appends = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < appends; i++ {
			_, err := s.Append(ctx, chat.ID, &model.Message{SenderID: "alice", Text: "m"})
			require.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < appends; i++ {
			_, err := s.MarkRead(ctx, chat.ID, "bob", time.Now())
			require.NoError(t, err)
		}
	}()
	wg.Wait()

	fresh, err := s.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, appends, fresh.TotalMessages)
	assert.Len(t, fresh.Messages, appends)
	for i, m := range fresh.Messages {
		assert.Equal(t, i, m.Index)
	}
	p, _ := fresh.Participant("bob")
	assert.LessOrEqual(t, p.LastReadIndex, appends-1)
}

func newGroup(t *testing.T, s *Store, admin string, name string) *model.Chat {
	t.Helper()
	now := time.Now()
	chat := &model.Chat{
		ID:         uuid.New().String(),
		IsGroup:    true,
		GroupName:  name,
		GroupAdmin: admin,
		Participants: []model.Participant{
			{UserID: admin, LastReadIndex: -1, JoinedAt: now},
		},
		Messages:  []model.Message{},
		CreatedAt: now,
	}
	require.NoError(t, s.CreateGroup(context.Background(), chat))
	return chat
}

func TestGroupLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	chat := newGroup(t, s, "admin", "Team")

	require.NoError(t, s.AddParticipants(ctx, chat.ID, []string{"x", "y", "x"}, time.Now()))
	fresh, err := s.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "x", "y"}, fresh.ParticipantIDs())

	// Existing members are skipped silently.
	require.NoError(t, s.AddParticipants(ctx, chat.ID, []string{"x", "z"}, time.Now()))
	fresh, _ = s.Get(ctx, chat.ID)
	assert.Equal(t, []string{"admin", "x", "y", "z"}, fresh.ParticipantIDs())

	name := "Renamed"
	avatar := "/media/a.png"
	require.NoError(t, s.UpdateGroupSettings(ctx, chat.ID, &name, &avatar))
	fresh, _ = s.Get(ctx, chat.ID)
	assert.Equal(t, "Renamed", fresh.GroupName)
	assert.Equal(t, "/media/a.png", fresh.GroupAvatarURL)

	// Partial update leaves the other field alone.
	name2 := "Renamed again"
	require.NoError(t, s.UpdateGroupSettings(ctx, chat.ID, &name2, nil))
	fresh, _ = s.Get(ctx, chat.ID)
	assert.Equal(t, "/media/a.png", fresh.GroupAvatarURL)

	require.NoError(t, s.RemoveParticipant(ctx, chat.ID, "x"))
	fresh, _ = s.Get(ctx, chat.ID)
	assert.Equal(t, []string{"admin", "y", "z"}, fresh.ParticipantIDs())

	// Removing an absent participant is a no-op.
	require.NoError(t, s.RemoveParticipant(ctx, chat.ID, "x"))

	require.NoError(t, s.Delete(ctx, chat.ID))
	_, err = s.Get(ctx, chat.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteDirectClearsPairIndex(t *testing.T) {
	s := New()
	ctx := context.Background()
	chat, _, _ := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())
	require.NoError(t, s.Delete(ctx, chat.ID))

	again, created, err := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, chat.ID, again.ID)
}

func TestListForUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	c1, _, _ := s.FindOrCreateDirect(ctx, "alice", "bob", time.Now())
	s.FindOrCreateDirect(ctx, "bob", "carol", time.Now())
	newGroup(t, s, "alice", "Team")

	chats, err := s.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	chats, err = s.ListForUser(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.NotEqual(t, c1.ID, chats[0].ID)

	chats, err = s.ListForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestDirectoryLookup(t *testing.T) {
	d := NewDirectory()
	id := uuid.New().String()
	d.Put(model.UserProfile{ID: id, Username: "alice"})

	p, err := d.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	_, err = d.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	many, err := d.GetMany(context.Background(), []string{id, "missing"})
	require.NoError(t, err)
	assert.Len(t, many, 1)
}
