// Package postgres implements store.ChatStore on pgx. Per-chat serialization
// comes from SELECT ... FOR UPDATE on the chat row inside a transaction;
// direct-chat dedup from the unique direct_key column.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/milanh34/linkUp/internal/logger"
	"github.com/milanh34/linkUp/internal/model"
	"github.com/milanh34/linkUp/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) FindOrCreateDirect(ctx context.Context, a, b string, now time.Time) (*model.Chat, bool, error) {
	defer logger.DeferLogDuration("chatStore.FindOrCreateDirect", time.Now())()
	key := store.DirectKey(a, b)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("chatStore.FindOrCreateDirect begin: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New().String()
	var insertedID string
	// ON CONFLICT DO NOTHING + RETURNING yields a row only for the winner of a
	// create race; every loser re-selects the winner's chat.
	err = tx.QueryRow(ctx,
		`INSERT INTO chats (id, is_group, direct_key, total_messages, created_at)
		 VALUES ($1, false, $2, 0, $3)
		 ON CONFLICT (direct_key) DO NOTHING
		 RETURNING id`,
		id, key, now,
	).Scan(&insertedID)

	created := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("chatStore.FindOrCreateDirect insert: %w", err)
	}

	if created {
		for _, uid := range []string{a, b} {
			if _, err := tx.Exec(ctx,
				`INSERT INTO chat_participants (chat_id, user_id, last_read_index, joined_at)
				 VALUES ($1, $2, -1, $3)`,
				insertedID, uid, now,
			); err != nil {
				return nil, false, fmt.Errorf("chatStore.FindOrCreateDirect participant: %w", err)
			}
		}
	} else {
		err = tx.QueryRow(ctx,
			`SELECT id FROM chats WHERE direct_key = $1`, key,
		).Scan(&insertedID)
		if err != nil {
			return nil, false, fmt.Errorf("chatStore.FindOrCreateDirect reselect: %w", err)
		}
	}

	chat, err := s.getTx(ctx, tx, insertedID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("chatStore.FindOrCreateDirect commit: %w", err)
	}
	return chat, created, nil
}

func (s *Store) CreateGroup(ctx context.Context, chat *model.Chat) error {
	defer logger.DeferLogDuration("chatStore.CreateGroup", time.Now())()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chatStore.CreateGroup begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO chats (id, is_group, group_name, group_avatar_url, group_admin, total_messages, created_at)
		 VALUES ($1, true, $2, $3, $4, 0, $5)`,
		chat.ID, chat.GroupName, chat.GroupAvatarURL, chat.GroupAdmin, chat.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("chatStore.CreateGroup insert: %w", err)
	}
	for _, p := range chat.Participants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_participants (chat_id, user_id, last_read_index, joined_at)
			 VALUES ($1, $2, $3, $4)`,
			chat.ID, p.UserID, p.LastReadIndex, p.JoinedAt,
		); err != nil {
			return fmt.Errorf("chatStore.CreateGroup participant: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("chatStore.CreateGroup commit: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chatStore.Get", time.Now())()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("chatStore.Get begin: %w", err)
	}
	defer tx.Rollback(ctx)

	chat, err := s.getTx(ctx, tx, chatID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("chatStore.Get commit: %w", err)
	}
	return chat, nil
}

func (s *Store) ListForUser(ctx context.Context, userID string) ([]*model.Chat, error) {
	defer logger.DeferLogDuration("chatStore.ListForUser", time.Now())()
	rows, err := s.pool.Query(ctx,
		`SELECT chat_id FROM chat_participants WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatStore.ListForUser query: %w", err)
	}
	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("chatStore.ListForUser scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatStore.ListForUser rows: %w", err)
	}

	chats := make([]*model.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between the id scan and hydration.
			continue
		}
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (s *Store) Append(ctx context.Context, chatID string, msg *model.Message) (*model.Message, error) {
	defer logger.DeferLogDuration("chatStore.Append", time.Now())()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("chatStore.Append begin: %w", err)
	}
	defer tx.Rollback(ctx)

	total, err := lockChat(ctx, tx, chatID)
	if err != nil {
		return nil, err
	}

	m := msg.Clone()
	m.Index = total
	// Stamped under the row lock so timestamps follow insertion order.
	m.SentAt = time.Now().UTC()
	m.IsRead = false
	m.ReadBy = []model.ReadReceipt{}

	var mediaURL, mediaKind *string
	if m.Media != nil {
		mediaURL = &m.Media.URL
		kind := string(m.Media.Kind)
		mediaKind = &kind
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (chat_id, idx, sender_id, body, media_url, media_kind, sent_at, is_read)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false)`,
		chatID, m.Index, m.SenderID, m.Text, mediaURL, mediaKind, m.SentAt,
	); err != nil {
		return nil, fmt.Errorf("chatStore.Append insert: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE chats SET total_messages = $2, last_message_at = $3 WHERE id = $1`,
		chatID, total+1, m.SentAt,
	); err != nil {
		return nil, fmt.Errorf("chatStore.Append counters: %w", err)
	}
	// Counters and the row commit together or not at all.
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("chatStore.Append commit: %w", err)
	}
	return m, nil
}

func (s *Store) MarkRead(ctx context.Context, chatID, userID string, at time.Time) (bool, error) {
	defer logger.DeferLogDuration("chatStore.MarkRead", time.Now())()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("chatStore.MarkRead begin: %w", err)
	}
	defer tx.Rollback(ctx)

	total, err := lockChat(ctx, tx, chatID)
	if err != nil {
		return false, err
	}

	var lastRead int
	err = tx.QueryRow(ctx,
		`SELECT last_read_index FROM chat_participants WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	).Scan(&lastRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, store.ErrNotParticipant
	}
	if err != nil {
		return false, fmt.Errorf("chatStore.MarkRead cursor: %w", err)
	}

	// Receipts are keyed (chat, idx, user): the conflict clause makes repeat
	// calls idempotent and RowsAffected counts only newly read messages.
	tag, err := tx.Exec(ctx,
		`INSERT INTO message_reads (chat_id, idx, user_id, read_at)
		 SELECT chat_id, idx, $2, $3 FROM messages
		 WHERE chat_id = $1 AND idx > $4 AND sender_id <> $2
		 ON CONFLICT DO NOTHING`,
		chatID, userID, at, lastRead,
	)
	if err != nil {
		return false, fmt.Errorf("chatStore.MarkRead receipts: %w", err)
	}
	changed := tag.RowsAffected() > 0

	if changed {
		if _, err := tx.Exec(ctx,
			`UPDATE messages SET is_read = true
			 WHERE chat_id = $1 AND idx > $2 AND sender_id <> $3 AND is_read = false`,
			chatID, lastRead, userID,
		); err != nil {
			return false, fmt.Errorf("chatStore.MarkRead flag: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_participants SET last_read_index = $3 WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID, total-1,
	); err != nil {
		return false, fmt.Errorf("chatStore.MarkRead cursor update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("chatStore.MarkRead commit: %w", err)
	}
	return changed, nil
}

func (s *Store) UpdateGroupSettings(ctx context.Context, chatID string, name, avatarURL *string) error {
	defer logger.DeferLogDuration("chatStore.UpdateGroupSettings", time.Now())()
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET group_name = COALESCE($2, group_name),
		                  group_avatar_url = COALESCE($3, group_avatar_url)
		 WHERE id = $1 AND is_group = true`,
		chatID, name, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("chatStore.UpdateGroupSettings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AddParticipants(ctx context.Context, chatID string, userIDs []string, now time.Time) error {
	defer logger.DeferLogDuration("chatStore.AddParticipants", time.Now())()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chatStore.AddParticipants begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// All listed members join together or not at all.
	for _, uid := range userIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_participants (chat_id, user_id, last_read_index, joined_at)
			 VALUES ($1, $2, -1, $3) ON CONFLICT DO NOTHING`,
			chatID, uid, now,
		); err != nil {
			return fmt.Errorf("chatStore.AddParticipants: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("chatStore.AddParticipants commit: %w", err)
	}
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	defer logger.DeferLogDuration("chatStore.RemoveParticipant", time.Now())()
	_, err := s.pool.Exec(ctx,
		`DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("chatStore.RemoveParticipant: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, chatID string) error {
	defer logger.DeferLogDuration("chatStore.Delete", time.Now())()
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("chatStore.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// lockChat takes the chat's row lock and returns its message total.
func lockChat(ctx context.Context, tx pgx.Tx, chatID string) (int, error) {
	var total int
	err := tx.QueryRow(ctx,
		`SELECT total_messages FROM chats WHERE id = $1 FOR UPDATE`, chatID,
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock chat: %w", err)
	}
	return total, nil
}

func (s *Store) getTx(ctx context.Context, tx pgx.Tx, chatID string) (*model.Chat, error) {
	c := &model.Chat{}
	var groupAdmin *string
	var lastMessageAt *time.Time
	err := tx.QueryRow(ctx,
		`SELECT id, is_group, group_name, group_avatar_url, group_admin, total_messages, last_message_at, created_at
		 FROM chats WHERE id = $1`, chatID,
	).Scan(&c.ID, &c.IsGroup, &c.GroupName, &c.GroupAvatarURL, &groupAdmin, &c.TotalMessages, &lastMessageAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatStore.get: %w", err)
	}
	if groupAdmin != nil {
		c.GroupAdmin = *groupAdmin
	}
	if lastMessageAt != nil {
		c.LastMessageAt = *lastMessageAt
	}

	rows, err := tx.Query(ctx,
		`SELECT user_id, last_read_index, joined_at FROM chat_participants
		 WHERE chat_id = $1 ORDER BY joined_at, user_id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatStore.get participants: %w", err)
	}
	c.Participants = make([]model.Participant, 0, 4)
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.UserID, &p.LastReadIndex, &p.JoinedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("chatStore.get participant scan: %w", err)
		}
		c.Participants = append(c.Participants, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatStore.get participant rows: %w", err)
	}

	rows, err = tx.Query(ctx,
		`SELECT idx, sender_id, body, media_url, media_kind, sent_at, is_read
		 FROM messages WHERE chat_id = $1 ORDER BY idx`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatStore.get messages: %w", err)
	}
	c.Messages = make([]model.Message, 0, c.TotalMessages)
	for rows.Next() {
		var m model.Message
		var mediaURL, mediaKind *string
		if err := rows.Scan(&m.Index, &m.SenderID, &m.Text, &mediaURL, &mediaKind, &m.SentAt, &m.IsRead); err != nil {
			rows.Close()
			return nil, fmt.Errorf("chatStore.get message scan: %w", err)
		}
		if mediaURL != nil {
			m.Media = &model.Media{URL: *mediaURL}
			if mediaKind != nil {
				m.Media.Kind = model.MediaKind(*mediaKind)
			}
		}
		m.ReadBy = []model.ReadReceipt{}
		c.Messages = append(c.Messages, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatStore.get message rows: %w", err)
	}

	rows, err = tx.Query(ctx,
		`SELECT idx, user_id, read_at FROM message_reads
		 WHERE chat_id = $1 ORDER BY idx, read_at, user_id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatStore.get receipts: %w", err)
	}
	for rows.Next() {
		var idx int
		var r model.ReadReceipt
		if err := rows.Scan(&idx, &r.UserID, &r.ReadAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("chatStore.get receipt scan: %w", err)
		}
		if idx >= 0 && idx < len(c.Messages) {
			c.Messages[idx].ReadBy = append(c.Messages[idx].ReadBy, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatStore.get receipt rows: %w", err)
	}
	return c, nil
}
