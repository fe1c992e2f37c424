package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

type queries struct {
	db dbtx
}

type scanner interface{ Scan(dest ...any) error }

const userCols = `id, username, full_name, profile_pic, password_hash, is_online, last_seen_at, created_at`

func scanUser(s scanner, u *model.User) error {
	var lastSeen, created int64
	if err := s.Scan(&u.ID, &u.Username, &u.FullName, &u.ProfilePic, &u.PasswordHash, &u.IsOnline, &lastSeen, &created); err != nil {
		return err
	}
	u.LastSeenAt = fromMicro(lastSeen)
	u.CreatedAt = fromMicro(created)
	return nil
}

func (q queries) CreateUser(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("sqlite.CreateUser", time.Now())()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.FullName, u.ProfilePic, u.PasswordHash, u.IsOnline, micro(u.LastSeenAt), micro(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite.CreateUser: %w", mapErr(err))
	}
	return nil
}

func (q queries) GetUser(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	row := q.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	if err := scanUser(row, u); err != nil {
		return nil, fmt.Errorf("sqlite.GetUser: %w", mapErr(err))
	}
	return u, nil
}

func (q queries) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	row := q.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE username = ?`, username)
	if err := scanUser(row, u); err != nil {
		return nil, fmt.Errorf("sqlite.GetUserByUsername: %w", mapErr(err))
	}
	return u, nil
}

func (q queries) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := q.db.QueryContext(ctx, `SELECT `+userCols+` FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.GetUsers query: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, len(ids))
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("sqlite.GetUsers scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const userWhere = ` WHERE id <> ? AND (? = '' OR LOWER(username) LIKE ? ESCAPE '\' OR LOWER(full_name) LIKE ? ESCAPE '\')`

func userArgs(uq store.UserQuery) []any {
	pattern := ""
	if uq.Search != "" {
		pattern = store.LikePattern(uq.Search)
	}
	return []any{uq.ExcludeID, pattern, pattern, pattern}
}

func (q queries) ListUsers(ctx context.Context, uq store.UserQuery) ([]model.User, error) {
	args := append(userArgs(uq), uq.Limit, uq.Offset)
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users`+userWhere+`
		 ORDER BY is_online DESC, last_seen_at DESC, username ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListUsers query: %w", err)
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("sqlite.ListUsers scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (q queries) CountUsers(ctx context.Context, uq store.UserQuery) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+userWhere, userArgs(uq)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite.CountUsers: %w", err)
	}
	return n, nil
}

func (q queries) UpdateUser(ctx context.Context, u *model.User) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE users SET full_name = ?, profile_pic = ?, password_hash = ? WHERE id = ?`,
		u.FullName, u.ProfilePic, u.PasswordHash, u.ID)
	if err != nil {
		return fmt.Errorf("sqlite.UpdateUser: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q queries) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET is_online = ?, last_seen_at = ? WHERE id = ?`, online, micro(at), userID)
	if err != nil {
		return fmt.Errorf("sqlite.SetOnline: %w", err)
	}
	return nil
}

func (q queries) ResetOnline(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE users SET is_online = 0`); err != nil {
		return fmt.Errorf("sqlite.ResetOnline: %w", err)
	}
	return nil
}

const convCols = `id, kind, name, description, direct_key, created_at, updated_at`

func scanConversation(s scanner, c *model.Conversation) error {
	var name, desc, key sql.NullString
	var created, updated int64
	if err := s.Scan(&c.ID, &c.Kind, &name, &desc, &key, &created, &updated); err != nil {
		return err
	}
	c.Name = stringPtr(name)
	c.Description = stringPtr(desc)
	c.DirectKey = key.String
	c.CreatedAt = fromMicro(created)
	c.UpdatedAt = fromMicro(updated)
	return nil
}

func (q queries) CreateConversation(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("sqlite.CreateConversation", time.Now())()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO conversations (`+convCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Kind, nullString(c.Name), nullString(c.Description), nullIfEmpty(c.DirectKey), micro(c.CreatedAt), micro(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite.CreateConversation: %w", mapErr(err))
	}
	return nil
}

func (q queries) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	c := &model.Conversation{}
	row := q.db.QueryRowContext(ctx, `SELECT `+convCols+` FROM conversations WHERE id = ?`, id)
	if err := scanConversation(row, c); err != nil {
		return nil, fmt.Errorf("sqlite.GetConversation: %w", mapErr(err))
	}
	return c, nil
}

func (q queries) FindDirect(ctx context.Context, directKey string) (*model.Conversation, error) {
	c := &model.Conversation{}
	row := q.db.QueryRowContext(ctx,
		`SELECT `+convCols+` FROM conversations WHERE kind = 'DIRECT' AND direct_key = ?`, directKey)
	if err := scanConversation(row, c); err != nil {
		return nil, fmt.Errorf("sqlite.FindDirect: %w", mapErr(err))
	}
	return c, nil
}

func (q queries) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE conversations SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		nullString(c.Name), nullString(c.Description), micro(c.UpdatedAt), c.ID)
	if err != nil {
		return fmt.Errorf("sqlite.UpdateConversation: %w", err)
	}
	return nil
}

// LockConversation только проверяет наличие: соединение одно, транзакции и так последовательны.
func (q queries) LockConversation(ctx context.Context, id string) error {
	var one int
	if err := q.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one); err != nil {
		return fmt.Errorf("sqlite.LockConversation: %w", mapErr(err))
	}
	return nil
}

func (q queries) TouchConversation(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ? AND updated_at < ?`, micro(at), id, micro(at))
	if err != nil {
		return fmt.Errorf("sqlite.TouchConversation: %w", err)
	}
	return nil
}

func (q queries) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("sqlite.ListConversations", time.Now())()
	rows, err := q.db.QueryContext(ctx,
		`SELECT c.id, c.kind, c.name, c.description, c.direct_key, c.created_at, c.updated_at
		 FROM conversations c
		 JOIN participants p ON p.conversation_id = c.id
		 WHERE p.user_id = ? AND p.left_at IS NULL
		 ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListConversations query: %w", err)
	}
	defer rows.Close()
	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("sqlite.ListConversations scan: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (q queries) InsertParticipant(ctx context.Context, p *model.Participant) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO participants (conversation_id, user_id, role, joined_at, left_at) VALUES (?, ?, ?, ?, ?)`,
		p.ConversationID, p.UserID, p.Role, micro(p.JoinedAt), nullMicro(p.LeftAt))
	if err != nil {
		return fmt.Errorf("sqlite.InsertParticipant: %w", mapErr(err))
	}
	return nil
}

func (q queries) GetParticipant(ctx context.Context, conversationID, userID string) (*model.Participant, error) {
	p := &model.Participant{}
	var joined int64
	var left sql.NullInt64
	err := q.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, role, joined_at, left_at FROM participants
		 WHERE conversation_id = ? AND user_id = ?`, conversationID, userID,
	).Scan(&p.ConversationID, &p.UserID, &p.Role, &joined, &left)
	if err != nil {
		return nil, fmt.Errorf("sqlite.GetParticipant: %w", mapErr(err))
	}
	p.JoinedAt = fromMicro(joined)
	p.LeftAt = timePtr(left)
	return p, nil
}

func (q queries) UpdateParticipant(ctx context.Context, p *model.Participant) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE participants SET role = ?, joined_at = ?, left_at = ? WHERE conversation_id = ? AND user_id = ?`,
		p.Role, micro(p.JoinedAt), nullMicro(p.LeftAt), p.ConversationID, p.UserID)
	if err != nil {
		return fmt.Errorf("sqlite.UpdateParticipant: %w", err)
	}
	return nil
}

func (q queries) ListParticipants(ctx context.Context, conversationID string, activeOnly bool) ([]model.Participant, error) {
	query := `SELECT p.conversation_id, p.user_id, p.role, p.joined_at, p.left_at,
			u.id, u.username, u.full_name, u.profile_pic, u.is_online, u.last_seen_at
		FROM participants p JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = ?`
	if activeOnly {
		query += ` AND p.left_at IS NULL`
	}
	query += ` ORDER BY p.joined_at, p.user_id`
	rows, err := q.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListParticipants query: %w", err)
	}
	defer rows.Close()
	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		var u model.UserPublic
		var joined, lastSeen int64
		var left sql.NullInt64
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &joined, &left,
			&u.ID, &u.Username, &u.FullName, &u.ProfilePic, &u.IsOnline, &lastSeen); err != nil {
			return nil, fmt.Errorf("sqlite.ListParticipants scan: %w", err)
		}
		p.JoinedAt = fromMicro(joined)
		p.LeftAt = timePtr(left)
		u.LastSeenAt = fromMicro(lastSeen)
		p.User = &u
		out = append(out, p)
	}
	return out, rows.Err()
}

const messageSelect = `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.type, m.reply_to_id, m.created_at, m.updated_at,
		u.id, u.username, u.full_name, u.profile_pic, u.is_online, u.last_seen_at
	FROM messages m JOIN users u ON u.id = m.sender_id`

func scanMessage(s scanner, m *model.Message) error {
	var reply sql.NullString
	var created, updated, lastSeen int64
	var u model.UserPublic
	if err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &reply, &created, &updated,
		&u.ID, &u.Username, &u.FullName, &u.ProfilePic, &u.IsOnline, &lastSeen); err != nil {
		return err
	}
	m.ReplyToID = stringPtr(reply)
	m.CreatedAt = fromMicro(created)
	m.UpdatedAt = fromMicro(updated)
	u.LastSeenAt = fromMicro(lastSeen)
	m.Sender = &u
	return nil
}

func (q queries) InsertMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("sqlite.InsertMessage", time.Now())()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, type, reply_to_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.Type, nullString(m.ReplyToID), micro(m.CreatedAt), micro(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite.InsertMessage: %w", mapErr(err))
	}
	return nil
}

func (q queries) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	m := &model.Message{}
	row := q.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id)
	if err := scanMessage(row, m); err != nil {
		return nil, fmt.Errorf("sqlite.GetMessage: %w", mapErr(err))
	}
	return m, nil
}

func messageWhere(conversationID string, mq store.MessageQuery) (string, []any) {
	where := ` WHERE m.conversation_id = ?`
	args := []any{conversationID}
	if mq.After != nil {
		where += ` AND m.created_at > ?`
		args = append(args, micro(*mq.After))
	}
	if mq.Before != nil {
		where += ` AND m.created_at < ?`
		args = append(args, micro(*mq.Before))
	}
	return where, args
}

func (q queries) ListMessages(ctx context.Context, conversationID string, mq store.MessageQuery) ([]model.Message, error) {
	defer logger.DeferLogDuration("sqlite.ListMessages", time.Now())()
	where, args := messageWhere(conversationID, mq)
	dir := "ASC"
	if mq.NewestFirst {
		dir = "DESC"
	}
	query := messageSelect + where + ` ORDER BY m.created_at ` + dir + `, m.seq ` + dir
	if mq.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, mq.Limit, mq.Offset)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListMessages query: %w", err)
	}
	defer rows.Close()
	msgs := make([]model.Message, 0, mq.Limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("sqlite.ListMessages scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (q queries) CountMessages(ctx context.Context, conversationID string, mq store.MessageQuery) (int, error) {
	where, args := messageWhere(conversationID, mq)
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite.CountMessages: %w", err)
	}
	return n, nil
}

func (q queries) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	m := &model.Message{}
	row := q.db.QueryRowContext(ctx,
		messageSelect+` WHERE m.conversation_id = ? ORDER BY m.created_at DESC, m.seq DESC LIMIT 1`, conversationID)
	if err := scanMessage(row, m); err != nil {
		return nil, fmt.Errorf("sqlite.LastMessage: %w", mapErr(err))
	}
	return m, nil
}

func (q queries) UpdateMessageContent(ctx context.Context, id, content string, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE messages SET content = ?, updated_at = ? WHERE id = ?`, content, micro(at), id)
	if err != nil {
		return fmt.Errorf("sqlite.UpdateMessageContent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q queries) DeleteMessage(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite.DeleteMessage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
