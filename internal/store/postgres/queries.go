package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

type queries struct {
	db dbtx
}

const userCols = `id, username, full_name, profile_pic, password_hash, is_online, last_seen_at, created_at`

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.FullName, &u.ProfilePic, &u.PasswordHash, &u.IsOnline, &u.LastSeenAt, &u.CreatedAt)
}

func (q queries) CreateUser(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := q.db.Exec(ctx,
		`INSERT INTO users (`+userCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.FullName, u.ProfilePic, u.PasswordHash, u.IsOnline, u.LastSeenAt, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", mapErr(err))
	}
	return nil
}

func (q queries) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	if err := scanUser(q.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id), u); err != nil {
		return nil, fmt.Errorf("userRepo.GetByID: %w", mapErr(err))
	}
	return u, nil
}

func (q queries) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByUsername", time.Now())()
	u := &model.User{}
	if err := scanUser(q.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username), u); err != nil {
		return nil, fmt.Errorf("userRepo.GetByUsername: %w", mapErr(err))
	}
	return u, nil
}

func (q queries) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	defer logger.DeferLogDuration("user.GetByIDs", time.Now())()
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `SELECT `+userCols+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByIDs query: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, len(ids))
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.GetByIDs scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.GetByIDs rows: %w", err)
	}
	return users, nil
}

// userWhere собирает фильтр каталога; аргументы $1 (шаблон или '') и $2 (исключаемый id).
const userWhere = ` WHERE id <> $2 AND ($1 = '' OR LOWER(username) LIKE $1 ESCAPE '\' OR LOWER(full_name) LIKE $1 ESCAPE '\')`

func userArgs(uq store.UserQuery) []any {
	pattern := ""
	if uq.Search != "" {
		pattern = store.LikePattern(uq.Search)
	}
	return []any{pattern, uq.ExcludeID}
}

func (q queries) ListUsers(ctx context.Context, uq store.UserQuery) ([]model.User, error) {
	defer logger.DeferLogDuration("user.List", time.Now())()
	args := append(userArgs(uq), uq.Limit, uq.Offset)
	rows, err := q.db.Query(ctx,
		`SELECT `+userCols+` FROM users`+userWhere+`
		 ORDER BY is_online DESC, last_seen_at DESC, username ASC LIMIT $3 OFFSET $4`, args...)
	if err != nil {
		return nil, fmt.Errorf("userRepo.List query: %w", err)
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.List scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.List rows: %w", err)
	}
	return users, nil
}

func (q queries) CountUsers(ctx context.Context, uq store.UserQuery) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+userWhere, userArgs(uq)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("userRepo.Count: %w", err)
	}
	return n, nil
}

func (q queries) UpdateUser(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Update", time.Now())()
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET full_name = $1, profile_pic = $2, password_hash = $3 WHERE id = $4`,
		u.FullName, u.ProfilePic, u.PasswordHash, u.ID)
	if err != nil {
		return fmt.Errorf("userRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q queries) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	defer logger.DeferLogDuration("user.SetOnline", time.Now())()
	_, err := q.db.Exec(ctx, `UPDATE users SET is_online = $1, last_seen_at = $2 WHERE id = $3`, online, at, userID)
	if err != nil {
		return fmt.Errorf("userRepo.SetOnline: %w", err)
	}
	return nil
}

func (q queries) ResetOnline(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, `UPDATE users SET is_online = false`); err != nil {
		return fmt.Errorf("userRepo.ResetOnline: %w", err)
	}
	return nil
}

const convCols = `id, kind, name, description, COALESCE(direct_key, ''), created_at, updated_at`

func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	return s.Scan(&c.ID, &c.Kind, &c.Name, &c.Description, &c.DirectKey, &c.CreatedAt, &c.UpdatedAt)
}

func (q queries) CreateConversation(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("conv.Create", time.Now())()
	_, err := q.db.Exec(ctx,
		`INSERT INTO conversations (id, kind, name, description, direct_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Kind, c.Name, c.Description, nullIfEmpty(c.DirectKey), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("convRepo.Create: %w", mapErr(err))
	}
	return nil
}

func (q queries) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c := &model.Conversation{}
	if err := scanConversation(q.db.QueryRow(ctx, `SELECT `+convCols+` FROM conversations WHERE id = $1`, id), c); err != nil {
		return nil, fmt.Errorf("convRepo.GetByID: %w", mapErr(err))
	}
	return c, nil
}

func (q queries) LockConversation(ctx context.Context, id string) error {
	var one int
	if err := q.db.QueryRow(ctx, `SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&one); err != nil {
		return fmt.Errorf("convRepo.Lock: %w", mapErr(err))
	}
	return nil
}

func (q queries) FindDirect(ctx context.Context, directKey string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.FindDirect", time.Now())()
	c := &model.Conversation{}
	row := q.db.QueryRow(ctx,
		`SELECT `+convCols+` FROM conversations WHERE kind = 'DIRECT' AND direct_key = $1`, directKey)
	if err := scanConversation(row, c); err != nil {
		return nil, fmt.Errorf("convRepo.FindDirect: %w", mapErr(err))
	}
	return c, nil
}

func (q queries) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("conv.Update", time.Now())()
	_, err := q.db.Exec(ctx,
		`UPDATE conversations SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		c.Name, c.Description, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("convRepo.Update: %w", err)
	}
	return nil
}

func (q queries) TouchConversation(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.Exec(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2 AND updated_at < $1`, at, id)
	if err != nil {
		return fmt.Errorf("convRepo.Touch: %w", err)
	}
	return nil
}

func (q queries) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.ListForUser", time.Now())()
	rows, err := q.db.Query(ctx,
		`SELECT c.id, c.kind, c.name, c.description, COALESCE(c.direct_key, ''), c.created_at, c.updated_at
		 FROM conversations c
		 JOIN participants p ON p.conversation_id = c.id
		 WHERE p.user_id = $1 AND p.left_at IS NULL
		 ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser query: %w", err)
	}
	defer rows.Close()
	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("convRepo.ListForUser scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser rows: %w", err)
	}
	return convs, nil
}

func (q queries) InsertParticipant(ctx context.Context, p *model.Participant) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO participants (conversation_id, user_id, role, joined_at, left_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ConversationID, p.UserID, p.Role, p.JoinedAt, p.LeftAt)
	if err != nil {
		return fmt.Errorf("convRepo.InsertParticipant: %w", mapErr(err))
	}
	return nil
}

func (q queries) GetParticipant(ctx context.Context, conversationID, userID string) (*model.Participant, error) {
	p := &model.Participant{}
	err := q.db.QueryRow(ctx,
		`SELECT conversation_id, user_id, role, joined_at, left_at FROM participants
		 WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID,
	).Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		return nil, fmt.Errorf("convRepo.GetParticipant: %w", mapErr(err))
	}
	return p, nil
}

func (q queries) UpdateParticipant(ctx context.Context, p *model.Participant) error {
	_, err := q.db.Exec(ctx,
		`UPDATE participants SET role = $1, joined_at = $2, left_at = $3 WHERE conversation_id = $4 AND user_id = $5`,
		p.Role, p.JoinedAt, p.LeftAt, p.ConversationID, p.UserID)
	if err != nil {
		return fmt.Errorf("convRepo.UpdateParticipant: %w", err)
	}
	return nil
}

func (q queries) ListParticipants(ctx context.Context, conversationID string, activeOnly bool) ([]model.Participant, error) {
	defer logger.DeferLogDuration("conv.ListParticipants", time.Now())()
	query := `SELECT p.conversation_id, p.user_id, p.role, p.joined_at, p.left_at,
			u.id, u.username, u.full_name, u.profile_pic, u.is_online, u.last_seen_at
		FROM participants p JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1`
	if activeOnly {
		query += ` AND p.left_at IS NULL`
	}
	query += ` ORDER BY p.joined_at, p.user_id`
	rows, err := q.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListParticipants query: %w", err)
	}
	defer rows.Close()
	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		var u model.UserPublic
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &p.LeftAt,
			&u.ID, &u.Username, &u.FullName, &u.ProfilePic, &u.IsOnline, &u.LastSeenAt); err != nil {
			return nil, fmt.Errorf("convRepo.ListParticipants scan: %w", err)
		}
		p.User = &u
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ListParticipants rows: %w", err)
	}
	return out, nil
}

const messageSelect = `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.type, m.reply_to_id, m.created_at, m.updated_at,
		u.id, u.username, u.full_name, u.profile_pic, u.is_online, u.last_seen_at
	FROM messages m JOIN users u ON u.id = m.sender_id`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	var u model.UserPublic
	if err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.ReplyToID, &m.CreatedAt, &m.UpdatedAt,
		&u.ID, &u.Username, &u.FullName, &u.ProfilePic, &u.IsOnline, &u.LastSeenAt); err != nil {
		return err
	}
	m.Sender = &u
	return nil
}

func (q queries) InsertMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("message.Create", time.Now())()
	_, err := q.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, type, reply_to_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.Type, m.ReplyToID, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", mapErr(err))
	}
	return nil
}

func (q queries) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	m := &model.Message{}
	if err := scanMessage(q.db.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id), m); err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", mapErr(err))
	}
	return m, nil
}

func messageWhere(conversationID string, mq store.MessageQuery) (string, []any) {
	where := ` WHERE m.conversation_id = $1`
	args := []any{conversationID}
	if mq.After != nil {
		args = append(args, *mq.After)
		where += ` AND m.created_at > $` + strconv.Itoa(len(args))
	}
	if mq.Before != nil {
		args = append(args, *mq.Before)
		where += ` AND m.created_at < $` + strconv.Itoa(len(args))
	}
	return where, args
}

func (q queries) ListMessages(ctx context.Context, conversationID string, mq store.MessageQuery) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.List", time.Now())()
	where, args := messageWhere(conversationID, mq)
	dir := "ASC"
	if mq.NewestFirst {
		dir = "DESC"
	}
	query := messageSelect + where + ` ORDER BY m.created_at ` + dir + `, m.seq ` + dir
	if mq.Limit > 0 {
		args = append(args, mq.Limit, mq.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.List query: %w", err)
	}
	defer rows.Close()
	msgs := make([]model.Message, 0, mq.Limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.List scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.List rows: %w", err)
	}
	return msgs, nil
}

func (q queries) CountMessages(ctx context.Context, conversationID string, mq store.MessageQuery) (int, error) {
	where, args := messageWhere(conversationID, mq)
	var n int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages m`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("msgRepo.Count: %w", err)
	}
	return n, nil
}

func (q queries) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	m := &model.Message{}
	row := q.db.QueryRow(ctx,
		messageSelect+` WHERE m.conversation_id = $1 ORDER BY m.created_at DESC, m.seq DESC LIMIT 1`, conversationID)
	if err := scanMessage(row, m); err != nil {
		return nil, fmt.Errorf("msgRepo.Last: %w", mapErr(err))
	}
	return m, nil
}

func (q queries) UpdateMessageContent(ctx context.Context, id, content string, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE messages SET content = $1, updated_at = $2 WHERE id = $3`, content, at, id)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateContent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q queries) DeleteMessage(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("msgRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
