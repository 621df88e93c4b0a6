package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/orgchat/orgchat/internal/channel"
	"github.com/orgchat/orgchat/internal/types"
)

const foreignKeyViolation = pq.ErrorCode("23503")

const schema = `
CREATE TABLE IF NOT EXISTS hierarchy_nodes (
	id TEXT PRIMARY KEY,
	parent_id TEXT REFERENCES hierarchy_nodes (id),
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	seq BIGSERIAL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	sender_role TEXT NOT NULL,
	content TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'normal',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_channel_created_idx
	ON messages (channel_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS private_channel_members (
	channel_id TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	PRIMARY KEY (channel_id, participant_id)
);

CREATE INDEX IF NOT EXISTS private_channel_members_participant_idx
	ON private_channel_members (participant_id);

CREATE TABLE IF NOT EXISTS read_receipts (
	user_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	last_read_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, channel_id)
);
`

type PgRepository struct {
	conn *sql.DB
}

func NewPgRepository(dsn string) (*PgRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	return &PgRepository{conn: db}, nil
}

func (db *PgRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// EnsureSchema creates the tables and indexes the adapter relies on.
func (db *PgRepository) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (db *PgRepository) HierarchyTree(ctx context.Context) ([]*types.HierarchyNode, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, COALESCE(parent_id, ''), name, role, email FROM hierarchy_nodes "+
			"ORDER BY seq",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type row struct {
		node     *types.HierarchyNode
		parentId string
	}

	var ordered []row
	byId := make(map[string]*types.HierarchyNode)
	for rows.Next() {
		var n types.HierarchyNode
		var parentId string
		if err := rows.Scan(&n.Id, &parentId, &n.Name, &n.Role, &n.Email); err != nil {
			return nil, err
		}
		n.Children = []*types.HierarchyNode{}
		ordered = append(ordered, row{node: &n, parentId: parentId})
		byId[n.Id] = &n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Parents are always seeded before their children, so a single ordered
	// pass is enough to attach every node.
	roots := []*types.HierarchyNode{}
	for _, r := range ordered {
		parent, ok := byId[r.parentId]
		if r.parentId == "" || !ok {
			roots = append(roots, r.node)
			continue
		}
		parent.Children = append(parent.Children, r.node)
	}

	return roots, nil
}

func (db *PgRepository) AppendHierarchyChild(ctx context.Context, parentId string, node *types.HierarchyNode) error {
	var parent sql.NullString
	if parentId != "" {
		parent = sql.NullString{String: parentId, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO hierarchy_nodes (id, parent_id, name, role, email) "+
			"VALUES ($1, $2, $3, $4, $5)",
		node.Id,
		parent,
		node.Name,
		node.Role,
		node.Email,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return ErrParentNotFound
	}
	return err
}

func (db *PgRepository) ChannelMessages(ctx context.Context, channelId string, limit int) ([]types.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, channel_id, sender_id, sender_name, sender_role, content, priority, created_at "+
			"FROM messages WHERE channel_id = $1 "+
			"ORDER BY created_at DESC, id DESC LIMIT $2",
		channelId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []types.Message{}
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(
			&m.Id,
			&m.ChannelId,
			&m.SenderId,
			&m.SenderName,
			&m.SenderRole,
			&m.Content,
			&m.Priority,
			&m.Timestamp,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgRepository) PrivateChannels(ctx context.Context, userId string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT channel_id FROM private_channel_members WHERE participant_id = $1",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		channels = append(channels, id)
	}

	return channels, rows.Err()
}

// SaveMessage persists the message and, for private channels, the
// participant index rows in a single transaction so channel discovery
// never misses a message that was durably stored.
func (db *PgRepository) SaveMessage(ctx context.Context, msg types.Message) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (id, channel_id, sender_id, sender_name, sender_role, content, priority, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		msg.Id,
		msg.ChannelId,
		msg.SenderId,
		msg.SenderName,
		msg.SenderRole,
		msg.Content,
		msg.Priority,
		msg.Timestamp,
	); err != nil {
		return err
	}

	if ch := channel.Parse(msg.ChannelId); ch.Kind == channel.Private {
		for _, participant := range []string{ch.PeerA, ch.PeerB} {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO private_channel_members (channel_id, participant_id) "+
					"VALUES ($1, $2) ON CONFLICT DO NOTHING",
				msg.ChannelId,
				participant,
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (db *PgRepository) ReceiptsByUser(ctx context.Context, userId string) (map[string]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT channel_id, last_read_at FROM read_receipts WHERE user_id = $1",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make(map[string]time.Time)
	for rows.Next() {
		var channelId string
		var lastRead time.Time
		if err := rows.Scan(&channelId, &lastRead); err != nil {
			return nil, err
		}
		receipts[channelId] = lastRead
	}

	return receipts, rows.Err()
}

func (db *PgRepository) SaveReceipt(ctx context.Context, userId, channelId string, ts time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO read_receipts (user_id, channel_id, last_read_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (user_id, channel_id) DO UPDATE SET last_read_at = EXCLUDED.last_read_at",
		userId,
		channelId,
		ts,
	)
	return err
}
