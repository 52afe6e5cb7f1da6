package session

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSchema host 在 Postgres 中保存对话消息的表结构（只读访问）
const PgSchema = `CREATE TABLE IF NOT EXISTS session_messages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	role        TEXT NOT NULL,
	parts       JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages (session_id);`

// PgStore 从 host 的 session_messages 表读取对话消息
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的消息来源
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

// Close 关闭连接池
func (s *PgStore) Close() {
	s.pool.Close()
}

// SessionMessages 实现 gate.MessageSource。表中只有消息没有会话，
// 无法区分新会话与不存在的会话，因此没有行时返回空列表。
// parts 结构不符时只保留原始 JSON，不影响整次读取。
func (s *PgStore) SessionMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, COALESCE(parts,'[]'::jsonb), created_at
		 FROM session_messages WHERE session_id = $1`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Message{}
	for rows.Next() {
		var (
			id, role  string
			parts     []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &role, &parts, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, &Message{
			ID:        id,
			Role:      role,
			CreatedAt: createdAt,
			RawParts:  parts,
			Parts:     DecodeParts(parts),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
