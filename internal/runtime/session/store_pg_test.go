package session

import (
	"context"
	"os"
	"testing"
	"time"
)

func testDSN(t *testing.T) string {
	dsn := os.Getenv("TOOLGATE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TOOLGATE_TEST_PG_DSN not set, skipping Postgres session tests")
	}
	return dsn
}

func TestPgStore_SessionMessages(t *testing.T) {
	ctx := context.Background()
	store, err := NewPgStore(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("NewPgStore: %v", err)
	}
	defer store.Close()

	if _, err := store.pool.Exec(ctx, PgSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	_, _ = store.pool.Exec(ctx, `DELETE FROM session_messages WHERE session_id IN ('pg-s1', 'pg-empty')`)

	base := time.Now().UTC().Truncate(time.Second)
	for i, role := range []string{RoleUser, RoleAssistant} {
		_, err := store.pool.Exec(ctx,
			`INSERT INTO session_messages (id, session_id, role, parts, created_at) VALUES ($1, 'pg-s1', $2, $3, $4)`,
			"pg-m"+string(rune('a'+i)), role, `[{"type":"text","text":"x"}]`, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	msgs, err := store.SessionMessages(ctx, "pg-s1")
	if err != nil {
		t.Fatalf("SessionMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Parts[0].Text != "x" {
		t.Errorf("parts not decoded: %+v", msgs[0])
	}

	_, err = store.pool.Exec(ctx,
		`INSERT INTO session_messages (id, session_id, role, parts, created_at) VALUES ('pg-mc', 'pg-s1', 'tool', $1, $2)`,
		`{"data":"x"}`, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	msgs, err = store.SessionMessages(ctx, "pg-s1")
	if err != nil {
		t.Fatalf("non-conforming parts should not fail the fetch: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	msgs, err = store.SessionMessages(ctx, "pg-empty")
	if err != nil {
		t.Fatalf("session without rows: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("session without rows: want empty list, got %v", msgs)
	}
}
