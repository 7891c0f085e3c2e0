package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	turns := []struct {
		role    Role
		content string
	}{
		{RoleUser, "show me running shoes"},
		{RoleAssistant, "Here are 3 matches: ..."},
		{RoleUser, "anything in blue?"},
	}
	for _, turn := range turns {
		if err := s.Append(ctx, "sess-1", turn.role, turn.content); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	msgs, err := s.Recent(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("want 3 messages, got %d", len(msgs))
	}
	// Oldest-first for direct prepending to the model context.
	if msgs[0].Content != "show me running shoes" || msgs[2].Content != "anything in blue?" {
		t.Errorf("messages out of order: %+v", msgs)
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("role = %q, want assistant", msgs[1].Role)
	}
}

func Test_Recent_LimitsToTail(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three", "four"} {
		if err := s.Append(ctx, "sess-1", RoleUser, content); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	msgs, err := s.Recent(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "three" || msgs[1].Content != "four" {
		t.Errorf("want the two newest oldest-first, got %+v", msgs)
	}
}

func Test_Recent_IsolatesSessions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-a", RoleUser, "from a"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, "sess-b", RoleUser, "from b"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, err := s.Recent(ctx, "sess-a", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "from a" {
		t.Errorf("session leak: %+v", msgs)
	}

	if msgs, err := s.Recent(ctx, "sess-unknown", 10); err != nil || len(msgs) != 0 {
		t.Errorf("unknown session: %v, %v", msgs, err)
	}
}

func Test_Open_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Append(context.Background(), "sess-1", RoleUser, "persisted"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()

	msgs, err := s2.Recent(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "persisted" {
		t.Errorf("messages did not survive reopen: %+v", msgs)
	}
}
