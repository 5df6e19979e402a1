package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"CodeChat/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	user := session.Message{ID: "u1", Role: session.RoleUser, Content: "hello", Timestamp: now}
	bot := session.Message{ID: "a1", Role: session.RoleAssistant, Content: "hi!", Timestamp: now.Add(time.Second)}

	if err := s.Append(ctx, "conv", "anthropic", user, bot); err != nil {
		t.Fatalf("Append: %v", err)
	}

	conv, err := s.Load(ctx, "conv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conv.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", conv.Len())
	}
	got := conv.Messages[0]
	if got.ID != "u1" || got.Role != session.RoleUser || got.Content != "hello" || !got.Timestamp.Equal(now) {
		t.Fatalf("unexpected first message: %+v", got)
	}
	if conv.Messages[1].ID != "a1" {
		t.Fatalf("expected insertion order, got %+v", conv.Messages)
	}
}

func TestLoadUnknown(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetLeavesGreeting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, "conv", "anthropic", session.NewMessage(session.RoleUser, "m", now)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Reset(ctx, "conv", "anthropic"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	conv, err := s.Load(ctx, "conv")
	if err != nil {
		t.Fatal(err)
	}
	if conv.Len() != 1 || conv.Messages[0].ID != session.GreetingID {
		t.Fatalf("expected only the greeting, got %+v", conv.Messages)
	}

	// resetting an unknown conversation creates it with the greeting
	if err := s.Reset(ctx, "fresh", "anthropic"); err != nil {
		t.Fatal(err)
	}
	if conv, err := s.Load(ctx, "fresh"); err != nil || conv.Len() != 1 {
		t.Fatalf("expected greeting for fresh conversation, got %v %v", conv, err)
	}
}
