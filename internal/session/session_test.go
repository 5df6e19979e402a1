package session

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"USER":       RoleUser,
		"user":       RoleUser,
		" Assistant": RoleAssistant,
		"ASSISTANT":  RoleAssistant,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseRole("system"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestRoleEnum(t *testing.T) {
	if RoleUser.Enum() != "USER" {
		t.Errorf("expected USER, got %s", RoleUser.Enum())
	}
	if RoleAssistant.Enum() != "ASSISTANT" {
		t.Errorf("expected ASSISTANT, got %s", RoleAssistant.Enum())
	}
}

func TestConversationClear(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, n := range []int{0, 1, 7} {
		c := &Conversation{ID: "c1"}
		for i := 0; i < n; i++ {
			c.Append(NewMessage(RoleUser, "hi", now))
		}
		c.Clear(now)
		if c.Len() != 1 {
			t.Fatalf("after clear with %d messages: expected 1 message, got %d", n, c.Len())
		}
		if c.Messages[0].ID != GreetingID || c.Messages[0].Role != RoleAssistant {
			t.Fatalf("expected greeting, got %+v", c.Messages[0])
		}
	}
}

func TestWithTurnDoesNotMutateHistory(t *testing.T) {
	now := time.Now()
	history := make([]Message, 1, 4)
	history[0] = Greeting(now)

	user := NewMessage(RoleUser, "hello", now)
	out := WithTurn(history, user)

	if len(out) != 2 || out[1].ID != user.ID {
		t.Fatalf("unexpected turn: %+v", out)
	}
	extended := history[:2]
	if extended[1].ID == user.ID {
		t.Fatal("WithTurn wrote into the caller's backing array")
	}
}

func TestNewMessageIDsAreUnique(t *testing.T) {
	now := time.Now()
	a := NewMessage(RoleAssistant, "a", now)
	b := NewMessage(RoleAssistant, "b", now)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
}
