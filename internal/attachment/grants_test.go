package attachment

import (
	"testing"
	"time"
)

func TestGrants(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGrants(time.Minute)
	g.now = func() time.Time { return now }

	first := g.Issue("client-a", "content://x/attachments/1.pdf")
	if first.Token == "" {
		t.Fatal("Issue() returned empty token")
	}

	if !g.Allowed("client-a", "content://x/attachments/1.pdf") {
		t.Error("Allowed() = false for a live grant")
	}
	if g.Allowed("client-b", "content://x/attachments/1.pdf") {
		t.Error("Allowed() = true for another caller")
	}
	if g.Allowed("client-a", "content://x/attachments/2.pdf") {
		t.Error("Allowed() = true for another file")
	}

	now = now.Add(50 * time.Second)
	again := g.Issue("client-a", "content://x/attachments/1.pdf")
	if again.Token != first.Token {
		t.Error("re-grant must keep the token")
	}

	now = now.Add(50 * time.Second)
	if !g.Allowed("client-a", "content://x/attachments/1.pdf") {
		t.Error("re-grant must extend the expiry")
	}

	now = now.Add(time.Minute)
	if g.Allowed("client-a", "content://x/attachments/1.pdf") {
		t.Error("Allowed() = true after expiry")
	}
	if n := g.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
}

func TestGrants_Revoke(t *testing.T) {
	g := NewGrants(time.Minute)
	g.Issue("a", "u1")
	g.Issue("b", "u1")
	g.Issue("a", "u2")

	g.Revoke("u1")
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
	if !g.Allowed("a", "u2") {
		t.Error("unrelated grant revoked")
	}
}
