package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bdobrica/Kotae/internal/kotae/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kotae.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKV_SetGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "absent"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "k", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2", 0); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if v != "v2" {
		t.Fatalf("last write should win, got %q", v)
	}
}

func TestKV_TTLExpiry(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "ephemeral", "x", 30*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "ephemeral"); !ok {
		t.Fatal("entry should be visible before expiry")
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "ephemeral"); ok {
		t.Fatal("entry should be gone after expiry")
	}
}

func TestFlags(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if v, err := s.Flag(ctx, "user-42"); err != nil || v {
		t.Fatalf("absent flag should read false, got %v err=%v", v, err)
	}
	if err := s.SetFlag(ctx, "user-42", true); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	if v, _ := s.Flag(ctx, "user-42"); !v {
		t.Fatal("flag should read true")
	}
	if err := s.SetFlag(ctx, "user-42", false); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	if v, _ := s.Flag(ctx, "user-42"); v {
		t.Fatal("flag should read false")
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Delete(ctx, "absent"); err != nil {
		t.Fatalf("deleting an absent key should succeed, got %v", err)
	}
	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestMessages_HistoryOrderAndLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		if err := s.AppendMessage(ctx, "chat-a", role, "m"+string(rune('0'+i))); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	if err := s.AppendMessage(ctx, "chat-b", store.RoleUser, "other"); err != nil {
		t.Fatal(err)
	}

	got, err := s.History(ctx, "chat-a", 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	// Most recent 3, oldest first.
	want := []string{"m2", "m3", "m4"}
	for i, m := range got {
		if m.Content != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], m.Content)
		}
		if m.ChatID != "chat-a" {
			t.Errorf("message %d leaked from chat %q", i, m.ChatID)
		}
	}
}

func TestMessages_EmptyHistory(t *testing.T) {
	s := openStore(t)
	got, err := s.History(context.Background(), "nobody", 8)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(got))
	}
}
