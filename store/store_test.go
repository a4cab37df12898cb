package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.bin")
	return New(NewFileBlob(path), "test-passphrase", nil), path
}

func testAccount(id, phone string) *Account {
	return &Account{
		ID:            id,
		Phone:         phone,
		Nickname:      "nick-" + id,
		SessionTokens: "web_session=abc; xhsuid=def; sessionid=ghi",
		LoginMethod:   MethodOneTimeCode,
		LastLoginAt:   time.Now().UTC().Truncate(time.Second),
		LoginCount:    1,
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	want := testAccount("a1", "13800138000")
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Phone != want.Phone || got.Nickname != want.Nickname || got.SessionTokens != want.SessionTokens {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestSaveUpsertsById(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	a := testAccount("a1", "13800138000")
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	a.Nickname = "renamed"
	a.LoginCount = 5
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	all := s.GetAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 account after upsert, got %d", len(all))
	}
	if all[0].Nickname != "renamed" || all[0].LoginCount != 5 {
		t.Fatalf("upsert did not replace: %+v", all[0])
	}
}

func TestSaveRejectsMissingID(t *testing.T) {
	s, _ := newFileStore(t)
	if err := s.Save(context.Background(), &Account{}); err == nil {
		t.Fatal("expected error for missing account id")
	}
	if err := s.Save(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil account")
	}
}

func TestGetUnknownAccount(t *testing.T) {
	s, _ := newFileStore(t)
	if _, err := s.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetActiveSingleActiveInvariant(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := s.Save(ctx, testAccount(id, "1380013800"+id[1:])); err != nil {
			t.Fatalf("save %s failed: %v", id, err)
		}
	}

	if err := s.SetActive(ctx, "a1"); err != nil {
		t.Fatalf("set active a1 failed: %v", err)
	}
	if err := s.SetActive(ctx, "a2"); err != nil {
		t.Fatalf("set active a2 failed: %v", err)
	}

	activeCount := 0
	for _, a := range s.GetAll(ctx) {
		if a.Active {
			activeCount++
			if a.ID != "a2" {
				t.Fatalf("wrong account active: %s", a.ID)
			}
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active account, got %d", activeCount)
	}

	active, err := s.GetActive(ctx)
	if err != nil {
		t.Fatalf("get active failed: %v", err)
	}
	if active.ID != "a2" {
		t.Fatalf("expected a2 active, got %s", active.ID)
	}
}

func TestSetActiveUnknownAccount(t *testing.T) {
	s, _ := newFileStore(t)
	if err := s.SetActive(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClearActive(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testAccount("a1", "13800138001")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SetActive(ctx, "a1"); err != nil {
		t.Fatalf("set active failed: %v", err)
	}
	if err := s.ClearActive(ctx); err != nil {
		t.Fatalf("clear active failed: %v", err)
	}
	if _, err := s.GetActive(ctx); err != ErrNoActiveAccount {
		t.Fatalf("expected ErrNoActiveAccount, got %v", err)
	}

	// Clearing again is a no-op.
	if err := s.ClearActive(ctx); err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testAccount("a1", "13800138001")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.Save(ctx, testAccount("a2", "13800138002")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := s.Delete(ctx, "a1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "a1"); err != ErrNotFound {
		t.Fatalf("expected deleted account gone, got %v", err)
	}
	if _, err := s.Get(ctx, "a2"); err != nil {
		t.Fatalf("expected a2 to survive, got %v", err)
	}

	if err := s.Delete(ctx, "a1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestFindByPhone(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testAccount("a1", "13800138001")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.FindByPhone(ctx, "13800138001")
	if err != nil {
		t.Fatalf("find by phone failed: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("expected a1, got %s", got.ID)
	}

	if _, err := s.FindByPhone(ctx, "13900000000"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCorruptRegistryDegradesToEmpty(t *testing.T) {
	s, path := newFileStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testAccount("a1", "13800138001")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("not a sealed registry"), 0o600); err != nil {
		t.Fatalf("corrupt write failed: %v", err)
	}

	if got := s.GetAll(ctx); len(got) != 0 {
		t.Fatalf("expected empty registry after corruption, got %d accounts", len(got))
	}
}

func TestWrongPassphraseDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.bin")
	ctx := context.Background()

	first := New(NewFileBlob(path), "passphrase-one", nil)
	if err := first.Save(ctx, testAccount("a1", "13800138001")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second := New(NewFileBlob(path), "passphrase-two", nil)
	if got := second.GetAll(ctx); len(got) != 0 {
		t.Fatalf("expected empty registry under wrong passphrase, got %d accounts", len(got))
	}
}

func TestHandedOutAccountsAreClones(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testAccount("a1", "13800138001")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.Nickname = "mutated"

	again, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if again.Nickname == "mutated" {
		t.Fatal("caller mutation leaked into registry state")
	}
}
