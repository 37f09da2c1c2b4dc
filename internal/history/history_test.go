package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepository(t *testing.T) {
	t.Parallel()

	repo, err := NewMemory(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	now := time.Now().Unix()
	first := Record{
		SessionID:  "session-1",
		AccountID:  "alice.near",
		TokenIn:    "NEAR",
		AmountIn:   "2000000000000000000000000",
		TokenOut:   "USDC",
		AmountOut:  "2010000",
		QuoteHash:  "hash-1",
		FinalState: "SETTLED",
		CreatedAt:  now,
	}
	second := first
	second.SessionID = "session-2"
	second.QuoteHash = "hash-2"
	second.CreatedAt = now + 5

	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	list, err := repo.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	if list[0].SessionID != "session-2" {
		t.Fatalf("expected newest record first, got %+v", list[0])
	}

	found, err := repo.FindBySession(ctx, "session-1")
	if err != nil {
		t.Fatalf("find by session failed: %v", err)
	}
	if found.QuoteHash != "hash-1" {
		t.Fatalf("unexpected record: %+v", found)
	}

	if _, err := repo.FindBySession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemory(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	record := Record{SessionID: "session-1", AccountID: "alice.near", FinalState: "SETTLED", CreatedAt: 1}
	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded, err := NewMemory(dir)
	if err != nil {
		t.Fatalf("failed to reload memory repo: %v", err)
	}
	list, err := reloaded.ListLatest(context.Background(), 1)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 1 || list[0].SessionID != "session-1" {
		t.Fatalf("unexpected reloaded records: %+v", list)
	}
}
