package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	store := NewMemoryStore(DefaultMaxTurns)
	ctx := context.Background()

	if err := store.Append(ctx, "u1", UserTurn("你好"), AssistantTurn("您好！")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	history, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Fatalf("turns out of order: %+v", history)
	}
}

func TestMemoryStoreTruncatesOldestFirst(t *testing.T) {
	store := NewMemoryStore(4)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := store.Append(ctx, "u1", UserTurn(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	history, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history must be bounded to 4, got %d", len(history))
	}
	if history[0].Content != "m2" || history[3].Content != "m5" {
		t.Fatalf("oldest turns must be evicted first: %+v", history)
	}
}

func TestMemoryStoreListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(DefaultMaxTurns)
	ctx := context.Background()

	if err := store.Append(ctx, "u1", UserTurn("原文")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	history, _ := store.List(ctx, "u1")
	history[0].Content = "被篡改"

	again, _ := store.List(ctx, "u1")
	if again[0].Content != "原文" {
		t.Fatalf("listing must not expose internal state")
	}
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore(DefaultMaxTurns)
	ctx := context.Background()

	_ = store.Append(ctx, "u1", UserTurn("hi"))
	if err := store.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	history, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history must be empty after clear, got %d", len(history))
	}
}

func TestMemoryStoreIsolatesUsers(t *testing.T) {
	store := NewMemoryStore(DefaultMaxTurns)
	ctx := context.Background()

	_ = store.Append(ctx, "u1", UserTurn("a"))
	_ = store.Append(ctx, "u2", UserTurn("b"))

	h1, _ := store.List(ctx, "u1")
	h2, _ := store.List(ctx, "u2")
	if len(h1) != 1 || len(h2) != 1 || h1[0].Content == h2[0].Content {
		t.Fatalf("users must have independent histories: %+v %+v", h1, h2)
	}
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = store.Append(ctx, "u1", UserTurn(fmt.Sprintf("g%d-%d", n, j)))
			}
		}(i)
	}
	wg.Wait()

	history, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(history) != 100 {
		t.Fatalf("expected 100 turns, got %d", len(history))
	}
}
