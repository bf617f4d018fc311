package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return newStoreWithClient(rdb, DefaultTTL, "chat"), mr
}

func TestAppendHistoryRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-1", "how do returns work?", "Here is how…"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, "sess-1", "and refunds?", "Refunds take 5 days."); err != nil {
		t.Fatalf("Append: %v", err)
	}

	turns, err := s.History(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	// Timestamps are ignored in comparison; content and order matter.
	last := turns[len(turns)-1]
	if last.User != "and refunds?" || last.Assistant != "Refunds take 5 days." {
		t.Errorf("last turn = %+v", last)
	}
}

func TestHistoryLimitSlicesTail(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three", "four"} {
		if err := s.Append(ctx, "sess-2", q, "answer to "+q); err != nil {
			t.Fatalf("Append(%q): %v", q, err)
		}
	}

	turns, err := s.History(ctx, "sess-2", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].User != "three" || turns[1].User != "four" {
		t.Errorf("limit should keep the most recent turns, got %q, %q", turns[0].User, turns[1].User)
	}
}

func TestClearThenHistoryEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-3", "hello?", "greeting"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cleared, err := s.Clear(ctx, "sess-3")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if !cleared {
		t.Error("Clear should report deletion of an existing session")
	}

	turns, err := s.History(ctx, "sess-3", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("history after clear = %d turns, want 0", len(turns))
	}

	cleared, err = s.Clear(ctx, "sess-3")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if cleared {
		t.Error("clearing an absent session should report false")
	}
}

func TestLast(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	turn, err := s.Last(ctx, "sess-4")
	if err != nil {
		t.Fatalf("Last on empty session: %v", err)
	}
	if turn != nil {
		t.Errorf("Last on empty session = %+v, want nil", turn)
	}

	if err := s.Append(ctx, "sess-4", "first", "a1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "sess-4", "second", "a2"); err != nil {
		t.Fatal(err)
	}

	turn, err = s.Last(ctx, "sess-4")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if turn == nil || turn.User != "second" {
		t.Errorf("Last = %+v, want the second turn", turn)
	}
}

func TestAppendRefreshesTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-5", "q", "a"); err != nil {
		t.Fatal(err)
	}
	ttl := mr.TTL("chat:sess-5")
	if ttl != DefaultTTL {
		t.Errorf("TTL = %v, want %v", ttl, DefaultTTL)
	}

	// Age the key, append again: the window must reset for the whole list.
	mr.FastForward(24 * time.Hour)
	if err := s.Append(ctx, "sess-5", "q2", "a2"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("chat:sess-5"); ttl != DefaultTTL {
		t.Errorf("TTL after second append = %v, want refreshed %v", ttl, DefaultTTL)
	}
}

func TestAppendRejectsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name                     string
		session, user, assistant string
	}{
		{"empty_session", "", "q", "a"},
		{"empty_user", "s", "", "a"},
		{"empty_assistant", "s", "q", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Append(ctx, tt.session, tt.user, tt.assistant); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestHistoryDistinguishesUnreachable(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	mr.Close()
	_, err := s.History(ctx, "sess-6", 0)
	if err == nil {
		t.Fatal("unreachable backend must surface an error, not empty history")
	}
}
