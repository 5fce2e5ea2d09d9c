package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Skufu/diagportal/internal/portal"
)

func TestMemoryStoreFreshSession(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	st, err := s.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.ID != "abc" || len(st.Selection) != 0 {
		t.Fatalf("expected empty session, got %+v", st)
	}
	if len(st.Chat.Transcript) != 1 || st.Chat.Transcript[0].Content != portal.WelcomeMessage {
		t.Fatalf("expected welcome message, got %+v", st.Chat.Transcript)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := s.Update(ctx, "a", func(st *State) error {
		st.Selection.Add("fever")
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	now = now.Add(2 * time.Minute)
	st, _ := s.Get(ctx, "a")
	if len(st.Selection) != 0 {
		t.Fatalf("expected expired session to reset, got %v", st.Selection)
	}
	n, _ := s.Sweep(ctx)
	if n != 1 {
		t.Fatalf("expected one swept session, got %d", n)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	st, _ := s.Update(ctx, "a", func(st *State) error {
		st.Selection.Add("fever")
		return nil
	})
	st.Selection.Add("cough")

	again, _ := s.Get(ctx, "a")
	if len(again.Selection) != 1 {
		t.Fatalf("store state leaked to caller: %v", again.Selection)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore(time.Hour))
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	s := NewRedisStore(redis.NewClient(opts), time.Minute)
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	testStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s, err := NewPostgresStore(ctx, pool, time.Minute)
	if err != nil {
		pool.Close()
		t.Skipf("postgres unavailable: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	id := "test-" + time.Now().Format("150405.000000000")

	t.Run("update persists", func(t *testing.T) {
		if _, err := s.Update(ctx, id, func(st *State) error {
			st.Selection.Add("fever")
			st.Panel.Disease = "Flu"
			return nil
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
		st, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !st.Selection.Contains("fever") || st.Panel.Disease != "Flu" {
			t.Fatalf("state not persisted: %+v", st)
		}
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := s.Update(ctx, id, func(st *State) error {
			st.Selection.Add("cough")
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected fn error, got %v", err)
		}
		st, _ := s.Get(ctx, id)
		if st.Selection.Contains("cough") {
			t.Fatalf("rejected update was written: %v", st.Selection)
		}
	})

	t.Run("chat guard admits one turn", func(t *testing.T) {
		chatID := id + "-chat"
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			admitted []string
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				turn, err := BeginChat(ctx, s, chatID, time.Minute, "hello")
				if err == nil {
					mu.Lock()
					admitted = append(admitted, turn)
					mu.Unlock()
				} else if !errors.Is(err, portal.ErrBusy) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if len(admitted) != 1 {
			t.Fatalf("expected exactly one admitted turn, got %d", len(admitted))
		}

		st, err := s.Get(ctx, chatID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		last := st.Chat.Transcript[len(st.Chat.Transcript)-1]
		if last.Role != portal.RoleUser || last.Content != "hello" {
			t.Fatalf("expected the user message while in flight, got %+v", last)
		}
		users := 0
		for _, m := range st.Chat.Transcript {
			if m.Role == portal.RoleUser {
				users++
			}
		}
		if users != 1 {
			t.Fatalf("refused turns must not add messages, got %d user messages", users)
		}

		st, err = EndChat(ctx, s, chatID, admitted[0], func(c *portal.Chat) {
			c.Append(portal.RoleAssistant, "hi")
		})
		if err != nil {
			t.Fatalf("end chat: %v", err)
		}
		if st.Chat.Phase != portal.PhaseIdle {
			t.Fatalf("expected idle phase, got %s", st.Chat.Phase)
		}
		if _, err := BeginChat(ctx, s, chatID, time.Minute, "again"); err != nil {
			t.Fatalf("expected next turn to be admitted, got %v", err)
		}
	})

	t.Run("late turn does not release a takeover", func(t *testing.T) {
		chatID := id + "-takeover"
		first, err := BeginChat(ctx, s, chatID, time.Nanosecond, "one")
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		time.Sleep(time.Millisecond)
		second, err := BeginChat(ctx, s, chatID, time.Nanosecond, "two")
		if err != nil {
			t.Fatalf("stale turn should be taken over: %v", err)
		}

		_, err = EndChat(ctx, s, chatID, first, func(c *portal.Chat) {
			c.Append(portal.RoleAssistant, "late")
		})
		if !errors.Is(err, portal.ErrTurnSuperseded) {
			t.Fatalf("expected ErrTurnSuperseded, got %v", err)
		}
		st, _ := s.Get(ctx, chatID)
		if !st.Chat.Owns(second) {
			t.Fatalf("takeover turn lost the chat: phase=%s turn=%q", st.Chat.Phase, st.Chat.Turn)
		}
		for _, m := range st.Chat.Transcript {
			if m.Content == "late" {
				t.Fatal("superseded reply was written")
			}
		}

		if _, err := EndChat(ctx, s, chatID, second, nil); err != nil {
			t.Fatalf("end takeover turn: %v", err)
		}
	})
}
