package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemory_GetOrCreateIdempotent(t *testing.T) {
	m := NewMemory(0, 0)

	first := m.GetOrCreate("s1")
	second := m.GetOrCreate("s1")

	if len(first) != 0 || len(second) != 0 {
		t.Fatalf("expected empty sequences, got %d and %d", len(first), len(second))
	}

	m.Append("s1", Turn{SessionID: "s1", Role: RoleUser, Content: "hello"})
	a := m.GetOrCreate("s1")
	b := m.GetOrCreate("s1")
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both reads to see 1 turn, got %d and %d", len(a), len(b))
	}
	if a[0] != b[0] {
		t.Errorf("expected equal sequences, got %+v and %+v", a[0], b[0])
	}
}

func TestMemory_GetOrCreateReturnsCopy(t *testing.T) {
	m := NewMemory(0, 0)
	m.Append("s1", Turn{Role: RoleUser, Content: "hello"})

	seq := m.GetOrCreate("s1")
	seq[0].Content = "mutated"

	if got := m.GetOrCreate("s1")[0].Content; got != "hello" {
		t.Errorf("caller mutation leaked into the cache: %q", got)
	}
}

func TestMemory_TrimFront(t *testing.T) {
	m := NewMemory(0, 0)
	for i := 0; i < 5; i++ {
		m.Append("s1", Turn{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	m.TrimFront("s1", 3)

	seq := m.GetOrCreate("s1")
	if len(seq) != 3 {
		t.Fatalf("expected 3 turns after trim, got %d", len(seq))
	}
	if seq[0].Content != "m2" {
		t.Errorf("expected oldest kept turn m2, got %q", seq[0].Content)
	}
	if seq[2].Content != "m4" {
		t.Errorf("expected newest turn m4, got %q", seq[2].Content)
	}
}

func TestMemory_TrimFrontNoopUnderLimit(t *testing.T) {
	m := NewMemory(0, 0)
	m.Append("s1", Turn{Role: RoleUser, Content: "a"})
	m.TrimFront("s1", 3)
	if got := len(m.GetOrCreate("s1")); got != 1 {
		t.Fatalf("expected 1 turn, got %d", got)
	}
}

func TestMemory_StartedFlag(t *testing.T) {
	m := NewMemory(0, 0)
	if m.Started("s1") {
		t.Fatal("fresh session should not be started")
	}
	m.MarkStarted("s1")
	if !m.Started("s1") {
		t.Fatal("expected started after MarkStarted")
	}

	// The flag survives the sequence being trimmed away.
	m.Append("s1", Turn{Role: RoleUser, Content: "a"})
	m.TrimFront("s1", 0)
	if !m.Started("s1") {
		t.Fatal("started flag must not depend on sequence length")
	}
}

func TestMemory_IdleEntriesEvicted(t *testing.T) {
	m := NewMemory(100, time.Minute)
	clock := time.Unix(1000, 0)
	m.now = func() time.Time { return clock }

	m.Append("stale", Turn{Role: RoleUser, Content: "old"})
	m.MarkStarted("stale")

	// Another session touched past the idle TTL sweeps the stale entry out.
	clock = clock.Add(2 * time.Minute)
	m.Append("fresh", Turn{Role: RoleUser, Content: "new"})

	m.mu.Lock()
	_, staleAlive := m.sessions["stale"]
	_, freshAlive := m.sessions["fresh"]
	m.mu.Unlock()
	if staleAlive {
		t.Error("idle entry survived past its TTL")
	}
	if !freshAlive {
		t.Error("fresh entry missing")
	}

	// The evicted session is rebuilt empty; its started flag comes back from
	// the durable log via the orchestrator, not from here.
	if len(m.GetOrCreate("stale")) != 0 {
		t.Error("expected evicted session to restart empty")
	}
}

func TestMemory_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory(2, time.Hour)
	clock := time.Unix(1000, 0)
	m.now = func() time.Time { return clock }

	m.Append("s1", Turn{Role: RoleUser, Content: "a"})
	clock = clock.Add(time.Second)
	m.Append("s2", Turn{Role: RoleUser, Content: "b"})
	clock = clock.Add(time.Second)
	m.GetOrCreate("s1") // s2 is now least recently used
	clock = clock.Add(time.Second)
	m.Append("s3", Turn{Role: RoleUser, Content: "c"})

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) > 2 {
		t.Fatalf("expected at most 2 entries, got %d", len(m.sessions))
	}
	if _, ok := m.sessions["s2"]; ok {
		t.Error("least recently used entry should have been evicted")
	}
	for _, id := range []string{"s1", "s3"} {
		if _, ok := m.sessions[id]; !ok {
			t.Errorf("expected entry %s to survive", id)
		}
	}
}

func TestMemory_SessionsDoNotInterfere(t *testing.T) {
	m := NewMemory(0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			unlock := m.Lock(id)
			defer unlock()
			for j := 0; j < 20; j++ {
				m.Append(id, Turn{SessionID: id, Role: RoleUser, Content: fmt.Sprintf("m%d", j)})
			}
			m.TrimFront(id, 10)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("s%d", i)
		seq := m.GetOrCreate(id)
		if len(seq) != 10 {
			t.Errorf("session %s: expected 10 turns, got %d", id, len(seq))
		}
		for _, turn := range seq {
			if turn.SessionID != id {
				t.Errorf("session %s contains turn from %s", id, turn.SessionID)
			}
		}
	}
}
