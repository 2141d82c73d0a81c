package contexts

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestContextIDs(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{GroupContextID("12345", "67890"), "qq_group_12345_67890"},
		{PrivateContextID("67890"), "qq_private_67890"},
		{PRContextID("owner/repo", 42), "github_pr_owner_repo_42"},
		{IssueContextID("owner/repo", 7), "github_issue_owner_repo_7"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestFallbackContextID(t *testing.T) {
	id := FallbackContextID(TypeGroup, "some-key")
	if len(id) != len("qq_group_")+8 {
		t.Errorf("unexpected id %q", id)
	}
	if id != FallbackContextID(TypeGroup, "some-key") {
		t.Error("fallback id should be deterministic")
	}
}

func TestAddMessageCapKeepsStickySystem(t *testing.T) {
	c := &Context{ID: "x", Type: TypeGroup}
	c.AddMessage(Message{Role: "system", Content: "persona"})
	for i := 0; i < maxMessages+20; i++ {
		c.AddMessage(Message{Role: "user", Content: fmt.Sprintf("msg %d", i)})
	}

	if len(c.Messages) != maxMessages {
		t.Fatalf("len = %d, want %d", len(c.Messages), maxMessages)
	}
	if c.Messages[0].Role != "system" || c.Messages[0].Content != "persona" {
		t.Errorf("system message evicted: first = %+v", c.Messages[0])
	}
	last := c.Messages[len(c.Messages)-1]
	if last.Content != fmt.Sprintf("msg %d", maxMessages+19) {
		t.Errorf("newest message lost: %q", last.Content)
	}
}

func TestRemoveMessages(t *testing.T) {
	c := &Context{ID: "x", Type: TypeGroup}
	c.AddMessage(Message{Role: "user", Content: "keep"})
	c.AddMessage(Message{Role: "user", Content: "drop", Metadata: map[string]interface{}{"message_id": "99"}})
	c.AddMessage(Message{Role: "assistant", Content: "keep too"})

	n := c.RemoveMessages(func(m Message) bool {
		return m.Metadata != nil && m.Metadata["message_id"] == "99"
	})
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	if len(c.Messages) != 2 {
		t.Fatalf("len = %d, want 2", len(c.Messages))
	}
}

func TestRecent(t *testing.T) {
	c := &Context{ID: "x"}
	for i := 0; i < 10; i++ {
		c.AddMessage(Message{Role: "user", Content: fmt.Sprintf("m%d", i)})
	}
	recent := c.Recent(3)
	if len(recent) != 3 || recent[0].Content != "m7" {
		t.Errorf("Recent(3) = %v", recent)
	}
}

func TestAddMessageConcurrent(t *testing.T) {
	c := &Context{ID: "x", Type: TypeGroup}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				c.AddMessage(Message{Role: "user", Content: fmt.Sprintf("m-%d-%d", g, i)})
				c.Recent(5)
			}
		}(g)
	}
	wg.Wait()

	// 200 adds against a cap of maxMessages
	if got := len(c.Recent(0)); got != maxMessages {
		t.Fatalf("len = %d, want %d", got, maxMessages)
	}
}

func TestConcurrentAddAndSave(t *testing.T) {
	m := NewManager(t.TempDir())
	c := m.GetOrCreate("qq_group_1_2", TypeGroup)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			c.AddMessage(Message{Role: "user", Content: fmt.Sprintf("m%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := m.Save(c.ID); err != nil {
				t.Errorf("Save: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if err := m.Save(c.ID); err != nil {
		t.Fatalf("final Save: %v", err)
	}
	m2 := NewManager(m.storage)
	loaded := m2.Get(c.ID)
	if loaded == nil || len(loaded.Messages) != 50 {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestManagerPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	c := m.GetOrCreate(PRContextID("owner/repo", 1), TypePR)
	c.Repository = "owner/repo"
	c.AddMessage(Message{Role: "user", Content: "hello"})
	if err := m.Save(c.ID); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2 := NewManager(dir)
	loaded := m2.Get(c.ID)
	if loaded == nil {
		t.Fatal("context not loaded from disk")
	}
	if loaded.Repository != "owner/repo" || len(loaded.Messages) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestManagerCleanupExpired(t *testing.T) {
	m := NewManager("")
	c := m.GetOrCreate("qq_private_1", TypePrivate)
	c.LastActivity = time.Now().Add(-idleTTL - time.Minute)

	if n := m.CleanupExpired(); n != 1 {
		t.Fatalf("cleaned = %d, want 1", n)
	}
	m.mu.Lock()
	_, ok := m.contexts["qq_private_1"]
	m.mu.Unlock()
	if ok {
		t.Error("expired context still in memory")
	}
}

func TestSearch(t *testing.T) {
	m := NewManager("")

	a := m.GetOrCreate(PRContextID("owner/repo", 1), TypePR)
	a.Repository = "owner/repo"
	a.AddMessage(Message{Role: "user", Content: "fix the deploy bug"})
	a.AddMessage(Message{Role: "assistant", Content: "the deploy script needs a token"})

	b := m.GetOrCreate("qq_private_9", TypePrivate)
	b.AddMessage(Message{Role: "user", Content: "deploy when?"})

	results := m.Search("deploy", SearchFilter{}, 10)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Context.ID != a.ID || results[0].Hits != 2 {
		t.Errorf("top result = %s hits=%d", results[0].Context.ID, results[0].Hits)
	}

	filtered := m.Search("deploy", SearchFilter{Type: TypePrivate}, 10)
	if len(filtered) != 1 || filtered[0].Context.ID != b.ID {
		t.Errorf("filtered = %v", filtered)
	}
}

func TestRelated(t *testing.T) {
	m := NewManager("")

	a := m.GetOrCreate(PRContextID("owner/repo", 1), TypePR)
	a.Repository = "owner/repo"
	b := m.GetOrCreate(IssueContextID("owner/repo", 2), TypeIssue)
	b.Repository = "owner/repo"
	c := m.GetOrCreate(PRContextID("other/repo", 3), TypePR)
	c.Repository = "other/repo"

	related := m.Related(a.ID, 5)
	if len(related) != 1 || related[0].ID != b.ID {
		t.Errorf("related = %v", related)
	}
}
