package maintenance

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAddValidation(t *testing.T) {
	s := NewScheduler()
	if err := s.Add("ok", "*/5 * * * *", func() {}); err != nil {
		t.Fatalf("valid expression rejected: %v", err)
	}
	if err := s.Add("bad", "not a cron", func() {}); err == nil {
		t.Fatal("invalid expression accepted")
	}
	if names := s.TaskNames(); len(names) != 1 || names[0] != "ok" {
		t.Errorf("tasks = %v", names)
	}
}

func TestRunDue(t *testing.T) {
	s := NewScheduler()
	var everyMinute, hourly atomic.Int32
	if err := s.Add("every-minute", "* * * * *", func() { everyMinute.Add(1) }); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("hourly", "0 * * * *", func() { hourly.Add(1) }); err != nil {
		t.Fatal(err)
	}

	// 12:30 matches only the every-minute task
	s.runDue(time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC))
	waitFor(t, func() bool { return everyMinute.Load() == 1 })
	if hourly.Load() != 0 {
		t.Errorf("hourly ran off schedule")
	}

	// top of the hour matches both
	s.runDue(time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC))
	waitFor(t, func() bool { return everyMinute.Load() == 2 && hourly.Load() == 1 })
}

func TestPanickingTaskIsContained(t *testing.T) {
	s := NewScheduler()
	var ran atomic.Bool
	if err := s.Add("boom", "* * * * *", func() { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("fine", "* * * * *", func() { ran.Store(true) }); err != nil {
		t.Fatal(err)
	}

	s.runDue(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	waitFor(t, func() bool { return ran.Load() })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}
