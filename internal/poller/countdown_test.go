package poller

import "testing"

func TestCountdown_Defaults(t *testing.T) {
	c := NewCountdown(0, -1)
	web, db := c.Remaining()
	if web != DefaultWebRefresh || db != DefaultDBRefresh {
		t.Errorf("Remaining() = (%d, %d), want (%d, %d)", web, db, DefaultWebRefresh, DefaultDBRefresh)
	}
}

func TestCountdown_PollDueEveryPeriod(t *testing.T) {
	c := NewCountdown(3, 5)

	var due []int
	for i := 1; i <= 9; i++ {
		if c.Tick().PollDue {
			due = append(due, i)
		}
	}

	want := []int{3, 6, 9}
	if len(due) != len(want) {
		t.Fatalf("poll due at %v, want %v", due, want)
	}
	for i := range want {
		if due[i] != want[i] {
			t.Errorf("poll due at %v, want %v", due, want)
			break
		}
	}
}

func TestCountdown_DBWrapsIndependently(t *testing.T) {
	c := NewCountdown(3, 2)

	res := c.Tick()
	if res.DBWrapped {
		t.Error("db wrapped after 1 tick, want 2")
	}
	res = c.Tick()
	if !res.DBWrapped {
		t.Error("db should wrap after 2 ticks")
	}
	if res.PollDue {
		t.Error("web should not be due after 2 ticks")
	}
	if _, db := c.Remaining(); db != 2 {
		t.Errorf("db = %d after wrap, want 2", db)
	}
}

func TestCountdown_ResetWebDefersPoll(t *testing.T) {
	c := NewCountdown(3, 30)
	c.Tick()
	c.Tick()

	// manual poll right before the automatic one
	c.ResetWeb()

	if c.Tick().PollDue {
		t.Error("poll due immediately after manual reset")
	}
	if web, _ := c.Remaining(); web != 2 {
		t.Errorf("web = %d, want 2", web)
	}
}

func TestCountdown_ResetDB(t *testing.T) {
	c := NewCountdown(30, 30)
	for i := 0; i < 10; i++ {
		c.Tick()
	}
	c.ResetDB()
	if _, db := c.Remaining(); db != 30 {
		t.Errorf("db = %d after reset, want 30", db)
	}
}
