package scheduler

import "testing"

// Scenario 6 (spec.md §8): insert {HBlank@1606, HDraw@2130, Timer7(0)@2000};
// pop order must be HBlank, Timer7(0), HDraw.
func TestDeterministicPopOrder(t *testing.T) {
	s := New()
	s.ScheduleAt(HDraw, ProcessorNone, 0, 2130)
	s.ScheduleAt(HBlank, ProcessorNone, 0, 1606)
	s.ScheduleAt(Timer, A7, 0, 2000)

	s.Advance(3000)

	var got []Kind
	for {
		ev, _, ok := s.PopDue()
		if !ok {
			break
		}
		got = append(got, ev.Kind)
	}

	want := []Kind{HBlank, Timer, HDraw}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestTiesBreakByInsertionOrder(t *testing.T) {
	s := New()
	s.ScheduleAt(HBlank, ProcessorNone, 0, 100)
	s.ScheduleAt(HDraw, ProcessorNone, 0, 100)
	s.ScheduleAt(Timer, ProcessorNone, 0, 100)
	s.Advance(100)

	first, _, _ := s.PopDue()
	second, _, _ := s.PopDue()
	third, _, _ := s.PopDue()
	if first.Kind != HBlank || second.Kind != HDraw || third.Kind != Timer {
		t.Fatalf("ties did not break by insertion order: %v %v %v", first.Kind, second.Kind, third.Kind)
	}
}

func TestCancelRemovesOnlyMatching(t *testing.T) {
	s := New()
	s.Schedule(Timer, A7, 0, 10)
	s.Schedule(Timer, A7, 1, 10)
	s.Schedule(Timer, A9, 0, 10)
	s.Cancel(Timer, A7, 0)

	if s.Len() != 2 {
		t.Fatalf("expected 2 events left, got %d", s.Len())
	}
	s.Advance(10)
	for {
		ev, _, ok := s.PopDue()
		if !ok {
			break
		}
		if ev.matches(Timer, A7, 0) {
			t.Fatalf("canceled event was still delivered")
		}
	}
}

func TestPeekNextDeadlineEmptyIsInfinite(t *testing.T) {
	s := New()
	if s.PeekNextDeadline() != ^uint64(0) {
		t.Fatalf("expected +inf sentinel for empty queue")
	}
	s.Schedule(HBlank, ProcessorNone, 0, 5)
	if s.PeekNextDeadline() != 5 {
		t.Fatalf("expected deadline 5, got %d", s.PeekNextDeadline())
	}
}

// Rebase must preserve relative deadlines and pop order (spec.md §8).
func TestRebasePreservesRelativeOrderAndDeadlines(t *testing.T) {
	s := New()
	s.Advance(1000)
	s.Schedule(HBlank, ProcessorNone, 0, 10) // deadline 1010
	s.Schedule(HDraw, ProcessorNone, 0, 20)  // deadline 1020

	s.Rebase()
	if s.Now != 0 {
		t.Fatalf("expected Now==0 after rebase, got %d", s.Now)
	}

	s.Advance(10)
	ev, _, ok := s.PopDue()
	if !ok || ev.Kind != HBlank {
		t.Fatalf("expected HBlank due first after rebase, got %+v ok=%v", ev, ok)
	}
	s.Advance(10)
	ev2, _, ok2 := s.PopDue()
	if !ok2 || ev2.Kind != HDraw {
		t.Fatalf("expected HDraw due second after rebase, got %+v ok=%v", ev2, ok2)
	}
}

func TestSlackBacksDatePeriodicEvents(t *testing.T) {
	s := New()
	s.Schedule(HBlank, ProcessorNone, 0, 100)
	s.Advance(105) // fires 5 cycles late
	ev, slack, ok := s.PopDue()
	if !ok || ev.Kind != HBlank {
		t.Fatalf("expected HBlank due")
	}
	if slack != 5 {
		t.Fatalf("expected slack 5, got %d", slack)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New()
	s.Advance(42)
	s.Schedule(HBlank, ProcessorNone, 0, 10)
	s.Schedule(Timer, A9, 2, 50)
	s.Schedule(DMAWordTransfer, A7, 1, 1)

	snap := s.Snapshot()

	restored := New()
	restored.Restore(snap)

	if restored.Now != s.Now {
		t.Fatalf("Now mismatch after restore: got %d want %d", restored.Now, s.Now)
	}
	if restored.Len() != s.Len() {
		t.Fatalf("event count mismatch after restore: got %d want %d", restored.Len(), s.Len())
	}

	s.Advance(1000)
	restored.Advance(1000)
	for s.Len() > 0 {
		want, _, ok1 := s.PopDue()
		got, _, ok2 := restored.PopDue()
		if ok1 != ok2 || want.Kind != got.Kind || want.Deadline != got.Deadline {
			t.Fatalf("restore order mismatch: got %+v want %+v", got, want)
		}
	}
}
