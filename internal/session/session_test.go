package session

import (
	"sync"
	"testing"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

func TestSlotLifecycle(t *testing.T) {
	m := NewManager()

	if m.Active(1) {
		t.Error("fresh chat should have no session")
	}

	err := m.Do(1, func(slot *Slot) error {
		if slot.State() != nil {
			t.Error("expected nil state before Begin")
		}
		state := slot.Begin()
		if state.Phase != PhaseHonesty {
			t.Errorf("new session should start in honesty phase, got %s", state.Phase)
		}
		state.Answers["q1_full_name"] = models.AnswerValue{Text: "x"}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if !m.Active(1) {
		t.Error("session should be active after Begin")
	}

	// State persists across Do calls.
	_ = m.Do(1, func(slot *Slot) error {
		if slot.State() == nil || slot.State().Answers.Text("q1_full_name") != "x" {
			t.Error("session state did not persist")
		}
		slot.Clear()
		return nil
	})
	if m.Active(1) {
		t.Error("session should be gone after Clear")
	}
}

func TestBeginReplacesPriorSession(t *testing.T) {
	m := NewManager()
	_ = m.Do(5, func(slot *Slot) error {
		slot.Begin().ApplicantName = "first"
		state := slot.Begin()
		if state.ApplicantName != "" {
			t.Error("Begin should discard the prior session")
		}
		return nil
	})
}

func TestFlags(t *testing.T) {
	s := &State{}
	if s.HasFlag(FlagManualRegion) {
		t.Error("flag should start unset")
	}
	s.SetFlag(FlagManualRegion, true)
	if !s.HasFlag(FlagManualRegion) {
		t.Error("flag should be set")
	}
	s.SetFlag(FlagManualRegion, false)
	if s.HasFlag(FlagManualRegion) {
		t.Error("flag should be cleared")
	}
}

func TestPerChatSerialization(t *testing.T) {
	m := NewManager()
	_ = m.Do(9, func(slot *Slot) error {
		slot.Begin().ExpectedUploads = 0
		return nil
	})

	// Unsynchronized increments would race without the per-chat lock; run
	// with -race this verifies mutual exclusion.
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do(9, func(slot *Slot) error {
				slot.State().ExpectedUploads++
				return nil
			})
		}()
	}
	wg.Wait()

	_ = m.Do(9, func(slot *Slot) error {
		if got := slot.State().ExpectedUploads; got != n {
			t.Errorf("expected %d increments, got %d", n, got)
		}
		return nil
	})
}

func TestDistinctChatsAreIndependent(t *testing.T) {
	m := NewManager()
	_ = m.Do(1, func(slot *Slot) error { slot.Begin(); return nil })
	if m.Active(2) {
		t.Error("chat 2 should not share chat 1's session")
	}
}
