// Package session provides the per-conversation state store for the intake flow.
//
// Each chat owns at most one session. Inbound events for one chat are
// processed strictly sequentially via a per-chat lock, while distinct chats
// proceed in parallel; there is no global lock around event handling.
package session

import (
	"log/slog"
	"sync"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Phase tracks where a conversation is relative to the question catalog.
type Phase string

const (
	// PhaseHonesty awaits the honesty confirmation after /start.
	PhaseHonesty Phase = "honesty"
	// PhaseRegisterName awaits the applicant's own full name.
	PhaseRegisterName Phase = "register_name"
	// PhaseConsent awaits the terms-of-participation consent.
	PhaseConsent Phase = "consent"
	// PhaseQuestionnaire is the catalog-driven questionnaire proper.
	PhaseQuestionnaire Phase = "questionnaire"
)

// Flag names transient sub-flow markers carried by a session.
type Flag string

const (
	// FlagManualRegion marks the manual region entry sub-flow ("Другое").
	FlagManualRegion Flag = "awaiting_manual_region"
	// FlagDiscomfortDetail marks the main-discomfort clarification detour.
	FlagDiscomfortDetail Flag = "awaiting_discomfort_detail"
)

// State is the mutable conversation state for one chat. It is mutated only by
// the flow controller while holding the chat's session lock.
type State struct {
	ChatID          int64
	Phase           Phase
	Current         models.StepKey // valid only in PhaseQuestionnaire
	Answers         models.Answers
	Flags           map[Flag]bool
	ApplicantName   string // collected during registration, before the catalog
	ExpectedUploads int    // file-set requirement derived from a prior answer
}

// SetFlag sets or clears a transient flag.
func (s *State) SetFlag(f Flag, on bool) {
	if s.Flags == nil {
		s.Flags = make(map[Flag]bool)
	}
	if on {
		s.Flags[f] = true
	} else {
		delete(s.Flags, f)
	}
}

// HasFlag reports whether a transient flag is set.
func (s *State) HasFlag(f Flag) bool {
	return s.Flags[f]
}

// Slot is the exclusively-held session cell for one chat, handed to the flow
// controller for the duration of one inbound event.
type Slot struct {
	chatID int64
	state  *State
}

// State returns the active session state, or nil when no session exists.
func (sl *Slot) State() *State { return sl.state }

// Begin replaces any prior session with a fresh one and returns it.
func (sl *Slot) Begin() *State {
	sl.state = &State{
		ChatID:  sl.chatID,
		Phase:   PhaseHonesty,
		Answers: make(models.Answers),
		Flags:   make(map[Flag]bool),
	}
	slog.Debug("session.Slot.Begin: session created", "chatID", sl.chatID)
	return sl.state
}

// Clear destroys the session so the next /start begins fresh.
func (sl *Slot) Clear() {
	sl.state = nil
	slog.Debug("session.Slot.Clear: session cleared", "chatID", sl.chatID)
}

// Manager owns every chat's session slot and serializes access per chat.
type Manager struct {
	mu    sync.Mutex
	slots map[int64]*slotEntry
}

type slotEntry struct {
	mu   sync.Mutex
	slot Slot
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{slots: make(map[int64]*slotEntry)}
}

// Do runs fn with exclusive access to the chat's session slot. Calls for the
// same chat are strictly serialized; calls for different chats run in
// parallel. Long collaborator work inside fn therefore stalls only its own chat.
func (m *Manager) Do(chatID int64, fn func(slot *Slot) error) error {
	m.mu.Lock()
	e, ok := m.slots[chatID]
	if !ok {
		e = &slotEntry{slot: Slot{chatID: chatID}}
		m.slots[chatID] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.slot)
}

// Active reports whether the chat currently has a session.
func (m *Manager) Active(chatID int64) bool {
	var active bool
	_ = m.Do(chatID, func(slot *Slot) error {
		active = slot.State() != nil
		return nil
	})
	return active
}
