package messaging

import (
	"context"
	"sync"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// SentKind labels what a mock outbound message carried alongside its text.
type SentKind string

const (
	SentPlain    SentKind = "plain"
	SentKeyboard SentKind = "keyboard"
	SentContact  SentKind = "contact"
	SentCalendar SentKind = "calendar"
)

// Sent is one outbound message captured by MockService.
type Sent struct {
	ChatID int64
	Kind   SentKind
	Body   string
	Rows   [][]string
}

// MockService is an in-memory Service implementation for tests. It records
// every outbound send and lets tests inject inbound events.
type MockService struct {
	mu     sync.Mutex
	sent   []Sent
	events chan models.Event

	// SendErr, when set, is returned by every outbound call.
	SendErr error
}

// NewMockService creates a mock transport with a buffered event channel.
func NewMockService() *MockService {
	return &MockService{events: make(chan models.Event, 64)}
}

func (m *MockService) Start(ctx context.Context) error { return nil }

func (m *MockService) Stop() error {
	close(m.events)
	return nil
}

func (m *MockService) Events() <-chan models.Event { return m.events }

// Inject delivers an inbound event as if the transport received it.
func (m *MockService) Inject(ev models.Event) { m.events <- ev }

func (m *MockService) record(s Sent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, s)
	return nil
}

func (m *MockService) SendMessage(ctx context.Context, chatID int64, body string) error {
	return m.record(Sent{ChatID: chatID, Kind: SentPlain, Body: body})
}

func (m *MockService) SendPrompt(ctx context.Context, chatID int64, body string, rows [][]string) error {
	return m.record(Sent{ChatID: chatID, Kind: SentKeyboard, Body: body, Rows: rows})
}

func (m *MockService) RequestContact(ctx context.Context, chatID int64, body string, allowBack bool) error {
	return m.record(Sent{ChatID: chatID, Kind: SentContact, Body: body})
}

func (m *MockService) RequestCalendar(ctx context.Context, chatID int64, body string, allowBack bool) error {
	return m.record(Sent{ChatID: chatID, Kind: SentCalendar, Body: body})
}

// Messages returns a copy of everything sent so far.
func (m *MockService) Messages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// LastMessage returns the most recent outbound message, or false when none.
func (m *MockService) LastMessage() (Sent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Sent{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// Reset discards recorded messages.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
