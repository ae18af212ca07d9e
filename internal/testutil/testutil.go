// Package testutil provides common test utilities and helpers for IntakePipe tests.
package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}

// TextEvent builds an inbound text event for a chat.
func TextEvent(chatID int64, text string) models.Event {
	return models.Event{
		ChatID:   chatID,
		SenderID: chatID,
		Kind:     models.EventText,
		Text:     text,
		Time:     time.Now().Unix(),
	}
}

// CommandEvent builds an inbound command event for a chat.
func CommandEvent(chatID int64, command string) models.Event {
	ev := TextEvent(chatID, command)
	ev.Kind = models.EventCommand
	return ev
}

// CalendarEvent builds an inbound date-picker selection for a chat.
func CalendarEvent(chatID int64, date time.Time) models.Event {
	return models.Event{
		ChatID:       chatID,
		SenderID:     chatID,
		Kind:         models.EventCalendar,
		CalendarDate: &date,
		Time:         time.Now().Unix(),
	}
}

// ContactEvent builds an inbound shared-contact event owned by the sender.
func ContactEvent(chatID int64, phone string) models.Event {
	return models.Event{
		ChatID:   chatID,
		SenderID: chatID,
		Kind:     models.EventContact,
		Contact:  &models.Contact{PhoneNumber: phone, OwnerID: chatID},
		Time:     time.Now().Unix(),
	}
}

// DocumentEvent builds an inbound PDF document upload.
func DocumentEvent(chatID int64, fileID, name string) models.Event {
	return models.Event{
		ChatID:   chatID,
		SenderID: chatID,
		Kind:     models.EventDocument,
		File:     &models.FileRef{ID: fileID, Name: name, MimeType: "application/pdf"},
		Time:     time.Now().Unix(),
	}
}

// PhotoEvent builds an inbound photo upload.
func PhotoEvent(chatID int64, fileID string) models.Event {
	return models.Event{
		ChatID:   chatID,
		SenderID: chatID,
		Kind:     models.EventPhoto,
		File:     &models.FileRef{ID: fileID, MimeType: "image/jpeg"},
		Time:     time.Now().Unix(),
	}
}

// StubFetcher serves fixed content for any file reference.
type StubFetcher struct {
	Content string
	// FailIDs lists file ids whose fetch should fail.
	FailIDs []string
}

// FetchFile implements the attachment download contract for tests.
func (f *StubFetcher) FetchFile(ctx context.Context, ref models.FileRef) (io.ReadCloser, error) {
	for _, id := range f.FailIDs {
		if id == ref.ID {
			return nil, context.DeadlineExceeded
		}
	}
	return io.NopCloser(strings.NewReader(f.Content)), nil
}
