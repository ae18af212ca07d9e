// Package messaging defines the chat-transport abstraction used by the flow
// controller, so flow logic stays independent of the concrete bot transport.
package messaging

import (
	"context"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Service is the transport-facing interface the flow controller talks to.
// Implementations must be safe for concurrent use.
type Service interface {
	// Start begins receiving inbound updates and publishing them on Events.
	Start(ctx context.Context) error
	// Stop shuts the transport down and closes the Events channel.
	Stop() error

	// Events returns the channel of inbound events from applicants.
	Events() <-chan models.Event

	// SendMessage sends plain text with no keyboard change.
	SendMessage(ctx context.Context, chatID int64, body string) error
	// SendPrompt sends text with a one-time reply keyboard built from rows.
	// Nil rows removes any custom keyboard.
	SendPrompt(ctx context.Context, chatID int64, body string, rows [][]string) error
	// RequestContact sends text with a share-contact keyboard, plus a back
	// row when allowBack is set.
	RequestContact(ctx context.Context, chatID int64, body string, allowBack bool) error
	// RequestCalendar sends text with an inline date-picker keyboard.
	RequestCalendar(ctx context.Context, chatID int64, body string, allowBack bool) error
}
