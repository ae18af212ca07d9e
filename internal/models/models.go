// Package models defines the core data structures for IntakePipe.
//
// It includes types for catalog steps, inbound chat events, session answers,
// completed submissions and review state, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// StepKey identifies a single question step in the intake catalog.
type StepKey string

// StepKind defines what kind of input a step expects.
type StepKind string

const (
	// StepKindText expects a plain text message.
	StepKindText StepKind = "text"
	// StepKindChoice expects one of a fixed set of option labels.
	StepKindChoice StepKind = "choice"
	// StepKindChoiceOther is a choice step whose "Other" sentinel routes
	// through a free-text clarification before rejoining the sequence.
	StepKindChoiceOther StepKind = "choice_other"
	// StepKindMultiChoice accumulates option labels until the finish label.
	StepKindMultiChoice StepKind = "multi_choice"
	// StepKindContact expects a shared contact or an international phone number.
	StepKindContact StepKind = "contact"
	// StepKindUsername expects a Telegram-style @handle.
	StepKindUsername StepKind = "username"
	// StepKindDate expects a calendar widget selection.
	StepKindDate StepKind = "date"
	// StepKindFile expects a single PDF document or photo.
	StepKindFile StepKind = "file"
	// StepKindFileOptional accepts a file but advances on any input.
	StepKindFileOptional StepKind = "file_optional"
	// StepKindFileSet accumulates file uploads until the finish label.
	StepKindFileSet StepKind = "file_set"
	// StepKindAmount expects a digits-only monetary amount.
	StepKindAmount StepKind = "amount"
)

// EventKind distinguishes the inbound trigger kinds the flow controller handles.
type EventKind string

const (
	// EventText is a plain text message (includes choice button taps).
	EventText EventKind = "text"
	// EventContact is a shared-contact payload.
	EventContact EventKind = "contact"
	// EventDocument is a document upload.
	EventDocument EventKind = "document"
	// EventPhoto is a photo upload.
	EventPhoto EventKind = "photo"
	// EventCalendar is a date-picker callback selection.
	EventCalendar EventKind = "calendar"
	// EventCommand is a bot command such as /start.
	EventCommand EventKind = "command"
	// EventVoice is a voice message; never valid input for any step.
	EventVoice EventKind = "voice"
)

// FileRef is an opaque transport-level reference to an uploaded file.
type FileRef struct {
	ID       string `json:"id"`                  // transport file identifier
	Name     string `json:"name,omitempty"`      // original filename if known
	MimeType string `json:"mime_type,omitempty"` // declared media type
}

// Contact is a shared-contact payload attached to an inbound event.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	OwnerID     int64  `json:"owner_id"` // identity the contact belongs to
}

// Event represents one inbound trigger from the chat transport.
type Event struct {
	ChatID       int64      `json:"chat_id"`
	SenderID     int64      `json:"sender_id"`
	Kind         EventKind  `json:"kind"`
	Text         string     `json:"text,omitempty"`     // message text or command
	Username     string     `json:"username,omitempty"` // sender profile handle, without '@'
	Contact      *Contact   `json:"contact,omitempty"`
	File         *FileRef   `json:"file,omitempty"`
	CalendarDate *time.Time `json:"calendar_date,omitempty"`
	Time         int64      `json:"time"`
}

// AnswerValue holds the recorded value for one answered step. Exactly one of
// the fields is populated; an empty value with Absent set records an explicit
// skip (the optional-file step).
type AnswerValue struct {
	Text   string    `json:"text,omitempty"`
	List   []string  `json:"list,omitempty"`
	File   *FileRef  `json:"file,omitempty"`
	Files  []FileRef `json:"files,omitempty"`
	Absent bool      `json:"absent,omitempty"`
}

// Answers maps answer keys to recorded values for one session.
type Answers map[StepKey]AnswerValue

// Clone returns a deep copy so scoring and persistence never alias live session state.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		cp := v
		if v.List != nil {
			cp.List = append([]string(nil), v.List...)
		}
		if v.Files != nil {
			cp.Files = append([]FileRef(nil), v.Files...)
		}
		if v.File != nil {
			f := *v.File
			cp.File = &f
		}
		out[k] = cp
	}
	return out
}

// Text returns the textual answer for a key, or "" when unanswered.
func (a Answers) Text(key StepKey) string {
	return a[key].Text
}

// SubmissionStatus represents the review status of a completed submission.
type SubmissionStatus string

const (
	// SubmissionStatusWaiting indicates the submission awaits staff review.
	SubmissionStatusWaiting SubmissionStatus = "waiting"
	// SubmissionStatusApproved indicates both review roles approved.
	SubmissionStatusApproved SubmissionStatus = "approved"
	// SubmissionStatusRejected indicates a review role rejected.
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// ArchiveStatus records the outcome of the terminal file-bundle export.
type ArchiveStatus string

const (
	// ArchiveStatusComplete indicates every attachment was exported.
	ArchiveStatusComplete ArchiveStatus = "complete"
	// ArchiveStatusIncomplete indicates at least one attachment failed to export.
	ArchiveStatusIncomplete ArchiveStatus = "incomplete"
)

// Submission is one durable record of a completed questionnaire.
type Submission struct {
	ID            string           `json:"id"`
	ChatID        int64            `json:"chat_id"`
	FullName      string           `json:"full_name"`
	BirthDate     string           `json:"birth_date"` // DD.MM.YYYY as collected
	Answers       Answers          `json:"answers"`
	Score         ScoreBreakdown   `json:"score"`
	Status        SubmissionStatus `json:"status"`
	ArchiveStatus ArchiveStatus    `json:"archive_status"`
	ArchiveFolder string           `json:"archive_folder,omitempty"`

	ApprovedByDoctor     bool   `json:"approved_by_doctor"`
	ApprovedByAccountant bool   `json:"approved_by_accountant"`
	DoctorComment        string `json:"doctor_comment,omitempty"`
	AccountantComment    string `json:"accountant_comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckFullApproval flips the status to approved once both roles have signed off.
func (s *Submission) CheckFullApproval() {
	if s.ApprovedByDoctor && s.ApprovedByAccountant && s.Status != SubmissionStatusRejected {
		s.Status = SubmissionStatusApproved
	}
}

// SupportTier is the discrete eligibility category derived from the total score.
type SupportTier struct {
	Category       string `json:"category"`
	FundHelp       string `json:"fund_help"`
	SaboDiscount   string `json:"sabo_discount"`
	PatientPayment string `json:"patient_payment"`
}

// ScoreBreakdown is the derived eligibility score; recomputed fresh from a
// completed answer set, never mutated in place.
type ScoreBreakdown struct {
	Income   int `json:"income"`
	Children int `json:"children"`
	Work     int `json:"work"`
	Housing  int `json:"housing"`
	Mahalla  int `json:"mahalla"`

	Total    int         `json:"total"`
	ScoreMax int         `json:"score_max"`
	Tier     SupportTier `json:"tier"`
}

// Error variables for the input-rejection taxonomy and configuration errors.
var (
	// ErrUnknownStep indicates a catalog lookup for a step key that does not
	// exist; a programming or configuration error, never a user error.
	ErrUnknownStep = errors.New("unknown step key")

	ErrEmptyText           = errors.New("text input cannot be empty")
	ErrNotText             = errors.New("step expects a text message")
	ErrNotInOptions        = errors.New("input is not one of the offered options")
	ErrInvalidPhone        = errors.New("invalid phone number format")
	ErrForeignContact      = errors.New("shared contact belongs to another identity")
	ErrInvalidUsername     = errors.New("invalid username format")
	ErrDateViaPickerOnly   = errors.New("date must be selected via the calendar")
	ErrInvalidFileType     = errors.New("file must be a photo or a PDF document")
	ErrNotAFile            = errors.New("step expects a file upload")
	ErrInvalidAmount       = errors.New("amount must contain digits only")
	ErrSessionNotStarted   = errors.New("no active session")
	ErrDuplicateSubmission = errors.New("submission already exists for this applicant")
	ErrSubmissionNotFound  = errors.New("submission not found")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
