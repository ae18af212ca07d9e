// Package validation implements per-step input acceptance rules for the intake flow.
//
// Validation is pure: the caller applies the normalized value on acceptance.
package validation

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/catalog"
	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Phone number validation regex: optional leading '+', 9-15 digits.
var phoneRegex = regexp.MustCompile(`^\+?\d{9,15}$`)

// Username validation regex: '@' followed by 5+ word characters.
var usernameRegex = regexp.MustCompile(`^@\w{5,}$`)

// Result is the outcome of validating one inbound event against a step.
type Result struct {
	// Value is the normalized answer value; meaningful only when Err is nil.
	Value models.AnswerValue
	// Err is nil on acceptance, or one of the models.Err* rejection sentinels.
	Err error
}

func accepted(v models.AnswerValue) Result { return Result{Value: v} }

func rejected(err error) Result { return Result{Err: err} }

// Validate checks one inbound event against a step definition and returns the
// normalized value on acceptance. The reserved back/finish sentinels are the
// controller's business and must be stripped before calling Validate.
func Validate(step catalog.Step, ev models.Event) Result {
	switch step.Kind {
	case models.StepKindText:
		return validateText(ev)
	case models.StepKindChoice, models.StepKindChoiceOther, models.StepKindMultiChoice:
		return validateChoice(step, ev)
	case models.StepKindContact:
		return validateContact(ev)
	case models.StepKindUsername:
		return validateUsername(ev)
	case models.StepKindDate:
		return validateDate(ev)
	case models.StepKindFile, models.StepKindFileSet:
		return validateFile(ev)
	case models.StepKindFileOptional:
		return validateOptionalFile(ev)
	case models.StepKindAmount:
		return validateAmount(ev)
	default:
		slog.Error("validation.Validate: unhandled step kind", "step", step.Key, "kind", step.Kind)
		return rejected(fmt.Errorf("%w: unhandled kind %s", models.ErrUnknownStep, step.Kind))
	}
}

// FreeText validates an event as plain free text regardless of the step's own
// kind. Used by the manual-region and discomfort clarification sub-flows that
// temporarily override a choice step's validation.
func FreeText(ev models.Event) Result {
	return validateText(ev)
}

func validateText(ev models.Event) Result {
	if ev.Kind != models.EventText {
		return rejected(models.ErrNotText)
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return rejected(models.ErrEmptyText)
	}
	return accepted(models.AnswerValue{Text: text})
}

func validateChoice(step catalog.Step, ev models.Event) Result {
	if ev.Kind != models.EventText {
		return rejected(models.ErrNotInOptions)
	}
	text := strings.TrimSpace(ev.Text)
	if !step.HasOption(text) {
		return rejected(models.ErrNotInOptions)
	}
	return accepted(models.AnswerValue{Text: text})
}

func validateContact(ev models.Event) Result {
	if ev.Kind == models.EventContact && ev.Contact != nil {
		// A shared contact must belong to the requesting identity.
		if ev.Contact.OwnerID != ev.SenderID {
			return rejected(models.ErrForeignContact)
		}
		phone := strings.TrimSpace(ev.Contact.PhoneNumber)
		if !strings.HasPrefix(phone, "+") {
			phone = "+" + phone
		}
		return accepted(models.AnswerValue{Text: phone})
	}
	if ev.Kind == models.EventText {
		phone := strings.TrimSpace(ev.Text)
		if phoneRegex.MatchString(phone) {
			return accepted(models.AnswerValue{Text: phone})
		}
	}
	return rejected(models.ErrInvalidPhone)
}

func validateUsername(ev models.Event) Result {
	if ev.Kind != models.EventText {
		return rejected(models.ErrInvalidUsername)
	}
	username := strings.TrimSpace(ev.Text)
	if usernameRegex.MatchString(username) {
		return accepted(models.AnswerValue{Text: username})
	}
	return rejected(models.ErrInvalidUsername)
}

func validateDate(ev models.Event) Result {
	// Raw free-text dates are not accepted; only picker selections carry a date.
	if ev.Kind != models.EventCalendar || ev.CalendarDate == nil {
		return rejected(models.ErrDateViaPickerOnly)
	}
	return accepted(models.AnswerValue{Text: ev.CalendarDate.Format("02.01.2006")})
}

func validateFile(ev models.Event) Result {
	switch ev.Kind {
	case models.EventPhoto:
		if ev.File == nil {
			return rejected(models.ErrNotAFile)
		}
		return accepted(models.AnswerValue{File: ev.File})
	case models.EventDocument:
		if ev.File == nil || !IsPDF(*ev.File) {
			return rejected(models.ErrInvalidFileType)
		}
		return accepted(models.AnswerValue{File: ev.File})
	default:
		return rejected(models.ErrNotAFile)
	}
}

// validateOptionalFile accepts a valid file, or records an explicit absence for
// any non-file input. It never rejects.
func validateOptionalFile(ev models.Event) Result {
	if res := validateFile(ev); res.Err == nil {
		return res
	}
	return accepted(models.AnswerValue{Absent: true})
}

func validateAmount(ev models.Event) Result {
	if ev.Kind != models.EventText {
		return rejected(models.ErrInvalidAmount)
	}
	amount := strings.ReplaceAll(strings.TrimSpace(ev.Text), " ", "")
	if amount == "" {
		return rejected(models.ErrInvalidAmount)
	}
	for _, r := range amount {
		if r < '0' || r > '9' {
			return rejected(models.ErrInvalidAmount)
		}
	}
	return accepted(models.AnswerValue{Text: amount})
}

// IsPDF reports whether a file reference declares a PDF document: both the
// media type and the filename extension must agree.
func IsPDF(f models.FileRef) bool {
	return f.MimeType == "application/pdf" && strings.HasSuffix(strings.ToLower(f.Name), ".pdf")
}
