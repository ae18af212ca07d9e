package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/catalog"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/testutil"
)

func mustStep(t *testing.T, key models.StepKey) catalog.Step {
	t.Helper()
	step, err := catalog.DefinitionFor(key)
	if err != nil {
		t.Fatalf("DefinitionFor(%s) failed: %v", key, err)
	}
	return step
}

func TestValidateText(t *testing.T) {
	step := mustStep(t, catalog.StepFullName)

	res := Validate(step, testutil.TextEvent(1, "  Ivanov Ivan Ivanovich  "))
	if res.Err != nil {
		t.Fatalf("unexpected rejection: %v", res.Err)
	}
	if res.Value.Text != "Ivanov Ivan Ivanovich" {
		t.Errorf("expected trimmed text, got %q", res.Value.Text)
	}

	res = Validate(step, testutil.TextEvent(1, "   "))
	if !errors.Is(res.Err, models.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", res.Err)
	}

	res = Validate(step, testutil.PhotoEvent(1, "f1"))
	if !errors.Is(res.Err, models.ErrNotText) {
		t.Errorf("expected ErrNotText, got %v", res.Err)
	}
}

func TestValidateChoice(t *testing.T) {
	step := mustStep(t, catalog.StepGender)

	if res := Validate(step, testutil.TextEvent(1, "Мужской")); res.Err != nil {
		t.Errorf("valid option rejected: %v", res.Err)
	}
	if res := Validate(step, testutil.TextEvent(1, "мужской")); !errors.Is(res.Err, models.ErrNotInOptions) {
		t.Errorf("case-mismatched option should be rejected, got %v", res.Err)
	}
	if res := Validate(step, testutil.TextEvent(1, "не скажу")); !errors.Is(res.Err, models.ErrNotInOptions) {
		t.Errorf("expected ErrNotInOptions, got %v", res.Err)
	}
}

func TestValidateContact(t *testing.T) {
	step := mustStep(t, catalog.StepPhoneNumber)

	res := Validate(step, testutil.ContactEvent(7, "998901234567"))
	if res.Err != nil {
		t.Fatalf("own contact rejected: %v", res.Err)
	}
	if res.Value.Text != "+998901234567" {
		t.Errorf("expected normalized phone, got %q", res.Value.Text)
	}

	foreign := testutil.ContactEvent(7, "+998901234567")
	foreign.Contact.OwnerID = 8
	if res := Validate(step, foreign); !errors.Is(res.Err, models.ErrForeignContact) {
		t.Errorf("expected ErrForeignContact, got %v", res.Err)
	}

	if res := Validate(step, testutil.TextEvent(7, "+998901234567")); res.Err != nil {
		t.Errorf("typed international number rejected: %v", res.Err)
	}
	if res := Validate(step, testutil.TextEvent(7, "call me maybe")); !errors.Is(res.Err, models.ErrInvalidPhone) {
		t.Errorf("expected ErrInvalidPhone, got %v", res.Err)
	}
}

func TestValidateUsername(t *testing.T) {
	step := mustStep(t, catalog.StepTelegramUsername)

	if res := Validate(step, testutil.TextEvent(1, "@patient_42")); res.Err != nil {
		t.Errorf("valid username rejected: %v", res.Err)
	}
	for _, bad := range []string{"patient_42", "@abc", "@"} {
		if res := Validate(step, testutil.TextEvent(1, bad)); !errors.Is(res.Err, models.ErrInvalidUsername) {
			t.Errorf("%q: expected ErrInvalidUsername, got %v", bad, res.Err)
		}
	}
}

func TestValidateDate(t *testing.T) {
	step := mustStep(t, catalog.StepBirthDate)

	res := Validate(step, testutil.CalendarEvent(1, time.Date(1990, time.March, 7, 0, 0, 0, 0, time.UTC)))
	if res.Err != nil {
		t.Fatalf("calendar selection rejected: %v", res.Err)
	}
	if res.Value.Text != "07.03.1990" {
		t.Errorf("expected formatted date, got %q", res.Value.Text)
	}

	if res := Validate(step, testutil.TextEvent(1, "07.03.1990")); !errors.Is(res.Err, models.ErrDateViaPickerOnly) {
		t.Errorf("typed date should be rejected, got %v", res.Err)
	}
}

func TestValidateFile(t *testing.T) {
	step := mustStep(t, catalog.StepIncomeDoc)

	if res := Validate(step, testutil.PhotoEvent(1, "p1")); res.Err != nil {
		t.Errorf("photo rejected: %v", res.Err)
	}
	if res := Validate(step, testutil.DocumentEvent(1, "d1", "spravka.pdf")); res.Err != nil {
		t.Errorf("PDF document rejected: %v", res.Err)
	}

	doc := testutil.DocumentEvent(1, "d2", "spravka.docx")
	doc.File.MimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	if res := Validate(step, doc); !errors.Is(res.Err, models.ErrInvalidFileType) {
		t.Errorf("expected ErrInvalidFileType, got %v", res.Err)
	}

	if res := Validate(step, testutil.TextEvent(1, "вот документ")); !errors.Is(res.Err, models.ErrNotAFile) {
		t.Errorf("expected ErrNotAFile, got %v", res.Err)
	}
}

func TestValidateOptionalFileNeverRejects(t *testing.T) {
	step := mustStep(t, catalog.StepAdditionalFile)

	res := Validate(step, testutil.PhotoEvent(1, "p1"))
	if res.Err != nil || res.Value.File == nil {
		t.Errorf("photo should be recorded, got %+v", res)
	}

	res = Validate(step, testutil.TextEvent(1, "."))
	if res.Err != nil {
		t.Fatalf("skip input rejected: %v", res.Err)
	}
	if !res.Value.Absent {
		t.Error("expected explicit absence for non-file input")
	}
}

func TestValidateAmount(t *testing.T) {
	step := mustStep(t, catalog.StepContribution)

	res := Validate(step, testutil.TextEvent(1, "2 000 000"))
	if res.Err != nil {
		t.Fatalf("amount with spaces rejected: %v", res.Err)
	}
	if res.Value.Text != "2000000" {
		t.Errorf("expected digits-only amount, got %q", res.Value.Text)
	}

	for _, bad := range []string{"два миллиона", "100$", ""} {
		if res := Validate(step, testutil.TextEvent(1, bad)); !errors.Is(res.Err, models.ErrInvalidAmount) {
			t.Errorf("%q: expected ErrInvalidAmount, got %v", bad, res.Err)
		}
	}
}

func TestIsPDFRequiresBothSignals(t *testing.T) {
	cases := []struct {
		name string
		file models.FileRef
		want bool
	}{
		{"pdf", models.FileRef{Name: "doc.pdf", MimeType: "application/pdf"}, true},
		{"upper ext", models.FileRef{Name: "DOC.PDF", MimeType: "application/pdf"}, true},
		{"mime only", models.FileRef{Name: "doc.txt", MimeType: "application/pdf"}, false},
		{"ext only", models.FileRef{Name: "doc.pdf", MimeType: "text/plain"}, false},
	}
	for _, tc := range cases {
		if got := IsPDF(tc.file); got != tc.want {
			t.Errorf("%s: IsPDF = %v, want %v", tc.name, got, tc.want)
		}
	}
}
