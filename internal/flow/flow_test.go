package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/catalog"
	"github.com/BTreeMap/IntakePipe/internal/gate"
	"github.com/BTreeMap/IntakePipe/internal/messaging"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/session"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/testutil"
)

type stubExporter struct {
	folder   string
	complete bool
	err      error
	exported []*models.Submission
}

func (s *stubExporter) ExportBundle(ctx context.Context, sub *models.Submission) (string, bool, error) {
	s.exported = append(s.exported, sub)
	return s.folder, s.complete, s.err
}

type harness struct {
	controller *Controller
	msg        *messaging.MockService
	sessions   *session.Manager
	store      *store.InMemoryStore
	gate       *gate.MemoryGate
	exporter   *stubExporter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		msg:      messaging.NewMockService(),
		sessions: session.NewManager(),
		store:    store.NewInMemoryStore(),
		// Tests fire whole conversations in one burst; keep the throttle
		// out of the way.
		gate:     gate.NewMemoryGate(gate.WithThrottle(10000, time.Second)),
		exporter: &stubExporter{folder: "Ivanov_2026-08-30", complete: true},
	}
	id := 0
	h.controller = NewController(h.msg, h.sessions, h.store, h.gate, h.exporter,
		WithIDGenerator(func() string { id++; return fmt.Sprintf("sub-%d", id) }))
	return h
}

func (h *harness) send(t *testing.T, ev models.Event) {
	t.Helper()
	if err := h.controller.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(%+v) failed: %v", ev, err)
	}
}

func (h *harness) lastBody(t *testing.T) string {
	t.Helper()
	sent, ok := h.msg.LastMessage()
	if !ok {
		t.Fatal("no message sent")
	}
	return sent.Body
}

// beginQuestionnaire drives the preamble up to the first catalog step.
func (h *harness) beginQuestionnaire(t *testing.T, chatID int64) {
	t.Helper()
	h.send(t, testutil.CommandEvent(chatID, "/start"))
	h.send(t, testutil.TextEvent(chatID, HonestyLabel))
	h.send(t, testutil.TextEvent(chatID, "Petrov Petr"))
	h.send(t, testutil.TextEvent(chatID, ConsentLabel))
	if !strings.Contains(h.lastBody(t), "Вопрос 1 из") {
		t.Fatalf("expected first question prompt, got %q", h.lastBody(t))
	}
}

// completeIntake drives a full questionnaire for chatID.
func (h *harness) completeIntake(t *testing.T, chatID int64) {
	t.Helper()
	h.beginQuestionnaire(t, chatID)
	for _, ev := range intakeAnswers(chatID) {
		h.send(t, ev)
	}
}

// intakeAnswers is one valid answer per step, taking the diagnosis branch and
// uploading two child certificates.
func intakeAnswers(chatID int64) []models.Event {
	birth := time.Date(1990, time.March, 7, 0, 0, 0, 0, time.UTC)
	return []models.Event{
		testutil.TextEvent(chatID, "Ivanov Ivan Ivanovich"),
		testutil.CalendarEvent(chatID, birth),
		testutil.TextEvent(chatID, "Мужской"),
		testutil.ContactEvent(chatID, "+998901234567"),
		testutil.TextEvent(chatID, "@patient_42"),
		testutil.TextEvent(chatID, "Ташкент"),
		testutil.TextEvent(chatID, "Сам(а)"),
		testutil.TextEvent(chatID, "Да"),
		testutil.TextEvent(chatID, "Telegram"),
		testutil.TextEvent(chatID, catalog.DiagnosisYes),
		testutil.TextEvent(chatID, "Гонартроз"),
		testutil.PhotoEvent(chatID, "diag-photo"),
		testutil.TextEvent(chatID, "Сильные боли при ходьбе"),
		testutil.TextEvent(chatID, "Боль"),
		testutil.TextEvent(chatID, "☑️ Уменьшится боль"),
		testutil.TextEvent(chatID, "✅ Готово"),
		testutil.TextEvent(chatID, "☑️ Ухудшение состояния"),
		testutil.TextEvent(chatID, "✅ Завершить выбор"),
		testutil.TextEvent(chatID, catalog.ConfirmHave),
		testutil.DocumentEvent(chatID, "confirm-doc", "spravka.pdf"),
		testutil.TextEvent(chatID, "До 5 млн"),
		testutil.PhotoEvent(chatID, "income-photo"),
		testutil.TextEvent(chatID, "2"),
		testutil.PhotoEvent(chatID, "child-1"),
		testutil.PhotoEvent(chatID, "child-2"),
		testutil.TextEvent(chatID, catalog.UploadsDoneLabel),
		testutil.TextEvent(chatID, "☑️ Никто"),
		testutil.TextEvent(chatID, catalog.HousingRental),
		testutil.PhotoEvent(chatID, "rent-contract"),
		testutil.TextEvent(chatID, "1000000"),
		testutil.TextEvent(chatID, "."),
		testutil.TextEvent(chatID, "Больше добавить нечего"),
	}
}

func TestFullIntakeFlow(t *testing.T) {
	h := newHarness(t)
	h.completeIntake(t, 100)

	subs, err := h.store.ListSubmissions(context.Background(), "")
	if err != nil {
		t.Fatalf("ListSubmissions failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(subs))
	}
	sub := subs[0]

	if sub.FullName != "Ivanov Ivan Ivanovich" {
		t.Errorf("unexpected full name %q", sub.FullName)
	}
	if sub.BirthDate != "07.03.1990" {
		t.Errorf("unexpected birth date %q", sub.BirthDate)
	}
	if sub.Status != models.SubmissionStatusWaiting {
		t.Errorf("expected waiting status, got %s", sub.Status)
	}
	if sub.ArchiveStatus != models.ArchiveStatusComplete || sub.ArchiveFolder == "" {
		t.Errorf("unexpected archive state: %s %q", sub.ArchiveStatus, sub.ArchiveFolder)
	}
	// Income 2 + work 2 + housing 1 + mahalla 1; two children score nothing.
	if sub.Score.Total != 6 {
		t.Errorf("expected score 6, got %d (%+v)", sub.Score.Total, sub.Score)
	}
	if got := len(sub.Answers[catalog.StepChildrenDocs].Files); got != 2 {
		t.Errorf("expected 2 child certificates, got %d", got)
	}
	if !sub.Answers[catalog.StepAdditionalFile].Absent {
		t.Error("skipped optional file should be recorded as absent")
	}

	if len(h.exporter.exported) != 1 {
		t.Errorf("expected 1 bundle export, got %d", len(h.exporter.exported))
	}
	if !strings.Contains(h.lastBody(t), "ФИНАЛЬНОЕ ЗАКЛЮЧЕНИЕ") {
		t.Errorf("expected conclusion message, got %q", h.lastBody(t))
	}
	if h.sessions.Active(100) {
		t.Error("session should be cleared after completion")
	}
}

func TestStartCooldownAfterCompletion(t *testing.T) {
	h := newHarness(t)
	h.completeIntake(t, 101)

	h.send(t, testutil.CommandEvent(101, "/start"))
	if !strings.Contains(h.lastBody(t), "Повторная подача") {
		t.Errorf("expected cooldown message, got %q", h.lastBody(t))
	}
	if h.sessions.Active(101) {
		t.Error("cooldown start must not open a session")
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	h := newHarness(t)
	existing := &models.Submission{
		ID:        "prior",
		ChatID:    102,
		FullName:  "Ivanov Ivan Ivanovich",
		BirthDate: "07.03.1990",
		Answers:   models.Answers{},
		Status:    models.SubmissionStatusWaiting,
		CreatedAt: time.Now(),
	}
	if err := h.store.SaveSubmission(context.Background(), existing); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	h.completeIntake(t, 102)

	if !strings.Contains(h.lastBody(t), "уже была подана") {
		t.Errorf("expected duplicate notice, got %q", h.lastBody(t))
	}
	subs, _ := h.store.ListSubmissions(context.Background(), "")
	if len(subs) != 1 {
		t.Errorf("duplicate must not create a second record, got %d", len(subs))
	}
	if h.sessions.Active(102) {
		t.Error("session should be cleared after a duplicate")
	}
}

func TestInvalidOptionRejectedAndStepRepeats(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 103)
	h.send(t, testutil.TextEvent(103, "Ivanov Ivan Ivanovich"))
	h.send(t, testutil.CalendarEvent(103, time.Date(1990, 3, 7, 0, 0, 0, 0, time.UTC)))

	// Gender step rejects free text.
	h.send(t, testutil.TextEvent(103, "не скажу"))
	if !strings.Contains(h.lastBody(t), "предложенных вариантов") {
		t.Errorf("expected option rejection, got %q", h.lastBody(t))
	}

	// The step is still active and accepts a valid option.
	h.send(t, testutil.TextEvent(103, "Женский"))
	if !strings.Contains(h.lastBody(t), "Вопрос 4 из") {
		t.Errorf("expected advance to question 4, got %q", h.lastBody(t))
	}
}

func TestMultiSelectDuplicateAndEmptyFinish(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 104)
	for _, ev := range intakeAnswers(104)[:14] {
		h.send(t, ev)
	}
	// Now at the improvements multi-select.
	h.send(t, testutil.TextEvent(104, "✅ Готово"))
	if h.lastBody(t) != msgNothingSelected {
		t.Errorf("finishing empty selection should be refused, got %q", h.lastBody(t))
	}

	h.send(t, testutil.TextEvent(104, "☑️ Самообслуживание"))
	h.send(t, testutil.TextEvent(104, "☑️ Самообслуживание"))
	if !strings.Contains(h.lastBody(t), "уже выбран") {
		t.Errorf("duplicate selection should be acknowledged, got %q", h.lastBody(t))
	}

	h.send(t, testutil.TextEvent(104, "☑️ Уменьшится боль"))
	h.send(t, testutil.TextEvent(104, "✅ Готово"))
	if !strings.Contains(h.lastBody(t), "Вопрос 16 из") {
		t.Errorf("expected advance to the next multi-select, got %q", h.lastBody(t))
	}
}

func TestChildrenUploadDeficit(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 105)
	for _, ev := range intakeAnswers(105)[:23] {
		h.send(t, ev)
	}
	// Children count answered "2"; upload one certificate and try to finish.
	h.send(t, testutil.PhotoEvent(105, "child-only"))
	h.send(t, testutil.TextEvent(105, catalog.UploadsDoneLabel))
	if !strings.Contains(h.lastBody(t), "1 из 2") {
		t.Errorf("expected deficit message with exact counts, got %q", h.lastBody(t))
	}

	// A second upload satisfies the requirement.
	h.send(t, testutil.PhotoEvent(105, "child-second"))
	h.send(t, testutil.TextEvent(105, catalog.UploadsDoneLabel))
	if !strings.Contains(h.lastBody(t), "Вопрос 23 из") {
		t.Errorf("expected advance past certificates, got %q", h.lastBody(t))
	}
}

func TestBackNavigationRestoresPreviousStep(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 106)
	h.send(t, testutil.TextEvent(106, "Ivanov Ivan Ivanovich"))
	h.send(t, testutil.CalendarEvent(106, time.Date(1990, 3, 7, 0, 0, 0, 0, time.UTC)))

	// On the gender step; step back to the birth date.
	h.send(t, testutil.TextEvent(106, catalog.BackLabel))
	sent, _ := h.msg.LastMessage()
	if sent.Kind != messaging.SentCalendar {
		t.Errorf("expected the calendar re-ask, got %s: %q", sent.Kind, sent.Body)
	}

	// Re-answer and continue; the flow must return to the gender step.
	h.send(t, testutil.CalendarEvent(106, time.Date(1991, 5, 1, 0, 0, 0, 0, time.UTC)))
	if !strings.Contains(h.lastBody(t), "Вопрос 3 из") {
		t.Errorf("expected return to question 3, got %q", h.lastBody(t))
	}
}

func TestHonestyDeclineTerminatesSession(t *testing.T) {
	h := newHarness(t)
	h.send(t, testutil.CommandEvent(113, "/start"))
	h.send(t, testutil.TextEvent(113, "Не хочу подтверждать"))
	if !strings.Contains(h.lastBody(t), "Анкета закрыта") {
		t.Errorf("expected termination notice, got %q", h.lastBody(t))
	}
	if h.sessions.Active(113) {
		t.Error("session must be destroyed after declining the honesty confirmation")
	}

	// A fresh /start begins a new session.
	h.send(t, testutil.CommandEvent(113, "/start"))
	if !h.sessions.Active(113) {
		t.Error("expected a fresh session after restart")
	}
	if !strings.Contains(h.lastBody(t), "честность") {
		t.Errorf("expected honesty prompt after restart, got %q", h.lastBody(t))
	}
}

func TestManualDiscomfortEntryKeepsOtherMarker(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 114)
	for _, ev := range intakeAnswers(114)[:13] {
		h.send(t, ev)
	}
	// On the main-discomfort step; clarify via manual entry.
	h.send(t, testutil.TextEvent(114, catalog.OtherLabel))
	h.send(t, testutil.TextEvent(114, "Головокружение по утрам"))
	if !strings.Contains(h.lastBody(t), "Вопрос 15 из") {
		t.Fatalf("expected advance after clarification, got %q", h.lastBody(t))
	}
	err := h.sessions.Do(114, func(slot *session.Slot) error {
		got := slot.State().Answers[catalog.StepMainDiscomfort].Text
		if got != "Другое: Головокружение по утрам" {
			t.Errorf("expected clarification with marker, got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBackOnFirstStepExplainsAndRepeats(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 115)
	err := h.sessions.Do(115, func(slot *session.Slot) error {
		return h.controller.goBack(context.Background(), slot.State(), catalog.First())
	})
	if err != nil {
		t.Fatalf("goBack failed: %v", err)
	}
	var sawNotice bool
	for _, sent := range h.msg.Messages() {
		if strings.Contains(sent.Body, "вернуться назад нельзя") {
			sawNotice = true
		}
	}
	if !sawNotice {
		t.Error("expected a cannot-go-back notice on the first step")
	}
	if !strings.Contains(h.lastBody(t), "Вопрос 1 из") {
		t.Errorf("expected the first question to repeat, got %q", h.lastBody(t))
	}
}

func TestUsernameAutofillFromProfile(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 112)
	for _, ev := range intakeAnswers(112)[:4] {
		h.send(t, ev)
	}
	// On the username step; a profile without a handle must be rejected.
	h.send(t, testutil.TextEvent(112, catalog.UsernameAutofillLabel))
	if !strings.Contains(h.lastBody(t), "не указан username") {
		t.Errorf("expected missing-handle notice, got %q", h.lastBody(t))
	}

	ev := testutil.TextEvent(112, catalog.UsernameAutofillLabel)
	ev.Username = "patient_112"
	h.send(t, ev)
	if !strings.Contains(h.lastBody(t), "Вопрос 6 из") {
		t.Errorf("expected advance after autofill, got %q", h.lastBody(t))
	}
	err := h.sessions.Do(112, func(slot *session.Slot) error {
		got := slot.State().Answers[catalog.StepTelegramUsername].Text
		if got != "@patient_112" {
			t.Errorf("expected recorded handle @patient_112, got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestManualRegionEntry(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 107)
	for _, ev := range intakeAnswers(107)[:5] {
		h.send(t, ev)
	}
	// On the region step; request manual entry.
	h.send(t, testutil.TextEvent(107, catalog.OtherLabel))
	if !strings.Contains(h.lastBody(t), "регион и город") {
		t.Errorf("expected manual region prompt, got %q", h.lastBody(t))
	}
	h.send(t, testutil.TextEvent(107, "Шахрисабз"))
	if !strings.Contains(h.lastBody(t), "Вопрос 7 из") {
		t.Errorf("expected advance after manual region, got %q", h.lastBody(t))
	}
}

func TestBackCancelsManualRegionEntry(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 108)
	for _, ev := range intakeAnswers(108)[:5] {
		h.send(t, ev)
	}
	h.send(t, testutil.TextEvent(108, catalog.OtherLabel))
	h.send(t, testutil.TextEvent(108, catalog.BackLabel))
	// Back cancels the detour and lands on the username step.
	if !strings.Contains(h.lastBody(t), "Вопрос 5 из") {
		t.Errorf("expected return to question 5, got %q", h.lastBody(t))
	}
}

func TestNoDiagnosisSkipsToComplaint(t *testing.T) {
	h := newHarness(t)
	h.beginQuestionnaire(t, 109)
	for _, ev := range intakeAnswers(109)[:9] {
		h.send(t, ev)
	}
	h.send(t, testutil.TextEvent(109, catalog.DiagnosisNo))
	if !strings.Contains(h.lastBody(t), "Вопрос 13 из") {
		t.Errorf("expected skip to complaint, got %q", h.lastBody(t))
	}
}

func TestEventsWithoutSessionPromptStart(t *testing.T) {
	h := newHarness(t)
	h.send(t, testutil.TextEvent(110, "привет"))
	if h.lastBody(t) != msgNoSession {
		t.Errorf("expected start hint, got %q", h.lastBody(t))
	}
}

func TestSaveFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	// Occupy the submission id so the final save fails.
	h.controller.newID = func() string { return "fixed" }
	seed := &models.Submission{
		ID: "fixed", ChatID: 999, FullName: "other", BirthDate: "x",
		Answers: models.Answers{}, CreatedAt: time.Now(),
	}
	if err := h.store.SaveSubmission(context.Background(), seed); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	h.completeIntake(t, 111)

	if h.lastBody(t) != msgSaveFailed {
		t.Errorf("expected save failure notice, got %q", h.lastBody(t))
	}
	if !h.sessions.Active(111) {
		t.Error("session should survive a failed save for retry")
	}
}

func TestExportFailureMarksArchiveIncomplete(t *testing.T) {
	h := newHarness(t)
	h.exporter.err = errors.New("bucket unreachable")

	h.completeIntake(t, 112)

	subs, _ := h.store.ListSubmissions(context.Background(), "")
	if len(subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(subs))
	}
	if subs[0].ArchiveStatus != models.ArchiveStatusIncomplete {
		t.Errorf("expected incomplete archive status, got %s", subs[0].ArchiveStatus)
	}
	var sawNotice bool
	for _, sent := range h.msg.Messages() {
		if sent.Body == msgArchivePartial {
			sawNotice = true
		}
	}
	if !sawNotice {
		t.Error("applicant should be told about the partial archive")
	}
}
