// Package flow implements the conversation engine for the intake
// questionnaire: the pre-questionnaire registration phases, per-step
// validation dispatch, conditional branching, back navigation and the
// terminal scoring-and-archival sequence.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/IntakePipe/internal/catalog"
	"github.com/BTreeMap/IntakePipe/internal/gate"
	"github.com/BTreeMap/IntakePipe/internal/messaging"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/scoring"
	"github.com/BTreeMap/IntakePipe/internal/session"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/validation"
)

// Exporter writes the reviewable archive bundle for a completed submission.
type Exporter interface {
	ExportBundle(ctx context.Context, sub *models.Submission) (folder string, complete bool, err error)
}

// Controller drives intake conversations: it consumes transport events,
// advances per-chat session state and runs the terminal completion sequence.
type Controller struct {
	msg      messaging.Service
	sessions *session.Manager
	store    store.Store
	gate     gate.Gate
	exporter Exporter

	now   func() time.Time
	newID func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the controller's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator overrides submission id generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) { c.newID = gen }
}

// NewController wires a Controller from its collaborators.
func NewController(msg messaging.Service, sessions *session.Manager, st store.Store, g gate.Gate, exp Exporter, opts ...Option) *Controller {
	c := &Controller{
		msg:      msg,
		sessions: sessions,
		store:    st,
		gate:     g,
		exporter: exp,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes transport events until the context is cancelled or the event
// channel closes. Each event is handled on its own goroutine; the session
// manager serializes events per chat.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("Controller.Run: starting event loop")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.msg.Events():
			if !ok {
				slog.Info("Controller.Run: event channel closed")
				return nil
			}
			go func(ev models.Event) {
				if err := c.HandleEvent(ctx, ev); err != nil {
					slog.Error("Controller.Run: event handling failed", "chatID", ev.ChatID, "error", err)
				}
			}(ev)
		}
	}
}

// HandleEvent processes one inbound event end to end.
func (c *Controller) HandleEvent(ctx context.Context, ev models.Event) error {
	allowed, err := c.gate.Throttle(ctx, ev.ChatID)
	if err != nil {
		// Rate limiting is best effort; a broken limiter must not take the
		// intake down.
		slog.Warn("Controller.HandleEvent: throttle check failed", "chatID", ev.ChatID, "error", err)
	} else if !allowed {
		slog.Debug("Controller.HandleEvent: event dropped by throttle", "chatID", ev.ChatID)
		return nil
	}

	return c.sessions.Do(ev.ChatID, func(slot *session.Slot) error {
		if ev.Kind == models.EventCommand {
			return c.handleCommand(ctx, slot, ev)
		}
		state := slot.State()
		if state == nil {
			return c.msg.SendMessage(ctx, ev.ChatID, msgNoSession)
		}
		switch state.Phase {
		case session.PhaseHonesty:
			return c.handleHonesty(ctx, slot, state, ev)
		case session.PhaseRegisterName:
			return c.handleRegisterName(ctx, state, ev)
		case session.PhaseConsent:
			return c.handleConsent(ctx, state, ev)
		case session.PhaseQuestionnaire:
			return c.handleQuestionnaire(ctx, slot, state, ev)
		default:
			return fmt.Errorf("%w: unknown phase %s", models.ErrSessionNotStarted, state.Phase)
		}
	})
}

func (c *Controller) handleCommand(ctx context.Context, slot *session.Slot, ev models.Event) error {
	if strings.TrimSpace(ev.Text) != "/start" {
		return c.msg.SendMessage(ctx, ev.ChatID, msgNoSession)
	}
	decision, err := c.gate.MayStart(ctx, ev.ChatID)
	if err != nil {
		// Fail open: a broken gate should not block applicants.
		slog.Warn("Controller.handleCommand: entry check failed", "chatID", ev.ChatID, "error", err)
		decision = gate.Decision{Allowed: true}
	}
	if !decision.Allowed {
		days := int(decision.RetryAfter.Hours() / 24)
		return c.msg.SendMessage(ctx, ev.ChatID, msgCooldown(days+1))
	}
	slot.Begin()
	slog.Info("Controller.handleCommand: intake started", "chatID", ev.ChatID)
	return c.msg.SendPrompt(ctx, ev.ChatID, msgHonesty, [][]string{{HonestyLabel}})
}

// handleHonesty gates the whole intake: anything but the confirmation button
// is a refusal and ends the session.
func (c *Controller) handleHonesty(ctx context.Context, slot *session.Slot, state *session.State, ev models.Event) error {
	if ev.Kind != models.EventText || ev.Text != HonestyLabel {
		slog.Info("Controller.handleHonesty: confirmation declined", "chatID", state.ChatID)
		slot.Clear()
		return c.msg.SendPrompt(ctx, state.ChatID, msgHonestyDeclined, nil)
	}
	state.Phase = session.PhaseRegisterName
	return c.msg.SendPrompt(ctx, state.ChatID, msgRegisterName, nil)
}

func (c *Controller) handleRegisterName(ctx context.Context, state *session.State, ev models.Event) error {
	res := validation.FreeText(ev)
	if res.Err != nil {
		return c.msg.SendMessage(ctx, state.ChatID, rejectionMessage(res.Err))
	}
	state.ApplicantName = res.Value.Text
	state.Phase = session.PhaseConsent
	return c.msg.SendPrompt(ctx, state.ChatID, msgConsent, [][]string{{ConsentLabel}})
}

func (c *Controller) handleConsent(ctx context.Context, state *session.State, ev models.Event) error {
	if ev.Kind != models.EventText || ev.Text != ConsentLabel {
		return c.msg.SendPrompt(ctx, state.ChatID, msgConsent, [][]string{{ConsentLabel}})
	}
	state.Phase = session.PhaseQuestionnaire
	state.Current = catalog.First().Key
	slog.Info("Controller.handleConsent: questionnaire started", "chatID", state.ChatID)
	return c.askStep(ctx, state)
}

func (c *Controller) handleQuestionnaire(ctx context.Context, slot *session.Slot, state *session.State, ev models.Event) error {
	step, err := catalog.DefinitionFor(state.Current)
	if err != nil {
		return err
	}

	// Back navigation wins over everything, including pending manual-entry
	// detours.
	if ev.Kind == models.EventText && ev.Text == catalog.BackLabel && step.AllowBack {
		return c.goBack(ctx, state, step)
	}

	// Manual-entry detours consume the next text message as the answer of
	// the step that offered the sentinel.
	if state.HasFlag(session.FlagManualRegion) {
		return c.completeManualEntry(ctx, slot, state, step, ev, session.FlagManualRegion)
	}
	if state.HasFlag(session.FlagDiscomfortDetail) {
		return c.completeManualEntry(ctx, slot, state, step, ev, session.FlagDiscomfortDetail)
	}

	// Finish sentinels for the accumulating steps.
	if ev.Kind == models.EventText && step.FinishLabel != "" && ev.Text == step.FinishLabel {
		return c.finishAccumulation(ctx, slot, state, step)
	}

	// The "Other" sentinel routes into a free-text clarification.
	if step.Kind == models.StepKindChoiceOther && ev.Kind == models.EventText && ev.Text == catalog.OtherLabel {
		return c.beginManualEntry(ctx, state, step)
	}

	// The autofill button records the sender's profile handle.
	if step.Kind == models.StepKindUsername && ev.Kind == models.EventText && ev.Text == catalog.UsernameAutofillLabel {
		if ev.Username == "" {
			return c.msg.SendMessage(ctx, state.ChatID, msgNoProfileUsername)
		}
		state.Answers[step.Key] = models.AnswerValue{Text: "@" + ev.Username}
		return c.advance(ctx, slot, state, step.Key)
	}

	res := validation.Validate(step, ev)
	if res.Err != nil {
		return c.msg.SendMessage(ctx, state.ChatID, rejectionMessage(res.Err))
	}

	switch step.Kind {
	case models.StepKindMultiChoice:
		return c.accumulateChoice(ctx, state, step, res.Value.Text)
	case models.StepKindFileSet:
		return c.accumulateFile(ctx, state, step, res.Value.File)
	default:
		state.Answers[step.Key] = res.Value
		c.afterRecord(state, step, res.Value)
		return c.advance(ctx, slot, state, step.Key)
	}
}

// afterRecord applies step-specific bookkeeping after an answer is recorded.
func (c *Controller) afterRecord(state *session.State, step catalog.Step, v models.AnswerValue) {
	if step.Key == catalog.StepChildrenCount {
		state.ExpectedUploads = childrenUploadTarget(v.Text)
	}
}

// childrenUploadTarget derives how many birth certificates are required from
// the children-count answer. "5+" requires at least five.
func childrenUploadTarget(count string) int {
	if count == catalog.ChildrenFive {
		return 5
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return 0
	}
	return n
}

func (c *Controller) accumulateChoice(ctx context.Context, state *session.State, step catalog.Step, label string) error {
	cur := state.Answers[step.Key]
	for _, picked := range cur.List {
		if picked == label {
			return c.msg.SendMessage(ctx, state.ChatID, msgAlreadySelected(label))
		}
	}
	cur.List = append(cur.List, label)
	state.Answers[step.Key] = cur
	return c.msg.SendMessage(ctx, state.ChatID, msgOptionAdded(label))
}

func (c *Controller) accumulateFile(ctx context.Context, state *session.State, step catalog.Step, ref *models.FileRef) error {
	cur := state.Answers[step.Key]
	cur.Files = append(cur.Files, *ref)
	state.Answers[step.Key] = cur
	return c.msg.SendMessage(ctx, state.ChatID, msgFileReceived(len(cur.Files), state.ExpectedUploads))
}

func (c *Controller) finishAccumulation(ctx context.Context, slot *session.Slot, state *session.State, step catalog.Step) error {
	cur := state.Answers[step.Key]
	switch step.Kind {
	case models.StepKindMultiChoice:
		if len(cur.List) == 0 {
			return c.msg.SendMessage(ctx, state.ChatID, msgNothingSelected)
		}
	case models.StepKindFileSet:
		if len(cur.Files) < state.ExpectedUploads {
			return c.msg.SendMessage(ctx, state.ChatID, msgUploadsDeficit(len(cur.Files), state.ExpectedUploads))
		}
	}
	return c.advance(ctx, slot, state, step.Key)
}

func (c *Controller) beginManualEntry(ctx context.Context, state *session.State, step catalog.Step) error {
	var flag session.Flag
	var prompt string
	switch step.Key {
	case catalog.StepRegion:
		flag, prompt = session.FlagManualRegion, msgRegionManual
	case catalog.StepMainDiscomfort:
		flag, prompt = session.FlagDiscomfortDetail, msgDiscomfortManual
	default:
		return fmt.Errorf("%w: no manual entry for %s", models.ErrUnknownStep, step.Key)
	}
	state.SetFlag(flag, true)
	var rows [][]string
	if step.AllowBack {
		rows = [][]string{{catalog.BackLabel}}
	}
	return c.msg.SendPrompt(ctx, state.ChatID, prompt, rows)
}

func (c *Controller) completeManualEntry(ctx context.Context, slot *session.Slot, state *session.State, step catalog.Step, ev models.Event, flag session.Flag) error {
	res := validation.FreeText(ev)
	if res.Err != nil {
		return c.msg.SendMessage(ctx, state.ChatID, rejectionMessage(res.Err))
	}
	state.SetFlag(flag, false)
	value := res.Value
	// The discomfort clarification keeps its "Другое" marker so the summary
	// distinguishes it from the listed options.
	if flag == session.FlagDiscomfortDetail {
		value.Text = catalog.OtherLabel + ": " + value.Text
	}
	state.Answers[step.Key] = value
	return c.advance(ctx, slot, state, step.Key)
}

// goBack leaves the current step: its (possibly partial) answer is discarded,
// any pending detour is cancelled and the resolved previous step is re-asked.
func (c *Controller) goBack(ctx context.Context, state *session.State, step catalog.Step) error {
	prev, ok := prevStep(state.Answers, step.Key)
	if !ok {
		if err := c.msg.SendMessage(ctx, state.ChatID, msgNoEarlierStep); err != nil {
			return err
		}
		return c.askStep(ctx, state)
	}
	delete(state.Answers, step.Key)
	state.SetFlag(session.FlagManualRegion, false)
	state.SetFlag(session.FlagDiscomfortDetail, false)
	state.Current = prev
	slog.Debug("Controller.goBack: stepped back", "chatID", state.ChatID, "from", step.Key, "to", prev)
	return c.askStep(ctx, state)
}

func (c *Controller) advance(ctx context.Context, slot *session.Slot, state *session.State, from models.StepKey) error {
	next, done := nextStep(state.Answers, from)
	if done {
		return c.finalize(ctx, slot, state)
	}
	state.Current = next
	return c.askStep(ctx, state)
}

// askStep sends the current step's prompt with the input affordance its kind
// requires.
func (c *Controller) askStep(ctx context.Context, state *session.State) error {
	step, err := catalog.DefinitionFor(state.Current)
	if err != nil {
		return err
	}
	label, err := catalog.ProgressLabel(step.Key)
	if err != nil {
		return err
	}
	switch step.Kind {
	case models.StepKindContact:
		return c.msg.RequestContact(ctx, state.ChatID, label, step.AllowBack)
	case models.StepKindDate:
		return c.msg.RequestCalendar(ctx, state.ChatID, label, step.AllowBack)
	default:
		return c.msg.SendPrompt(ctx, state.ChatID, label, catalog.Keyboard(step))
	}
}

// finalize runs the terminal completion sequence: duplicate check, scoring,
// archival, persistence, cooldown start and the closing conclusion message.
// The session survives a persistence failure so the applicant can retry.
func (c *Controller) finalize(ctx context.Context, slot *session.Slot, state *session.State) error {
	answers := state.Answers.Clone()
	fullName := answers.Text(catalog.StepFullName)
	birthDate := answers.Text(catalog.StepBirthDate)
	now := c.now()

	existing, err := c.store.FindByApplicant(ctx, state.ChatID, fullName, birthDate)
	if err != nil {
		slog.Warn("Controller.finalize: duplicate check failed", "chatID", state.ChatID, "error", err)
	}
	if existing != nil {
		slog.Info("Controller.finalize: duplicate submission rejected", "chatID", state.ChatID, "existing", existing.ID)
		slot.Clear()
		return c.msg.SendMessage(ctx, state.ChatID, msgDuplicate)
	}

	sub := &models.Submission{
		ID:            c.newID(),
		ChatID:        state.ChatID,
		FullName:      fullName,
		BirthDate:     birthDate,
		Answers:       answers,
		Score:         scoring.Calculate(answers),
		Status:        models.SubmissionStatusWaiting,
		ArchiveStatus: models.ArchiveStatusComplete,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	folder, complete, err := c.exporter.ExportBundle(ctx, sub)
	if err != nil {
		slog.Error("Controller.finalize: bundle export failed", "chatID", state.ChatID, "error", err)
		sub.ArchiveStatus = models.ArchiveStatusIncomplete
	} else {
		sub.ArchiveFolder = folder
		if !complete {
			sub.ArchiveStatus = models.ArchiveStatusIncomplete
		}
	}

	if err := c.store.SaveSubmission(ctx, sub); err != nil {
		slog.Error("Controller.finalize: save failed", "chatID", state.ChatID, "error", err)
		return c.msg.SendMessage(ctx, state.ChatID, msgSaveFailed)
	}

	if err := c.gate.RecordSubmission(ctx, state.ChatID, now); err != nil {
		slog.Warn("Controller.finalize: cooldown record failed", "chatID", state.ChatID, "error", err)
	}

	if sub.ArchiveStatus == models.ArchiveStatusIncomplete {
		if err := c.msg.SendMessage(ctx, state.ChatID, msgArchivePartial); err != nil {
			slog.Warn("Controller.finalize: partial-archive notice failed", "chatID", state.ChatID, "error", err)
		}
	}

	slog.Info("Controller.finalize: submission completed", "chatID", state.ChatID, "submission", sub.ID, "score", sub.Score.Total)
	conclusion := scoring.FormatConclusion(fullName, sub.Score, now)
	if err := c.msg.SendPrompt(ctx, state.ChatID, conclusion, nil); err != nil {
		slog.Warn("Controller.finalize: conclusion send failed", "chatID", state.ChatID, "error", err)
	}
	slot.Clear()
	return nil
}
