package catalog

import (
	"strings"
	"testing"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

func TestCatalogOrdering(t *testing.T) {
	if Count() == 0 {
		t.Fatal("catalog is empty")
	}
	if First().Key != StepFullName {
		t.Errorf("expected first step %s, got %s", StepFullName, First().Key)
	}
	if Last().Key != StepFinalComment {
		t.Errorf("expected last step %s, got %s", StepFinalComment, Last().Key)
	}

	// Walking Next from the first step must visit every step exactly once.
	seen := map[models.StepKey]bool{}
	step := First()
	seen[step.Key] = true
	for {
		next, ok := Next(step.Key)
		if !ok {
			break
		}
		if seen[next.Key] {
			t.Fatalf("step %s visited twice", next.Key)
		}
		seen[next.Key] = true
		step = next
	}
	if len(seen) != Count() {
		t.Errorf("walk visited %d steps, catalog has %d", len(seen), Count())
	}
}

func TestDefinitionForUnknownStep(t *testing.T) {
	_, err := DefinitionFor("q99_missing")
	if err == nil {
		t.Fatal("expected error for unknown step")
	}
}

func TestNextPrevRoundTrip(t *testing.T) {
	next, ok := Next(StepFullName)
	if !ok || next.Key != StepBirthDate {
		t.Fatalf("expected %s after %s, got %s", StepBirthDate, StepFullName, next.Key)
	}
	prev, ok := Prev(StepBirthDate)
	if !ok || prev.Key != StepFullName {
		t.Fatalf("expected %s before %s, got %s", StepFullName, StepBirthDate, prev.Key)
	}
	if _, ok := Prev(StepFullName); ok {
		t.Error("first step should have no predecessor")
	}
	if _, ok := Next(StepFinalComment); ok {
		t.Error("last step should have no successor")
	}
}

func TestProgressLabel(t *testing.T) {
	label, err := ProgressLabel(StepFullName)
	if err != nil {
		t.Fatalf("ProgressLabel failed: %v", err)
	}
	if !strings.HasPrefix(label, "🔹 Вопрос 1 из") {
		t.Errorf("unexpected progress header: %q", label)
	}
}

func TestKeyboardLayout(t *testing.T) {
	step, err := DefinitionFor(StepChildrenCount)
	if err != nil {
		t.Fatalf("DefinitionFor failed: %v", err)
	}
	rows := Keyboard(step)
	if len(rows) == 0 {
		t.Fatal("expected keyboard rows for a choice step")
	}
	for i, row := range rows[:len(rows)-1] {
		if len(row) > 2 {
			t.Errorf("row %d has %d buttons, want at most 2", i, len(row))
		}
	}
	last := rows[len(rows)-1]
	if len(last) != 1 || last[0] != BackLabel {
		t.Errorf("expected trailing back row, got %v", last)
	}
}

func TestKeyboardIncludesFinishLabel(t *testing.T) {
	step, err := DefinitionFor(StepChildrenDocs)
	if err != nil {
		t.Fatalf("DefinitionFor failed: %v", err)
	}
	rows := Keyboard(step)
	found := false
	for _, row := range rows {
		for _, label := range row {
			if label == UploadsDoneLabel {
				found = true
			}
		}
	}
	if !found {
		t.Error("file-set keyboard missing the finish label")
	}
}

func TestHasOption(t *testing.T) {
	step, err := DefinitionFor(StepHousingType)
	if err != nil {
		t.Fatalf("DefinitionFor failed: %v", err)
	}
	if !step.HasOption(HousingRental) {
		t.Errorf("expected %q to be an option", HousingRental)
	}
	if step.HasOption("дворец") {
		t.Error("unexpected option accepted")
	}
}

func TestAccumulatingStepsDeclareFinishLabels(t *testing.T) {
	for _, step := range Steps() {
		switch step.Kind {
		case models.StepKindMultiChoice, models.StepKindFileSet:
			if step.FinishLabel == "" {
				t.Errorf("step %s accumulates but has no finish label", step.Key)
			}
		default:
			if step.FinishLabel != "" {
				t.Errorf("step %s does not accumulate but declares finish label %q", step.Key, step.FinishLabel)
			}
		}
	}
}
