package flow

import (
	"github.com/BTreeMap/IntakePipe/internal/catalog"
	"github.com/BTreeMap/IntakePipe/internal/models"
)

// rule is one conditional transition: when leaving from with when(answers)
// true, the flow jumps to to instead of the adjacent catalog step.
type rule struct {
	from models.StepKey
	when func(models.Answers) bool
	to   models.StepKey
}

func answerIs(key models.StepKey, label string) func(models.Answers) bool {
	return func(a models.Answers) bool { return a.Text(key) == label }
}

func answerIsNot(key models.StepKey, label string) func(models.Answers) bool {
	return func(a models.Answers) bool { return a.Text(key) != label }
}

// forwardRules are the skip rules applied after a step is answered. Rules are
// checked in order; the first match wins, otherwise the next catalog step is
// used.
var forwardRules = []rule{
	// No established diagnosis: skip the diagnosis text and its document.
	{catalog.StepHasDiagnosis, answerIs(catalog.StepHasDiagnosis, catalog.DiagnosisNo), catalog.StepComplaint},
	// No need-confirmation document in hand: skip its upload step.
	{catalog.StepNeedConfirmation, answerIsNot(catalog.StepNeedConfirmation, catalog.ConfirmHave), catalog.StepAvgIncome},
	// No minor children: skip the birth-certificate uploads.
	{catalog.StepChildrenCount, answerIs(catalog.StepChildrenCount, catalog.ChildrenNone), catalog.StepFamilyWork},
	// Only rental housing requires a supporting document.
	{catalog.StepHousingType, answerIsNot(catalog.StepHousingType, catalog.HousingRental), catalog.StepContribution},
}

// backwardRules invert the forward skips: stepping back from a post-branch
// step must land on whichever step the applicant actually saw. Without a
// matching rule, back goes to the adjacent catalog step.
var backwardRules = []rule{
	{catalog.StepComplaint, answerIs(catalog.StepHasDiagnosis, catalog.DiagnosisNo), catalog.StepHasDiagnosis},
	{catalog.StepAvgIncome, answerIsNot(catalog.StepNeedConfirmation, catalog.ConfirmHave), catalog.StepNeedConfirmation},
	{catalog.StepFamilyWork, answerIs(catalog.StepChildrenCount, catalog.ChildrenNone), catalog.StepChildrenCount},
	{catalog.StepContribution, answerIsNot(catalog.StepHousingType, catalog.HousingRental), catalog.StepHousingType},
}

// nextStep resolves the step following from, given the answers so far. done is
// true when from was the terminal step.
func nextStep(answers models.Answers, from models.StepKey) (to models.StepKey, done bool) {
	for _, r := range forwardRules {
		if r.from == from && r.when(answers) {
			return r.to, false
		}
	}
	next, ok := catalog.Next(from)
	if !ok {
		return "", true
	}
	return next.Key, false
}

// prevStep resolves the step back-navigation lands on when leaving from. ok is
// false when from is the first catalog step.
func prevStep(answers models.Answers, from models.StepKey) (to models.StepKey, ok bool) {
	for _, r := range backwardRules {
		if r.from == from && r.when(answers) {
			return r.to, true
		}
	}
	prev, found := catalog.Prev(from)
	if !found {
		return "", false
	}
	return prev.Key, true
}
