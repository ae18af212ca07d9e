// Package catalog defines the static ordered question catalog for the intake flow.
//
// The catalog is loaded once at process start and never mutated at runtime.
// Order is significant: it drives "Вопрос i из N" progress labels and the
// default linear fallback when no conditional branch applies.
package catalog

import (
	"fmt"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Step keys, in catalog order.
const (
	StepFullName         models.StepKey = "q1_full_name"
	StepBirthDate        models.StepKey = "q2_birth_date"
	StepGender           models.StepKey = "q3_gender"
	StepPhoneNumber      models.StepKey = "q4_phone_number"
	StepTelegramUsername models.StepKey = "q5_telegram_username"
	StepRegion           models.StepKey = "q6_region"
	StepWhoApplies       models.StepKey = "q7_who_applies"
	StepSaboPatient      models.StepKey = "q8_sabo_patient"
	StepSourceInfo       models.StepKey = "q9_source_info"
	StepHasDiagnosis     models.StepKey = "q10_has_diagnosis"
	StepDiagnosisText    models.StepKey = "q11_diagnosis_text"
	StepDiagnosisFile    models.StepKey = "q12_diagnosis_file"
	StepComplaint        models.StepKey = "q13_complaint"
	StepMainDiscomfort   models.StepKey = "q14_main_discomfort"
	StepImprovements     models.StepKey = "q15_improvements"
	StepConsequences     models.StepKey = "q16_consequences"
	StepNeedConfirmation models.StepKey = "q17_need_confirmation"
	StepConfirmationFile models.StepKey = "q17_confirmation_file"
	StepAvgIncome        models.StepKey = "q18_avg_income"
	StepIncomeDoc        models.StepKey = "q18_income_doc"
	StepChildrenCount    models.StepKey = "q19_children_count"
	StepChildrenDocs     models.StepKey = "q19_children_docs"
	StepFamilyWork       models.StepKey = "q21_family_work"
	StepHousingType      models.StepKey = "q22_housing_type"
	StepHousingDoc       models.StepKey = "q22_housing_doc"
	StepContribution     models.StepKey = "q23_contribution"
	StepAdditionalFile   models.StepKey = "q24_additional_file"
	StepFinalComment     models.StepKey = "q25_final_comment"
)

// Reserved labels shared across steps.
const (
	// BackLabel is the reserved backward-navigation button label.
	BackLabel = "⬅️ Назад"
	// OtherLabel is the sentinel option that routes into manual free-text entry.
	OtherLabel = "Другое"
	// UploadsDoneLabel finishes the multi-file children-docs step.
	UploadsDoneLabel = "✅ Завершить загрузку"
	// UsernameAutofillLabel fills the username step from the sender's profile.
	UsernameAutofillLabel = "📲 Использовать мой username"
)

// Option labels referenced by branch rules and scoring.
const (
	DiagnosisYes  = "✅ Да"
	DiagnosisNo   = "❌ Нет"
	ConfirmHave   = "☑️ Да, есть"
	ConfirmCanGet = "☑️ Нет, но можем взять"
	ConfirmNone   = "☑️ Нет"
	HousingOwn    = "☑️ Собственное"
	HousingRental = "☑️ Аренда"
	HousingFamily = "☑️ У родственников"
	ChildrenNone  = "0"
	ChildrenFive  = "5+"
)

// Regions offered on the residence step, plus the manual-entry sentinel.
var Regions = []string{
	"Ташкент", "Самарканд", "Фергана", "Андижан", "Бухара", "Хорезм", "Навои",
	"Наманган", "Кашкадарья", "Сурхандарья", "Сырдарья", "Джизак", "Каракалпакстан",
	OtherLabel,
}

// Step is an immutable definition of one question step.
type Step struct {
	Key         models.StepKey
	Kind        models.StepKind
	Prompt      string
	Options     []string // fixed ordered choice set; nil for free-input steps
	FinishLabel string   // finish sentinel for accumulating steps
	AllowBack   bool
}

// HasOption reports whether label is in the step's fixed option set.
func (s Step) HasOption(label string) bool {
	for _, opt := range s.Options {
		if opt == label {
			return true
		}
	}
	return false
}

// steps is the catalog, in order. Prompt texts follow the production program.
var steps = []Step{
	{
		Key:    StepFullName,
		Kind:   models.StepKindText,
		Prompt: "Введите Ф.И.О. пациента полностью (пример: Ivanov Ivan Ivanovich):",
	},
	{
		Key:       StepBirthDate,
		Kind:      models.StepKindDate,
		Prompt:    "Выберите дату рождения пациента 📅",
		AllowBack: true,
	},
	{
		Key:       StepGender,
		Kind:      models.StepKindChoice,
		Prompt:    "Укажите пол пациента:",
		Options:   []string{"Мужской", "Женский"},
		AllowBack: true,
	},
	{
		Key:       StepPhoneNumber,
		Kind:      models.StepKindContact,
		Prompt:    "Пожалуйста, отправьте номер телефона пациента через кнопку ниже или введите его в международном формате (например: +998901234567):",
		AllowBack: true,
	},
	{
		Key:       StepTelegramUsername,
		Kind:      models.StepKindUsername,
		Prompt:    "Пожалуйста, отправьте ваш Telegram username (начиная с @) или нажмите кнопку ниже:",
		Options:   []string{UsernameAutofillLabel},
		AllowBack: true,
	},
	{
		Key:       StepRegion,
		Kind:      models.StepKindChoiceOther,
		Prompt:    "📍 Пожалуйста, выберите регион и город проживания из списка ниже или нажмите «Другое» для ручного ввода.",
		Options:   Regions,
		AllowBack: true,
	},
	{
		Key:       StepWhoApplies,
		Kind:      models.StepKindChoice,
		Prompt:    "Кто обращается?",
		Options:   []string{"Сам(а)", "Родственник"},
		AllowBack: true,
	},
	{
		Key:       StepSaboPatient,
		Kind:      models.StepKindChoice,
		Prompt:    "Является ли пациентом Сабо-Дармон?",
		Options:   []string{"Да", "Нет", "Неизвестно"},
		AllowBack: true,
	},
	{
		Key:       StepSourceInfo,
		Kind:      models.StepKindChoice,
		Prompt:    "Откуда вы узнали о программе?",
		Options:   []string{"Telegram", "Instagram", "Клиника", "Знакомые", "Другое"},
		AllowBack: true,
	},
	{
		Key:       StepHasDiagnosis,
		Kind:      models.StepKindChoice,
		Prompt:    "Есть ли установленный диагноз?",
		Options:   []string{DiagnosisYes, DiagnosisNo},
		AllowBack: true,
	},
	{
		Key:       StepDiagnosisText,
		Kind:      models.StepKindText,
		Prompt:    "Укажите диагноз пациента:",
		AllowBack: true,
	},
	{
		Key:       StepDiagnosisFile,
		Kind:      models.StepKindFileOptional,
		Prompt:    "📎 Прикрепите фото/скан диагноза или эпикриза.",
		AllowBack: true,
	},
	{
		Key:       StepComplaint,
		Kind:      models.StepKindText,
		Prompt:    "🔔 Введите кратко жалобу / причину обращения:",
		AllowBack: true,
	},
	{
		Key:       StepMainDiscomfort,
		Kind:      models.StepKindChoiceOther,
		Prompt:    "Что доставляет вам наибольшие неудобства от текущей болезни?",
		Options:   []string{"Боль", "Нарушение сна", "Невозможность работать", "Ограничение в передвижении", OtherLabel},
		AllowBack: true,
	},
	{
		Key:    StepImprovements,
		Kind:   models.StepKindMultiChoice,
		Prompt: "Что изменится после лечения?\n\nВыберите всё, что подходит, по одному пункту. Когда закончите — нажмите ✅ Готово.",
		Options: []string{
			"☑️ Смогу работать / учиться", "☑️ Самообслуживание",
			"☑️ Уменьшится боль", "☑️ Снижение риска осложнений",
			"☑️ Улучшится сон / энергия", "☑️ Другое",
		},
		FinishLabel: "✅ Готово",
		AllowBack:   true,
	},
	{
		Key:    StepConsequences,
		Kind:   models.StepKindMultiChoice,
		Prompt: "Что будет, если не лечиться?\n\nВыберите всё, что подходит, по одному пункту. Когда закончите — нажмите ✅ Завершить выбор.",
		Options: []string{
			"☑️ Ухудшение состояния", "☑️ Потеря трудоспособности",
			"☑️ Риск инвалидности", "☑️ Неизвестно",
		},
		FinishLabel: "✅ Завершить выбор",
		AllowBack:   true,
	},
	{
		Key:       StepNeedConfirmation,
		Kind:      models.StepKindChoice,
		Prompt:    "📄 Есть ли подтверждение нуждаемости от махалли или других органов?",
		Options:   []string{ConfirmHave, ConfirmCanGet, ConfirmNone},
		AllowBack: true,
	},
	{
		Key:       StepConfirmationFile,
		Kind:      models.StepKindFile,
		Prompt:    "📎 Прикрепите документ: справку о нуждаемости, 'темир дафтар' и т.п. (фото или PDF).",
		AllowBack: true,
	},
	{
		Key:       StepAvgIncome,
		Kind:      models.StepKindChoice,
		Prompt:    "📊 Укажите средний доход вашей семьи в месяц:",
		Options:   []string{"До 5 млн", "5–7 млн", "7–10 млн", "10+ млн"},
		AllowBack: true,
	},
	{
		Key:       StepIncomeDoc,
		Kind:      models.StepKindFile,
		Prompt:    "📎 Прикрепите подтверждающий документ (справка о доходах, выписка и т.п.).",
		AllowBack: true,
	},
	{
		Key:       StepChildrenCount,
		Kind:      models.StepKindChoice,
		Prompt:    "👶 Сколько несовершеннолетних детей в семье?",
		Options:   []string{"0", "1", "2", "3", "4", "5+"},
		AllowBack: true,
	},
	{
		Key:         StepChildrenDocs,
		Kind:        models.StepKindFileSet,
		Prompt:      "📎 Прикрепите метрику каждого ребёнка (фото или PDF). После загрузки всех файлов нажмите «✅ Завершить загрузку».",
		FinishLabel: UploadsDoneLabel,
		AllowBack:   true,
	},
	{
		Key:       StepFamilyWork,
		Kind:      models.StepKindChoice,
		Prompt:    "👨‍💼 Кто работает в семье?",
		Options:   []string{"☑️ Только муж", "☑️ Оба", "☑️ Никто", "☑️ Только жена", "☑️ Пенсионер"},
		AllowBack: true,
	},
	{
		Key:       StepHousingType,
		Kind:      models.StepKindChoice,
		Prompt:    "🏠 Какой у вас тип жилья?",
		Options:   []string{HousingOwn, HousingRental, HousingFamily},
		AllowBack: true,
	},
	{
		Key:       StepHousingDoc,
		Kind:      models.StepKindFile,
		Prompt:    "📎 Прикрепите договор аренды или иной подтверждающий документ, зарегистрированный в налоговой (например, свидетельство, уведомление или справка).",
		AllowBack: true,
	},
	{
		Key:       StepContribution,
		Kind:      models.StepKindAmount,
		Prompt:    "💰 До какой суммы вы можете оплатить лечение? (в сумах)",
		AllowBack: true,
	},
	{
		Key:       StepAdditionalFile,
		Kind:      models.StepKindFileOptional,
		Prompt:    "📎 Прикрепите дополнительный файл, подтверждающий ваши обстоятельства (необязательно).\nЕсли хотите пропустить — отправьте точку (.) или любой символ.",
		AllowBack: true,
	},
	{
		Key:       StepFinalComment,
		Kind:      models.StepKindText,
		Prompt:    "📝 Есть ли у вас другие важные обстоятельства, которые помогут Клинике Сабо Дармон принять правильное решение по вашему делу?",
		AllowBack: true,
	},
}

// index maps step keys to their ordinal position in the catalog.
var index = func() map[models.StepKey]int {
	m := make(map[models.StepKey]int, len(steps))
	for i, s := range steps {
		m[s.Key] = i
	}
	return m
}()

// Count returns the number of steps in the catalog.
func Count() int { return len(steps) }

// Steps returns the catalog in order. The returned slice is shared; callers
// must not modify it.
func Steps() []Step { return steps }

// First returns the first catalog step.
func First() Step { return steps[0] }

// Last returns the terminal catalog step.
func Last() Step { return steps[len(steps)-1] }

// DefinitionFor looks up the definition for a step key.
func DefinitionFor(key models.StepKey) (Step, error) {
	i, ok := index[key]
	if !ok {
		return Step{}, fmt.Errorf("%w: %s", models.ErrUnknownStep, key)
	}
	return steps[i], nil
}

// Ordinal returns the zero-based catalog position of a step key.
func Ordinal(key models.StepKey) (int, error) {
	i, ok := index[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrUnknownStep, key)
	}
	return i, nil
}

// Next returns the step immediately after key in catalog order, or false when
// key is the terminal step.
func Next(key models.StepKey) (Step, bool) {
	i, ok := index[key]
	if !ok || i+1 >= len(steps) {
		return Step{}, false
	}
	return steps[i+1], true
}

// Prev returns the step immediately before key in catalog order, or false when
// key is the first step.
func Prev(key models.StepKey) (Step, bool) {
	i, ok := index[key]
	if !ok || i == 0 {
		return Step{}, false
	}
	return steps[i-1], true
}

// ProgressLabel renders the step prompt with its "Вопрос i из N" header.
func ProgressLabel(key models.StepKey) (string, error) {
	i, ok := index[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrUnknownStep, key)
	}
	return fmt.Sprintf("🔹 Вопрос %d из %d:\n%s", i+1, len(steps), steps[i].Prompt), nil
}

// Keyboard returns the suggested reply options for a step: option rows of two,
// the finish label for accumulating steps, and the back row when allowed.
// Returns nil for steps with no suggestions at all.
func Keyboard(s Step) [][]string {
	var rows [][]string
	for i := 0; i < len(s.Options); i += 2 {
		end := i + 2
		if end > len(s.Options) {
			end = len(s.Options)
		}
		rows = append(rows, append([]string(nil), s.Options[i:end]...))
	}
	if s.FinishLabel != "" {
		rows = append(rows, []string{s.FinishLabel})
	}
	if s.AllowBack {
		rows = append(rows, []string{BackLabel})
	}
	return rows
}
