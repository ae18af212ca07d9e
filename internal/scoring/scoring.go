// Package scoring computes the financial eligibility score for a completed
// intake answer set.
//
// The computation is a pure function: deterministic, no I/O, recomputed fresh
// from the answers on every call.
package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/catalog"
	"github.com/BTreeMap/IntakePipe/internal/models"
)

// ScoreMax is the upper bound of the weighting scheme.
const ScoreMax = 10

// Support tier cut points over the total score.
const (
	tierHighMin = 6
	tierMidMin  = 4
	tierLowMin  = 2
)

// Calculate derives the score breakdown and support tier from a completed
// answer set. Unanswered components contribute zero points.
func Calculate(answers models.Answers) models.ScoreBreakdown {
	b := models.ScoreBreakdown{
		Income:   incomePoints(answers.Text(catalog.StepAvgIncome)),
		Children: childrenPoints(answers.Text(catalog.StepChildrenCount)),
		Work:     workPoints(answers.Text(catalog.StepFamilyWork)),
		Housing:  housingPoints(answers.Text(catalog.StepHousingType)),
		Mahalla:  mahallaPoints(answers.Text(catalog.StepNeedConfirmation)),
		ScoreMax: ScoreMax,
	}
	b.Total = b.Income + b.Children + b.Work + b.Housing + b.Mahalla
	b.Tier = supportTier(b.Total)
	return b
}

func incomePoints(income string) int {
	income = strings.ToLower(income)
	switch {
	case strings.Contains(income, "до 5"):
		return 2
	case strings.Contains(income, "5–7") || strings.Contains(income, "5-7"):
		return 1
	default:
		return 0
	}
}

func childrenPoints(children string) int {
	switch children {
	case catalog.ChildrenFive:
		return 2
	case "3", "4":
		return 1
	default:
		return 0
	}
}

func workPoints(work string) int {
	work = strings.ToLower(strings.TrimSpace(work))
	switch {
	case strings.Contains(work, "никто"):
		return 2
	case strings.Contains(work, "только муж") || strings.Contains(work, "только жена"):
		return 1
	default:
		return 0
	}
}

func housingPoints(housing string) int {
	if strings.Contains(strings.ToLower(housing), "аренда") {
		return 1
	}
	return 0
}

func mahallaPoints(confirmation string) int {
	if strings.TrimSpace(confirmation) == catalog.ConfirmHave {
		return 1
	}
	return 0
}

func supportTier(score int) models.SupportTier {
	switch {
	case score >= tierHighMin:
		return models.SupportTier{
			Category:       "80% помощь (6–10 баллов)",
			FundHelp:       "80%",
			SaboDiscount:   "20%",
			PatientPayment: "0–20%",
		}
	case score >= tierMidMin:
		return models.SupportTier{
			Category:       "60–70% (4–5 баллов)",
			FundHelp:       "60–70%",
			SaboDiscount:   "15%",
			PatientPayment: "15–25%",
		}
	case score >= tierLowMin:
		return models.SupportTier{
			Category:       "50–60% (2–3 балла)",
			FundHelp:       "50–60%",
			SaboDiscount:   "10%",
			PatientPayment: "30–40%",
		}
	default:
		return models.SupportTier{
			Category:       "Не соответствует (0–1 балл)",
			FundHelp:       "Не предоставляется",
			SaboDiscount:   "0%",
			PatientPayment: "100% (пациент сам)",
		}
	}
}

// FormatConclusion renders the user-facing conclusion message for a scored
// answer set.
func FormatConclusion(fullName string, b models.ScoreBreakdown, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("🏥 ФИНАЛЬНОЕ ЗАКЛЮЧЕНИЕ\n\n")
	fmt.Fprintf(&sb, "👤 Пациент: %s\n", fullName)
	fmt.Fprintf(&sb, "📅 Дата: %s\n\n", now.Format("02.01.2006"))
	fmt.Fprintf(&sb, "🧮 Суммарный балл: %d / %d\n\n", b.Total, b.ScoreMax)
	sb.WriteString("📊 Разбивка:\n")
	fmt.Fprintf(&sb, "• Доход: %d балл(а)\n", b.Income)
	fmt.Fprintf(&sb, "• Дети: %d балл(а)\n", b.Children)
	fmt.Fprintf(&sb, "• Работа: %d балл(а)\n", b.Work)
	fmt.Fprintf(&sb, "• Жильё: %d балл(а)\n", b.Housing)
	fmt.Fprintf(&sb, "• Подтверждение махалли: %d балл(а)\n\n", b.Mahalla)
	sb.WriteString("🎯 Предложенный уровень поддержки:\n")
	fmt.Fprintf(&sb, "• Категория: %s\n", b.Tier.Category)
	fmt.Fprintf(&sb, "• Помощь фонда: %s\n", b.Tier.FundHelp)
	fmt.Fprintf(&sb, "• Скидка Сабо Дармон: %s\n", b.Tier.SaboDiscount)
	fmt.Fprintf(&sb, "• Оплата пациентом: %s\n\n", b.Tier.PatientPayment)
	sb.WriteString("📌 Заявка будет передана комиссии. Ответ в течение 3-5 рабочих дней.")
	return sb.String()
}
