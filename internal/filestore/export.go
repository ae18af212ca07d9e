package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/catalog"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/scoring"
)

// SummaryFileName is the name of the text summary inside every bundle.
const SummaryFileName = "Анкета.txt"

// attachmentFolders groups uploaded files by topic inside the bundle.
var attachmentFolders = map[models.StepKey]string{
	catalog.StepDiagnosisFile:    "Диагноз",
	catalog.StepConfirmationFile: "Нуждаемость",
	catalog.StepIncomeDoc:        "Доход",
	catalog.StepChildrenDocs:     "Метрики детей",
	catalog.StepHousingDoc:       "Жильё",
	catalog.StepAdditionalFile:   "Дополнительно",
}

// Exporter assembles the per-submission archive bundle.
type Exporter struct {
	storage Storage
	fetcher Fetcher
}

// NewExporter creates an Exporter writing to storage and downloading
// attachments through fetcher.
func NewExporter(storage Storage, fetcher Fetcher) *Exporter {
	return &Exporter{storage: storage, fetcher: fetcher}
}

// ExportBundle writes the summary and every attachment of a completed
// submission. Attachment failures do not abort the export: the summary and
// the remaining files are still written, and complete reports whether every
// attachment made it. A summary write failure aborts with an error.
func (e *Exporter) ExportBundle(ctx context.Context, sub *models.Submission) (folder string, complete bool, err error) {
	folder = fmt.Sprintf("%s_%s", sanitizeComponent(sub.FullName), sub.CreatedAt.Format("2006-01-02"))

	summary := renderSummary(sub)
	if err := e.storage.Save(ctx, folder+"/"+SummaryFileName, strings.NewReader(summary)); err != nil {
		return "", false, fmt.Errorf("failed to write bundle summary: %w", err)
	}

	complete = true
	for _, key := range orderedFileSteps() {
		dir := attachmentFolders[key]
		for i, ref := range answerFiles(sub.Answers[key]) {
			if err := e.saveAttachment(ctx, folder+"/"+dir, i, ref); err != nil {
				slog.Error("Exporter.ExportBundle: attachment failed", "submission", sub.ID, "step", key, "file", ref.ID, "error", err)
				complete = false
			}
		}
	}
	slog.Info("Exporter.ExportBundle: bundle written", "submission", sub.ID, "folder", folder, "complete", complete)
	return folder, complete, nil
}

func (e *Exporter) saveAttachment(ctx context.Context, dir string, ordinal int, ref models.FileRef) error {
	body, err := e.fetcher.FetchFile(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to fetch file %s: %w", ref.ID, err)
	}
	defer body.Close()
	return e.storage.Save(ctx, dir+"/"+attachmentName(ordinal, ref), body)
}

// orderedFileSteps lists the file-bearing steps in catalog order so bundle
// content is deterministic.
func orderedFileSteps() []models.StepKey {
	return []models.StepKey{
		catalog.StepDiagnosisFile,
		catalog.StepConfirmationFile,
		catalog.StepIncomeDoc,
		catalog.StepChildrenDocs,
		catalog.StepHousingDoc,
		catalog.StepAdditionalFile,
	}
}

func answerFiles(v models.AnswerValue) []models.FileRef {
	if v.File != nil {
		return []models.FileRef{*v.File}
	}
	return v.Files
}

func attachmentName(ordinal int, ref models.FileRef) string {
	if ref.Name != "" {
		return sanitizeComponent(ref.Name)
	}
	ext := ".jpg"
	if ref.MimeType == "application/pdf" {
		ext = ".pdf"
	}
	return fmt.Sprintf("file_%d%s", ordinal+1, ext)
}

// renderSummary produces the human-readable questionnaire transcript plus the
// scoring conclusion that reviewers read first.
func renderSummary(sub *models.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Анкета пациента: %s\n", sub.FullName)
	fmt.Fprintf(&b, "Дата подачи: %s\n", sub.CreatedAt.Format("02.01.2006 15:04"))
	fmt.Fprintf(&b, "Идентификатор: %s\n\n", sub.ID)

	for i, step := range catalog.Steps() {
		v, answered := sub.Answers[step.Key]
		if !answered {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, promptLine(step.Prompt))
		fmt.Fprintf(&b, "   Ответ: %s\n\n", answerLine(v))
	}

	b.WriteString(strings.Repeat("—", 24))
	b.WriteString("\n\n")
	b.WriteString(scoring.FormatConclusion(sub.FullName, sub.Score, sub.CreatedAt))
	return b.String()
}

// promptLine flattens a multi-line prompt to its first line for the summary.
func promptLine(prompt string) string {
	if i := strings.IndexByte(prompt, '\n'); i >= 0 {
		return prompt[:i]
	}
	return prompt
}

func answerLine(v models.AnswerValue) string {
	switch {
	case v.Absent:
		return "— (не предоставлено)"
	case v.File != nil:
		return fmt.Sprintf("файл: %s", attachmentName(0, *v.File))
	case len(v.Files) > 0:
		names := make([]string, len(v.Files))
		for i, f := range v.Files {
			names[i] = attachmentName(i, f)
		}
		return fmt.Sprintf("файлы (%d): %s", len(v.Files), strings.Join(names, ", "))
	case len(v.List) > 0:
		return strings.Join(v.List, "; ")
	default:
		return v.Text
	}
}
