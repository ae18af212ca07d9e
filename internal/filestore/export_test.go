package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/catalog"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/testutil"
)

func bundleSubmission() *models.Submission {
	return &models.Submission{
		ID:        "s1",
		ChatID:    10,
		FullName:  "Ivanov Ivan Ivanovich",
		BirthDate: "07.03.1990",
		Answers: models.Answers{
			catalog.StepFullName:     {Text: "Ivanov Ivan Ivanovich"},
			catalog.StepAvgIncome:    {Text: "До 5 млн"},
			catalog.StepImprovements: {List: []string{"☑️ Уменьшится боль"}},
			catalog.StepIncomeDoc: {File: &models.FileRef{
				ID: "income-1", Name: "spravka.pdf", MimeType: "application/pdf",
			}},
			catalog.StepChildrenDocs: {Files: []models.FileRef{
				{ID: "child-1", MimeType: "image/jpeg"},
				{ID: "child-2", MimeType: "image/jpeg"},
			}},
			catalog.StepAdditionalFile: {Absent: true},
		},
		Score:     models.ScoreBreakdown{Total: 6, ScoreMax: 10},
		CreatedAt: time.Date(2026, time.August, 30, 10, 0, 0, 0, time.UTC),
	}
}

func TestExportBundleWritesSummaryAndAttachments(t *testing.T) {
	root := t.TempDir()
	storage, err := NewLocalStorage(root)
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	exporter := NewExporter(storage, &testutil.StubFetcher{Content: "file-bytes"})

	folder, complete, err := exporter.ExportBundle(context.Background(), bundleSubmission())
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}
	if !complete {
		t.Error("expected complete export")
	}
	if folder != "Ivanov Ivan Ivanovich_2026-08-30" {
		t.Errorf("unexpected folder name %q", folder)
	}

	summary, err := os.ReadFile(filepath.Join(root, folder, SummaryFileName))
	if err != nil {
		t.Fatalf("summary missing: %v", err)
	}
	text := string(summary)
	for _, want := range []string{
		"Ivanov Ivan Ivanovich",
		"До 5 млн",
		"☑️ Уменьшится боль",
		"6 / 10",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q", want)
		}
	}

	for _, path := range []string{
		filepath.Join("Доход", "spravka.pdf"),
		filepath.Join("Метрики детей", "file_1.jpg"),
		filepath.Join("Метрики детей", "file_2.jpg"),
	} {
		full := filepath.Join(root, folder, path)
		data, err := os.ReadFile(full)
		if err != nil {
			t.Errorf("attachment %s missing: %v", path, err)
			continue
		}
		if string(data) != "file-bytes" {
			t.Errorf("attachment %s has wrong content %q", path, data)
		}
	}
}

func TestExportBundleSurvivesAttachmentFailures(t *testing.T) {
	root := t.TempDir()
	storage, err := NewLocalStorage(root)
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	fetcher := &testutil.StubFetcher{Content: "ok", FailIDs: []string{"child-1"}}
	exporter := NewExporter(storage, fetcher)

	folder, complete, err := exporter.ExportBundle(context.Background(), bundleSubmission())
	if err != nil {
		t.Fatalf("ExportBundle should not abort on attachment failure: %v", err)
	}
	if complete {
		t.Error("export with a failed attachment must report incomplete")
	}

	// The summary and the other attachments are still written.
	if _, err := os.Stat(filepath.Join(root, folder, SummaryFileName)); err != nil {
		t.Errorf("summary missing after partial export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, folder, "Метрики детей", "file_2.jpg")); err != nil {
		t.Errorf("surviving attachment missing: %v", err)
	}
}

func TestSanitizeComponent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Ivanov/Ivan", "Ivanov_Ivan"},
		{"  name  ", "name"},
		{"", "unnamed"},
		{`a\b:c*d`, "a_b_c_d"},
	}
	for _, tc := range cases {
		if got := sanitizeComponent(tc.in); got != tc.want {
			t.Errorf("sanitizeComponent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
