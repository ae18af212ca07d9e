package store

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists submissions in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path and
// applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database at %s: %w", path, err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply SQLite migrations: %w", err)
	}
	slog.Info("store.NewSQLiteStore: database ready", "path", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSubmission(ctx context.Context, sub *models.Submission) error {
	answers, score, err := marshalSubmission(sub)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (
			id, chat_id, full_name, birth_date, answers, score,
			status, archive_status, archive_folder,
			approved_by_doctor, approved_by_accountant,
			doctor_comment, accountant_comment, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ChatID, sub.FullName, sub.BirthDate, answers, score,
		sub.Status, sub.ArchiveStatus, sub.ArchiveFolder,
		sub.ApprovedByDoctor, sub.ApprovedByAccountant,
		sub.DoctorComment, sub.AccountantComment, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save submission %s: %w", sub.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrSubmissionNotFound, id)
	}
	return sub, err
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error) {
	query := selectColumns + ` FROM submissions ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = selectColumns + ` FROM submissions WHERE status = ? ORDER BY created_at DESC`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (s *SQLiteStore) UpdateSubmission(ctx context.Context, sub *models.Submission) error {
	answers, score, err := marshalSubmission(sub)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET
			answers = ?, score = ?, status = ?, archive_status = ?, archive_folder = ?,
			approved_by_doctor = ?, approved_by_accountant = ?,
			doctor_comment = ?, accountant_comment = ?, updated_at = ?
		WHERE id = ?`,
		answers, score, sub.Status, sub.ArchiveStatus, sub.ArchiveFolder,
		sub.ApprovedByDoctor, sub.ApprovedByAccountant,
		sub.DoctorComment, sub.AccountantComment, time.Now(), sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update submission %s: %w", sub.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", models.ErrSubmissionNotFound, sub.ID)
	}
	return nil
}

func (s *SQLiteStore) FindByApplicant(ctx context.Context, chatID int64, fullName, birthDate string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		FROM submissions
		WHERE chat_id = ? AND full_name = ? AND birth_date = ?
		ORDER BY created_at DESC LIMIT 1`, chatID, fullName, birthDate)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectColumns = `
	SELECT id, chat_id, full_name, birth_date, answers, score,
		status, archive_status, archive_folder,
		approved_by_doctor, approved_by_accountant,
		doctor_comment, accountant_comment, created_at, updated_at`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func marshalSubmission(sub *models.Submission) (answers, score []byte, err error) {
	answers, err = json.Marshal(sub.Answers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal answers for %s: %w", sub.ID, err)
	}
	score, err = json.Marshal(sub.Score)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal score for %s: %w", sub.ID, err)
	}
	return answers, score, nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var sub models.Submission
	var answers, score []byte
	err := row.Scan(
		&sub.ID, &sub.ChatID, &sub.FullName, &sub.BirthDate, &answers, &score,
		&sub.Status, &sub.ArchiveStatus, &sub.ArchiveFolder,
		&sub.ApprovedByDoctor, &sub.ApprovedByAccountant,
		&sub.DoctorComment, &sub.AccountantComment, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &sub.Answers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers for %s: %w", sub.ID, err)
	}
	if err := json.Unmarshal(score, &sub.Score); err != nil {
		return nil, fmt.Errorf("failed to unmarshal score for %s: %w", sub.ID, err)
	}
	return &sub, nil
}

func collectSubmissions(rows *sql.Rows) ([]*models.Submission, error) {
	var out []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
