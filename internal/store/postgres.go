package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists submissions in PostgreSQL for shared deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres, verifies the connection and applies
// the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply Postgres migrations: %w", err)
	}
	slog.Info("store.NewPostgresStore: database ready")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSubmission(ctx context.Context, sub *models.Submission) error {
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
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sub.ID, sub.ChatID, sub.FullName, sub.BirthDate, answers, score,
		sub.Status, sub.ArchiveStatus, sub.ArchiveFolder,
		sub.ApprovedByDoctor, sub.ApprovedByAccountant,
		sub.DoctorComment, sub.AccountantComment, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save submission %s: %w", sub.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrSubmissionNotFound, id)
	}
	return sub, err
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error) {
	query := selectColumns + ` FROM submissions ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = selectColumns + ` FROM submissions WHERE status = $1 ORDER BY created_at DESC`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (s *PostgresStore) UpdateSubmission(ctx context.Context, sub *models.Submission) error {
	answers, score, err := marshalSubmission(sub)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET
			answers = $1, score = $2, status = $3, archive_status = $4, archive_folder = $5,
			approved_by_doctor = $6, approved_by_accountant = $7,
			doctor_comment = $8, accountant_comment = $9, updated_at = $10
		WHERE id = $11`,
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

func (s *PostgresStore) FindByApplicant(ctx context.Context, chatID int64, fullName, birthDate string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		FROM submissions
		WHERE chat_id = $1 AND full_name = $2 AND birth_date = $3
		ORDER BY created_at DESC LIMIT 1`, chatID, fullName, birthDate)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
