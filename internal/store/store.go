// Package store provides persistence for completed intake submissions.
//
// Three implementations share one interface: a SQLite store for single-node
// deployments, a Postgres store for shared deployments, and an in-memory
// store for tests. The backend is selected from the DSN shape.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Store defines the persistence operations for intake submissions.
type Store interface {
	// SaveSubmission persists a new submission record.
	SaveSubmission(ctx context.Context, sub *models.Submission) error
	// GetSubmission fetches one submission by id, or
	// models.ErrSubmissionNotFound.
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	// ListSubmissions returns submissions filtered by status; an empty
	// status returns everything, newest first.
	ListSubmissions(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error)
	// UpdateSubmission overwrites the stored record for sub.ID.
	UpdateSubmission(ctx context.Context, sub *models.Submission) error
	// FindByApplicant returns the most recent submission matching the
	// applicant identity, or nil when none exists.
	FindByApplicant(ctx context.Context, chatID int64, fullName, birthDate string) (*models.Submission, error)
	// Close releases backing resources.
	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	PostgresDSN string
	SQLiteDSN   string
}

// Option configures store construction.
type Option func(*Opts)

// WithPostgresDSN sets a Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithSQLiteDSN sets a SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// NewStore builds a Store from options: Postgres when a Postgres DSN is set,
// then SQLite, falling back to the in-memory store when neither is configured.
func NewStore(opts ...Option) (Store, error) {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case o.PostgresDSN != "":
		return NewPostgresStore(o.PostgresDSN)
	case o.SQLiteDSN != "":
		return NewSQLiteStore(o.SQLiteDSN)
	default:
		return NewInMemoryStore(), nil
	}
}

// DSNType identifies which backend a DSN selects.
type DSNType string

const (
	DSNTypePostgres DSNType = "postgres"
	DSNTypeSQLite   DSNType = "sqlite"
)

// DetectDSNType classifies a DSN string: URL-style or key=value strings are
// Postgres, anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) DSNType {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// InMemoryStore is a map-backed Store for tests and ephemeral runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*models.Submission
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{subs: make(map[string]*models.Submission)}
}

func (s *InMemoryStore) SaveSubmission(ctx context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[sub.ID]; exists {
		return fmt.Errorf("%w: %s", models.ErrDuplicateSubmission, sub.ID)
	}
	cp := cloneSubmission(sub)
	s.subs[sub.ID] = cp
	return nil
}

func (s *InMemoryStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSubmissionNotFound, id)
	}
	return cloneSubmission(sub), nil
}

func (s *InMemoryStore) ListSubmissions(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Submission
	for _, sub := range s.subs {
		if status != "" && sub.Status != status {
			continue
		}
		out = append(out, cloneSubmission(sub))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) UpdateSubmission(ctx context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return fmt.Errorf("%w: %s", models.ErrSubmissionNotFound, sub.ID)
	}
	cp := cloneSubmission(sub)
	cp.UpdatedAt = time.Now()
	s.subs[sub.ID] = cp
	return nil
}

func (s *InMemoryStore) FindByApplicant(ctx context.Context, chatID int64, fullName, birthDate string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Submission
	for _, sub := range s.subs {
		if sub.ChatID != chatID || sub.FullName != fullName || sub.BirthDate != birthDate {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneSubmission(latest), nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneSubmission(sub *models.Submission) *models.Submission {
	cp := *sub
	cp.Answers = sub.Answers.Clone()
	return &cp
}
