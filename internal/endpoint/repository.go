package endpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists endpoints.
type Repository interface {
	// GetByID returns ErrEndpointNotFound if the endpoint does not exist.
	GetByID(ctx context.Context, id string) (*Endpoint, error)

	List(ctx context.Context) ([]Endpoint, error)

	// Create returns ErrEndpointExists if the ID or path is already taken.
	Create(ctx context.Context, e *Endpoint) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open connection whose
// schema has been migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
	SELECT id, path, device_id, parent_id, name, category, capabilities,
		manufacturer, model, created_at, updated_at
	FROM endpoints`

// GetByID retrieves an endpoint by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Endpoint, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	e, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("querying endpoint by id: %w", err)
	}
	return e, nil
}

// List retrieves all endpoints ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Endpoint, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("querying endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning endpoint: %w", err)
		}
		endpoints = append(endpoints, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoints: %w", err)
	}
	return endpoints, nil
}

// Create inserts a new endpoint. Zero timestamps are set to now.
func (r *SQLiteRepository) Create(ctx context.Context, e *Endpoint) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}

	capsJSON, err := json.Marshal(e.Capabilities)
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}

	var parentID sql.NullString
	if e.ParentID != nil {
		parentID = sql.NullString{String: *e.ParentID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO endpoints (id, path, device_id, parent_id, name, category,
			capabilities, manufacturer, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Path, e.DeviceID, parentID, e.Name, string(e.Category),
		string(capsJSON), e.Manufacturer, e.Model,
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEndpointExists
		}
		return fmt.Errorf("inserting endpoint: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(s scanner) (*Endpoint, error) {
	var (
		e         Endpoint
		parentID  sql.NullString
		category  string
		capsJSON  string
		createdAt string
		updatedAt string
	)

	if err := s.Scan(&e.ID, &e.Path, &e.DeviceID, &parentID, &e.Name, &category,
		&capsJSON, &e.Manufacturer, &e.Model, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if parentID.Valid {
		p := parentID.String
		e.ParentID = &p
	}
	e.Category = Category(category)

	if err := json.Unmarshal([]byte(capsJSON), &e.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}

	var err error
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &e, nil
}

// isUniqueViolation matches SQLite's constraint message without importing
// the driver's error type into callers.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
