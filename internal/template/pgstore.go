package template

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docflowhq/docflow/model"
)

// PgStore is a PostgreSQL-backed template Store using pgx/v5. Steps, file
// types, and SLA config are serialized as JSONB.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL template store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create inserts a new template.
func (s *PgStore) Create(ctx context.Context, tmpl model.WorkflowTemplate) error {
	stepsJSON, slaJSON, err := marshalTemplate(tmpl)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_templates (
			id, name, description, department, steps, file_types, sla,
			active, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tmpl.ID, tmpl.Name, tmpl.Description, tmpl.Department, stepsJSON, tmpl.FileTypes, slaJSON,
		tmpl.Active, tmpl.Version, tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// Get retrieves a template by ID.
func (s *PgStore) Get(ctx context.Context, templateID string) (model.WorkflowTemplate, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, department, steps, file_types, sla,
		       active, version, created_at, updated_at
		FROM workflow_templates WHERE id = $1`,
		templateID,
	)
	tmpl, err := scanTemplate(row)
	if err == pgx.ErrNoRows {
		return model.WorkflowTemplate{}, model.NewTemplateNotFoundError(templateID)
	}
	if err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("query template: %w", err)
	}
	return tmpl, nil
}

// Update replaces an existing template with optimistic locking.
func (s *PgStore) Update(ctx context.Context, tmpl model.WorkflowTemplate) error {
	stepsJSON, slaJSON, err := marshalTemplate(tmpl)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_templates SET
			name = $1, description = $2, department = $3, steps = $4,
			file_types = $5, sla = $6, active = $7, version = $8, updated_at = $9
		WHERE id = $10 AND version = $11`,
		tmpl.Name, tmpl.Description, tmpl.Department, stepsJSON,
		tmpl.FileTypes, slaJSON, tmpl.Active, tmpl.Version+1, time.Now().UTC(),
		tmpl.ID, tmpl.Version,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a version conflict.
		if _, getErr := s.Get(ctx, tmpl.ID); getErr != nil {
			return getErr
		}
		return model.NewConflictError(
			fmt.Sprintf("template %q version conflict (expected %d)", tmpl.ID, tmpl.Version),
		)
	}
	return nil
}

// Delete removes a template.
func (s *PgStore) Delete(ctx context.Context, templateID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workflow_templates WHERE id = $1`, templateID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewTemplateNotFoundError(templateID)
	}
	return nil
}

// List returns templates matching the filters, newest first.
func (s *PgStore) List(ctx context.Context, filters model.TemplateFilters) ([]model.WorkflowTemplate, int, error) {
	where := " WHERE true"
	args := []any{}
	argIdx := 1

	if filters.Department != "" {
		where += fmt.Sprintf(" AND department = $%d", argIdx)
		args = append(args, filters.Department)
		argIdx++
	}
	if filters.Active != nil {
		where += fmt.Sprintf(" AND active = $%d", argIdx)
		args = append(args, *filters.Active)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM workflow_templates"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	query := `SELECT id, name, description, department, steps, file_types, sla,
	                 active, version, created_at, updated_at
	          FROM workflow_templates` + where + " ORDER BY created_at DESC"

	if filters.PageSize > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, filters.PageSize, (page-1)*filters.PageSize)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []model.WorkflowTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}
	return templates, total, rows.Err()
}

func marshalTemplate(tmpl model.WorkflowTemplate) (stepsJSON, slaJSON []byte, err error) {
	stepsJSON, err = json.Marshal(tmpl.Steps)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal steps: %w", err)
	}
	slaJSON, err = json.Marshal(tmpl.SLA)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal sla: %w", err)
	}
	return stepsJSON, slaJSON, nil
}

func scanTemplate(row pgx.Row) (model.WorkflowTemplate, error) {
	var tmpl model.WorkflowTemplate
	var stepsJSON, slaJSON []byte

	err := row.Scan(
		&tmpl.ID, &tmpl.Name, &tmpl.Description, &tmpl.Department, &stepsJSON, &tmpl.FileTypes, &slaJSON,
		&tmpl.Active, &tmpl.Version, &tmpl.CreatedAt, &tmpl.UpdatedAt,
	)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}
	if err := json.Unmarshal(stepsJSON, &tmpl.Steps); err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("unmarshal steps: %w", err)
	}
	if slaJSON != nil {
		if err := json.Unmarshal(slaJSON, &tmpl.SLA); err != nil {
			return model.WorkflowTemplate{}, fmt.Errorf("unmarshal sla: %w", err)
		}
	}
	return tmpl, nil
}
