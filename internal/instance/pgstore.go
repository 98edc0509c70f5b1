package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docflowhq/docflow/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. The step snapshot, SLA
// config, and step states are serialized as JSONB.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL instance store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Create persists a new instance.
func (s *PgStore) Create(ctx context.Context, inst model.WorkflowInstance) error {
	stepsJSON, slaJSON, statesJSON, err := marshalInstance(inst)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_instances (
			id, template_id, template_name, steps, sla, subject_ref,
			subject_file_type, status, current_step_index, initiator,
			started_at, completed_at, step_states, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		inst.ID, inst.TemplateID, inst.TemplateName, stepsJSON, slaJSON, inst.SubjectRef,
		inst.SubjectFileType, inst.Status, inst.CurrentStepIndex, inst.Initiator,
		inst.StartedAt, inst.CompletedAt, statesJSON, inst.Version,
	)
	if err != nil {
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	return nil
}

// Get retrieves an instance by ID.
func (s *PgStore) Get(ctx context.Context, instanceID string) (model.WorkflowInstance, error) {
	row := s.pool.QueryRow(ctx, selectInstance+` WHERE id = $1`, instanceID)
	inst, err := scanInstance(row)
	if err == pgx.ErrNoRows {
		return model.WorkflowInstance{}, model.NewNotFoundError(fmt.Sprintf("workflow instance %q not found", instanceID))
	}
	if err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("query workflow instance: %w", err)
	}
	return inst, nil
}

// Update replaces an existing instance with optimistic locking.
func (s *PgStore) Update(ctx context.Context, inst model.WorkflowInstance) error {
	stepsJSON, slaJSON, statesJSON, err := marshalInstance(inst)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_instances SET
			steps = $1, sla = $2, status = $3, current_step_index = $4,
			completed_at = $5, step_states = $6, version = version + 1
		WHERE id = $7 AND version = $8`,
		stepsJSON, slaJSON, inst.Status, inst.CurrentStepIndex,
		inst.CompletedAt, statesJSON, inst.ID, inst.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a version conflict.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`, inst.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check workflow instance existence: %w", err)
		}
		if !exists {
			return model.NewNotFoundError(fmt.Sprintf("workflow instance %q not found", inst.ID))
		}
		return model.NewConflictError(
			fmt.Sprintf("workflow instance %q was modified concurrently (version %d is stale)", inst.ID, inst.Version),
		)
	}
	return nil
}

// List returns instances matching the filters, newest first, with the total
// count before pagination.
func (s *PgStore) List(ctx context.Context, filters model.InstanceFilters) ([]model.WorkflowInstance, int, error) {
	var where []string
	var args []any

	if filters.TemplateID != "" {
		args = append(args, filters.TemplateID)
		where = append(where, fmt.Sprintf("template_id = $%d", len(args)))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.Initiator != "" {
		args = append(args, filters.Initiator)
		where = append(where, fmt.Sprintf("initiator = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM workflow_instances"+clause, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count workflow instances: %w", err)
	}

	query := selectInstance + clause + ` ORDER BY started_at DESC, id ASC`
	if filters.PageSize > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filters.PageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, (page-1)*filters.PageSize)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query workflow instances: %w", err)
	}
	defer rows.Close()

	instances, err := collectInstances(rows)
	if err != nil {
		return nil, 0, err
	}
	return instances, total, nil
}

// FindActive returns every active instance.
func (s *PgStore) FindActive(ctx context.Context) ([]model.WorkflowInstance, error) {
	rows, err := s.pool.Query(ctx, selectInstance+` WHERE status = $1 ORDER BY id`, model.InstanceStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query active workflow instances: %w", err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

const selectInstance = `
	SELECT id, template_id, template_name, steps, sla, subject_ref,
	       subject_file_type, status, current_step_index, initiator,
	       started_at, completed_at, step_states, version
	FROM workflow_instances`

func collectInstances(rows pgx.Rows) ([]model.WorkflowInstance, error) {
	var instances []model.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func marshalInstance(inst model.WorkflowInstance) (stepsJSON, slaJSON, statesJSON []byte, err error) {
	stepsJSON, err = json.Marshal(inst.Steps)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal steps: %w", err)
	}
	slaJSON, err = json.Marshal(inst.SLA)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal sla: %w", err)
	}
	statesJSON, err = json.Marshal(inst.StepStates)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal step states: %w", err)
	}
	return stepsJSON, slaJSON, statesJSON, nil
}

func scanInstance(row pgx.Row) (model.WorkflowInstance, error) {
	var inst model.WorkflowInstance
	var stepsJSON, slaJSON, statesJSON []byte

	err := row.Scan(
		&inst.ID, &inst.TemplateID, &inst.TemplateName, &stepsJSON, &slaJSON, &inst.SubjectRef,
		&inst.SubjectFileType, &inst.Status, &inst.CurrentStepIndex, &inst.Initiator,
		&inst.StartedAt, &inst.CompletedAt, &statesJSON, &inst.Version,
	)
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	if err := json.Unmarshal(stepsJSON, &inst.Steps); err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(slaJSON, &inst.SLA); err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("unmarshal sla: %w", err)
	}
	if err := json.Unmarshal(statesJSON, &inst.StepStates); err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("unmarshal step states: %w", err)
	}
	return inst, nil
}
