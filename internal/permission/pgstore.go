package permission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docflowhq/docflow/model"
)

// PgGrantStore is a PostgreSQL-backed GrantStore using pgx/v5. The permission
// map and conditions are serialized as JSONB.
type PgGrantStore struct {
	pool *pgxpool.Pool
}

// NewPgGrantStore creates a new PostgreSQL grant store.
func NewPgGrantStore(pool *pgxpool.Pool) *PgGrantStore {
	return &PgGrantStore{pool: pool}
}

// Create inserts a new grant.
func (s *PgGrantStore) Create(ctx context.Context, g model.PermissionGrant) error {
	permsJSON, condsJSON, err := marshalGrant(g)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO permission_grants (
			id, template_id, entity_type, entity_id, permissions, priority,
			conditions, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		g.ID, g.TemplateID, g.EntityType, g.EntityID, permsJSON, g.Priority,
		condsJSON, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert permission grant: %w", err)
	}
	return nil
}

// Get retrieves a grant by ID.
func (s *PgGrantStore) Get(ctx context.Context, grantID string) (model.PermissionGrant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, template_id, entity_type, entity_id, permissions, priority,
		       conditions, created_at, updated_at
		FROM permission_grants WHERE id = $1`,
		grantID,
	)
	g, err := scanGrant(row)
	if err == pgx.ErrNoRows {
		return model.PermissionGrant{}, model.NewNotFoundError(fmt.Sprintf("permission grant %q not found", grantID))
	}
	if err != nil {
		return model.PermissionGrant{}, fmt.Errorf("query permission grant: %w", err)
	}
	return g, nil
}

// Update replaces an existing grant.
func (s *PgGrantStore) Update(ctx context.Context, g model.PermissionGrant) error {
	permsJSON, condsJSON, err := marshalGrant(g)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE permission_grants SET
			entity_type = $1, entity_id = $2, permissions = $3, priority = $4,
			conditions = $5, updated_at = now()
		WHERE id = $6`,
		g.EntityType, g.EntityID, permsJSON, g.Priority, condsJSON, g.ID,
	)
	if err != nil {
		return fmt.Errorf("update permission grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("permission grant %q not found", g.ID))
	}
	return nil
}

// Delete removes a grant.
func (s *PgGrantStore) Delete(ctx context.Context, grantID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM permission_grants WHERE id = $1`, grantID)
	if err != nil {
		return fmt.Errorf("delete permission grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("permission grant %q not found", grantID))
	}
	return nil
}

// ListByTemplate returns all grants for a template, priority descending.
func (s *PgGrantStore) ListByTemplate(ctx context.Context, templateID string) ([]model.PermissionGrant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, template_id, entity_type, entity_id, permissions, priority,
		       conditions, created_at, updated_at
		FROM permission_grants
		WHERE template_id = $1
		ORDER BY priority DESC, id ASC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("query permission grants: %w", err)
	}
	defer rows.Close()

	var grants []model.PermissionGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func marshalGrant(g model.PermissionGrant) (permsJSON, condsJSON []byte, err error) {
	permsJSON, err = json.Marshal(g.Permissions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal permissions: %w", err)
	}
	condsJSON, err = json.Marshal(g.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	return permsJSON, condsJSON, nil
}

func scanGrant(row pgx.Row) (model.PermissionGrant, error) {
	var g model.PermissionGrant
	var permsJSON, condsJSON []byte

	err := row.Scan(
		&g.ID, &g.TemplateID, &g.EntityType, &g.EntityID, &permsJSON, &g.Priority,
		&condsJSON, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return model.PermissionGrant{}, err
	}
	if err := json.Unmarshal(permsJSON, &g.Permissions); err != nil {
		return model.PermissionGrant{}, fmt.Errorf("unmarshal permissions: %w", err)
	}
	if condsJSON != nil {
		if err := json.Unmarshal(condsJSON, &g.Conditions); err != nil {
			return model.PermissionGrant{}, fmt.Errorf("unmarshal conditions: %w", err)
		}
	}
	return g, nil
}
