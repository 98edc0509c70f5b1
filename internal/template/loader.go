package template

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/docflowhq/docflow/model"
)

// Loader seeds workflow templates from YAML files at startup. Deployments
// ship built-in workflows this way; templates created through the API are
// untouched, and an existing template is never overwritten by a seed file.
type Loader struct {
	svc *Service
}

// NewLoader creates a seed loader that creates templates via the service, so
// seeded definitions go through the same validation as API submissions.
func NewLoader(svc *Service) *Loader {
	return &Loader{svc: svc}
}

// seedFile is the YAML shape of a template seed file.
type seedFile struct {
	Templates []seedTemplate `yaml:"templates"`
}

type seedTemplate struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Department  string     `yaml:"department"`
	FileTypes   []string   `yaml:"file_types"`
	Active      *bool      `yaml:"active"`
	SLA         seedSLA    `yaml:"sla"`
	Steps       []seedStep `yaml:"steps"`
}

type seedSLA struct {
	WarningThresholdHours int      `yaml:"warning_threshold_hours"`
	AutoReassign          bool     `yaml:"auto_reassign"`
	BackupAssignees       []string `yaml:"backup_assignees"`
}

type seedStep struct {
	ID                string         `yaml:"id"`
	Name              string         `yaml:"name"`
	Type              string         `yaml:"type"`
	AssignKind        string         `yaml:"assign_kind"`
	AssignValue       string         `yaml:"assign_value"`
	DeadlineHours     int            `yaml:"deadline_hours"`
	Parallel          bool           `yaml:"parallel"`
	RequiredApprovals int            `yaml:"required_approvals"`
	DependsOn         []string       `yaml:"depends_on"`
	FormSchema        map[string]any `yaml:"form_schema"`
}

// LoadAll recursively scans directories for *.yaml and *.yml seed files and
// creates every template that does not already exist. It returns the number
// of templates created.
func (l *Loader) LoadAll(ctx context.Context, directories []string) (int, error) {
	created := 0
	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			n, err := l.LoadFile(ctx, path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			created += n
			return nil
		})
		if err != nil {
			return created, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}
	return created, nil
}

// LoadFile seeds templates from a single YAML file.
func (l *Loader) LoadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	created := 0
	for _, st := range file.Templates {
		tmpl, err := st.toModel()
		if err != nil {
			return created, fmt.Errorf("template %q: %w", st.ID, err)
		}

		if tmpl.ID != "" {
			if _, err := l.svc.Get(ctx, tmpl.ID); err == nil {
				continue // already present, API state wins
			}
		}

		if _, err := l.svc.Create(ctx, tmpl); err != nil {
			return created, fmt.Errorf("template %q: %w", st.ID, err)
		}
		created++
	}
	return created, nil
}

func (st seedTemplate) toModel() (model.WorkflowTemplate, error) {
	active := true
	if st.Active != nil {
		active = *st.Active
	}

	tmpl := model.WorkflowTemplate{
		ID:          st.ID,
		Name:        st.Name,
		Description: st.Description,
		Department:  st.Department,
		FileTypes:   st.FileTypes,
		Active:      active,
		SLA: model.SLAConfig{
			WarningThresholdHours: st.SLA.WarningThresholdHours,
			AutoReassign:          st.SLA.AutoReassign,
			BackupAssignees:       st.SLA.BackupAssignees,
		},
	}

	for _, ss := range st.Steps {
		step := model.StepSpec{
			ID:   ss.ID,
			Name: ss.Name,
			Type: ss.Type,
			Assignment: model.AssignmentRule{
				Kind:  ss.AssignKind,
				Value: ss.AssignValue,
			},
			DeadlineHours:     ss.DeadlineHours,
			Parallel:          ss.Parallel,
			RequiredApprovals: ss.RequiredApprovals,
			DependsOn:         ss.DependsOn,
		}
		if ss.FormSchema != nil {
			raw, err := json.Marshal(ss.FormSchema)
			if err != nil {
				return model.WorkflowTemplate{}, fmt.Errorf("step %q form schema: %w", ss.ID, err)
			}
			step.FormSchema = raw
		}
		tmpl.Steps = append(tmpl.Steps, step)
	}
	return tmpl, nil
}
