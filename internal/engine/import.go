package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// ParseDefinitions reads one or more YAML documents, each a workflow
// definition, and fills in the same defaults Create applies.
func ParseDefinitions(r io.Reader) ([]domain.WorkflowDefinition, error) {
	dec := yaml.NewDecoder(r)
	var out []domain.WorkflowDefinition
	for i := 1; ; i++ {
		var def domain.WorkflowDefinition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.Validationf("document %d: %v", i, err)
		}
		if def.Name == "" && len(def.Steps) == 0 {
			continue
		}
		normalizeDefinition(&def)
		out = append(out, def)
	}
	return out, nil
}

// Import creates every definition read from r, stopping at the first
// failure. It returns the definitions created so far.
func (s *DefinitionService) Import(ctx context.Context, p core.Principal, r io.Reader) ([]*domain.WorkflowDefinition, error) {
	defs, err := ParseDefinitions(r)
	if err != nil {
		return nil, err
	}
	created := make([]*domain.WorkflowDefinition, 0, len(defs))
	for i := range defs {
		def, err := s.Create(ctx, p, &defs[i])
		if err != nil {
			return created, fmt.Errorf("import %q: %w", defs[i].Name, err)
		}
		created = append(created, def)
	}
	return created, nil
}
