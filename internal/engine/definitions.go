package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

// DefinitionService owns workflow definitions. Bodies are immutable per
// version; an update that changes the body stores a new version.
type DefinitionService struct {
	store       *repository.Store
	clock       core.Clock
	readRetries int
}

func NewDefinitionService(store *repository.Store, clock core.Clock) *DefinitionService {
	if clock == nil {
		clock = core.NewRealClock()
	}
	return &DefinitionService{store: store, clock: clock, readRetries: defaultRetries}
}

func (s *DefinitionService) Create(ctx context.Context, p core.Principal, def *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
	start := time.Now()
	err := s.create(ctx, p, def)
	observe("create_definition", start, &err)
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (s *DefinitionService) create(ctx context.Context, p core.Principal, def *domain.WorkflowDefinition) error {
	if !p.IsAdmin() {
		return core.Forbiddenf("only administrators may create definitions").WithOp("createDefinition")
	}
	if def.TenantID == "" {
		def.TenantID = p.TenantID
	}
	if def.TenantID != p.TenantID {
		return core.Forbiddenf("definition belongs to another tenant").WithOp("createDefinition")
	}
	normalizeDefinition(def)
	if err := ValidateDefinition(def); err != nil {
		return err.WithOp("createDefinition")
	}
	now := s.clock.Now()
	def.ID = uuid.NewString()
	def.Version = 1
	def.Created = now
	def.Updated = now
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		return tx.Definitions.Insert(ctx, def)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Created workflow definition", "definition_id", def.ID, "tenant_id", def.TenantID, "name", def.Name)
	return nil
}

// Get returns the current version of a definition of the caller's tenant.
func (s *DefinitionService) Get(ctx context.Context, p core.Principal, id string) (*domain.WorkflowDefinition, error) {
	def, err := retryRead(ctx, s.readRetries, func() (*domain.WorkflowDefinition, error) {
		return s.store.Definitions.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if def.TenantID != p.TenantID {
		return nil, core.Forbiddenf("definition %s belongs to another tenant", id).WithOp("getDefinition")
	}
	return def, nil
}

func (s *DefinitionService) List(ctx context.Context, p core.Principal, f models.DefinitionFilter) ([]domain.WorkflowDefinition, error) {
	f.TenantID = p.TenantID
	return retryRead(ctx, s.readRetries, func() ([]domain.WorkflowDefinition, error) {
		return s.store.Definitions.Search(ctx, f)
	})
}

// Update changes the header in place. A changed body becomes a new version;
// instances keep running on the version they started with.
func (s *DefinitionService) Update(ctx context.Context, p core.Principal, id string, in *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
	if !p.IsAdmin() {
		return nil, core.Forbiddenf("only administrators may update definitions").WithOp("updateDefinition")
	}
	normalizeDefinition(in)
	in.TenantID = p.TenantID
	if err := ValidateDefinition(in); err != nil {
		return nil, err.WithOp("updateDefinition")
	}
	var out *domain.WorkflowDefinition
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		current, err := tx.Definitions.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current.TenantID != p.TenantID {
			return core.Forbiddenf("definition %s belongs to another tenant", id).WithOp("updateDefinition")
		}
		in.ID = current.ID
		in.Created = current.Created
		in.Updated = s.clock.Now()
		in.Version = current.Version
		if !current.SameBody(in) {
			in.Version = current.Version + 1
			if err := tx.Definitions.InsertVersion(ctx, in); err != nil {
				return err
			}
		}
		if err := tx.Definitions.UpdateHeader(ctx, in); err != nil {
			return err
		}
		out = in
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Updated workflow definition", "definition_id", out.ID, "version", out.Version)
	return out, nil
}

// Delete removes a definition that no instance references.
func (s *DefinitionService) Delete(ctx context.Context, p core.Principal, id string) error {
	if !p.IsAdmin() {
		return core.Forbiddenf("only administrators may delete definitions").WithOp("deleteDefinition")
	}
	return s.store.InTx(ctx, func(tx *repository.Store) error {
		current, err := tx.Definitions.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current.TenantID != p.TenantID {
			return core.Forbiddenf("definition %s belongs to another tenant", id).WithOp("deleteDefinition")
		}
		n, err := tx.Definitions.CountInstances(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return core.Conflictf("definition %s is referenced by %d instances; deactivate it instead", id, n).WithOp("deleteDefinition")
		}
		return tx.Definitions.Delete(ctx, id)
	})
}

func normalizeDefinition(def *domain.WorkflowDefinition) {
	def.Name = strings.TrimSpace(def.Name)
	if def.ExecutionMode == "" {
		def.ExecutionMode = domain.ExecutionSequential
	}
	if def.ApprovalPolicy == "" {
		def.ApprovalPolicy = domain.PolicyRequireAny
	}
	if def.ThresholdType == "" {
		def.ThresholdType = domain.ThresholdPercentage
	}
	numbered := false
	for _, st := range def.Steps {
		if st.StepNumber != 0 {
			numbered = true
			break
		}
	}
	for i := range def.Steps {
		if !numbered {
			def.Steps[i].StepNumber = i + 1
		}
		if def.Steps[i].Type == "" {
			def.Steps[i].Type = domain.StepApproval
		}
		for j := range def.Steps[i].Approvers {
			a := &def.Steps[i].Approvers[j]
			if a.Kind == "" && a.RoleID != "" {
				a.Kind = domain.ApproverRole
			} else if a.Kind == "" {
				a.Kind = domain.ApproverUsers
			}
		}
		if e := def.Steps[i].Escalation; e != nil && e.Mode == "" {
			e.Mode = domain.EscalationExtend
		}
	}
}

// ValidateDefinition checks the structural rules of a definition body.
func ValidateDefinition(def *domain.WorkflowDefinition) *core.Error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if def.TenantID == "" {
		add("tenantId is required")
	}
	if def.Name == "" {
		add("name is required")
	}
	switch def.ExecutionMode {
	case domain.ExecutionSequential, domain.ExecutionParallel:
	default:
		add("executionMode %q is not supported", def.ExecutionMode)
	}
	switch def.ApprovalPolicy {
	case domain.PolicyRequireAll, domain.PolicyRequireAny:
	default:
		add("approvalPolicy %q is not supported", def.ApprovalPolicy)
	}
	validateThreshold(def.AutoApproveThreshold, def.ThresholdType, "autoApproveThreshold", add)
	validateThreshold(def.AutoRejectThreshold, def.ThresholdType, "autoRejectThreshold", add)
	if def.DefaultStepTimeout < 0 || def.EscalationTimeout < 0 || def.SLATarget < 0 {
		add("timeouts must not be negative")
	}
	if len(def.Steps) == 0 {
		add("at least one step is required")
	}
	total := len(def.Steps)
	for i, step := range def.Steps {
		prefix := fmt.Sprintf("step %d", i+1)
		if step.StepNumber != i+1 {
			add("%s: step numbers must be contiguous from 1, got %d", prefix, step.StepNumber)
		}
		switch step.Type {
		case domain.StepApproval, domain.StepNotification, domain.StepConditional:
		default:
			add("%s: type %q is not supported", prefix, step.Type)
		}
		if step.RequiredApprovals < 0 {
			add("%s: requiredApprovals must not be negative", prefix)
		}
		if step.Timeout < 0 {
			add("%s: timeout must not be negative", prefix)
		}
		if step.Type == domain.StepApproval {
			if len(step.Approvers) == 0 {
				add("%s: approval steps need at least one approver rule", prefix)
			}
			explicit, roles := 0, 0
			for _, a := range step.Approvers {
				switch {
				case a.Kind == domain.ApproverUsers && len(a.UserIDs) > 0:
					explicit += len(a.UserIDs)
				case a.Kind == domain.ApproverRole && a.RoleID != "":
					roles++
				default:
					add("%s: approver rule must list users or name a role", prefix)
				}
			}
			if roles == 0 && explicit > 0 && step.Quorum() > explicit {
				add("%s: requiredApprovals %d exceeds the %d listed approvers", prefix, step.Quorum(), explicit)
			}
		}
		for _, c := range step.Conditions {
			if c.Field == "" {
				add("%s: condition field is required", prefix)
			}
			if !validOperator(c.Operator) {
				add("%s: condition operator %q is not supported", prefix, c.Operator)
			}
		}
		if step.SkipTo != 0 && (step.SkipTo <= step.StepNumber || step.SkipTo > total+1) {
			add("%s: skipTo must point forward to a step in 1..%d", prefix, total+1)
		}
		if step.Escalation != nil {
			switch step.Escalation.Mode {
			case domain.EscalationExtend, domain.EscalationReassign:
			default:
				add("%s: escalation mode %q is not supported", prefix, step.Escalation.Mode)
			}
		}
	}
	if len(problems) > 0 {
		return core.Validationf("invalid definition: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validateThreshold(v *float64, kind domain.ThresholdType, name string, add func(string, ...any)) {
	if v == nil {
		return
	}
	switch kind {
	case domain.ThresholdPercentage:
		if *v < 0 || *v > 100 {
			add("%s must be within 0..100 for percentage thresholds", name)
		}
	case domain.ThresholdCount:
		if *v < 1 || *v != float64(int(*v)) {
			add("%s must be a positive integer for count thresholds", name)
		}
	default:
		add("thresholdType %q is not supported", kind)
	}
}

func validOperator(op domain.ConditionOperator) bool {
	switch op {
	case domain.OpEq, domain.OpNe, domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte,
		domain.OpIn, domain.OpNotIn, domain.OpContains, domain.OpExists, domain.OpNotExists:
		return true
	}
	return false
}
