package stats

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

const (
	DefaultWindowDays = 30
	maxWindowDays     = 3650
)

// Service answers stats queries from the read model only.
type Service struct {
	store *repository.Store
	clock core.Clock
}

func NewService(store *repository.Store, clock core.Clock) *Service {
	if clock == nil {
		clock = core.NewRealClock()
	}
	return &Service{store: store, clock: clock}
}

// GetStats aggregates instances started within the last windowDays days,
// optionally for one definition.
func (s *Service) GetStats(ctx context.Context, p core.Principal, definitionID string, windowDays int) (*domain.WorkflowStats, error) {
	if windowDays == 0 {
		windowDays = DefaultWindowDays
	}
	if windowDays < 0 || windowDays > maxWindowDays {
		return nil, core.Validationf("windowDays must be within 1..%d", maxWindowDays).WithOp("getStats")
	}
	var out *domain.WorkflowStats
	err := backoff.Retry(func() error {
		st, err := s.compute(ctx, p, definitionID, windowDays)
		if err == nil {
			out = st
			return nil
		}
		if core.IsKind(err, core.KindUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx))
	return out, err
}

func (s *Service) compute(ctx context.Context, p core.Principal, definitionID string, windowDays int) (*domain.WorkflowStats, error) {
	if definitionID != "" {
		def, err := s.store.Definitions.FindByID(ctx, definitionID)
		if err != nil {
			return nil, err
		}
		if def.TenantID != p.TenantID {
			return nil, core.Forbiddenf("definition %s belongs to another tenant", definitionID).WithOp("getStats")
		}
	}
	now := s.clock.Now()
	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	agg, err := s.store.Facts.AggregateInstances(ctx, p.TenantID, definitionID, since)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.Facts.AggregateResponses(ctx, p.TenantID, definitionID, since)
	if err != nil {
		return nil, err
	}
	st := &domain.WorkflowStats{
		TenantID:         p.TenantID,
		DefinitionID:     definitionID,
		WindowDays:       windowDays,
		Total:            agg.Total,
		Pending:          agg.Pending,
		InProgress:       agg.InProgress,
		Approved:         agg.Approved,
		Rejected:         agg.Rejected,
		Cancelled:        agg.Cancelled,
		Expired:          agg.Expired,
		ApproverResponse: responses,
		GeneratedAt:      now,
	}
	if agg.Total > 0 {
		completed := agg.Approved + agg.Rejected + agg.Cancelled + agg.Expired
		st.CompletionRate = float64(completed) / float64(agg.Total)
	}
	if agg.AvgDuration != nil {
		st.AvgCompletionHours = *agg.AvgDuration / 3600
	}
	if agg.SLAMeasured > 0 {
		ratio := float64(agg.SLAMet) / float64(agg.SLAMeasured)
		st.SLAMetRatio = &ratio
	}
	return st, nil
}
