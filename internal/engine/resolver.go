package engine

import (
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// Outcome is the local result of a step after a decision.
type Outcome string

const (
	OutcomePending  Outcome = "still_pending"
	OutcomeApproved Outcome = "step_approved"
	OutcomeRejected Outcome = "step_rejected"
)

// Tally counts the effective decisions of the resolved approver set.
type Tally struct {
	SetSize   int
	Approved  int
	Rejected  int
	Abstained int
}

func (t Tally) Undecided() int {
	return t.SetSize - t.Approved - t.Rejected - t.Abstained
}

type ResolveInput struct {
	Approvers []string
	Quorum    int
	Decisions []domain.Approval
	// New is folded in after Decisions and wins over an earlier decision by the same approver.
	New *domain.Approval
}

// EffectiveQuorum clamps the quorum into [1, setSize] for a non-empty set.
func EffectiveQuorum(quorum int, setSize int) int {
	if quorum < 1 {
		quorum = 1
	}
	if setSize > 0 && quorum > setSize {
		quorum = setSize
	}
	return quorum
}

// Count folds decisions into a tally. The latest decision per approver wins
// and decisions from users outside the set are ignored.
func Count(approvers []string, decisions []domain.Approval, latest *domain.Approval) Tally {
	inSet := make(map[string]bool, len(approvers))
	for _, a := range approvers {
		inSet[a] = true
	}
	effective := make(map[string]domain.Decision, len(approvers))
	apply := func(a domain.Approval) {
		if !inSet[a.ApproverID] || a.AfterResolution {
			return
		}
		effective[a.ApproverID] = a.Decision
	}
	for _, d := range decisions {
		apply(d)
	}
	if latest != nil {
		apply(*latest)
	}
	t := Tally{SetSize: len(inSet)}
	for _, d := range effective {
		switch d {
		case domain.DecisionApproved:
			t.Approved++
		case domain.DecisionRejected:
			t.Rejected++
		case domain.DecisionAbstained:
			t.Abstained++
		}
	}
	return t
}

// Resolve decides a step from its decisions. It is deterministic and has no
// side effects. With quorum N and set size M the step is approved once N
// approvals exist and rejected once N approvals are no longer reachable.
// An empty set stays pending until escalation changes it.
func Resolve(in ResolveInput) (Outcome, Tally) {
	t := Count(in.Approvers, in.Decisions, in.New)
	if t.SetSize == 0 {
		return OutcomePending, t
	}
	n := EffectiveQuorum(in.Quorum, t.SetSize)
	if t.Approved >= n {
		return OutcomeApproved, t
	}
	if t.SetSize-t.Rejected-t.Abstained < n {
		return OutcomeRejected, t
	}
	return OutcomePending, t
}

// EvaluateThreshold applies the auto-decision thresholds of a definition to
// a tally. Percentages are measured against the resolved set size.
func EvaluateThreshold(def *domain.WorkflowDefinition, t Tally) Outcome {
	if met(def.AutoApproveThreshold, def.ThresholdType, t.Approved, t.SetSize) {
		return OutcomeApproved
	}
	if met(def.AutoRejectThreshold, def.ThresholdType, t.Rejected, t.SetSize) {
		return OutcomeRejected
	}
	return OutcomePending
}

func met(threshold *float64, kind domain.ThresholdType, votes int, setSize int) bool {
	if threshold == nil || votes == 0 {
		return false
	}
	if kind == domain.ThresholdCount {
		return float64(votes) >= *threshold
	}
	if setSize == 0 {
		return false
	}
	return float64(votes)*100/float64(setSize) >= *threshold
}
