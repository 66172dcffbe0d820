package core

import (
	"context"
	"fmt"

	"handoff/pkg/domain"
)

// NewLockOnTransferRule returns the blocking rule that rejects any change
// moving a resource to a new owner while it is unlocked.
func NewLockOnTransferRule() domain.Rule {
	return lockOnTransferRule{}
}

type lockOnTransferRule struct{}

func (lockOnTransferRule) Name() string { return "lock_on_transfer" }

func (lockOnTransferRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityResource || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := change.Before.(domain.Resource)
		if !ok {
			continue
		}
		after, ok := change.After.(domain.Resource)
		if !ok || before.Owner == after.Owner {
			continue
		}
		current, ok := view.FindResource(after.ID)
		if !ok || current.Locked {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:       "lock_on_transfer",
			Severity:   domain.SeverityBlock,
			Message:    fmt.Sprintf("resource %s changed owner to %s while unlocked", after.ID, after.Owner.Hex()),
			Entity:     domain.EntityResource,
			ResourceID: after.ID,
		})
	}
	return res, nil
}
