package core

import (
	"context"
	"fmt"

	"handoff/pkg/domain"
)

// NewOwnedSetConsistencyRule returns the blocking rule that keeps every owner's
// holding set equal to the resources recording that owner.
func NewOwnedSetConsistencyRule() domain.Rule {
	return ownedSetConsistencyRule{}
}

type ownedSetConsistencyRule struct{}

func (ownedSetConsistencyRule) Name() string { return "owned_set_consistency" }

func (ownedSetConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	indexed := make(map[domain.ResourceID]domain.Principal)
	for _, holder := range view.Holders() {
		ids := view.OwnedBy(holder)
		if len(ids) != view.CountOwned(holder) {
			res.Violations = append(res.Violations, ownedSetViolation(domain.NoResource,
				fmt.Sprintf("holder %s count %d disagrees with %d held ids", holder.Hex(), view.CountOwned(holder), len(ids))))
		}
		for _, id := range ids {
			if prev, dup := indexed[id]; dup {
				res.Violations = append(res.Violations, ownedSetViolation(id,
					fmt.Sprintf("resource %s listed under %s and %s", id, prev.Hex(), holder.Hex())))
				continue
			}
			indexed[id] = holder
			r, ok := view.FindResource(id)
			if !ok {
				res.Violations = append(res.Violations, ownedSetViolation(id,
					fmt.Sprintf("holder %s lists unknown resource %s", holder.Hex(), id)))
				continue
			}
			if r.Owner != holder {
				res.Violations = append(res.Violations, ownedSetViolation(id,
					fmt.Sprintf("resource %s owned by %s but listed under %s", id, r.Owner.Hex(), holder.Hex())))
			}
		}
	}
	for _, r := range view.ListResources() {
		if _, ok := indexed[r.ID]; !ok {
			res.Violations = append(res.Violations, ownedSetViolation(r.ID,
				fmt.Sprintf("resource %s missing from %s holdings", r.ID, r.Owner.Hex())))
		}
	}
	return res, nil
}

func ownedSetViolation(id domain.ResourceID, message string) domain.Violation {
	return domain.Violation{
		Rule:       "owned_set_consistency",
		Severity:   domain.SeverityBlock,
		Message:    message,
		Entity:     domain.EntityResource,
		ResourceID: id,
	}
}
