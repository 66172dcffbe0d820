package core

import (
	"context"
	"fmt"

	"handoff/pkg/domain"
)

func findResource(view domain.TransactionView, op string, id domain.ResourceID) (domain.Resource, error) {
	r, ok := view.FindResource(id)
	if !ok {
		return domain.Resource{}, domain.Fail(op, id, domain.ErrNotFound)
	}
	return r, nil
}

// OwnerOf returns the current owner of id.
func (s *Service) OwnerOf(ctx context.Context, id domain.ResourceID) (domain.Principal, error) {
	r, err := s.Resource(ctx, id)
	if err != nil {
		return domain.NullPrincipal, err
	}
	return r.Owner, nil
}

// Resource returns the full registry record for id.
func (s *Service) Resource(ctx context.Context, id domain.ResourceID) (domain.Resource, error) {
	var r domain.Resource
	err := s.read(ctx, func(v domain.TransactionView) error {
		var err error
		r, err = findResource(v, "resource", id)
		return err
	})
	return r, err
}

// CountOwned returns the size of owner's holding set.
func (s *Service) CountOwned(ctx context.Context, owner domain.Principal) int {
	var n int
	_ = s.read(ctx, func(v domain.TransactionView) error {
		n = v.CountOwned(owner)
		return nil
	})
	return n
}

// ResourcesOf returns owner's holdings in owned-set order.
func (s *Service) ResourcesOf(ctx context.Context, owner domain.Principal) []domain.Resource {
	var out []domain.Resource
	_ = s.read(ctx, func(v domain.TransactionView) error {
		ids := v.OwnedBy(owner)
		out = make([]domain.Resource, 0, len(ids))
		for _, id := range ids {
			if r, ok := v.FindResource(id); ok {
				out = append(out, r)
			}
		}
		return nil
	})
	return out
}

// Lock marks id as transferable. Only the owner may lock; locking a locked
// resource succeeds without change.
func (s *Service) Lock(ctx context.Context, caller domain.Principal, id domain.ResourceID) error {
	return s.mutate(ctx, OpLock, caller, func(_ context.Context, tx domain.Transaction) (string, error) {
		_, err := lockResource(tx, OpLock, id, caller)
		return id.String(), err
	})
}

// Unlock clears the lock flag. Only the owner may unlock, and only a locked resource.
func (s *Service) Unlock(ctx context.Context, caller domain.Principal, id domain.ResourceID) error {
	return s.mutate(ctx, OpUnlock, caller, func(_ context.Context, tx domain.Transaction) (string, error) {
		r, err := findResource(tx, OpUnlock, id)
		if err != nil {
			return id.String(), err
		}
		if r.Owner != caller {
			return id.String(), domain.Fail(OpUnlock, id, domain.ErrUnauthorized)
		}
		if !r.Locked {
			return id.String(), domain.Fail(OpUnlock, id, domain.ErrNotLocked)
		}
		if err := setLock(tx, id, false); err != nil {
			return id.String(), err
		}
		tx.Emit(domain.Event{Kind: domain.EventLockChanged, ResourceID: id, Owner: caller, Locked: false})
		return id.String(), nil
	})
}

// recordCreation inserts a freshly issued resource, unlocked and owned by owner.
func recordCreation(tx domain.Transaction, r domain.Resource) (domain.Resource, error) {
	r.Locked = false
	r.Approved = domain.NullPrincipal
	created, err := tx.InsertResource(r)
	if err != nil {
		return domain.Resource{}, domain.Fail(OpCreateResource, r.ID, err)
	}
	return created, nil
}

// lockResource is the owner-only lock path shared by Lock and the approval
// operations. It emits a lock change only when the flag flips.
func lockResource(tx domain.Transaction, op string, id domain.ResourceID, caller domain.Principal) (domain.Resource, error) {
	r, err := findResource(tx, op, id)
	if err != nil {
		return domain.Resource{}, err
	}
	if r.Owner != caller {
		return domain.Resource{}, domain.Fail(op, id, domain.ErrUnauthorized)
	}
	if r.Locked {
		return r, nil
	}
	if err := setLock(tx, id, true); err != nil {
		return domain.Resource{}, err
	}
	r.Locked = true
	tx.Emit(domain.Event{Kind: domain.EventLockChanged, ResourceID: id, Owner: caller, Locked: true})
	return r, nil
}

func setLock(tx domain.Transaction, id domain.ResourceID, locked bool) error {
	_, err := tx.UpdateResource(id, func(r *domain.Resource) error {
		r.Locked = locked
		return nil
	})
	return err
}

// setOwner reassigns id and drops its single-delegate approval. The lock flag
// is left as is.
func setOwner(tx domain.Transaction, id domain.ResourceID, owner domain.Principal) (domain.Resource, error) {
	r, err := tx.UpdateResource(id, func(r *domain.Resource) error {
		r.Owner = owner
		r.Approved = domain.NullPrincipal
		return nil
	})
	if err != nil {
		return domain.Resource{}, fmt.Errorf("set owner: %w", err)
	}
	return r, nil
}
