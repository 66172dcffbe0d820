package core

import (
	"context"

	"handoff/pkg/domain"
)

// ApproveDelegate names delegate as the single party allowed to transfer id on
// the owner's behalf. The null principal clears the approval. Approving locks
// the resource through the owner-only lock path.
func (s *Service) ApproveDelegate(ctx context.Context, caller domain.Principal, id domain.ResourceID, delegate domain.Principal) error {
	return s.mutate(ctx, OpApproveDelegate, caller, func(_ context.Context, tx domain.Transaction) (string, error) {
		if _, err := lockResource(tx, OpApproveDelegate, id, caller); err != nil {
			return id.String(), err
		}
		if err := setApproved(tx, id, delegate); err != nil {
			return id.String(), domain.Fail(OpApproveDelegate, id, err)
		}
		tx.Emit(domain.Event{Kind: domain.EventDelegateApproved, ResourceID: id, Owner: caller, Delegate: delegate})
		return id.String(), nil
	})
}

// ApproveAllDelegate grants or revokes delegate over every resource caller
// currently owns and records the blanket grant. Granting locks each resource;
// revoking clears the per-resource delegate but leaves the locks in place.
func (s *Service) ApproveAllDelegate(ctx context.Context, caller, delegate domain.Principal, granted bool) error {
	return s.mutate(ctx, OpApproveAllDelegate, caller, func(_ context.Context, tx domain.Transaction) (string, error) {
		entity := caller.Hex()
		for _, id := range tx.OwnedBy(caller) {
			approved := domain.NullPrincipal
			if granted {
				if _, err := lockResource(tx, OpApproveAllDelegate, id, caller); err != nil {
					return entity, err
				}
				approved = delegate
			}
			if err := setApproved(tx, id, approved); err != nil {
				return entity, domain.Fail(OpApproveAllDelegate, id, err)
			}
		}
		if err := tx.SetApprovalForAll(caller, delegate, granted); err != nil {
			return entity, domain.Fail(OpApproveAllDelegate, domain.NoResource, err)
		}
		tx.Emit(domain.Event{Kind: domain.EventBlanketApprovalChanged, Owner: caller, Delegate: delegate, Granted: granted})
		return entity, nil
	})
}

// GetApproved returns id's single delegate, or the null principal.
func (s *Service) GetApproved(ctx context.Context, id domain.ResourceID) (domain.Principal, error) {
	r, err := s.Resource(ctx, id)
	if err != nil {
		return domain.NullPrincipal, err
	}
	return r.Approved, nil
}

// IsApprovedForAll reports whether delegate holds a blanket grant from owner.
func (s *Service) IsApprovedForAll(ctx context.Context, owner, delegate domain.Principal) bool {
	var ok bool
	_ = s.read(ctx, func(v domain.TransactionView) error {
		ok = v.IsApprovedForAll(owner, delegate)
		return nil
	})
	return ok
}

func setApproved(tx domain.Transaction, id domain.ResourceID, delegate domain.Principal) error {
	_, err := tx.UpdateResource(id, func(r *domain.Resource) error {
		r.Approved = delegate
		return nil
	})
	return err
}
