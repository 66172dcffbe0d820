package core

import (
	"context"
	"fmt"

	"handoff/pkg/domain"
)

// Transfer moves id from from to to. The resource must be locked and the
// caller must be from or the resource's approved delegate. A blanket grant
// authorizes through the per-resource delegates it set, so it covers only
// what from held when it was issued. When to is a programmable receiver it must acknowledge with
// domain.AcceptanceCode, otherwise the transfer is discarded.
func (s *Service) Transfer(ctx context.Context, caller, from, to domain.Principal, id domain.ResourceID, data []byte) error {
	return s.mutate(ctx, OpTransfer, caller, func(ctx context.Context, tx domain.Transaction) (string, error) {
		if err := moveResource(tx, OpTransfer, caller, from, to, id); err != nil {
			return id.String(), err
		}
		return id.String(), s.acknowledge(ctx, tx, caller, from, to, id, data)
	})
}

// TransferUnchecked performs Transfer without consulting the recipient.
func (s *Service) TransferUnchecked(ctx context.Context, caller, from, to domain.Principal, id domain.ResourceID) error {
	return s.mutate(ctx, OpTransferUnchecked, caller, func(_ context.Context, tx domain.Transaction) (string, error) {
		return id.String(), moveResource(tx, OpTransferUnchecked, caller, from, to, id)
	})
}

func moveResource(tx domain.Transaction, op string, caller, from, to domain.Principal, id domain.ResourceID) error {
	r, err := findResource(tx, op, id)
	if err != nil {
		return err
	}
	if r.Owner != from {
		return domain.Fail(op, id, domain.ErrNotOwner)
	}
	if !r.Locked {
		return domain.Fail(op, id, domain.ErrNotLockedForTransfer)
	}
	if to == domain.NullPrincipal {
		return domain.Fail(op, id, domain.ErrTransferToNull)
	}
	if caller != from && caller != r.Approved {
		return domain.Fail(op, id, domain.ErrUnauthorized)
	}
	if _, err := setOwner(tx, id, to); err != nil {
		return domain.Fail(op, id, err)
	}
	tx.Emit(domain.Event{Kind: domain.EventOwnershipTransferred, ResourceID: id, From: from, To: to})
	return nil
}

// acknowledge runs the recipient's acceptance hook after every internal
// mutation is applied. The hook's context exposes the pending state and marks
// it as a callback, so guarded operations made with it fail with
// ErrReentrantCall. The hook must use that context: a guarded call made with
// an unrelated context waits on the writer lock this transfer holds.
func (s *Service) acknowledge(ctx context.Context, tx domain.Transaction, operator, from, to domain.Principal, id domain.ResourceID, data []byte) error {
	recv, ok := s.receivers.Resolve(to)
	if !ok {
		return nil
	}
	code, err := recv.OnReceive(enterCallback(ctx, tx.Snapshot()), operator, from, id, data)
	if err != nil {
		return domain.Fail(OpTransfer, id, fmt.Errorf("%w: %w", domain.ErrReceiverRejected, err))
	}
	if code != domain.AcceptanceCode {
		return domain.Fail(OpTransfer, id, fmt.Errorf("%w: got %#x", domain.ErrReceiverRejected, code))
	}
	return nil
}
