package core

import (
	"context"

	"handoff/pkg/domain"

	"github.com/holiman/uint256"
)

// Withdraw pays amount of the collected creation fees out to to. Only the
// configured admin may withdraw.
func (s *Service) Withdraw(ctx context.Context, caller, to domain.Principal, amount *domain.Amount) error {
	return s.mutate(ctx, OpWithdraw, caller, func(_ context.Context, tx domain.Transaction) (string, error) {
		entity := to.Hex()
		if s.admin == domain.NullPrincipal || caller != s.admin {
			return entity, domain.Fail(OpWithdraw, domain.NoResource, domain.ErrUnauthorized)
		}
		if to == domain.NullPrincipal {
			return entity, domain.Fail(OpWithdraw, domain.NoResource, domain.ErrTransferToNull)
		}
		if amount == nil {
			amount = new(uint256.Int)
		}
		if err := tx.Debit(amount); err != nil {
			return entity, domain.Fail(OpWithdraw, domain.NoResource, err)
		}
		tx.Emit(domain.Event{Kind: domain.EventFundsWithdrawn, To: to, Amount: amount.Dec()})
		return entity, nil
	})
}

// Balance returns the collected, not yet withdrawn fees.
func (s *Service) Balance(ctx context.Context) *domain.Amount {
	balance := new(uint256.Int)
	_ = s.read(ctx, func(v domain.TransactionView) error {
		balance.Set(v.Balance())
		return nil
	})
	return balance
}
