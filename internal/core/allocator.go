package core

import (
	"context"

	"handoff/pkg/domain"
)

// allocate issues the next resource identifier. The counter is a cell of the
// transactional state, so identifiers start at 1, strictly increase, and an
// aborted transaction leaves the counter untouched.
func allocate(tx domain.Transaction) domain.ResourceID {
	return tx.AllocateResourceID()
}

// TotalIssued reports how many identifiers have been issued.
func (s *Service) TotalIssued(ctx context.Context) uint64 {
	var total uint64
	_ = s.read(ctx, func(v domain.TransactionView) error {
		total = v.TotalIssued()
		return nil
	})
	return total
}
