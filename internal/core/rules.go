package core

import "handoff/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in invariants.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewOwnedSetConsistencyRule())
	engine.Register(NewLockOnTransferRule())
	return engine
}
