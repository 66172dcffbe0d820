package core

import (
	"context"

	"handoff/pkg/domain"
)

// callbackScope marks a context handed to an acceptance callback. It carries
// the uncommitted state of the transfer that is calling out.
type callbackScope struct {
	view domain.TransactionView
}

type callbackScopeKey struct{}

// enterCallback derives the context passed to an acceptance callback.
func enterCallback(ctx context.Context, view domain.TransactionView) context.Context {
	return context.WithValue(ctx, callbackScopeKey{}, callbackScope{view: view})
}

func scopeOf(ctx context.Context) (callbackScope, bool) {
	scope, ok := ctx.Value(callbackScopeKey{}).(callbackScope)
	return scope, ok
}

// checkReentry rejects guarded operations issued from inside an acceptance
// callback. Callers on other goroutines are not affected and wait for the
// store's writer lock instead.
func checkReentry(ctx context.Context) error {
	if _, ok := scopeOf(ctx); ok {
		return domain.ErrReentrantCall
	}
	return nil
}

// pendingView returns the uncommitted state for reads made from inside an
// acceptance callback.
func pendingView(ctx context.Context) (domain.TransactionView, bool) {
	scope, ok := scopeOf(ctx)
	if !ok {
		return nil, false
	}
	return scope.view, true
}
