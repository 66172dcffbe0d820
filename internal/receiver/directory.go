// Package receiver resolves which principals are programmable recipients that
// must acknowledge incoming transfers.
package receiver

import (
	"context"
	"sync"

	"handoff/pkg/domain"
)

var _ domain.ReceiverResolver = (*Directory)(nil)

// Directory maps principals to their receiver hooks. Principals without an
// entry are plain identities and accept every transfer.
type Directory struct {
	mu        sync.RWMutex
	receivers map[domain.Principal]domain.Receiver
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{receivers: make(map[domain.Principal]domain.Receiver)}
}

// Register installs r for p, replacing any earlier hook. A nil r unregisters p.
func (d *Directory) Register(p domain.Principal, r domain.Receiver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r == nil {
		delete(d.receivers, p)
		return
	}
	d.receivers[p] = r
}

// Resolve implements domain.ReceiverResolver.
func (d *Directory) Resolve(p domain.Principal) (domain.Receiver, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.receivers[p]
	return r, ok
}

// Func adapts a plain function to domain.Receiver.
type Func func(ctx context.Context, operator, from domain.Principal, id domain.ResourceID, data []byte) ([4]byte, error)

// OnReceive implements domain.Receiver.
func (f Func) OnReceive(ctx context.Context, operator, from domain.Principal, id domain.ResourceID, data []byte) ([4]byte, error) {
	return f(ctx, operator, from, id, data)
}

// Accepting acknowledges every transfer.
var Accepting domain.Receiver = Func(func(context.Context, domain.Principal, domain.Principal, domain.ResourceID, []byte) ([4]byte, error) {
	return domain.AcceptanceCode, nil
})

// Rejecting answers with a zero code, which never matches the acceptance code.
var Rejecting domain.Receiver = Func(func(context.Context, domain.Principal, domain.Principal, domain.ResourceID, []byte) ([4]byte, error) {
	return [4]byte{}, nil
})
