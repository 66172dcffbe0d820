package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"handoff/internal/receiver"
	"handoff/pkg/domain"
)

func TestTransferToRejectingReceiverIsDiscarded(t *testing.T) {
	cases := []struct {
		name string
		hook domain.Receiver
	}{
		{"wrong code", receiver.Rejecting},
		{"hook error", receiver.Func(func(context.Context, domain.Principal, domain.Principal, domain.ResourceID, []byte) ([4]byte, error) {
			return domain.AcceptanceCode, errors.New("not today")
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := receiver.NewDirectory()
			dir.Register(carol, tc.hook)
			log := NewEventLog(0)
			svc := NewInMemoryService(nil, WithReceivers(dir), WithEventSubscriber(log))
			ctx := context.Background()
			r := createFor(t, svc, alice, 1)
			mustLock(t, svc, alice, r.ID)
			before := len(log.Events(r.ID))

			err := svc.Transfer(ctx, alice, alice, carol, r.ID, nil)
			if !errors.Is(err, domain.ErrReceiverRejected) {
				t.Fatalf("expected ErrReceiverRejected, got %v", err)
			}
			if ownerOf(t, svc, r.ID) != alice || svc.CountOwned(ctx, carol) != 0 {
				t.Fatalf("rejected transfer must leave ownership untouched")
			}
			if got := len(log.Events(r.ID)); got != before {
				t.Fatalf("rejected transfer published %d events", got-before)
			}
		})
	}
}

func TestTransferUncheckedSkipsReceiver(t *testing.T) {
	dir := receiver.NewDirectory()
	dir.Register(carol, receiver.Rejecting)
	svc := NewInMemoryService(nil, WithReceivers(dir))
	ctx := context.Background()
	r := createFor(t, svc, alice, 1)
	mustLock(t, svc, alice, r.ID)
	if err := svc.TransferUnchecked(ctx, alice, alice, carol, r.ID); err != nil {
		t.Fatalf("unchecked transfer: %v", err)
	}
	if ownerOf(t, svc, r.ID) != carol {
		t.Fatalf("expected carol to own %s", r.ID)
	}
	if err := svc.TransferUnchecked(ctx, alice, carol, bob, r.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("unchecked transfer must still authorize, got %v", err)
	}
}

func TestReceiverObservesPendingStateAndCannotReenter(t *testing.T) {
	dir := receiver.NewDirectory()
	svc := NewInMemoryService(nil, WithReceivers(dir))
	ctx := context.Background()
	r := createFor(t, svc, alice, 1)
	other := createFor(t, svc, carol, 2)
	mustLock(t, svc, alice, r.ID)

	var (
		seenOwner    domain.Principal
		seenLocked   bool
		seenOperator domain.Principal
		seenData     string
		reentry      []error
	)
	dir.Register(carol, receiver.Func(func(ctx context.Context, operator, from domain.Principal, id domain.ResourceID, data []byte) ([4]byte, error) {
		seenOperator = operator
		seenData = string(data)
		owner, err := svc.OwnerOf(ctx, id)
		if err != nil {
			return [4]byte{}, err
		}
		seenOwner = owner
		res, _ := svc.Resource(ctx, id)
		seenLocked = res.Locked
		reentry = append(reentry,
			svc.Unlock(ctx, carol, id),
			svc.Lock(ctx, carol, other.ID),
			svc.Transfer(ctx, carol, carol, from, id, nil),
			svc.ApproveAllDelegate(ctx, carol, bob, true),
		)
		_, err = svc.CreateResource(ctx, carol, saltOf(7), recipe, domain.Metadata{}, svc.CreationFee())
		reentry = append(reentry, err)
		return domain.AcceptanceCode, nil
	}))

	if err := svc.Transfer(ctx, alice, alice, carol, r.ID, []byte("hello")); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if seenOwner != carol || !seenLocked {
		t.Fatalf("callback must observe pending owner and lock, got %s locked=%v", seenOwner.Hex(), seenLocked)
	}
	if seenOperator != alice || seenData != "hello" {
		t.Fatalf("unexpected callback arguments operator=%s data=%q", seenOperator.Hex(), seenData)
	}
	for i, err := range reentry {
		if !errors.Is(err, domain.ErrReentrantCall) {
			t.Fatalf("reentrant call %d: expected ErrReentrantCall, got %v", i, err)
		}
	}
	if ownerOf(t, svc, r.ID) != carol {
		t.Fatalf("expected committed transfer")
	}
	if got, _ := svc.Resource(ctx, other.ID); got.Locked {
		t.Fatalf("reentrant lock leaked into state")
	}
	if svc.TotalIssued(ctx) != 2 {
		t.Fatalf("reentrant creation leaked into state")
	}

	if err := svc.Unlock(ctx, carol, r.ID); err != nil {
		t.Fatalf("guard must be released after the callback: %v", err)
	}
}

func TestCommittedReadsIgnorePendingState(t *testing.T) {
	dir := receiver.NewDirectory()
	svc := NewInMemoryService(nil, WithReceivers(dir))
	r := createFor(t, svc, alice, 1)
	mustLock(t, svc, alice, r.ID)
	var committedOwner domain.Principal
	dir.Register(bob, receiver.Func(func(context.Context, domain.Principal, domain.Principal, domain.ResourceID, []byte) ([4]byte, error) {
		committedOwner = ownerOf(t, svc, r.ID)
		return domain.AcceptanceCode, nil
	}))
	if err := svc.Transfer(context.Background(), alice, alice, bob, r.ID, nil); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if committedOwner != alice {
		t.Fatalf("reads without the callback context must see committed state, got %s", committedOwner.Hex())
	}
}

func TestIndependentCallersWaitForRunningCallback(t *testing.T) {
	dir := receiver.NewDirectory()
	svc := NewInMemoryService(nil, WithReceivers(dir))
	ctx := context.Background()
	r := createFor(t, svc, alice, 1)
	own := createFor(t, svc, carol, 2)
	mustLock(t, svc, alice, r.ID)

	entered := make(chan struct{})
	release := make(chan struct{})
	dir.Register(bob, receiver.Func(func(context.Context, domain.Principal, domain.Principal, domain.ResourceID, []byte) ([4]byte, error) {
		close(entered)
		<-release
		return domain.AcceptanceCode, nil
	}))

	transferDone := make(chan error, 1)
	go func() { transferDone <- svc.Transfer(ctx, alice, alice, bob, r.ID, nil) }()
	<-entered

	if owner := ownerOf(t, svc, r.ID); owner != alice {
		t.Fatalf("readers outside the callback must see committed state, got %s", owner.Hex())
	}
	lockDone := make(chan error, 1)
	go func() { lockDone <- svc.Lock(ctx, carol, own.ID) }()
	select {
	case err := <-lockDone:
		t.Fatalf("independent writer must wait for the running transfer, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-transferDone; err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := <-lockDone; err != nil {
		t.Fatalf("independent lock must succeed once the transfer commits, got %v", err)
	}
	if got, _ := svc.Resource(ctx, own.ID); !got.Locked {
		t.Fatalf("expected carol's resource locked")
	}
	if ownerOf(t, svc, r.ID) != bob {
		t.Fatalf("expected bob to own %s", r.ID)
	}
}
