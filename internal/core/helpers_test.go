package core

import (
	"context"
	"testing"

	"handoff/pkg/domain"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca401")
	dave  = common.HexToAddress("0x000000000000000000000000000000000000da4e")
	root  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
)

var recipe = []byte("registry-instance-v1")

func saltOf(n byte) domain.Salt {
	var s domain.Salt
	s[31] = n
	return s
}

func createFor(t *testing.T, svc *Service, owner domain.Principal, n byte) domain.Resource {
	t.Helper()
	r, err := svc.CreateResource(context.Background(), owner, saltOf(n), recipe, domain.Metadata{Name: "instance"}, svc.CreationFee())
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	return r
}

func mustLock(t *testing.T, svc *Service, owner domain.Principal, id domain.ResourceID) {
	t.Helper()
	if err := svc.Lock(context.Background(), owner, id); err != nil {
		t.Fatalf("lock %s: %v", id, err)
	}
}

func ownerOf(t *testing.T, svc *Service, id domain.ResourceID) domain.Principal {
	t.Helper()
	owner, err := svc.OwnerOf(context.Background(), id)
	if err != nil {
		t.Fatalf("owner of %s: %v", id, err)
	}
	return owner
}

func eventKinds(events []domain.Event) []domain.EventKind {
	out := make([]domain.EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

type blockCreationRule struct{}

func (blockCreationRule) Name() string { return "block_creation" }

func (blockCreationRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity == domain.EntityResource && change.Action == domain.ActionCreate {
			res.Violations = append(res.Violations, domain.Violation{Rule: "block_creation", Severity: domain.SeverityBlock})
		}
	}
	return res, nil
}
