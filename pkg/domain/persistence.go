package domain

import "context"

// TransactionView provides read-only access to registry state.
type TransactionView interface {
	FindResource(id ResourceID) (Resource, bool)
	ListResources() []Resource
	OwnedBy(owner Principal) []ResourceID
	Holders() []Principal
	CountOwned(owner Principal) int
	IsApprovedForAll(owner, delegate Principal) bool
	FindDeployment(instance Principal) (Deployment, bool)
	TotalIssued() uint64
	Balance() *Amount
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Nothing applied through a Transaction is visible to
// readers until the enclosing RunInTransaction returns successfully.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	// AllocateResourceID advances the issuance counter and returns the next identifier.
	AllocateResourceID() ResourceID
	InsertResource(Resource) (Resource, error)
	UpdateResource(id ResourceID, mutator func(*Resource) error) (Resource, error)
	SetApprovalForAll(owner, delegate Principal, granted bool) error
	InsertDeployment(Deployment) (Deployment, error)
	Credit(amount *Amount) error
	Debit(amount *Amount) error
	Emit(Event)
	Events() []Event
}

// PersistentStore is the minimal abstraction over durable backends used by the core.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, []Event, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
