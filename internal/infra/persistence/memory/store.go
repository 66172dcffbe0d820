// Package memory provides an in-memory implementation of the registry
// persistence store used for tests, ephemeral environments and as the
// transactional core of the snapshotting sqlite/postgres stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"handoff/pkg/domain"

	"github.com/holiman/uint256"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Resource aliases domain.Resource.
	Resource = domain.Resource
	// ResourceID aliases domain.ResourceID.
	ResourceID = domain.ResourceID
	// Principal aliases domain.Principal.
	Principal = domain.Principal
	// Deployment aliases domain.Deployment.
	Deployment = domain.Deployment
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	resources   map[ResourceID]Resource
	owned       map[Principal][]ResourceID
	operators   map[Principal]map[Principal]bool
	deployments map[Principal]Deployment
	lastIssued  uint64
	balance     uint256.Int
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Resources   map[ResourceID]Resource    `json:"resources"`
	Owned       map[Principal][]ResourceID `json:"owned"`
	Operators   []domain.OperatorGrant     `json:"operators"`
	Deployments map[Principal]Deployment   `json:"deployments"`
	LastIssued  uint64                     `json:"last_issued"`
	Balance     string                     `json:"balance"`
}

func newMemoryState() *memoryState {
	return &memoryState{
		resources:   make(map[ResourceID]Resource),
		owned:       make(map[Principal][]ResourceID),
		operators:   make(map[Principal]map[Principal]bool),
		deployments: make(map[Principal]Deployment),
	}
}

func (s *memoryState) clone() *memoryState {
	cloned := newMemoryState()
	for k, v := range s.resources {
		cloned.resources[k] = v
	}
	for k, v := range s.owned {
		cloned.owned[k] = append([]ResourceID(nil), v...)
	}
	for owner, delegates := range s.operators {
		cp := make(map[Principal]bool, len(delegates))
		for d, granted := range delegates {
			cp[d] = granted
		}
		cloned.operators[owner] = cp
	}
	for k, v := range s.deployments {
		cloned.deployments[k] = v
	}
	cloned.lastIssued = s.lastIssued
	cloned.balance.Set(&s.balance)
	return cloned
}

func snapshotFromMemoryState(state *memoryState) Snapshot {
	s := Snapshot{
		Resources:   make(map[ResourceID]Resource, len(state.resources)),
		Owned:       make(map[Principal][]ResourceID, len(state.owned)),
		Deployments: make(map[Principal]Deployment, len(state.deployments)),
		LastIssued:  state.lastIssued,
		Balance:     state.balance.Dec(),
	}
	for k, v := range state.resources {
		s.Resources[k] = v
	}
	for k, v := range state.owned {
		s.Owned[k] = append([]ResourceID(nil), v...)
	}
	for owner, delegates := range state.operators {
		for d, granted := range delegates {
			if granted {
				s.Operators = append(s.Operators, domain.OperatorGrant{Owner: owner, Delegate: d, Granted: true})
			}
		}
	}
	sort.Slice(s.Operators, func(i, j int) bool {
		if s.Operators[i].Owner != s.Operators[j].Owner {
			return s.Operators[i].Owner.Hex() < s.Operators[j].Owner.Hex()
		}
		return s.Operators[i].Delegate.Hex() < s.Operators[j].Delegate.Hex()
	})
	for k, v := range state.deployments {
		s.Deployments[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) (*memoryState, error) {
	state := newMemoryState()
	for k, v := range s.Resources {
		state.resources[k] = v
	}
	for k, v := range s.Owned {
		if len(v) > 0 {
			state.owned[k] = append([]ResourceID(nil), v...)
		}
	}
	for _, g := range s.Operators {
		if !g.Granted {
			continue
		}
		if state.operators[g.Owner] == nil {
			state.operators[g.Owner] = make(map[Principal]bool)
		}
		state.operators[g.Owner][g.Delegate] = true
	}
	for k, v := range s.Deployments {
		state.deployments[k] = v
	}
	state.lastIssued = s.LastIssued
	if s.Balance != "" {
		bal, err := uint256.FromDecimal(s.Balance)
		if err != nil {
			return nil, fmt.Errorf("decode balance: %w", err)
		}
		state.balance.Set(bal)
	}
	return state, nil
}

// migrateSnapshot rebuilds derived indexes so older snapshots without an
// owned-set bucket, or with one that drifted, still load consistently.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Resources == nil {
		snapshot.Resources = map[ResourceID]Resource{}
	}
	if snapshot.Deployments == nil {
		snapshot.Deployments = map[Principal]Deployment{}
	}
	var highest uint64
	for id := range snapshot.Resources {
		if uint64(id) > highest {
			highest = uint64(id)
		}
	}
	if snapshot.LastIssued < highest {
		snapshot.LastIssued = highest
	}

	seen := make(map[ResourceID]bool, len(snapshot.Resources))
	owned := make(map[Principal][]ResourceID, len(snapshot.Owned))
	for owner, ids := range snapshot.Owned {
		for _, id := range ids {
			r, ok := snapshot.Resources[id]
			if !ok || r.Owner != owner || seen[id] {
				continue
			}
			seen[id] = true
			owned[owner] = append(owned[owner], id)
		}
	}
	missing := make([]ResourceID, 0)
	for id := range snapshot.Resources {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	for _, id := range missing {
		owner := snapshot.Resources[id].Owner
		owned[owner] = append(owned[owner], id)
	}
	snapshot.Owned = owned
	return snapshot
}

// Store provides an in-memory transactional store for the registry. Writers
// are serialized and operate on a private clone; committed state is swapped
// in whole and never mutated in place, so readers never observe a partially
// applied transaction.
type Store struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	state  *memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hook   CommitHook
}

// CommitHook receives the state a transaction is about to commit while the
// writer lock is still held. An error aborts the transaction and committed
// state stays as it was.
type CommitHook func(ctx context.Context, next Snapshot) error

// SetCommitHook installs hook; nil removes it.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.hook = hook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time source used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	return snapshotFromMemoryState(s.committed())
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	if err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

func (s *Store) committed() *memoryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

type transaction struct {
	state   *memoryState
	changes []Change
	events  []domain.Event
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces committed state only when fn succeeds, no blocking rule
// violation is reported and the commit hook accepts it; the captured events
// are returned on commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, []domain.Event, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &transaction{
		state: s.committed().clone(),
		now:   s.NowFunc()(),
	}

	if err := fn(tx); err != nil {
		return Result{}, nil, err
	}

	var result Result
	if engine := s.RulesEngine(); engine != nil {
		res, err := engine.Evaluate(ctx, newTransactionView(tx.state), tx.changes)
		if err != nil {
			return Result{}, nil, err
		}
		result = res
		if res.HasBlocking() {
			return res, nil, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil {
		if err := s.hook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, nil, fmt.Errorf("persist snapshot: %w", err)
		}
	}

	s.mu.Lock()
	s.state = tx.state
	s.mu.Unlock()
	return result, tx.events, nil
}

// View executes fn against a read-only view of committed state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	return fn(newTransactionView(s.committed()))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(tx.state)
}

func (tx *transaction) FindResource(id ResourceID) (Resource, bool) {
	return newTransactionView(tx.state).FindResource(id)
}

func (tx *transaction) ListResources() []Resource {
	return newTransactionView(tx.state).ListResources()
}

func (tx *transaction) OwnedBy(owner Principal) []ResourceID {
	return newTransactionView(tx.state).OwnedBy(owner)
}

func (tx *transaction) Holders() []Principal {
	return newTransactionView(tx.state).Holders()
}

func (tx *transaction) CountOwned(owner Principal) int {
	return len(tx.state.owned[owner])
}

func (tx *transaction) IsApprovedForAll(owner, delegate Principal) bool {
	return tx.state.operators[owner][delegate]
}

func (tx *transaction) FindDeployment(instance Principal) (Deployment, bool) {
	d, ok := tx.state.deployments[instance]
	return d, ok
}

func (tx *transaction) TotalIssued() uint64 { return tx.state.lastIssued }

func (tx *transaction) Balance() *domain.Amount {
	return new(uint256.Int).Set(&tx.state.balance)
}

// AllocateResourceID advances the issuance counter. The counter lives in the
// transactional state so an aborted transaction never consumes an identifier.
func (tx *transaction) AllocateResourceID() ResourceID {
	tx.state.lastIssued++
	return ResourceID(tx.state.lastIssued)
}

// InsertResource stores a newly issued resource and appends it to its owner's set.
func (tx *transaction) InsertResource(r Resource) (Resource, error) {
	if r.ID == domain.NoResource {
		return Resource{}, fmt.Errorf("resource id required")
	}
	if uint64(r.ID) > tx.state.lastIssued {
		return Resource{}, fmt.Errorf("resource %s was not allocated", r.ID)
	}
	if _, exists := tx.state.resources[r.ID]; exists {
		return Resource{}, fmt.Errorf("resource %s: %w", r.ID, domain.ErrAlreadyExists)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.resources[r.ID] = r
	tx.state.owned[r.Owner] = append(tx.state.owned[r.Owner], r.ID)
	tx.recordChange(Change{Entity: domain.EntityResource, Action: domain.ActionCreate, After: r})
	return r, nil
}

// UpdateResource mutates a resource, keeping the owned-set index in step with
// any owner change.
func (tx *transaction) UpdateResource(id ResourceID, mutator func(*Resource) error) (Resource, error) {
	current, ok := tx.state.resources[id]
	if !ok {
		return Resource{}, fmt.Errorf("resource %s: %w", id, domain.ErrNotFound)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Resource{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if current.Owner != before.Owner {
		tx.state.owned[before.Owner] = removeID(tx.state.owned[before.Owner], id)
		if len(tx.state.owned[before.Owner]) == 0 {
			delete(tx.state.owned, before.Owner)
		}
		tx.state.owned[current.Owner] = append(tx.state.owned[current.Owner], id)
	}
	tx.state.resources[id] = current
	tx.recordChange(Change{Entity: domain.EntityResource, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func removeID(ids []ResourceID, id ResourceID) []ResourceID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// SetApprovalForAll records or revokes a blanket delegation.
func (tx *transaction) SetApprovalForAll(owner, delegate Principal, granted bool) error {
	before := domain.OperatorGrant{Owner: owner, Delegate: delegate, Granted: tx.state.operators[owner][delegate]}
	if granted {
		if tx.state.operators[owner] == nil {
			tx.state.operators[owner] = make(map[Principal]bool)
		}
		tx.state.operators[owner][delegate] = true
	} else if delegates, ok := tx.state.operators[owner]; ok {
		delete(delegates, delegate)
		if len(delegates) == 0 {
			delete(tx.state.operators, owner)
		}
	}
	after := domain.OperatorGrant{Owner: owner, Delegate: delegate, Granted: granted}
	tx.recordChange(Change{Entity: domain.EntityOperator, Action: domain.ActionUpdate, Before: before, After: after})
	return nil
}

// InsertDeployment marks an instance address as occupied.
func (tx *transaction) InsertDeployment(d Deployment) (Deployment, error) {
	if _, exists := tx.state.deployments[d.Instance]; exists {
		return Deployment{}, fmt.Errorf("instance %s: %w", d.Instance.Hex(), domain.ErrAddressCollision)
	}
	d.DeployedAt = tx.now
	tx.state.deployments[d.Instance] = d
	tx.recordChange(Change{Entity: domain.EntityDeployment, Action: domain.ActionCreate, After: d})
	return d, nil
}

// Credit adds amount to the treasury balance.
func (tx *transaction) Credit(amount *domain.Amount) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	before := tx.state.balance.Dec()
	if _, overflow := tx.state.balance.AddOverflow(&tx.state.balance, amount); overflow {
		return fmt.Errorf("credit %s: balance overflow", amount.Dec())
	}
	tx.recordChange(Change{Entity: domain.EntityTreasury, Action: domain.ActionUpdate, Before: before, After: tx.state.balance.Dec()})
	return nil
}

// Debit removes amount from the treasury balance.
func (tx *transaction) Debit(amount *domain.Amount) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if tx.state.balance.Lt(amount) {
		return fmt.Errorf("debit %s of %s: %w", amount.Dec(), tx.state.balance.Dec(), domain.ErrInsufficientBalance)
	}
	before := tx.state.balance.Dec()
	tx.state.balance.Sub(&tx.state.balance, amount)
	tx.recordChange(Change{Entity: domain.EntityTreasury, Action: domain.ActionUpdate, Before: before, After: tx.state.balance.Dec()})
	return nil
}

// Emit captures an event to publish once the transaction commits.
func (tx *transaction) Emit(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = tx.now
	}
	tx.events = append(tx.events, ev)
}

// Events returns the events captured so far.
func (tx *transaction) Events() []domain.Event {
	return append([]domain.Event(nil), tx.events...)
}

// FindResource retrieves a resource by ID.
func (v transactionView) FindResource(id ResourceID) (Resource, bool) {
	r, ok := v.state.resources[id]
	return r, ok
}

// ListResources returns all resources ordered by ID.
func (v transactionView) ListResources() []Resource {
	out := make([]Resource, 0, len(v.state.resources))
	for _, r := range v.state.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OwnedBy returns the owner's holdings in acquisition order.
func (v transactionView) OwnedBy(owner Principal) []ResourceID {
	return append([]ResourceID(nil), v.state.owned[owner]...)
}

// Holders returns every principal with a non-empty holding set, ordered by address.
func (v transactionView) Holders() []Principal {
	out := make([]Principal, 0, len(v.state.owned))
	for owner, ids := range v.state.owned {
		if len(ids) > 0 {
			out = append(out, owner)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// CountOwned returns the size of the owner's holding set.
func (v transactionView) CountOwned(owner Principal) int {
	return len(v.state.owned[owner])
}

// IsApprovedForAll reports whether delegate holds a blanket delegation from owner.
func (v transactionView) IsApprovedForAll(owner, delegate Principal) bool {
	return v.state.operators[owner][delegate]
}

// FindDeployment retrieves the deployment occupying instance.
func (v transactionView) FindDeployment(instance Principal) (Deployment, bool) {
	d, ok := v.state.deployments[instance]
	return d, ok
}

// TotalIssued returns the highest identifier issued so far.
func (v transactionView) TotalIssued() uint64 { return v.state.lastIssued }

// Balance returns a copy of the treasury balance.
func (v transactionView) Balance() *domain.Amount {
	return new(uint256.Int).Set(&v.state.balance)
}
