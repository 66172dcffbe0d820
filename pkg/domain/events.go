package domain

import "time"

// EventKind names an externally observable registry signal.
type EventKind string

// Registry event kinds.
const (
	EventResourceCreated        EventKind = "resource_created"
	EventOwnershipTransferred   EventKind = "ownership_transferred"
	EventLockChanged            EventKind = "lock_changed"
	EventDelegateApproved       EventKind = "delegate_approved"
	EventBlanketApprovalChanged EventKind = "blanket_approval_changed"
	EventFundsWithdrawn         EventKind = "funds_withdrawn"
)

// Event is emitted for external consumers once the producing transaction commits.
// Fields not meaningful for a kind are left zero.
type Event struct {
	Kind       EventKind  `json:"kind"`
	ResourceID ResourceID `json:"resource_id,omitempty"`
	From       Principal  `json:"from"`
	To         Principal  `json:"to"`
	Owner      Principal  `json:"owner"`
	Delegate   Principal  `json:"delegate"`
	Instance   Principal  `json:"instance"`
	Locked     bool       `json:"locked"`
	Granted    bool       `json:"granted"`
	Amount     string     `json:"amount,omitempty"`
	At         time.Time  `json:"at"`
}
