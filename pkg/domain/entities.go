// Package domain defines the registry's persistent records, value types,
// collaborator contracts and rule evaluation primitives used by handoff.
package domain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ResourceID identifies an issued resource. Zero is reserved for "unissued".
type ResourceID uint64

// NoResource is the reserved unissued identifier.
const NoResource ResourceID = 0

// String renders the identifier in base 10.
func (id ResourceID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseResourceID parses a base-10 identifier, rejecting the reserved zero value.
func ParseResourceID(s string) (ResourceID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NoResource, fmt.Errorf("parse resource id %q: %w", s, err)
	}
	if v == 0 {
		return NoResource, fmt.Errorf("parse resource id %q: zero is reserved", s)
	}
	return ResourceID(v), nil
}

// Principal is any identity able to own, receive or be delegated resources.
type Principal = common.Address

// NullPrincipal is the null identity. Approving it clears a delegation.
var NullPrincipal = Principal{}

// ParsePrincipal decodes a 0x-prefixed hex address.
func ParsePrincipal(s string) (Principal, error) {
	if !common.IsHexAddress(s) {
		return NullPrincipal, fmt.Errorf("invalid principal %q", s)
	}
	return common.HexToAddress(s), nil
}

// Salt is the caller supplied uniqueness input to deterministic deployment.
type Salt [32]byte

// Hex renders the salt as 0x-prefixed hex.
func (s Salt) Hex() string { return "0x" + hex.EncodeToString(s[:]) }

// MarshalText implements encoding.TextMarshaler.
func (s Salt) MarshalText() ([]byte, error) { return []byte(s.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Salt) UnmarshalText(text []byte) error {
	parsed, err := ParseSalt(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSalt decodes up to 32 bytes of hex into a left-padded salt.
func ParseSalt(s string) (Salt, error) {
	var out Salt
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return out, fmt.Errorf("parse salt: %w", err)
	}
	if len(b) > len(out) {
		return out, fmt.Errorf("parse salt: %d bytes exceeds 32", len(b))
	}
	copy(out[len(out)-len(b):], b)
	return out, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// EntityType identifies the type of record touched by a Change.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityResource identifies an issued resource record.
	EntityResource EntityType = "resource"
	// EntityDeployment identifies a deployed instance record.
	EntityDeployment EntityType = "deployment"
	// EntityOperator identifies a blanket delegation record.
	EntityOperator EntityType = "operator"
	// EntityTreasury identifies the fee balance.
	EntityTreasury EntityType = "treasury"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Resource is the registry's record of an issued identifier.
type Resource struct {
	ID         ResourceID  `json:"id"`
	Owner      Principal   `json:"owner"`
	Locked     bool        `json:"locked"`
	Approved   Principal   `json:"approved"`
	Instance   Principal   `json:"instance"`
	Salt       Salt        `json:"salt"`
	RecipeHash common.Hash `json:"recipe_hash"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Deployment records an occupied instance address.
type Deployment struct {
	Instance   Principal   `json:"instance"`
	Salt       Salt        `json:"salt"`
	RecipeHash common.Hash `json:"recipe_hash"`
	ResourceID ResourceID  `json:"resource_id"`
	DeployedAt time.Time   `json:"deployed_at"`
}

// OperatorGrant records a blanket delegation from an owner to a delegate.
type OperatorGrant struct {
	Owner    Principal `json:"owner"`
	Delegate Principal `json:"delegate"`
	Granted  bool      `json:"granted"`
}

// Metadata is the descriptive record persisted for a deployed instance.
// The structured-text blobs are opaque to the registry.
type Metadata struct {
	Subject     Principal  `json:"subject"`
	ResourceID  ResourceID `json:"resource_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	ExternalURL string     `json:"external_url"`
	Category    string     `json:"category"`
	Creator     string     `json:"creator"`
	Network     string     `json:"network"`
	SourceCode  string     `json:"source_code"`
	License     string     `json:"license"`
	Attributes  string     `json:"attributes"`
	Functions   string     `json:"functions"`
	Events      string     `json:"events"`
	Mappings    string     `json:"mappings"`
}

// Amount is a fee or balance denominated in the registry's smallest unit.
type Amount = uint256.Int

// NewAmount returns v as an Amount.
func NewAmount(v uint64) *Amount { return uint256.NewInt(v) }

// ParseAmount decodes a base-10 amount. The empty string is zero.
func ParseAmount(s string) (*Amount, error) {
	if s == "" {
		return new(Amount), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the audit trail. Resources are never deleted.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule       string
	Severity   Severity
	Message    string
	Entity     EntityType
	ResourceID ResourceID
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
