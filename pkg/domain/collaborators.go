package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/crypto"
)

// AddressSpace reports which instance addresses are already occupied. The
// transaction passed to a Deployer satisfies it so collisions are judged
// against the same state the creation commits to.
type AddressSpace interface {
	FindDeployment(instance Principal) (Deployment, bool)
}

// Deployer deterministically instantiates a sub-resource for (salt, recipe).
// It returns ErrAddressCollision when the derived address is occupied.
type Deployer interface {
	Predict(salt Salt, recipe []byte) Principal
	Deploy(ctx context.Context, space AddressSpace, salt Salt, recipe []byte) (Principal, error)
}

// MetadataStore persists descriptive records keyed by instance address.
type MetadataStore interface {
	// Create fails with ErrAlreadyExists when subject already has a record.
	Create(ctx context.Context, subject Principal, record Metadata) error
	// Fetch fails with ErrNotFound when subject has no record.
	Fetch(ctx context.Context, subject Principal) (Metadata, error)
	// Remove deletes a record; used only to compensate an aborted creation.
	Remove(ctx context.Context, subject Principal) error
}

// Receiver is implemented by programmable principals that must acknowledge receipt.
type Receiver interface {
	OnReceive(ctx context.Context, operator, from Principal, id ResourceID, data []byte) ([4]byte, error)
}

// ReceiverResolver distinguishes programmable principals from plain identities.
type ReceiverResolver interface {
	Resolve(p Principal) (Receiver, bool)
}

// AcceptanceSignature is the receiver hook signature whose selector acknowledges a transfer.
const AcceptanceSignature = "onERC721Received(address,address,uint256,bytes)"

// AcceptanceCode is the acknowledgment a receiver must echo (0x150b7a02).
var AcceptanceCode = selector(AcceptanceSignature)

func selector(signature string) [4]byte {
	var out [4]byte
	copy(out[:], crypto.Keccak256([]byte(signature))[:4])
	return out
}
