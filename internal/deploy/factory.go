// Package deploy derives instance addresses for sub-resources the same way a
// CREATE2 factory would: keccak256(0xff ++ factory ++ salt ++ keccak256(recipe)).
package deploy

import (
	"context"
	"fmt"

	"handoff/pkg/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var _ domain.Deployer = (*Factory)(nil)

// Factory is a deterministic domain.Deployer anchored at a factory address.
type Factory struct {
	address common.Address
}

// NewFactory returns a deployer deriving instances from address.
func NewFactory(address common.Address) *Factory { return &Factory{address: address} }

// Address returns the factory anchor.
func (f *Factory) Address() common.Address { return f.address }

// RecipeHash returns the digest that identifies a recipe.
func RecipeHash(recipe []byte) common.Hash { return crypto.Keccak256Hash(recipe) }

// Predict returns the address Deploy would produce for (salt, recipe).
func (f *Factory) Predict(salt domain.Salt, recipe []byte) domain.Principal {
	return crypto.CreateAddress2(f.address, salt, RecipeHash(recipe).Bytes())
}

// Deploy derives the instance address and checks it is unoccupied in space.
func (f *Factory) Deploy(ctx context.Context, space domain.AddressSpace, salt domain.Salt, recipe []byte) (domain.Principal, error) {
	if err := ctx.Err(); err != nil {
		return domain.NullPrincipal, fmt.Errorf("%w: %w", domain.ErrDeploymentFailed, err)
	}
	if len(recipe) == 0 {
		return domain.NullPrincipal, fmt.Errorf("%w: empty recipe", domain.ErrDeploymentFailed)
	}
	instance := f.Predict(salt, recipe)
	if existing, ok := space.FindDeployment(instance); ok {
		return domain.NullPrincipal, fmt.Errorf("instance %s held by resource %s: %w", instance.Hex(), existing.ResourceID, domain.ErrAddressCollision)
	}
	return instance, nil
}
