package core

import (
	"context"
	"errors"
	"fmt"

	"handoff/internal/deploy"
	"handoff/pkg/domain"
)

// CreateResource deploys an instance for (salt, recipe), issues a fresh
// identifier owned by caller, collects fee and stores record under the
// instance address. fee must equal the configured creation fee. Any failure
// leaves the registry, treasury and metadata untouched.
func (s *Service) CreateResource(ctx context.Context, caller domain.Principal, salt domain.Salt, recipe []byte, record domain.Metadata, fee *domain.Amount) (domain.Resource, error) {
	var (
		created domain.Resource
		written bool
	)
	err := s.mutate(ctx, OpCreateResource, caller, func(ctx context.Context, tx domain.Transaction) (string, error) {
		if fee == nil || !fee.Eq(s.fee) {
			return "", domain.Fail(OpCreateResource, domain.NoResource, fmt.Errorf("%w: want %s", domain.ErrIncorrectFee, s.fee.Dec()))
		}
		if caller == domain.NullPrincipal {
			return "", domain.Fail(OpCreateResource, domain.NoResource, domain.ErrUnauthorized)
		}
		instance, err := s.deployer.Deploy(ctx, tx, salt, recipe)
		if err != nil {
			if !errors.Is(err, domain.ErrDeploymentFailed) {
				err = fmt.Errorf("%w: %w", domain.ErrDeploymentFailed, err)
			}
			return "", domain.Fail(OpCreateResource, domain.NoResource, err)
		}
		id := allocate(tx)
		recipeHash := deploy.RecipeHash(recipe)
		created, err = recordCreation(tx, domain.Resource{
			ID:         id,
			Owner:      caller,
			Instance:   instance,
			Salt:       salt,
			RecipeHash: recipeHash,
		})
		if err != nil {
			return id.String(), err
		}
		if _, err := tx.InsertDeployment(domain.Deployment{Instance: instance, Salt: salt, RecipeHash: recipeHash, ResourceID: id}); err != nil {
			return id.String(), domain.Fail(OpCreateResource, id, fmt.Errorf("%w: %w", domain.ErrDeploymentFailed, err))
		}
		if err := tx.Credit(fee); err != nil {
			return id.String(), domain.Fail(OpCreateResource, id, err)
		}
		tx.Emit(domain.Event{Kind: domain.EventResourceCreated, ResourceID: id, Owner: caller, Instance: instance})

		// Written last and under the store's writer lock, so a slow blob
		// backend delays every other writer for the length of the call.
		record.ResourceID = id
		if err := s.metadata.Create(ctx, instance, record); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				err = fmt.Errorf("%w: %w", domain.ErrMetadataConflict, err)
			}
			return id.String(), domain.Fail(OpCreateResource, id, err)
		}
		written = true
		return id.String(), nil
	})
	if err != nil {
		if written {
			s.compensate(ctx, created.Instance)
		}
		return domain.Resource{}, err
	}
	return created, nil
}

// compensate removes a metadata record whose registry commit did not happen.
func (s *Service) compensate(ctx context.Context, instance domain.Principal) {
	if err := s.metadata.Remove(context.WithoutCancel(ctx), instance); err != nil {
		s.logger.Error("metadata compensation failed", "instance", instance.Hex(), "error", err)
		return
	}
	s.logger.Warn("metadata removed after aborted creation", "instance", instance.Hex())
}

// PredictInstance returns the address CreateResource would deploy to.
func (s *Service) PredictInstance(salt domain.Salt, recipe []byte) domain.Principal {
	return s.deployer.Predict(salt, recipe)
}

// Metadata returns the descriptive record stored for id's instance.
func (s *Service) Metadata(ctx context.Context, id domain.ResourceID) (domain.Metadata, error) {
	r, err := s.Resource(ctx, id)
	if err != nil {
		return domain.Metadata{}, err
	}
	return s.metadata.Fetch(ctx, r.Instance)
}
