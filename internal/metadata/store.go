// Package metadata stores descriptive records of deployed instances as JSON
// documents in a blob store, one write-once document per instance address.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"handoff/internal/blob"
	"handoff/pkg/domain"
)

var _ domain.MetadataStore = (*Store)(nil)

const (
	keyPrefix   = "metadata/"
	contentType = "application/json"
)

// Store implements domain.MetadataStore over a blob.Store.
type Store struct {
	blobs blob.Store
}

// New wraps blobs.
func New(blobs blob.Store) *Store { return &Store{blobs: blobs} }

// Key returns the blob key holding subject's record.
func Key(subject domain.Principal) string {
	return keyPrefix + strings.ToLower(subject.Hex()) + ".json"
}

// Create writes record under subject. Existing documents are never overwritten.
func (s *Store) Create(ctx context.Context, subject domain.Principal, record domain.Metadata) error {
	record.Subject = subject
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	opts := blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"resource-id": record.ResourceID.String()},
	}
	if _, err := s.blobs.Put(ctx, Key(subject), bytes.NewReader(payload), opts); err != nil {
		if errors.Is(err, blob.ErrExists) {
			return fmt.Errorf("metadata for %s: %w", subject.Hex(), domain.ErrAlreadyExists)
		}
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

// Fetch reads subject's record.
func (s *Store) Fetch(ctx context.Context, subject domain.Principal) (domain.Metadata, error) {
	_, rc, err := s.blobs.Get(ctx, Key(subject))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return domain.Metadata{}, fmt.Errorf("metadata for %s: %w", subject.Hex(), domain.ErrNotFound)
		}
		return domain.Metadata{}, fmt.Errorf("load metadata: %w", err)
	}
	defer func() { _ = rc.Close() }()
	var record domain.Metadata
	if err := json.NewDecoder(rc).Decode(&record); err != nil {
		return domain.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return record, nil
}

// Remove deletes subject's record. Missing records are not an error.
func (s *Store) Remove(ctx context.Context, subject domain.Principal) error {
	if _, err := s.blobs.Delete(ctx, Key(subject)); err != nil {
		return fmt.Errorf("remove metadata: %w", err)
	}
	return nil
}

// Subjects lists the instance addresses that have a record.
func (s *Store) Subjects(ctx context.Context) ([]domain.Principal, error) {
	infos, err := s.blobs.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	out := make([]domain.Principal, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimSuffix(strings.TrimPrefix(info.Key, keyPrefix), ".json")
		p, err := domain.ParsePrincipal(name)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
