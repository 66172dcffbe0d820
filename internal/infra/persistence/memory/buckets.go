package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the snapshotting stores, one row per bucket.
const (
	BucketResources   = "resources"
	BucketOwned       = "owned"
	BucketOperators   = "operators"
	BucketDeployments = "deployments"
	BucketCounters    = "counters"
)

// Buckets lists every persisted bucket in write order.
var Buckets = []string{BucketResources, BucketOwned, BucketOperators, BucketDeployments, BucketCounters}

type counters struct {
	LastIssued uint64 `json:"last_issued"`
	Balance    string `json:"balance"`
}

// EncodeBucket serializes one bucket of the snapshot as JSON.
func EncodeBucket(snapshot Snapshot, bucket string) ([]byte, error) {
	switch bucket {
	case BucketResources:
		return json.Marshal(snapshot.Resources)
	case BucketOwned:
		return json.Marshal(snapshot.Owned)
	case BucketOperators:
		return json.Marshal(snapshot.Operators)
	case BucketDeployments:
		return json.Marshal(snapshot.Deployments)
	case BucketCounters:
		return json.Marshal(counters{LastIssued: snapshot.LastIssued, Balance: snapshot.Balance})
	default:
		return nil, fmt.Errorf("unknown bucket %s", bucket)
	}
}

// DecodeBucket populates the matching part of snapshot from payload.
// Unknown buckets are ignored so older tables stay loadable.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var err error
	switch bucket {
	case BucketResources:
		err = json.Unmarshal(payload, &snapshot.Resources)
	case BucketOwned:
		err = json.Unmarshal(payload, &snapshot.Owned)
	case BucketOperators:
		err = json.Unmarshal(payload, &snapshot.Operators)
	case BucketDeployments:
		err = json.Unmarshal(payload, &snapshot.Deployments)
	case BucketCounters:
		var c counters
		if err = json.Unmarshal(payload, &c); err == nil {
			snapshot.LastIssued = c.LastIssued
			snapshot.Balance = c.Balance
		}
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
