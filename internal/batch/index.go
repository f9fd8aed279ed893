package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/rulecheck/internal/objstore"
)

// RecordRef names the evaluation unit an invocation record was built for.
type RecordRef struct {
	File string `json:"file"`
	Rule string `json:"rule"`
}

// RecordIndex maps record ids to their evaluation units.
type RecordIndex map[string]RecordRef

// IndexKey is the object key of a job's record index.
func IndexKey(prefix string) string { return objstore.Join(prefix, "records.json") }

// SaveIndex writes idx under prefix.
func SaveIndex(ctx context.Context, store objstore.Store, bucket, prefix string, idx RecordIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshaling record index: %w", err)
	}
	if err := store.Put(ctx, bucket, IndexKey(prefix), data); err != nil {
		return fmt.Errorf("writing record index: %w", err)
	}
	return nil
}

// LoadIndex reads the record index written at submission time.
func LoadIndex(ctx context.Context, store objstore.Store, bucket, prefix string) (RecordIndex, error) {
	data, err := store.Get(ctx, bucket, IndexKey(prefix))
	if err != nil {
		return nil, fmt.Errorf("reading record index: %w", err)
	}
	var idx RecordIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing record index: %w", err)
	}
	if idx == nil {
		idx = RecordIndex{}
	}
	return idx, nil
}
