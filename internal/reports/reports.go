// Package reports archives benchmark results.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Archiver stores a JSON document and returns where it was written.
type Archiver interface {
	Archive(ctx context.Context, kind string, v any) (string, error)
}

// Noop discards documents.
type Noop struct{}

func (Noop) Archive(context.Context, string, any) (string, error) { return "", nil }

// ObjectKey builds the object key for a report of kind written at t.
func ObjectKey(basePath, kind string, t time.Time) string {
	key := fmt.Sprintf("%s/%s/%s.json", kind, t.UTC().Format("2006/01/02"), t.UTC().Format("150405.000000000"))
	if basePath != "" {
		key = basePath + "/" + key
	}
	return key
}

func encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}
