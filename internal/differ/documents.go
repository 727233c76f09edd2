package differ

import (
	"encoding/json"
	"fmt"

	"github.com/distguard/distguard/internal/document"
	"github.com/wI2L/jsondiff"
)

// Change is one translated document difference.
type Change struct {
	Path        string `json:"path"`
	Op          string `json:"op"`
	Translation string `json:"translation"`
	Severity    string `json:"severity"`

	Level SeverityLevel `json:"-"`
}

// DocumentDiff lists changes between two configuration documents.
type DocumentDiff struct {
	Patches jsondiff.Patch `json:"-"`
	Changes []Change       `json:"changes"`
}

// Critical counts critical changes.
func (d *DocumentDiff) Critical() int {
	n := 0
	for _, c := range d.Changes {
		if c.Level == SeverityCritical {
			n++
		}
	}
	return n
}

// CompareDocuments diffs two documents as JSON and translates each
// operation.
func CompareDocuments(old, cur *document.Document) (*DocumentDiff, error) {
	oldJSON, err := json.Marshal(old.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal old document: %w", err)
	}
	curJSON, err := json.Marshal(cur.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal new document: %w", err)
	}

	patches, err := jsondiff.CompareJSON(oldJSON, curJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}

	d := &DocumentDiff{Patches: patches, Changes: []Change{}}
	for _, op := range patches {
		t := translateOperation(op)
		if t == "" {
			continue
		}
		level := GetSeverity(op)
		d.Changes = append(d.Changes, Change{
			Path:        op.Path,
			Op:          op.Type,
			Translation: t,
			Severity:    level.String(),
			Level:       level,
		})
	}
	return d, nil
}
