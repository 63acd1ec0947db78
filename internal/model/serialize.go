package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// knownNodeFields lists every top-level key the current record layout owns.
// Anything else in a persisted record is preserved verbatim for forward
// compatibility with newer writers.
var knownNodeFields = map[string]bool{
	"id":            true,
	"kind":          true,
	"workstream":    true,
	"display_name":  true,
	"parent_id":     true,
	"children_ids":  true,
	"level":         true,
	"path":          true,
	"display_order": true,
	"is_aggregate":  true,
	"version":       true,
	"created_at":    true,
	"updated_at":    true,
	"resource":      true,
	"cost":          true,
}

// EncodeNode serializes a node to its flat persisted record, re-emitting any
// unknown fields captured at decode time.
func EncodeNode(n *EstimateNode) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, eris.Wrap(err, "model: encode node")
	}
	if len(n.extra) == 0 {
		return data, nil
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, eris.Wrap(err, "model: encode node record")
	}
	for k, v := range n.extra {
		if !knownNodeFields[k] {
			record[k] = v
		}
	}
	out, err := json.Marshal(record)
	return out, eris.Wrap(err, "model: encode node with extras")
}

// DecodeNode parses a persisted record into a validated node. Unknown
// top-level fields are retained and survive the next EncodeNode. Missing
// optional fields get documented defaults; a missing required field or a
// shape violation is an error.
func DecodeNode(data []byte) (*EstimateNode, error) {
	var n EstimateNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, eris.Wrap(err, "model: decode node")
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "model: decode node record")
	}
	for k, v := range raw {
		if !knownNodeFields[k] {
			if n.extra == nil {
				n.extra = map[string]any{}
			}
			n.extra[k] = v
		}
	}

	applyDefaults(&n)
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// DecodeStored is the total-function variant used when reading previously
// persisted records: a corrupt record yields (nil, false) and a warning
// rather than an error, so one bad historical row never blocks unrelated
// work.
func DecodeStored(data []byte) (*EstimateNode, bool) {
	n, err := DecodeNode(data)
	if err != nil {
		zap.L().Warn("model: skipping corrupt stored node",
			zap.Error(err),
			zap.Int("bytes", len(data)),
		)
		return nil, false
	}
	return n, true
}

// applyDefaults fills optional fields older records may lack.
func applyDefaults(n *EstimateNode) {
	if n.Level == 0 {
		n.Level = 1
	}
	if n.Path == "" {
		n.Path = n.Workstream
	}
	if n.Version == 0 {
		n.Version = 1
	}
	if n.Cost != nil && n.Cost.ConsistencyStatus == "" && !n.Cost.DerivedFromResource {
		n.Cost.ConsistencyStatus = StatusNotValidated
	}
}
