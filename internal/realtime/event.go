// Package realtime consumes change notifications from the coordination
// platform and turns them into layer reloads.
package realtime

import (
	"fmt"
	"time"

	"github.com/avelezdev/geolayers/internal/model"
)

// ChangeEvent is the wire form of one entity mutation. The consumer does not
// merge deltas: an event only names the category whose layers must reload.
type ChangeEvent struct {
	Version   int            `json:"version"`
	Op        string         `json:"op"`
	Category  model.Category `json:"category"`
	FeatureID any            `json:"feature_id,omitempty"`
	TS        time.Time      `json:"ts"`
	Seq       uint64         `json:"seq,omitempty"`
	Source    string         `json:"source,omitempty"`
}

func (e ChangeEvent) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if !e.Category.Valid() {
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// dedupeKey groups events so out-of-order or replayed sequence numbers can be
// skipped per entity.
func (e ChangeEvent) dedupeKey() string {
	if e.FeatureID == nil {
		return string(e.Category)
	}
	return fmt.Sprintf("%s/%v", e.Category, e.FeatureID)
}
