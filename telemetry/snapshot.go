package telemetry

import (
	"encoding/json"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache"
)

// Snapshot is one joint observation of both caches.
type Snapshot struct {
	// TraceID is a unique identifier for this sample (log correlation).
	TraceID string `json:"trace_id"`
	// Timestamp is when the sample was taken.
	Timestamp time.Time `json:"timestamp"`
	// Pool is the buffer pool state at sample time.
	Pool accelcache.PoolStats `json:"pool"`
	// Graph is the graph cache state at sample time.
	Graph accelcache.GraphInfo `json:"graph"`
}

// ToJSON marshals the snapshot for wire transport.
func (s Snapshot) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}
