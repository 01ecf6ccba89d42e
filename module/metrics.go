package module

import (
	"time"

	"github.com/timecrypt/vdf/model/vdf"
)

// VDFMetrics collects engine-level measurements. All methods must be
// non-blocking.
type VDFMetrics interface {
	// InstanceSubmitted is called when a submission is accepted.
	InstanceSubmitted(kind vdf.BackendKind)

	// InstanceCompleted is called when the sequential computation finishes,
	// with the wall-clock duration it took.
	InstanceCompleted(kind vdf.BackendKind, duration time.Duration)

	// InstanceFailed is called when an instance becomes terminally Failed.
	InstanceFailed(kind vdf.BackendKind)

	// InstanceVerified is called when a proof check succeeds and the
	// instance is promoted to Verified.
	InstanceVerified(kind vdf.BackendKind)

	// QueueLength observes the pending queue length after each change.
	QueueLength(length int)
}
