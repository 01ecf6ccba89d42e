package metrics

import (
	"time"

	"github.com/timecrypt/vdf/model/vdf"
)

// NoopCollector discards all measurements. Used in tests and by callers
// that do not scrape metrics.
type NoopCollector struct{}

func NewNoopCollector() *NoopCollector { return &NoopCollector{} }

func (nc *NoopCollector) InstanceSubmitted(vdf.BackendKind)                {}
func (nc *NoopCollector) InstanceCompleted(vdf.BackendKind, time.Duration) {}
func (nc *NoopCollector) InstanceFailed(vdf.BackendKind)                   {}
func (nc *NoopCollector) InstanceVerified(vdf.BackendKind)                 {}
func (nc *NoopCollector) QueueLength(int)                                  {}
