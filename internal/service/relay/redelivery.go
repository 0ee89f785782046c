package relay

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// RedeliveryDetector flags webhook ids that were probably seen before.
// False positives are possible, so the verdict is only logged and counted;
// it never suppresses a delivery.
type RedeliveryDetector struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewRedeliveryDetector sizes the filter for capacity ids at the given
// false positive rate.
func NewRedeliveryDetector(capacity uint, fpRate float64) *RedeliveryDetector {
	if capacity == 0 {
		capacity = 100000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.001
	}
	return &RedeliveryDetector{filter: bloom.NewWithEstimates(capacity, fpRate)}
}

// Seen records id and reports whether it was probably recorded before.
// Empty ids are never reported.
func (d *RedeliveryDetector) Seen(id string) bool {
	if d == nil || id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter.TestAndAddString(id)
}
