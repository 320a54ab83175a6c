// Package count implements the shared, concurrently-updated state of §4.5:
// per-sample counted-tuple tallies, per-sample random-barcode dedup sets,
// and the run-wide statistics counters.
package count

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Stats holds the run-wide outcome counters of §3. All fields are updated
// with atomic operations so they can be read consistently from any
// goroutine without taking the per-sample locks.
type Stats struct {
	Total        uint64
	Matched      uint64
	ConstantMM   uint64
	SampleMM     uint64
	CountedMM    uint64
	Duplicates   uint64
	LowQuality   uint64
}

// Snapshot returns a copy of s safe to read without further synchronization.
func (s *Stats) Snapshot() Stats {
	return Stats{
		Total:      atomic.LoadUint64(&s.Total),
		Matched:    atomic.LoadUint64(&s.Matched),
		ConstantMM: atomic.LoadUint64(&s.ConstantMM),
		SampleMM:   atomic.LoadUint64(&s.SampleMM),
		CountedMM:  atomic.LoadUint64(&s.CountedMM),
		Duplicates: atomic.LoadUint64(&s.Duplicates),
		LowQuality: atomic.LoadUint64(&s.LowQuality),
	}
}

// sampleShard is the per-sample mutable state: the counted-tuple tally and
// the random-barcode dedup set. One lock guards both, since §5 requires the
// fingerprint "contains? then insert, else increment" sequence to be a
// single atomic transition.
type sampleShard struct {
	mu         sync.Mutex
	counts     map[string]uint32 // key: Join(counted, "\x00")
	seenRandom map[string]struct{}
}

// Counter is the process-wide, concurrently-updated state described by
// §4.5. The zero value is not useful; use New. A Counter grows
// monotonically over the life of a pipeline run and is read once, at the
// end, by the emitter.
type Counter struct {
	Stats Stats

	hasRandom bool

	mu      sync.Mutex // guards shards (map growth only, not its values)
	shards  map[string]*sampleShard
}

// New creates an empty Counter. hasRandom must match whether the Scheme
// being decoded has a Random segment: seen_random is only meaningful when
// it does (§3's invariant).
func New(hasRandom bool) *Counter {
	return &Counter{hasRandom: hasRandom, shards: map[string]*sampleShard{}}
}

func (c *Counter) shardFor(sampleID string) *sampleShard {
	c.mu.Lock()
	defer c.mu.Unlock()
	sh, ok := c.shards[sampleID]
	if !ok {
		sh = &sampleShard{counts: map[string]uint32{}, seenRandom: map[string]struct{}{}}
		c.shards[sampleID] = sh
	}
	return sh
}

func tupleKey(counted []string) string {
	return strings.Join(counted, "\x00")
}

// RecordMatched records one successfully-decoded read. If the Scheme has a
// Random segment, it computes the fingerprint (the counted tuple
// concatenated with the random barcode) and treats a repeat as a
// duplicate instead of a new count, per §4.5 and §5: the membership test
// and the increment happen under the same per-sample lock, so two workers
// racing on the same fingerprint produce exactly one count and one
// duplicate, never two of either.
func (c *Counter) RecordMatched(sampleID string, counted []string, random string) {
	sh := c.shardFor(sampleID)
	key := tupleKey(counted)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if c.hasRandom {
		fingerprint := key + "\x00" + random
		if _, dup := sh.seenRandom[fingerprint]; dup {
			atomic.AddUint64(&c.Stats.Duplicates, 1)
			return
		}
		sh.seenRandom[fingerprint] = struct{}{}
	}
	sh.counts[key]++
	atomic.AddUint64(&c.Stats.Matched, 1)
}

// RecordTotal increments the grand total of reads seen, regardless of
// outcome. Call it once per record before dispatching to RecordMatched or
// RecordFailure.
func (c *Counter) RecordTotal() {
	atomic.AddUint64(&c.Stats.Total, 1)
}

// FailureKind names one of the non-Matched outcome categories, kept
// separate from decode.Outcome so this package doesn't need to import
// decode (count is a leaf in the dependency graph; pipeline wires the
// two together).
type FailureKind int

const (
	ConstantMismatch FailureKind = iota
	SampleMismatch
	CountedMismatch
	LowQuality
)

// RecordFailure increments the stats counter for one per-read rejection
// (§4.5's record_failure). The read itself is discarded; this is the only
// trace it leaves.
func (c *Counter) RecordFailure(kind FailureKind) {
	switch kind {
	case ConstantMismatch:
		atomic.AddUint64(&c.Stats.ConstantMM, 1)
	case SampleMismatch:
		atomic.AddUint64(&c.Stats.SampleMM, 1)
	case CountedMismatch:
		atomic.AddUint64(&c.Stats.CountedMM, 1)
	case LowQuality:
		atomic.AddUint64(&c.Stats.LowQuality, 1)
	}
}

// Counts returns a snapshot of the per-sample counted-tuple tallies:
// sampleID -> tuple key (the joined form; SplitTuple recovers the per-slot
// strings) -> count. It is only safe to call
// after the pipeline has finished; no lock is held across the returned
// map's lifetime.
func (c *Counter) Counts() map[string]map[string]uint32 {
	c.mu.Lock()
	sampleIDs := make([]string, 0, len(c.shards))
	for id := range c.shards {
		sampleIDs = append(sampleIDs, id)
	}
	c.mu.Unlock()

	out := make(map[string]map[string]uint32, len(sampleIDs))
	for _, id := range sampleIDs {
		sh := c.shardFor(id)
		sh.mu.Lock()
		cp := make(map[string]uint32, len(sh.counts))
		for k, v := range sh.counts {
			cp[k] = v
		}
		sh.mu.Unlock()
		out[id] = cp
	}
	return out
}

// SplitTuple reverses tupleKey, recovering the per-slot DNA strings.
func SplitTuple(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, "\x00")
}
