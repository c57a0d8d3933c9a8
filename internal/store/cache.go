package store

import (
	"context"
	"sync"
	"time"

	"github.com/atrejom/vcfping/internal/logger"
	"github.com/atrejom/vcfping/internal/schedule"
)

// ProcessingRecord is the idempotency ledger entry for one VM. It is created
// on the first successful enable and updated in place afterwards; records
// are never deleted automatically.
type ProcessingRecord struct {
	FirstProcessedAt time.Time `json:"first_processed_at"`
	LastProcessedAt  time.Time `json:"last_processed_at"`
	SourceHost       string    `json:"source_host"`
	TimesProcessed   int       `json:"times_processed"`
}

// StateCache tracks which VMs have already been processed so repeated runs
// can skip them under the use_cache policy.
type StateCache struct {
	store  *Store
	logger *logger.Logger

	mu      sync.Mutex
	records map[string]ProcessingRecord
}

// NewStateCache creates a cache backed by the given store. Call Refresh
// before consulting ShouldProcess.
func NewStateCache(s *Store, log *logger.Logger) *StateCache {
	return &StateCache{
		store:   s,
		logger:  log,
		records: make(map[string]ProcessingRecord),
	}
}

// Refresh loads the persisted records into memory. A missing or corrupt
// file yields an empty cache.
func (c *StateCache) Refresh(ctx context.Context) error {
	records := make(map[string]ProcessingRecord)
	if err := c.store.Load(ctx, &records); err != nil {
		return err
	}

	c.mu.Lock()
	c.records = records
	c.mu.Unlock()

	c.logger.Debug("state cache loaded",
		logger.Field{Key: "entries", Value: len(records)})
	return nil
}

// ShouldProcess reports whether a VM needs processing: always true under
// IgnoreCache, otherwise true only when no record exists for the VM.
func (c *StateCache) ShouldProcess(vmID string, policy schedule.CachePolicy) bool {
	if policy == schedule.IgnoreCache {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.records[vmID]
	return !exists
}

// RecordSuccess persists a successful enable for the VM. A first success
// creates the record with first = last = now and a count of one; later
// successes bump the last-processed time and the count, leaving the
// first-processed time untouched.
func (c *StateCache) RecordSuccess(ctx context.Context, vmID, sourceHost string, now time.Time) error {
	// Read-modify-write against the file, not the in-memory snapshot, so a
	// concurrent run-now invocation never loses records.
	records := make(map[string]ProcessingRecord)
	err := c.store.Update(ctx, &records, func() error {
		record, exists := records[vmID]
		if !exists {
			record = ProcessingRecord{
				FirstProcessedAt: now,
				SourceHost:       sourceHost,
			}
		}
		record.LastProcessedAt = now
		record.SourceHost = sourceHost
		record.TimesProcessed++
		records[vmID] = record
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.records = records
	c.mu.Unlock()

	return nil
}

// Record returns the processing record for a VM, if one exists.
func (c *StateCache) Record(vmID string) (ProcessingRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, exists := c.records[vmID]
	return record, exists
}

// Len returns the number of recorded VMs.
func (c *StateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
