package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/slipstream-hr/slipstream/internal/interfaces"
	"github.com/slipstream-hr/slipstream/internal/models"
)

// cachePageLimit is the page size used when refetching collections
const cachePageLimit = 100

// CachedEmployee is one employee record in the local cache
type CachedEmployee struct {
	models.Employee
	FetchedAt time.Time
}

// CachedBatch is one payslip batch record in the local cache
type CachedBatch struct {
	models.PayslipBatch
	FetchedAt time.Time
}

// CollectionCache keeps a local snapshot of the backend's employee and
// payslip batch collections. It follows an invalidate-and-refetch
// discipline: terminal job outcomes publish invalidation events, and
// the cache responds by replacing its snapshot from the backend. The
// cache never patches records from job results.
type CollectionCache struct {
	db     *BadgerDB
	lister interfaces.CollectionLister
	logger arbor.ILogger
}

// NewCollectionCache creates a CollectionCache over the given store
func NewCollectionCache(db *BadgerDB, lister interfaces.CollectionLister, logger arbor.ILogger) *CollectionCache {
	return &CollectionCache{
		db:     db,
		lister: lister,
		logger: logger,
	}
}

// BindEvents subscribes the cache to collection invalidation events
func (c *CollectionCache) BindEvents(events interfaces.EventService) error {
	if err := events.Subscribe(interfaces.EventEmployeesInvalidated, func(ctx context.Context, _ interfaces.Event) error {
		return c.RefreshEmployees(ctx)
	}); err != nil {
		return err
	}
	return events.Subscribe(interfaces.EventBatchesInvalidated, func(ctx context.Context, _ interfaces.Event) error {
		return c.RefreshBatches(ctx)
	})
}

// RefreshEmployees replaces the cached employee snapshot with the
// backend's current collection
func (c *CollectionCache) RefreshEmployees(ctx context.Context) error {
	fetchedAt := time.Now()
	count := 0

	for page := 1; ; page++ {
		result, err := c.lister.ListEmployees(ctx, page, cachePageLimit, "")
		if err != nil {
			return fmt.Errorf("failed to refetch employees: %w", err)
		}

		for i := range result.Employees {
			record := CachedEmployee{Employee: result.Employees[i], FetchedAt: fetchedAt}
			if err := c.db.Store().Upsert(record.IppisNumber, &record); err != nil {
				return fmt.Errorf("failed to cache employee %s: %w", record.IppisNumber, err)
			}
			count++
		}

		if page >= result.Meta.TotalPages || len(result.Employees) == 0 {
			break
		}
	}

	// Drop records the refetch did not touch: they were deleted upstream
	if err := c.db.Store().DeleteMatching(&CachedEmployee{},
		badgerhold.Where("FetchedAt").Lt(fetchedAt)); err != nil {
		return fmt.Errorf("failed to prune stale employees: %w", err)
	}

	c.logger.Info().Int("count", count).Msg("Employee cache refreshed")
	return nil
}

// RefreshBatches replaces the cached payslip batch snapshot with the
// backend's current collection
func (c *CollectionCache) RefreshBatches(ctx context.Context) error {
	fetchedAt := time.Now()
	count := 0

	for page := 1; ; page++ {
		result, err := c.lister.ListBatches(ctx, page, cachePageLimit, "", "")
		if err != nil {
			return fmt.Errorf("failed to refetch batches: %w", err)
		}

		for i := range result.Batches {
			record := CachedBatch{PayslipBatch: result.Batches[i], FetchedAt: fetchedAt}
			if err := c.db.Store().Upsert(record.UUID, &record); err != nil {
				return fmt.Errorf("failed to cache batch %s: %w", record.UUID, err)
			}
			count++
		}

		if page >= result.Meta.TotalPages || len(result.Batches) == 0 {
			break
		}
	}

	if err := c.db.Store().DeleteMatching(&CachedBatch{},
		badgerhold.Where("FetchedAt").Lt(fetchedAt)); err != nil {
		return fmt.Errorf("failed to prune stale batches: %w", err)
	}

	c.logger.Info().Int("count", count).Msg("Batch cache refreshed")
	return nil
}

// Employees returns the cached employee snapshot sorted by IPPIS number
func (c *CollectionCache) Employees(ctx context.Context) ([]models.Employee, error) {
	var records []CachedEmployee
	if err := c.db.Store().Find(&records, badgerhold.Where("IppisNumber").Ne("").SortBy("IppisNumber")); err != nil {
		return nil, fmt.Errorf("failed to read employee cache: %w", err)
	}

	employees := make([]models.Employee, len(records))
	for i := range records {
		employees[i] = records[i].Employee
	}
	return employees, nil
}

// Batches returns the cached batch snapshot, optionally filtered by pay
// month, newest first
func (c *CollectionCache) Batches(ctx context.Context, payMonth string) ([]models.PayslipBatch, error) {
	query := badgerhold.Where("UUID").Ne("")
	if payMonth != "" {
		query = badgerhold.Where("PayMonth").Eq(payMonth)
	}

	var records []CachedBatch
	if err := c.db.Store().Find(&records, query.SortBy("CreatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to read batch cache: %w", err)
	}

	batches := make([]models.PayslipBatch, len(records))
	for i := range records {
		batches[i] = records[i].PayslipBatch
	}
	return batches, nil
}

// Batch returns one cached batch by UUID
func (c *CollectionCache) Batch(ctx context.Context, uuid string) (*models.PayslipBatch, error) {
	var record CachedBatch
	if err := c.db.Store().Get(uuid, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("batch not found: %s", uuid)
		}
		return nil, fmt.Errorf("failed to read batch cache: %w", err)
	}
	return &record.PayslipBatch, nil
}
