package duckdb

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/exac-annotator/internal/annotate"
)

// CachingService answers lookups from the store and forwards cache misses to
// another service, storing every answer it receives, "not found" included.
// Cache failures are logged and never fail a lookup.
type CachingService struct {
	store  *Store
	next   annotate.Service
	runID  string
	logger *zap.Logger
	now    func() time.Time

	hits, misses int64
}

var _ annotate.Service = (*CachingService)(nil)

// NewCachingService wraps next with the store. runID tags rows written by this run.
func NewCachingService(store *Store, next annotate.Service, runID string) *CachingService {
	return &CachingService{
		store:  store,
		next:   next,
		runID:  runID,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// SetLogger sets the logger for cache warnings.
func (c *CachingService) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Stats returns the number of keys answered from the cache and forwarded.
func (c *CachingService) Stats() (hits, misses int64) {
	return c.hits, c.misses
}

// Lookup returns the cached answer for key, or asks the wrapped service.
func (c *CachingService) Lookup(ctx context.Context, key string) (*annotate.Annotation, error) {
	cached := c.cached(ctx, []string{key})
	if rec, ok := cached[key]; ok {
		c.hits++
		return rec.Annotation, nil
	}

	c.misses++
	ann, err := c.next.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	c.save(ctx, map[string]*annotate.Annotation{key: ann}, []string{key})
	return ann, nil
}

// BulkLookup answers cached keys locally and sends the rest in one request.
func (c *CachingService) BulkLookup(ctx context.Context, keys []string) (map[string]*annotate.Annotation, error) {
	cached := c.cached(ctx, keys)

	out := make(map[string]*annotate.Annotation, len(keys))
	var missing []string
	for _, k := range keys {
		if rec, ok := cached[k]; ok {
			out[k] = rec.Annotation
			continue
		}
		missing = append(missing, k)
	}
	c.hits += int64(len(keys) - len(missing))
	c.misses += int64(len(missing))

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.next.BulkLookup(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, k := range missing {
		out[k] = fetched[k]
	}
	c.save(ctx, fetched, missing)
	return out, nil
}

func (c *CachingService) cached(ctx context.Context, keys []string) map[string]AnnotationRecord {
	recs, err := c.store.LookupAnnotations(ctx, keys)
	if err != nil {
		c.logger.Warn("annotation cache read failed", zap.Int("keys", len(keys)), zap.Error(err))
		return nil
	}
	return recs
}

// save records the answer for every key in keys; keys absent from anns are
// stored as not found. Keys that do not parse as queries are not cached.
func (c *CachingService) save(ctx context.Context, anns map[string]*annotate.Annotation, keys []string) {
	now := c.now()
	records := make([]AnnotationRecord, 0, len(keys))
	for _, k := range keys {
		q, err := annotate.ParseQueryKey(k)
		if err != nil {
			c.logger.Debug("not caching malformed query key", zap.String("query", k), zap.Error(err))
			continue
		}
		ann := anns[k]
		records = append(records, AnnotationRecord{
			Query:      q,
			Found:      ann != nil,
			Annotation: ann,
			RunID:      c.runID,
			FetchedAt:  now,
		})
	}
	if err := c.store.WriteAnnotations(ctx, records); err != nil {
		c.logger.Warn("annotation cache write failed", zap.Int("records", len(records)), zap.Error(err))
	}
}
