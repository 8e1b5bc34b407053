package annotate

import "context"

// Service looks up annotations by query key (chrom-pos-ref-alt).
//
// A nil annotation with a nil error means the service has no record for the
// key. Bulk results may omit keys or map them to nil; both mean "not found".
type Service interface {
	Lookup(ctx context.Context, key string) (*Annotation, error)
	BulkLookup(ctx context.Context, keys []string) (map[string]*Annotation, error)
}
