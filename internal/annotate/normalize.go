package annotate

import (
	"fmt"
	"strconv"
	"strings"
)

// Normalize reduces a ref/alt pair to its minimal representation.
//
// Shared trailing bases are removed first, then shared leading bases; each
// allele keeps at least one base. shift is the number of leading bases removed
// and must be added to the original position. Pairs where either allele is a
// single base are returned unchanged.
func Normalize(ref, alt string) (newRef, newAlt string, shift int, modified bool) {
	newRef, newAlt = ref, alt
	if len(ref) <= 1 || len(alt) <= 1 {
		return newRef, newAlt, 0, false
	}

	limit := min(len(ref), len(alt))
	count := 0
	for i := 1; i < limit; i++ {
		if ref[len(ref)-i] != alt[len(alt)-i] {
			break
		}
		count++
	}
	if count > 0 {
		newRef = ref[:len(ref)-count]
		newAlt = alt[:len(alt)-count]
		modified = true
	}

	if len(newRef) > 1 && len(newAlt) > 1 {
		limit = min(len(newRef), len(newAlt)) - 1
		count = 0
		for i := 0; i < limit; i++ {
			if newRef[i] != newAlt[i] {
				break
			}
			count++
		}
		if count > 0 {
			newRef = newRef[count:]
			newAlt = newAlt[count:]
			shift = count
			modified = true
		}
	}

	return newRef, newAlt, shift, modified
}

// Query is a normalized variant lookup key.
type Query struct {
	Chrom string
	Pos   int64
	Ref   string
	Alt   string
}

// NewQuery normalizes an allele pair and returns its lookup query.
func NewQuery(chrom string, pos int64, ref, alt string) Query {
	newRef, newAlt, shift, _ := Normalize(ref, alt)
	return Query{
		Chrom: chrom,
		Pos:   pos + int64(shift),
		Ref:   newRef,
		Alt:   newAlt,
	}
}

// Key returns the chrom-pos-ref-alt form accepted by the annotation service.
func (q Query) Key() string {
	return q.Chrom + "-" + strconv.FormatInt(q.Pos, 10) + "-" + q.Ref + "-" + q.Alt
}

func (q Query) String() string {
	return q.Key()
}

// ParseQueryKey parses a chrom-pos-ref-alt key.
// The chromosome may itself contain dashes; the last three fields are fixed.
func ParseQueryKey(key string) (Query, error) {
	parts := strings.Split(key, "-")
	if len(parts) < 4 {
		return Query{}, fmt.Errorf("invalid query key %q: expected chrom-pos-ref-alt", key)
	}
	n := len(parts)
	pos, err := strconv.ParseInt(parts[n-3], 10, 64)
	if err != nil {
		return Query{}, fmt.Errorf("invalid query key %q: bad position: %w", key, err)
	}
	q := Query{
		Chrom: strings.Join(parts[:n-3], "-"),
		Pos:   pos,
		Ref:   parts[n-2],
		Alt:   parts[n-1],
	}
	if q.Chrom == "" || q.Ref == "" || q.Alt == "" {
		return Query{}, fmt.Errorf("invalid query key %q: empty field", key)
	}
	return q, nil
}
