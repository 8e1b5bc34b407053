// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"fmt"
	"strings"
)

// FixedColumns are the mandatory leading columns of the #CHROM header line.
var FixedColumns = []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}

// FormatColumn is the optional ninth column that precedes sample columns.
const FormatColumn = "FORMAT"

// Header is the validated #CHROM column header plus the ## meta lines above it.
type Header struct {
	Meta      []string // ## meta-information lines, verbatim
	fields    []string
	hasFormat bool
}

// ParseHeader validates a tab-separated #CHROM line.
func ParseHeader(line string) (*Header, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return NewHeader(fields)
}

// NewHeader validates header fields and returns a Header.
func NewHeader(fields []string) (*Header, error) {
	if len(fields) < len(FixedColumns) {
		return nil, fmt.Errorf("invalid vcf header: expected at least %d fixed columns, found %d",
			len(FixedColumns), len(fields))
	}
	for i, want := range FixedColumns {
		if fields[i] != want {
			return nil, fmt.Errorf("invalid vcf header: column %d must be %s, found %q", i+1, want, fields[i])
		}
	}
	h := &Header{
		fields:    append([]string(nil), fields...),
		hasFormat: len(fields) > len(FixedColumns),
	}
	if h.hasFormat && fields[len(FixedColumns)] != FormatColumn {
		return nil, fmt.Errorf("invalid vcf header: column %d must be %s, found %q",
			len(FixedColumns)+1, FormatColumn, fields[len(FixedColumns)])
	}
	return h, nil
}

// FieldCount returns the number of columns in the header line.
func (h *Header) FieldCount() int {
	return len(h.fields)
}

// HasFormat reports whether the header declares a FORMAT column.
func (h *Header) HasFormat() bool {
	return h.hasFormat
}

// SampleCount returns the number of sample columns (can be 0).
func (h *Header) SampleCount() int {
	return max(0, len(h.fields)-len(FixedColumns)-1)
}

// Field returns the header column at index i.
func (h *Header) Field(i int) string {
	return h.fields[i]
}

// SampleNames returns the sample column names.
// Returns nil if no sample columns are present.
func (h *Header) SampleNames() []string {
	if h.SampleCount() == 0 {
		return nil
	}
	return append([]string(nil), h.fields[len(FixedColumns)+1:]...)
}

// SetSampleNames replaces the sample column names in place.
func (h *Header) SetSampleNames(names []string) error {
	if len(names) != h.SampleCount() {
		return fmt.Errorf("invalid sample names: header has %d samples, got %d", h.SampleCount(), len(names))
	}
	copy(h.fields[len(FixedColumns)+1:], names)
	return nil
}

// Subset returns a new header with the fixed columns, FORMAT and the given samples.
func (h *Header) Subset(sampleIDs []string) (*Header, error) {
	fields := make([]string, 0, len(FixedColumns)+1+len(sampleIDs))
	fields = append(fields, h.fields[:len(FixedColumns)]...)
	fields = append(fields, FormatColumn)
	fields = append(fields, sampleIDs...)
	sub, err := NewHeader(fields)
	if err != nil {
		return nil, err
	}
	sub.Meta = h.Meta
	return sub, nil
}

// String returns the #CHROM line.
func (h *Header) String() string {
	return strings.Join(h.fields, "\t")
}
