// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"fmt"
	"strconv"
	"strings"
)

// Known INFO keys reported alongside each allele.
const (
	InfoType = "TYPE" // per-allele variant type (snp, mnp, ins, del, complex)
	InfoDP   = "DP"   // total read depth
	InfoRO   = "RO"   // reference observation count
	InfoAO   = "AO"   // per-allele alternate observation count
)

// Missing is the VCF placeholder for an absent value.
const Missing = "."

// Variant represents a single VCF data line.
type Variant struct {
	Chrom string            // Chromosome name (e.g., "1", "chr1")
	Pos   int64             // 1-based genomic position
	ID    string            // Variant identifier, "." if absent
	Ref   string            // Reference allele
	Alts  []string          // Alternate alleles, in column order
	Info  map[string]string // INFO field key-value pairs
}

// InfoValue returns the raw INFO value for key, or "." if absent.
func (v *Variant) InfoValue(key string) string {
	if val, ok := v.Info[key]; ok {
		return val
	}
	return Missing
}

// AlleleValue returns the value of a per-allele INFO key for alternate allele i.
// A single value applies to every allele; otherwise the number of comma-separated
// values must match the number of alternate alleles.
func (v *Variant) AlleleValue(key string, i int) (string, error) {
	raw := v.InfoValue(key)
	if raw == Missing {
		return Missing, nil
	}
	values := strings.Split(raw, ",")
	switch {
	case len(values) == len(v.Alts):
		return values[i], nil
	case len(values) == 1:
		return values[0], nil
	default:
		return "", fmt.Errorf("INFO %s has %d values for %d alternate alleles", key, len(values), len(v.Alts))
	}
}

// ObservationRatio returns AO/RO for alternate allele i.
// ok is false when either count is missing or RO is zero.
func (v *Variant) ObservationRatio(i int) (ratio float32, ok bool, err error) {
	ao, err := v.AlleleValue(InfoAO, i)
	if err != nil {
		return 0, false, err
	}
	ro := v.InfoValue(InfoRO)
	if ao == Missing || ro == Missing {
		return 0, false, nil
	}
	aoCount, err := strconv.ParseFloat(ao, 32)
	if err != nil {
		return 0, false, fmt.Errorf("invalid AO value %q: %w", ao, err)
	}
	roCount, err := strconv.ParseFloat(ro, 32)
	if err != nil {
		return 0, false, fmt.Errorf("invalid RO value %q: %w", ro, err)
	}
	if roCount == 0 {
		return 0, false, nil
	}
	return float32(aoCount) / float32(roCount), true, nil
}
