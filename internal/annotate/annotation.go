// Package annotate normalizes VCF alleles into annotation-service queries,
// resolves the returned consequences and assembles report rows.
package annotate

import (
	"encoding/json"
	"strconv"
)

// Reportable renders an annotation as its report columns.
type Reportable interface {
	ReportFields() []string
}

// AnnotationColumns names the columns produced by Annotation.ReportFields.
var AnnotationColumns = []string{
	"ExAC_Consequence",
	"ExAC_Transcripts",
	"ExAC_rsID",
	"ExAC_AlleleCount",
	"ExAC_AlleleNumber",
	"ExAC_HomozygousNumber",
	"ExAC_AlleleFrequence",
}

// Annotation is the ExAC record for a single variant.
type Annotation struct {
	Consequence  Consequences     `json:"consequence"`
	BaseCoverage []map[string]any `json:"base_coverage,omitempty"`
	Variant      *VariantMetrics  `json:"variant"`
	Metrics      json.RawMessage  `json:"metrics,omitempty"`
	AnyCovered   bool             `json:"any_covered"`
}

// VariantMetrics holds the population data ExAC reports for a variant.
type VariantMetrics struct {
	VariantID      string            `json:"variant_id,omitempty"`
	Chrom          string            `json:"chrom,omitempty"`
	Pos            int64             `json:"pos,omitempty"`
	Ref            string            `json:"ref,omitempty"`
	Alt            string            `json:"alt,omitempty"`
	RsID           string            `json:"rsid,omitempty"`
	Filter         string            `json:"filter,omitempty"`
	SiteQuality    float64           `json:"site_quality,omitempty"`
	AlleleCount    int               `json:"allele_count"`
	AlleleNum      int               `json:"allele_num"`
	HomCount       int               `json:"hom_count"`
	AlleleFreq     float64           `json:"allele_freq"`
	Genes          []string          `json:"genes,omitempty"`
	Transcripts    []string          `json:"transcripts,omitempty"`
	OrigAltAlleles []string          `json:"orig_alt_alleles,omitempty"`
	PopACs         map[string]int    `json:"pop_acs,omitempty"`
	PopANs         map[string]int    `json:"pop_ans,omitempty"`
	PopHoms        map[string]int    `json:"pop_homs,omitempty"`
	QualityMetrics map[string]string `json:"quality_metrics,omitempty"`
}

// Found reports whether the service returned a variant record.
func (a *Annotation) Found() bool {
	return a != nil && a.Variant != nil
}

// ReportFields returns the seven ExAC columns of a report row.
// A record without variant data renders as all ".".
func (a *Annotation) ReportFields() []string {
	if !a.Found() {
		return []string{".", ".", ".", ".", ".", ".", "."}
	}

	worst := WorstConsequence(a.Consequence)
	rsid := a.Variant.RsID
	if rsid == "" {
		rsid = "."
	}
	return []string{
		worst,
		TranscriptDetails(a.Consequence, worst),
		rsid,
		strconv.Itoa(a.Variant.AlleleCount),
		strconv.Itoa(a.Variant.AlleleNum),
		strconv.Itoa(a.Variant.HomCount),
		strconv.FormatFloat(a.Variant.AlleleFreq, 'g', -1, 64),
	}
}

// ReportRow is one output line: the source VCF fields for one alternate
// allele plus its resolved annotation.
type ReportRow struct {
	Chrom      string
	Pos        int64
	ID         string
	Ref        string
	Alt        string
	Type       string
	DP         string
	RO         string
	AO         string
	ARO        float32
	HasARO     bool // false renders ARO as "."
	Annotation Reportable
	Link       string
}
