package annotate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// consequenceOrder ranks Sequence Ontology consequence terms, most severe first.
// It follows the Ensembl VEP ordering used by the ExAC browser.
var consequenceOrder = [...]string{
	"transcript_ablation",
	"splice_acceptor_variant",
	"splice_donor_variant",
	"stop_gained",
	"frameshift_variant",
	"stop_lost",
	"start_lost",
	"initiator_codon_variant", // deprecated
	"transcript_amplification",
	"inframe_insertion",
	"inframe_deletion",
	"missense_variant",
	"protein_altering_variant",
	"splice_region_variant",
	"incomplete_terminal_codon_variant",
	"stop_retained_variant",
	"synonymous_variant",
	"coding_sequence_variant",
	"mature_miRNA_variant",
	"5_prime_UTR_variant",
	"3_prime_UTR_variant",
	"non_coding_transcript_exon_variant",
	"non_coding_exon_variant", // deprecated
	"intron_variant",
	"NMD_transcript_variant",
	"non_coding_transcript_variant",
	"nc_transcript_variant", // deprecated
	"upstream_gene_variant",
	"downstream_gene_variant",
	"TFBS_ablation",
	"TFBS_amplification",
	"TF_binding_site_variant",
	"regulatory_region_ablation",
	"regulatory_region_amplification",
	"feature_elongation",
	"regulatory_region_variant",
	"feature_truncation",
	"intergenic_variant",
	"",
}

var severityIndex = func() map[string]int {
	m := make(map[string]int, len(consequenceOrder))
	for i, term := range consequenceOrder {
		m[term] = i
	}
	return m
}()

// Severity returns the rank of a consequence term (0 = most severe).
// ok is false for terms outside the known ordering.
func Severity(term string) (rank int, ok bool) {
	rank, ok = severityIndex[term]
	return rank, ok
}

// TranscriptDetail is one per-transcript annotation record (SYMBOL, Feature, ...).
type TranscriptDetail map[string]string

// GeneConsequence lists the transcript details for one gene under a consequence.
type GeneConsequence struct {
	GeneID  string
	Details []TranscriptDetail
}

// ConsequenceEntry is one consequence term with its affected genes.
type ConsequenceEntry struct {
	Type  string
	Genes []GeneConsequence
}

// Consequences is a consequence map kept in document order, so that
// "first encountered" is well defined when resolving unknown terms.
type Consequences []ConsequenceEntry

// UnmarshalJSON decodes {"<consequence>": {"<gene>": [{...}, ...]}} preserving key order.
func (c *Consequences) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid consequence json")
	}
	root := gjson.ParseBytes(data)
	if root.Type == gjson.Null {
		*c = nil
		return nil
	}
	if !root.IsObject() {
		return fmt.Errorf("consequence must be an object, got %s", root.Type)
	}

	var out Consequences
	var err error
	root.ForEach(func(term, genes gjson.Result) bool {
		entry := ConsequenceEntry{Type: term.String()}
		if genes.Type == gjson.Null {
			out = append(out, entry)
			return true
		}
		if !genes.IsObject() {
			err = fmt.Errorf("consequence %q: expected gene object, got %s", entry.Type, genes.Type)
			return false
		}
		genes.ForEach(func(geneID, details gjson.Result) bool {
			gene := GeneConsequence{GeneID: geneID.String()}
			details.ForEach(func(_, detail gjson.Result) bool {
				td := make(TranscriptDetail)
				detail.ForEach(func(k, v gjson.Result) bool {
					td[k.String()] = v.String()
					return true
				})
				gene.Details = append(gene.Details, td)
				return true
			})
			entry.Genes = append(entry.Genes, gene)
			return true
		})
		out = append(out, entry)
		return true
	})
	if err != nil {
		return err
	}
	*c = out
	return nil
}

// MarshalJSON encodes the consequence map in its stored order.
func (c Consequences) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, e.Type)
		buf.WriteByte(':')
		buf.WriteByte('{')
		for j, gene := range e.Genes {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(&buf, gene.GeneID)
			buf.WriteByte(':')
			details, err := json.Marshal(gene.Details)
			if err != nil {
				return nil, err
			}
			buf.Write(details)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// Lookup returns the entry for a consequence type.
func (c Consequences) Lookup(term string) (ConsequenceEntry, bool) {
	for _, e := range c {
		if e.Type == term {
			return e, true
		}
	}
	return ConsequenceEntry{}, false
}

// WorstConsequence returns the most severe consequence type present, or "."
// when there is none.
//
// An unrecognized term is taken only while the candidate is still empty, so
// the first one wins and it also displaces a bare "" term. A later known term
// ranked above every known term seen so far replaces it.
func WorstConsequence(c Consequences) string {
	if len(c) == 0 {
		return "."
	}
	worst := ""
	worstRank := len(consequenceOrder)
	for _, e := range c {
		rank, ok := Severity(e.Type)
		if !ok {
			if worst == "" {
				worst = e.Type
			}
			continue
		}
		if rank < worstRank {
			worst = e.Type
			worstRank = rank
		}
	}
	return worst
}

// UnknownConsequences returns the terms of c missing from the severity ordering.
func UnknownConsequences(c Consequences) []string {
	var unknown []string
	for _, e := range c {
		if _, ok := Severity(e.Type); !ok {
			unknown = append(unknown, e.Type)
		}
	}
	return unknown
}

// TranscriptDetails renders "SYMBOL - Feature" for every transcript under the
// given consequence type, joined by ';'. Returns "." when there is nothing to report.
// A missing key renders as "."; a key present with an empty value stays empty.
func TranscriptDetails(c Consequences, term string) string {
	if term == "." {
		return "."
	}
	entry, ok := c.Lookup(term)
	if !ok {
		return "."
	}
	var transcripts []string
	for _, gene := range entry.Genes {
		for _, d := range gene.Details {
			transcripts = append(transcripts, d.field("SYMBOL")+" - "+d.field("Feature"))
		}
	}
	if len(transcripts) == 0 {
		return "."
	}
	return strings.Join(transcripts, ";")
}

func (d TranscriptDetail) field(key string) string {
	if v, ok := d[key]; ok {
		return v
	}
	return "."
}
