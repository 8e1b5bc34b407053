package annotate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/exac-annotator/internal/vcf"
)

// DefaultBatchLimit is the number of VCF lines grouped into one bulk request.
const DefaultBatchLimit = 1000

// DefaultBrowserURL is the base of the per-variant ExAC browser link.
const DefaultBrowserURL = "http://exac.broadinstitute.org/variant"

// Status is the outcome of annotating one alternate allele.
type Status int

const (
	StatusAnnotated Status = iota // a row was produced
	StatusNotFound                // the service has no record; no row
	StatusFailed                  // the lookup failed; no row
)

func (s Status) String() string {
	switch s {
	case StatusAnnotated:
		return "annotated"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// AlleleResult is the outcome for one (line, alternate allele) pair.
type AlleleResult struct {
	Line   int64 // 1-based line number in the input file
	Query  Query
	Status Status
	Row    *ReportRow // set when Status is StatusAnnotated
	Err    error      // set when Status is StatusFailed
}

// ReportWriter defines the interface for writing report rows.
type ReportWriter interface {
	WriteHeader() error
	Write(row *ReportRow) error
	Flush() error
}

// Annotator drives VCF lines through normalization, lookup and reporting.
type Annotator struct {
	service    Service
	bulk       bool
	batchLimit int
	browserURL string
	logger     *zap.Logger
	metrics    *Metrics
}

// NewAnnotator creates an annotator in bulk mode backed by the given service.
func NewAnnotator(s Service) *Annotator {
	return &Annotator{
		service:    s,
		bulk:       true,
		batchLimit: DefaultBatchLimit,
		browserURL: DefaultBrowserURL,
		logger:     zap.NewNop(),
		metrics:    NewMetrics(),
	}
}

// SetBulk selects bulk (true) or one-query-per-allele (false) lookups.
func (a *Annotator) SetBulk(bulk bool) {
	a.bulk = bulk
}

// SetBatchLimit sets the number of VCF lines per bulk request.
func (a *Annotator) SetBatchLimit(n int) {
	if n > 0 {
		a.batchLimit = n
	}
}

// SetBrowserURL sets the base of the browser link column.
func (a *Annotator) SetBrowserURL(u string) {
	a.browserURL = strings.TrimRight(u, "/")
}

// SetLogger sets the logger for warning and info messages.
func (a *Annotator) SetLogger(l *zap.Logger) {
	a.logger = l
}

// SetMetrics replaces the outcome counters.
func (a *Annotator) SetMetrics(m *Metrics) {
	a.metrics = m
}

// Metrics returns the outcome counters.
func (a *Annotator) Metrics() *Metrics {
	return a.metrics
}

// AnnotateAll annotates every data line of r and writes one row per annotated
// allele. Parse and lookup failures are logged and skipped; only reader and
// writer errors abort the run.
func (a *Annotator) AnnotateAll(ctx context.Context, r *vcf.Reader, w ReportWriter) error {
	firstLine := r.HeaderLines() + 1

	var err error
	if a.bulk {
		next := firstLine
		err = r.TraverseBatch(a.batchLimit, func(lines []string) error {
			results := a.AnnotateGroup(ctx, next, lines)
			next += int64(len(lines))
			return a.emit(results, w)
		})
	} else {
		err = r.Traverse(func(line string, index int64) error {
			return a.emit(a.AnnotateLine(ctx, firstLine+index, line), w)
		})
	}
	if err != nil {
		return err
	}

	return w.Flush()
}

// AnnotateGroup annotates a group of lines with a single bulk request.
// firstLine is the file line number of lines[0].
func (a *Annotator) AnnotateGroup(ctx context.Context, firstLine int64, lines []string) []AlleleResult {
	a.metrics.Batches.Inc()

	var pending []allele
	for i, line := range lines {
		pending = append(pending, a.expand(firstLine+int64(i), line, "bulk")...)
	}
	if len(pending) == 0 {
		return nil
	}

	keys := make([]string, 0, len(pending))
	seen := make(map[string]bool, len(pending))
	for _, p := range pending {
		k := p.query.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	anns, err := a.service.BulkLookup(ctx, keys)
	if err != nil {
		a.metrics.BatchErrors.Inc()
		a.logger.Warn("bulk annotation failed, skipping line group",
			zap.Int64("first_line", firstLine),
			zap.Int("lines", len(lines)),
			zap.Int("queries", len(keys)),
			zap.Error(err))
		results := make([]AlleleResult, len(pending))
		for i, p := range pending {
			results[i] = p.failed(err)
		}
		return results
	}

	results := make([]AlleleResult, len(pending))
	for i, p := range pending {
		results[i] = a.resolve(p, anns[p.query.Key()])
	}
	return results
}

// AnnotateLine annotates each alternate allele of a line with its own request.
// A lookup error abandons the remaining alleles of the line.
func (a *Annotator) AnnotateLine(ctx context.Context, lineNo int64, line string) []AlleleResult {
	pending := a.expand(lineNo, line, "single")
	results := make([]AlleleResult, 0, len(pending))
	for i, p := range pending {
		ann, err := a.service.Lookup(ctx, p.query.Key())
		if err != nil {
			a.logger.Warn("annotation lookup failed, skipping rest of line",
				zap.Int64("line", lineNo),
				zap.String("query", p.query.Key()),
				zap.Error(err))
			for _, rest := range pending[i:] {
				results = append(results, rest.failed(err))
			}
			break
		}
		results = append(results, a.resolve(p, ann))
	}
	return results
}

// allele is a parsed alternate allele waiting for its annotation.
type allele struct {
	line  int64
	query Query
	row   ReportRow
}

func (p allele) failed(err error) AlleleResult {
	return AlleleResult{Line: p.line, Query: p.query, Status: StatusFailed, Err: err}
}

// expand parses a data line into one pending allele per alternate allele.
// Unparseable lines are logged and yield nothing.
func (a *Annotator) expand(lineNo int64, line, mode string) []allele {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	a.metrics.Lines.WithLabelValues(mode).Inc()

	alleles, err := expandLine(lineNo, line)
	if err != nil {
		a.metrics.LineErrors.Inc()
		a.logger.Warn("skipping unparseable line",
			zap.Int64("line", lineNo),
			zap.Error(err))
		return nil
	}
	a.metrics.Queries.Add(float64(len(alleles)))
	return alleles
}

func expandLine(lineNo int64, line string) ([]allele, error) {
	v, err := vcf.ParseLine(line)
	if err != nil {
		return nil, &vcf.ParseError{Line: lineNo, Message: "invalid data line", Err: err}
	}

	dp := v.InfoValue(vcf.InfoDP)
	ro := v.InfoValue(vcf.InfoRO)

	alleles := make([]allele, 0, len(v.Alts))
	for i, alt := range v.Alts {
		typ, err := v.AlleleValue(vcf.InfoType, i)
		if err != nil {
			return nil, &vcf.ParseError{Line: lineNo, Message: "invalid INFO", Err: err}
		}
		ao, err := v.AlleleValue(vcf.InfoAO, i)
		if err != nil {
			return nil, &vcf.ParseError{Line: lineNo, Message: "invalid INFO", Err: err}
		}
		aro, hasARO, err := v.ObservationRatio(i)
		if err != nil {
			return nil, &vcf.ParseError{Line: lineNo, Message: "invalid observation counts", Err: err}
		}

		alleles = append(alleles, allele{
			line:  lineNo,
			query: NewQuery(v.Chrom, v.Pos, v.Ref, alt),
			row: ReportRow{
				Chrom:  v.Chrom,
				Pos:    v.Pos,
				ID:     v.ID,
				Ref:    v.Ref,
				Alt:    alt,
				Type:   typ,
				DP:     dp,
				RO:     ro,
				AO:     ao,
				ARO:    aro,
				HasARO: hasARO,
			},
		})
	}
	return alleles, nil
}

// resolve turns a service answer into a result for one allele.
func (a *Annotator) resolve(p allele, ann *Annotation) AlleleResult {
	if ann == nil {
		return AlleleResult{Line: p.line, Query: p.query, Status: StatusNotFound}
	}

	for _, term := range UnknownConsequences(ann.Consequence) {
		a.metrics.UnknownConsequences.Inc()
		a.logger.Warn("consequence not in severity ordering, consider updating the software",
			zap.String("consequence", term),
			zap.String("query", p.query.Key()))
	}

	row := p.row
	row.Annotation = ann
	row.Link = a.browserURL + "/" + p.query.Key()
	return AlleleResult{Line: p.line, Query: p.query, Status: StatusAnnotated, Row: &row}
}

// emit writes annotated rows in order and records the other outcomes.
func (a *Annotator) emit(results []AlleleResult, w ReportWriter) error {
	for _, r := range results {
		a.metrics.Alleles.WithLabelValues(r.Status.String()).Inc()
		switch r.Status {
		case StatusAnnotated:
			if err := w.Write(r.Row); err != nil {
				return fmt.Errorf("write report row: %w", err)
			}
		case StatusNotFound:
			a.logger.Info("annotation is empty",
				zap.Int64("line", r.Line),
				zap.String("query", r.Query.Key()))
		case StatusFailed:
			a.logger.Debug("allele not annotated",
				zap.Int64("line", r.Line),
				zap.String("query", r.Query.Key()),
				zap.Error(r.Err))
		}
	}
	return nil
}
