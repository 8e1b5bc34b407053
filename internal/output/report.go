// Package output provides annotation output formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/exac-annotator/internal/annotate"
)

// siteColumns are the VCF-derived columns preceding the annotation columns.
var siteColumns = []string{
	"#CHROM",
	"POS",
	"ID",
	"REF",
	"ALT",
	"TYPE",
	"DP",
	"RO",
	"AO",
	"ARO",
}

// LinkColumn is the last report column.
const LinkColumn = "ExACBrowser_Link"

// Columns returns the report header columns in order.
func Columns() []string {
	cols := make([]string, 0, len(siteColumns)+len(annotate.AnnotationColumns)+1)
	cols = append(cols, siteColumns...)
	cols = append(cols, annotate.AnnotationColumns...)
	return append(cols, LinkColumn)
}

// TabWriter writes report rows in tab-delimited format.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

var _ annotate.ReportWriter = (*TabWriter)(nil)

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w:       bufio.NewWriter(w),
		columns: Columns(),
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes a single report row.
func (tw *TabWriter) Write(row *annotate.ReportRow) error {
	var fields []string
	if row.Annotation != nil {
		fields = row.Annotation.ReportFields()
	}
	if len(fields) != len(annotate.AnnotationColumns) {
		return fmt.Errorf("annotation for %s:%d has %d fields, want %d",
			row.Chrom, row.Pos, len(fields), len(annotate.AnnotationColumns))
	}

	aro := "."
	if row.HasARO {
		aro = strconv.FormatFloat(float64(row.ARO), 'g', -1, 32)
	}

	values := make([]string, 0, len(tw.columns))
	values = append(values,
		row.Chrom,
		strconv.FormatInt(row.Pos, 10),
		orMissing(row.ID),
		row.Ref,
		row.Alt,
		orMissing(row.Type),
		orMissing(row.DP),
		orMissing(row.RO),
		orMissing(row.AO),
		aro,
	)
	values = append(values, fields...)
	values = append(values, row.Link)

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

func orMissing(s string) string {
	if s == "" {
		return "."
	}
	return s
}
