package annotate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Summary(t *testing.T) {
	m := NewMetrics()
	m.Lines.WithLabelValues("bulk").Add(3)
	m.Alleles.WithLabelValues(StatusNotFound.String()).Inc()
	m.Batches.Inc()

	s := m.Summary()
	assert.Equal(t, 3.0, s["lines_total.bulk"])
	assert.Equal(t, 1.0, s["alleles_total.not_found"])
	assert.Equal(t, 1.0, s["batches_total"])
	assert.Equal(t, 0.0, s["batch_errors_total"])
}

func TestMetrics_WriteToTextfile(t *testing.T) {
	m := NewMetrics()
	m.Queries.Add(4)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# TYPE exac_annotator_queries_total counter")
	assert.Contains(t, string(data), "exac_annotator_queries_total 4")
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "annotated", StatusAnnotated.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}
