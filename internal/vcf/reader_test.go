package vcf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVCF = `##fileformat=VCFv4.2
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total read depth">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	sample1
1	931393	.	G	T	.	.	DP=30;RO=20;AO=10;TYPE=snp	GT	0/1
1	6475586	.	TC	GA,G	.	.	DP=9;RO=4;AO=2,3;TYPE=mnp,del	GT	1/2
14	21853913	.	T	C	.	.	DP=12;RO=6;AO=6;TYPE=snp	GT	0/1
22	46615746	.	A	G	.	.	DP=40;RO=0;AO=40;TYPE=snp	GT	1/1
2	100	.	A	C	.	.	DP=5;RO=4;AO=1;TYPE=snp	GT	0/1
`

func writeVCF(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		f, err := os.Create(path)
		require.NoError(t, err)
		zw := gzip.NewWriter(f)
		_, err = zw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())
		return path
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func collectLines(t *testing.T, r *Reader) []string {
	t.Helper()
	var lines []string
	require.NoError(t, r.Traverse(func(line string, index int64) error {
		assert.Equal(t, int64(len(lines)), index)
		lines = append(lines, line)
		return nil
	}))
	return lines
}

func TestReader_Header(t *testing.T) {
	r, err := Open(writeVCF(t, "test.vcf", testVCF))
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	require.NotNil(t, h)
	assert.True(t, h.HasFormat())
	assert.Equal(t, 1, h.SampleCount())
	assert.Equal(t, []string{"sample1"}, h.SampleNames())
	assert.Len(t, h.Meta, 2)
	assert.Equal(t, "##fileformat=VCFv4.2", h.Meta[0])
	assert.Equal(t, int64(3), r.HeaderLines())
}

func TestReader_Traverse(t *testing.T) {
	for _, name := range []string{"test.vcf", "test.vcf.gz", "TEST.VCF.GZ"} {
		t.Run(name, func(t *testing.T) {
			r, err := Open(writeVCF(t, name, testVCF))
			require.NoError(t, err)
			defer r.Close()

			lines := collectLines(t, r)
			require.Len(t, lines, 5)
			assert.True(t, strings.HasPrefix(lines[0], "1\t931393"))
			assert.True(t, strings.HasPrefix(lines[4], "2\t100"))

			// A second traversal restarts at the first data line.
			again := collectLines(t, r)
			assert.Equal(t, lines, again)
		})
	}
}

func TestReader_TraverseBatch(t *testing.T) {
	tests := []struct {
		limit int
		sizes []int
	}{
		{1, []int{1, 1, 1, 1, 1}},
		{2, []int{2, 2, 1}},
		{3, []int{3, 2}},
		{5, []int{5}},
		{1000, []int{5}},
	}

	r, err := NewReader(strings.NewReader(testVCF))
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit=%d", tt.limit), func(t *testing.T) {
			var sizes []int
			var all []string
			require.NoError(t, r.TraverseBatch(tt.limit, func(lines []string) error {
				sizes = append(sizes, len(lines))
				all = append(all, lines...)
				return nil
			}))
			assert.Equal(t, tt.sizes, sizes)
			assert.Len(t, all, 5)
		})
	}
}

func TestReader_TraverseBatch_InvalidLimit(t *testing.T) {
	r, err := NewReader(strings.NewReader(testVCF))
	require.NoError(t, err)
	assert.Error(t, r.TraverseBatch(0, func([]string) error { return nil }))
}

func TestReader_TraverseStopsOnError(t *testing.T) {
	r, err := NewReader(strings.NewReader(testVCF))
	require.NoError(t, err)

	stop := errors.New("stop")
	count := 0
	err = r.Traverse(func(string, int64) error {
		count++
		if count == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, count)

	// The reader is usable again after an aborted traversal.
	assert.Len(t, collectLines(t, r), 5)
}

func TestReader_NestedTraversalRejected(t *testing.T) {
	r, err := NewReader(strings.NewReader(testVCF))
	require.NoError(t, err)

	var inner error
	require.NoError(t, r.Traverse(func(string, int64) error {
		if inner == nil {
			inner = r.TraverseBatch(2, func([]string) error { return nil })
		}
		return nil
	}))
	assert.ErrorIs(t, inner, ErrTraversalActive)
}

func TestReader_NoTrailingNewline(t *testing.T) {
	content := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n1\t1\t.\tA\tC\t.\t.\tDP=1"
	r, err := NewReader(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, []string{"1\t1\t.\tA\tC\t.\t.\tDP=1"}, collectLines(t, r))
	assert.False(t, r.Header().HasFormat())
	assert.Equal(t, 0, r.Header().SampleCount())
}

func TestReader_HeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"meta only", "##fileformat=VCFv4.2\n"},
		{"data before header", "##fileformat=VCFv4.2\n1\t1\t.\tA\tC\t.\t.\tDP=1\n"},
		{"other comment line", "##fileformat=VCFv4.2\n#comment\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"},
		{"wrong column", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTERS\tINFO\n"},
		{"too few columns", "#CHROM\tPOS\tID\tREF\tALT\n"},
		{"ninth column not FORMAT", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tsample1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.content))
			require.Error(t, err)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestOpen_NotFound(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.vcf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
