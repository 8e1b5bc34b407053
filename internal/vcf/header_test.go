package vcf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader_FixedOnly(t *testing.T) {
	h, err := ParseHeader("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO")
	require.NoError(t, err)
	assert.Equal(t, 8, h.FieldCount())
	assert.False(t, h.HasFormat())
	assert.Equal(t, 0, h.SampleCount())
	assert.Nil(t, h.SampleNames())
}

func TestParseHeader_FormatWithoutSamples(t *testing.T) {
	h, err := ParseHeader("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT")
	require.NoError(t, err)
	assert.True(t, h.HasFormat())
	assert.Equal(t, 0, h.SampleCount())
}

func TestHeader_SampleNames(t *testing.T) {
	h, err := ParseHeader("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tNA1\tNA2")
	require.NoError(t, err)
	assert.Equal(t, []string{"NA1", "NA2"}, h.SampleNames())

	require.NoError(t, h.SetSampleNames([]string{"tumor", "normal"}))
	assert.Equal(t, "tumor", h.Field(9))
	assert.Equal(t, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\ttumor\tnormal", h.String())

	assert.Error(t, h.SetSampleNames([]string{"only-one"}))
}

func TestHeader_Subset(t *testing.T) {
	h, err := ParseHeader("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO")
	require.NoError(t, err)
	h.Meta = []string{"##fileformat=VCFv4.2"}

	sub, err := h.Subset([]string{"S1"})
	require.NoError(t, err)
	assert.True(t, sub.HasFormat())
	assert.Equal(t, []string{"S1"}, sub.SampleNames())
	assert.Equal(t, h.Meta, sub.Meta)
	assert.Equal(t, 8, h.FieldCount(), "subset must not modify the source header")
}
