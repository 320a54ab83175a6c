package decode

import (
	"strings"
	"testing"

	"github.com/grailbio/barcodecount/barcode"
	"github.com/grailbio/barcodecount/match"
	"github.com/grailbio/barcodecount/schemeparse"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func mustScheme(t *testing.T, text string) *schemeparse.Scheme {
	t.Helper()
	s, err := schemeparse.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return s
}

func baseDecoder(t *testing.T, thresholds match.Thresholds) *Decoder {
	t.Helper()
	scheme := mustScheme(t, "ATCG\n[4]\nCG\n{3}\n(3)\nGC\n")
	sampleDict, err := barcode.LoadSampleDict(strings.NewReader("AAAA,S1\nCCCC,S2\n"), 4)
	require.NoError(t, err)
	countedDict, err := barcode.LoadCountedDict(strings.NewReader("GGG,B1,1\nAAA,B2,1\n"), map[int]int{1: 3})
	require.NoError(t, err)
	return New(scheme, sampleDict, countedDict, thresholds, 0)
}

func fakeQual(n int) string {
	return strings.Repeat("I", n) // Phred 40, always passes a quality filter.
}

// S1: perfect read.
func TestDecodeS1Matched(t *testing.T) {
	d := baseDecoder(t, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 0})
	read := "ATCGAAAACGGGGAAAGC"
	got, outcome := d.Decode(read, fakeQual(len(read)))
	require.Equal(t, Matched, outcome)
	assert.Equal(t, "S1", got.SampleID)
	assert.Equal(t, []string{"GGG"}, got.Counted)
	assert.Equal(t, "AAA", got.Random)
}

// S4: sample candidate AAAT is 1 mismatch from AAAA (25% of 4) -- rejected
// at the default-style budget of 0, but matched once the budget allows 1.
func TestDecodeS4SampleMismatchThenMatch(t *testing.T) {
	d := baseDecoder(t, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 0})
	read := "ATCGAAATCGGGGAAAGC"
	_, outcome := d.Decode(read, fakeQual(len(read)))
	assert.Equal(t, SampleMismatch, outcome)

	d = baseDecoder(t, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 1})
	got, outcome := d.Decode(read, fakeQual(len(read)))
	require.Equal(t, Matched, outcome)
	assert.Equal(t, "S1", got.SampleID)
}

// S5: counted dict augmented with an exact third entry.
func TestDecodeS5ExactCountedMatch(t *testing.T) {
	scheme := mustScheme(t, "ATCG\n[4]\nCG\n{3}\n(3)\nGC\n")
	sampleDict, err := barcode.LoadSampleDict(strings.NewReader("AAAA,S1\nCCCC,S2\n"), 4)
	require.NoError(t, err)
	countedDict, err := barcode.LoadCountedDict(strings.NewReader("GGG,B1,1\nAAA,B2,1\nAAG,B3,1\n"), map[int]int{1: 3})
	require.NoError(t, err)
	d := New(scheme, sampleDict, countedDict, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 0}, 0)
	read := "ATCGAAAACGAAGGAAGC"
	got, outcome := d.Decode(read, fakeQual(len(read)))
	require.Equal(t, Matched, outcome)
	assert.Equal(t, []string{"AAG"}, got.Counted)
}

// S6: GGT is at distance 1 from both GGG and GGA -- a tie, rejected.
func TestDecodeS6CountedTieRejected(t *testing.T) {
	scheme := mustScheme(t, "ATCG\n[4]\nCG\n{3}\n(3)\nGC\n")
	sampleDict, err := barcode.LoadSampleDict(strings.NewReader("AAAA,S1\nCCCC,S2\n"), 4)
	require.NoError(t, err)
	countedDict, err := barcode.LoadCountedDict(strings.NewReader("GGG,B1,1\nGGA,B2,1\n"), map[int]int{1: 3})
	require.NoError(t, err)
	d := New(scheme, sampleDict, countedDict, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 1}, 0)
	read := "ATCGAAAACGGGTAAAGC"
	_, outcome := d.Decode(read, fakeQual(len(read)))
	assert.Equal(t, CountedMismatch, outcome)
}

func TestDecodeConstantMismatchOnNoLocatorMatch(t *testing.T) {
	d := baseDecoder(t, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 0})
	_, outcome := d.Decode("TTTTAAAACGGGGAAAGC", fakeQual(18))
	assert.Equal(t, ConstantMismatch, outcome)
}

// A constant-region substitution error within budget still decodes via the
// window-scan fallback: the leading "ATCG" anchor carries a single
// substitution ("ATGG"), one mismatch, within a constant budget of 1.
func TestDecodeConstantErrorWithinBudgetStillMatches(t *testing.T) {
	d := baseDecoder(t, match.Thresholds{MaxConstantErrors: 1, MaxBarcodeErrors: 0})
	read := "ATGGAAAACGGGGAAAGC"
	got, outcome := d.Decode(read, fakeQual(len(read)))
	require.Equal(t, Matched, outcome)
	assert.Equal(t, "S1", got.SampleID)
	assert.Equal(t, []string{"GGG"}, got.Counted)
}

// A constant-region error beyond budget is rejected even by the window
// scan: two mismatches against a budget of 1.
func TestDecodeConstantErrorOverBudgetRejected(t *testing.T) {
	d := baseDecoder(t, match.Thresholds{MaxConstantErrors: 1, MaxBarcodeErrors: 0})
	read := "TTGGAAAACGGGGAAAGC"
	_, outcome := d.Decode(read, fakeQual(len(read)))
	assert.Equal(t, ConstantMismatch, outcome)
}

func TestDecodeNoSampleDictUsesUnknownSampleName(t *testing.T) {
	d := baseDecoder(t, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 0})
	d.SampleDict = nil
	read := "ATCGAAAACGGGGAAAGC"
	got, outcome := d.Decode(read, fakeQual(len(read)))
	require.Equal(t, Matched, outcome)
	assert.Equal(t, UnknownSampleName, got.SampleID)
}

func TestDecodeNoCountedDictIsIdentity(t *testing.T) {
	d := baseDecoder(t, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 0})
	d.CountedDict = nil
	read := "ATCGAAAACGTTGAAAGC"
	got, outcome := d.Decode(read, fakeQual(len(read)))
	require.Equal(t, Matched, outcome)
	assert.Equal(t, []string{"TTG"}, got.Counted)
}

func TestDecodeLowQuality(t *testing.T) {
	d := baseDecoder(t, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 0})
	d.MinQuality = 30
	read := "ATCGAAAACGGGGAAAGC"
	// '#' is Phred 2, well under the threshold.
	qual := strings.Repeat("I", 4) + strings.Repeat("#", 4) + strings.Repeat("I", 10)
	_, outcome := d.Decode(read, qual)
	assert.Equal(t, LowQuality, outcome)
}
