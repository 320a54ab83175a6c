package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/grailbio/barcodecount/barcode"
	"github.com/grailbio/barcodecount/bcerrors"
	"github.com/grailbio/barcodecount/count"
	"github.com/grailbio/barcodecount/decode"
	"github.com/grailbio/barcodecount/match"
	"github.com/grailbio/barcodecount/schemeparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDecoder(t *testing.T) *decode.Decoder {
	t.Helper()
	scheme, err := schemeparse.Parse(strings.NewReader("ATCG\n[4]\nCG\n{3}\n(3)\nGC\n"))
	require.NoError(t, err)
	sampleDict, err := barcode.LoadSampleDict(strings.NewReader("AAAA,S1\nCCCC,S2\n"), 4)
	require.NoError(t, err)
	countedDict, err := barcode.LoadCountedDict(strings.NewReader("GGG,B1,1\nAAA,B2,1\n"), map[int]int{1: 3})
	require.NoError(t, err)
	return decode.New(scheme, sampleDict, countedDict, match.Thresholds{MaxConstantErrors: 0, MaxBarcodeErrors: 0}, 0)
}

func fastqRecord(id, seq string) string {
	return "@" + id + "\n" + seq + "\n+\n" + strings.Repeat("I", len(seq)) + "\n"
}

func TestRunCountsMatchedReads(t *testing.T) {
	data := fastqRecord("r1", "ATCGAAAACGGGGAAAGC") +
		fastqRecord("r2", "ATCGAAAACGGGGAAAGC") + // duplicate of r1
		fastqRecord("r3", "ATCGAAAACGGGGTTTGC") + // different random
		fastqRecord("r4", "NNNNNNNNNNNNNNNNNN") // constant mismatch

	counter := count.New(true)
	err := Run(context.Background(), strings.NewReader(data), testDecoder(t), counter,
		Options{Workers: 2, QueueFactor: 4})
	require.NoError(t, err)

	assert.EqualValues(t, 4, counter.Stats.Total)
	assert.EqualValues(t, 2, counter.Stats.Matched)
	assert.EqualValues(t, 1, counter.Stats.Duplicates)
	assert.EqualValues(t, 1, counter.Stats.ConstantMM)
}

func TestRunIsWorkerCountAgnostic(t *testing.T) {
	data := strings.Repeat(fastqRecord("r", "ATCGAAAACGGGGAAAGC"), 20)
	for _, workers := range []int{1, 4, 8} {
		counter := count.New(true)
		err := Run(context.Background(), strings.NewReader(data), testDecoder(t), counter,
			Options{Workers: workers, QueueFactor: 4})
		require.NoError(t, err)
		assert.EqualValues(t, 20, counter.Stats.Total, "workers=%d", workers)
		assert.EqualValues(t, 1, counter.Stats.Matched, "workers=%d", workers)
		assert.EqualValues(t, 19, counter.Stats.Duplicates, "workers=%d", workers)
	}
}

func TestRunSurfacesIoError(t *testing.T) {
	truncated := "@r1\nACGT\n+\n" // missing quality line
	counter := count.New(true)
	err := Run(context.Background(), strings.NewReader(truncated), testDecoder(t), counter, DefaultOptions())
	require.Error(t, err)
	assert.True(t, bcerrors.Is(bcerrors.IoError, err))
}

func TestRunSurfacesWorkerPanicAsFatalRuntime(t *testing.T) {
	data := fastqRecord("r1", "ATCGAAAACGGGGAAAGC")
	counter := count.New(true)
	badDecoder := &decode.Decoder{} // nil Scheme: Decode will panic on Locate()
	err := Run(context.Background(), strings.NewReader(data), badDecoder, counter, Options{Workers: 1, QueueFactor: 1})
	require.Error(t, err)
	assert.True(t, bcerrors.Is(bcerrors.FatalRuntime, err))
}
