/*
barcode-count decodes and tallies DNA barcodes from NGS reads in FASTQ form.
Reads are matched against a fixed layout of constant anchors and variable
barcode slots (sample identity, one or more counted barcodes, and an
optional random/UMI barcode for PCR deduplication), and the result is a
per-sample table of counts keyed by the tuple of counted barcodes.

Sample usage:
barcode-count \
    --fastq reads.fastq.gz \
    --sequence-format layout.txt \
    --sample-barcodes samples.csv \
    --counted-barcodes guides.csv \
    --output-dir out --prefix run1 --merge-output --enrich
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/barcodecount/barcode"
	"github.com/grailbio/barcodecount/bcerrors"
	"github.com/grailbio/barcodecount/count"
	"github.com/grailbio/barcodecount/decode"
	"github.com/grailbio/barcodecount/emit"
	"github.com/grailbio/barcodecount/match"
	"github.com/grailbio/barcodecount/pipeline"
	"github.com/grailbio/barcodecount/schemeparse"
)

var (
	fastqPath         = flag.String("fastq", "", "Input FASTQ path, plain or gzip-compressed (required)")
	sampleBarcodes    = flag.String("sample-barcodes", "", "Sample barcode CSV path (barcode,sample_id); optional")
	sequenceFormat    = flag.String("sequence-format", "", "Scheme/layout file path (required)")
	countedBarcodes   = flag.String("counted-barcodes", "", "Counted barcode CSV path (barcode,barcode_id,slot_number); optional")
	outputDir         = flag.String("output-dir", ".", "Output directory")
	prefix            = flag.String("prefix", "", "Output filename prefix (default: today's date, YYYY-MM-DD)")
	threads           = flag.Int("threads", 0, "Number of decoder worker threads; 0 = logical CPUs minus one")
	mergeOutput       = flag.Bool("merge-output", false, "Additionally write a merged multi-sample counts file")
	minQuality        = flag.Float64("min-quality", 0, "Minimum mean Phred quality over each barcode slot; 0 disables the filter")
	enrich            = flag.Bool("enrich", false, "Additionally write singleton and pair enrichment tables")
	maxConstantErrors = flag.Int("max-constant-errors", -1, "Maximum Hamming distance allowed for constant segments; default 20% of segment length")
	maxBarcodeErrors  = flag.Int("max-barcode-errors", -1, "Maximum Hamming distance allowed for barcode segments; default 20% of segment length")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unexpected positional arguments: %v", flag.Args())
	}
	if *fastqPath == "" || *sequenceFormat == "" {
		log.Fatalf("--fastq and --sequence-format are required")
	}

	ctx := vcontext.Background()
	start := time.Now()

	scheme, sampleDict, countedDict := loadConfig(ctx)
	thresholds := match.Thresholds{
		MaxConstantErrors: *maxConstantErrors,
		MaxBarcodeErrors:  *maxBarcodeErrors,
	}
	decoder := decode.New(scheme, sampleDict, countedDict, thresholds, *minQuality)
	counter := count.New(scheme.HasRandom())

	opts := pipeline.DefaultOptions()
	if *threads > 0 {
		opts.Workers = *threads
	}

	runPrefix := *prefix
	if runPrefix == "" {
		runPrefix = time.Now().Format("2006-01-02")
	}
	emitter := emit.New(emit.Options{
		OutputDir:   *outputDir,
		Prefix:      runPrefix,
		MergeOutput: *mergeOutput,
		Enrich:      *enrich,
	}, scheme, sampleDict, countedDict)

	runErr := runPipeline(ctx, decoder, counter, opts)
	if err := emitter.WriteStats(ctx, counter, time.Since(start), runErr != nil); err != nil {
		log.Fatalf("%v", err)
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}
	if err := emitter.Write(ctx, counter); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("barcodecount: done in %s", time.Since(start).Round(time.Millisecond))
}

// loadConfig reads the scheme and dictionary files, exiting the process on
// any configuration error (§7: InvalidScheme, InvalidBarcodeFile surface as
// process failures, never partial state).
func loadConfig(ctx context.Context) (*schemeparse.Scheme, *barcode.SampleDict, *barcode.CountedDict) {
	schemeFile, err := file.Open(ctx, *sequenceFormat)
	if err != nil {
		log.Fatalf("open %s: %v", *sequenceFormat, err)
	}
	scheme, err := schemeparse.Parse(schemeFile.Reader(ctx))
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := schemeFile.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", *sequenceFormat, err)
	}

	var sampleDict *barcode.SampleDict
	if *sampleBarcodes != "" {
		sampleLen := 0
		for _, seg := range scheme.Segments {
			if seg.Kind == schemeparse.Sample {
				sampleLen = seg.Len
			}
		}
		f, err := file.Open(ctx, *sampleBarcodes)
		if err != nil {
			log.Fatalf("open %s: %v", *sampleBarcodes, err)
		}
		if sampleDict, err = barcode.LoadSampleDict(f.Reader(ctx), sampleLen); err != nil {
			log.Fatalf("%v", err)
		}
		if err := f.Close(ctx); err != nil {
			log.Fatalf("close %s: %v", *sampleBarcodes, err)
		}
	}

	var countedDict *barcode.CountedDict
	if *countedBarcodes != "" {
		slotLens := map[int]int{}
		for i := 1; i <= scheme.NumCounted(); i++ {
			if n, ok := scheme.CountedLen(i); ok {
				slotLens[i] = n
			}
		}
		f, err := file.Open(ctx, *countedBarcodes)
		if err != nil {
			log.Fatalf("open %s: %v", *countedBarcodes, err)
		}
		if countedDict, err = barcode.LoadCountedDict(f.Reader(ctx), slotLens); err != nil {
			log.Fatalf("%v", err)
		}
		if err := f.Close(ctx); err != nil {
			log.Fatalf("close %s: %v", *countedBarcodes, err)
		}
	}
	return scheme, sampleDict, countedDict
}

// runPipeline opens the FASTQ input, transparently decompressing it if its
// name indicates a compressed format, and runs the decode pipeline over it.
func runPipeline(ctx context.Context, decoder *decode.Decoder, counter *count.Counter, opts pipeline.Options) error {
	in, err := file.Open(ctx, *fastqPath)
	if err != nil {
		return bcerrors.E(bcerrors.IoError, fmt.Sprintf("open %s", *fastqPath), err)
	}
	defer func() {
		if err := in.Close(ctx); err != nil {
			log.Error.Printf("close %s: %v", *fastqPath, err)
		}
	}()

	r := in.Reader(ctx)
	var reader io.Reader = r
	if uncompressed := compress.NewReaderPath(r, in.Name()); uncompressed != nil {
		reader = uncompressed
	}
	return pipeline.Run(ctx, reader, decoder, counter, opts)
}
