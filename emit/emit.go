// Package emit writes the Emitter's outputs: per-sample count CSVs, an
// optional merged multi-sample CSV, optional enrichment tables, and the
// append-only run statistics log. It implements §4.7 of the design.
package emit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/barcodecount/barcode"
	"github.com/grailbio/barcodecount/bcerrors"
	"github.com/grailbio/barcodecount/count"
	"github.com/grailbio/barcodecount/schemeparse"
)

// UnknownSampleName mirrors decode.UnknownSampleName; duplicated here (a
// plain string constant, not an import) to keep emit a leaf alongside
// decode rather than depend on it.
const UnknownSampleName = "unknown_sample_name"

// Options configures where and how the Emitter writes its outputs.
type Options struct {
	OutputDir   string
	Prefix      string
	MergeOutput bool
	Enrich      bool
}

// Emitter writes the final Counter state to the filesystem, per §4.7. It
// holds no state of its own beyond its configuration and the dictionaries
// needed to translate DNA strings to barcode names.
type Emitter struct {
	Opts        Options
	Scheme      *schemeparse.Scheme
	SampleDict  *barcode.SampleDict
	CountedDict *barcode.CountedDict
}

// New constructs an Emitter.
func New(opts Options, scheme *schemeparse.Scheme, sampleDict *barcode.SampleDict, countedDict *barcode.CountedDict) *Emitter {
	return &Emitter{Opts: opts, Scheme: scheme, SampleDict: sampleDict, CountedDict: countedDict}
}

// sampleIDs returns the set of sample_ids to emit files for: every name in
// SampleDict, every sample_id the Counter actually observed, and
// UnknownSampleName (§4.7: "all sample_ids in SampleDict plus
// unknown_sample_name"), so a sample that saw zero matching reads still
// gets an (empty) counts file.
func (e *Emitter) sampleIDs(counts map[string]map[string]uint32) []string {
	seen := map[string]bool{UnknownSampleName: true}
	ids := []string{UnknownSampleName}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			ids = append(ids, name)
		}
	}
	if e.SampleDict != nil {
		for _, name := range e.SampleDict.ByBarcode {
			add(name)
		}
	}
	for name := range counts {
		add(name)
	}
	sort.Strings(ids)
	return ids
}

// names translates a counted tuple's DNA strings to their CountedDict
// names, falling back to the DNA string itself when no dict was loaded or
// a particular string isn't present in its slot (§4.7).
func (e *Emitter) names(tuple []string) []string {
	out := make([]string, len(tuple))
	for i, dna := range tuple {
		out[i] = dna
		if e.CountedDict == nil {
			continue
		}
		slot := i + 1
		if name, ok := e.CountedDict.BySlot[slot][dna]; ok {
			out[i] = name
		}
	}
	return out
}

// Write emits every §4.7 output file derived from counter: per-sample count
// files, the merged file if MergeOutput, and enrichment tables if Enrich.
func (e *Emitter) Write(ctx context.Context, counter *count.Counter) error {
	k := e.Scheme.NumCounted()
	counts := counter.Counts()
	ids := e.sampleIDs(counts)

	for _, id := range ids {
		if err := e.writeSampleCounts(ctx, id, counts[id], k); err != nil {
			return err
		}
	}
	if e.Opts.MergeOutput {
		if err := e.writeMerged(ctx, ids, counts, k); err != nil {
			return err
		}
	}
	if e.Opts.Enrich && k >= 2 {
		for _, id := range ids {
			if err := e.writeEnrichment(ctx, id, counts[id], k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Emitter) outPath(name string) string {
	return filepath.Join(e.Opts.OutputDir, fmt.Sprintf("%s_%s", e.Opts.Prefix, name))
}

func (e *Emitter) createCSV(ctx context.Context, name string) (file.File, *csv.Writer, error) {
	f, err := file.Create(ctx, e.outPath(name))
	if err != nil {
		return nil, nil, bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("create %s", name), err)
	}
	return f, csv.NewWriter(f.Writer(ctx)), nil
}

func closeCSV(ctx context.Context, f file.File, w *csv.Writer, name string) error {
	w.Flush()
	if err := w.Error(); err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s", name), err)
	}
	if err := f.Close(ctx); err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("close %s", name), err)
	}
	return nil
}

func countedHeader(k int) []string {
	h := make([]string, k)
	for i := range h {
		h[i] = fmt.Sprintf("Barcode_%d", i+1)
	}
	return h
}

// writeSampleCounts writes <prefix>_<sample_id>_counts.csv.
func (e *Emitter) writeSampleCounts(ctx context.Context, sampleID string, tuples map[string]uint32, k int) error {
	name := fmt.Sprintf("%s_counts.csv", sampleID)
	f, w, err := e.createCSV(ctx, name)
	if err != nil {
		return err
	}
	if err := w.Write(append(countedHeader(k), "Count")); err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s header", name), err)
	}
	for _, key := range sortedKeys(tuples) {
		tuple := count.SplitTuple(key)
		row := append(e.names(tuple), strconv.FormatUint(uint64(tuples[key]), 10))
		if err := w.Write(row); err != nil {
			return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s row", name), err)
		}
	}
	return closeCSV(ctx, f, w, name)
}

// writeMerged writes <prefix>_counts.all.csv, a union of every tuple
// observed in any sample with one column per sample and zero for absent
// cells (§4.7).
func (e *Emitter) writeMerged(ctx context.Context, ids []string, counts map[string]map[string]uint32, k int) error {
	name := "counts.all.csv"
	union := map[string]bool{}
	for _, id := range ids {
		for key := range counts[id] {
			union[key] = true
		}
	}
	keys := make([]string, 0, len(union))
	for key := range union {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	f, w, err := e.createCSV(ctx, name)
	if err != nil {
		return err
	}
	if err := w.Write(append(countedHeader(k), ids...)); err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s header", name), err)
	}
	for _, key := range keys {
		row := e.names(count.SplitTuple(key))
		for _, id := range ids {
			row = append(row, strconv.FormatUint(uint64(counts[id][key]), 10))
		}
		if err := w.Write(row); err != nil {
			return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s row", name), err)
		}
	}
	return closeCSV(ctx, f, w, name)
}

// writeEnrichment writes the singleton tables for every slot, and the pair
// tables for every unordered pair when k >= 3 (§4.7).
func (e *Emitter) writeEnrichment(ctx context.Context, sampleID string, tuples map[string]uint32, k int) error {
	singletons := make([]map[string]uint32, k)
	for i := range singletons {
		singletons[i] = map[string]uint32{}
	}
	var pairs map[[2]int]map[[2]string]uint32
	if k >= 3 {
		pairs = map[[2]int]map[[2]string]uint32{}
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				pairs[[2]int{i, j}] = map[[2]string]uint32{}
			}
		}
	}

	for key, n := range tuples {
		names := e.names(count.SplitTuple(key))
		for i, name := range names {
			singletons[i][name] += n
		}
		if pairs != nil {
			for i := 0; i < k; i++ {
				for j := i + 1; j < k; j++ {
					pairs[[2]int{i, j}][[2]string{names[i], names[j]}] += n
				}
			}
		}
	}

	for i := 0; i < k; i++ {
		if err := e.writeSingletonTable(ctx, sampleID, i, singletons[i]); err != nil {
			return err
		}
	}
	if pairs != nil {
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if err := e.writePairTable(ctx, sampleID, i, j, pairs[[2]int{i, j}]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *Emitter) writeSingletonTable(ctx context.Context, sampleID string, slot int, counts map[string]uint32) error {
	name := fmt.Sprintf("%s_Barcode_%d_counts.csv", sampleID, slot+1)
	f, w, err := e.createCSV(ctx, name)
	if err != nil {
		return err
	}
	if err := w.Write([]string{fmt.Sprintf("Barcode_%d", slot+1), "Count"}); err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s header", name), err)
	}
	for _, key := range sortedKeys(counts) {
		if err := w.Write([]string{key, strconv.FormatUint(uint64(counts[key]), 10)}); err != nil {
			return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s row", name), err)
		}
	}
	return closeCSV(ctx, f, w, name)
}

func (e *Emitter) writePairTable(ctx context.Context, sampleID string, slotI, slotJ int, counts map[[2]string]uint32) error {
	name := fmt.Sprintf("%s_Barcode_%d_Barcode_%d_counts.csv", sampleID, slotI+1, slotJ+1)
	f, w, err := e.createCSV(ctx, name)
	if err != nil {
		return err
	}
	header := []string{fmt.Sprintf("Barcode_%d", slotI+1), fmt.Sprintf("Barcode_%d", slotJ+1), "Count"}
	if err := w.Write(header); err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s header", name), err)
	}
	keys := make([][2]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a][0] != keys[b][0] {
			return keys[a][0] < keys[b][0]
		}
		return keys[a][1] < keys[b][1]
	})
	for _, key := range keys {
		row := []string{key[0], key[1], strconv.FormatUint(uint64(counts[key]), 10)}
		if err := w.Write(row); err != nil {
			return bcerrors.E(bcerrors.FatalRuntime, fmt.Sprintf("write %s row", name), err)
		}
	}
	return closeCSV(ctx, f, w, name)
}

func sortedKeys(m map[string]uint32) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteStats appends one run's summary to barcode_stats.txt: the final
// stats snapshot and the elapsed wall-clock time. The file is append-only
// across runs sharing an output directory, so a directory's history of
// barcode-count invocations accumulates in one place (§4.7, §6).
func (e *Emitter) WriteStats(ctx context.Context, counter *count.Counter, elapsed time.Duration, aborted bool) error {
	path := filepath.Join(e.Opts.OutputDir, "barcode_stats.txt")
	f, err := file.Open(ctx, path)
	var existing []byte
	if err == nil {
		existing, _ = io.ReadAll(f.Reader(ctx))
		_ = f.Close(ctx)
	}

	out, err := file.Create(ctx, path)
	if err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, "create barcode_stats.txt", err)
	}
	w := out.Writer(ctx)
	if len(existing) > 0 {
		if _, err := w.Write(existing); err != nil {
			return bcerrors.E(bcerrors.FatalRuntime, "append barcode_stats.txt", err)
		}
	}

	snap := counter.Stats.Snapshot()
	status := "completed"
	if aborted {
		status = "aborted"
	}
	summary := fmt.Sprintf(
		"prefix=%s status=%s elapsed=%s total=%d matched=%d constant_mismatch=%d sample_mismatch=%d counted_mismatch=%d duplicates=%d low_quality=%d\n",
		e.Opts.Prefix, status, elapsed.Round(time.Millisecond),
		snap.Total, snap.Matched, snap.ConstantMM, snap.SampleMM, snap.CountedMM, snap.Duplicates, snap.LowQuality)
	if _, err := io.WriteString(w, summary); err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, "write barcode_stats.txt", err)
	}
	if err := out.Close(ctx); err != nil {
		return bcerrors.E(bcerrors.FatalRuntime, "close barcode_stats.txt", err)
	}
	log.Printf("barcodecount: %s", summary)
	return nil
}
