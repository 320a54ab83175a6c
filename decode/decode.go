// Package decode coordinates per-read work: locating the layout, matching
// each segment, applying the optional quality filter, and classifying the
// read into one of the outcome categories of §4.4.
package decode

import (
	"github.com/grailbio/barcodecount/barcode"
	"github.com/grailbio/barcodecount/match"
	"github.com/grailbio/barcodecount/schemeparse"
)

// Outcome is the terminal classification of a read, per the state machine
// in §4.4: Start -> Located -> ConstantsOk -> SampleOk -> CountedOk ->
// QualityOk -> Accept, with the first failure winning.
type Outcome int

const (
	// Matched is the only outcome that produces a DecodedRead worth
	// counting.
	Matched Outcome = iota
	// ConstantMismatch covers both "layout not found" and "a constant
	// region exceeded its error budget".
	ConstantMismatch
	// SampleMismatch covers an ambiguous or above-threshold sample slot.
	SampleMismatch
	// CountedMismatch covers an ambiguous or above-threshold counted slot,
	// for any of the K slots.
	CountedMismatch
	// LowQuality covers a barcode slot whose mean Phred quality fell below
	// the configured minimum.
	LowQuality
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case ConstantMismatch:
		return "constant_mismatch"
	case SampleMismatch:
		return "sample_mismatch"
	case CountedMismatch:
		return "counted_mismatch"
	case LowQuality:
		return "low_quality"
	default:
		return "unknown"
	}
}

// DecodedRead is the result of a Matched read: the resolved sample id, the
// reference DNA string for each counted slot (not its name -- name
// translation happens at emission, per §3), and the random barcode if the
// scheme has one.
type DecodedRead struct {
	SampleID string
	Counted  []string
	Random   string
}

// UnknownSampleName is used for sample_id when the Scheme has a Sample
// segment but no SampleDict was configured, or when the scheme has no
// Sample segment at all (§4.4 step 3, P7).
const UnknownSampleName = "unknown_sample_name"

// Decoder holds the read-only, shared state used to decode every read:
// the compiled Scheme, the optional dictionaries, and the matching
// thresholds. A Decoder has no mutable state and is safe for concurrent
// use by many pipeline workers.
type Decoder struct {
	Scheme      *schemeparse.Scheme
	SampleDict  *barcode.SampleDict
	CountedDict *barcode.CountedDict
	Thresholds  match.Thresholds
	// MinQuality is the mean-Phred threshold applied to each barcode slot's
	// quality bytes; zero disables the filter (§6 default).
	MinQuality float64

	// constantBudgets and barcodeBudgets hold the resolved per-segment error
	// budget, parallel to Scheme.Segments: a Thresholds field overrides every
	// segment of that category when set (>= 0), otherwise each segment falls
	// back to match.DefaultErrorBudget of its own length, per §4.3. Resolved
	// once by New rather than recomputed on every read.
	constantBudgets []int
	barcodeBudgets  []int

	// sampleKeys and countedKeysBySlot are the dictionary key slices
	// match.Dict scans, precomputed once from SampleDict/CountedDict instead
	// of rebuilt from their underlying maps on every Decode call.
	sampleKeys        []string
	countedKeysBySlot map[int][]string
}

// New builds a Decoder, resolving its per-segment error budgets and
// precomputing its dictionary key slices up front.
func New(scheme *schemeparse.Scheme, sampleDict *barcode.SampleDict, countedDict *barcode.CountedDict, thresholds match.Thresholds, minQuality float64) *Decoder {
	d := &Decoder{
		Scheme:      scheme,
		SampleDict:  sampleDict,
		CountedDict: countedDict,
		Thresholds:  thresholds,
		MinQuality:  minQuality,
	}
	d.resolveBudgets()
	d.precomputeKeys()
	return d
}

// resolveBudgets derives the per-segment error budget for every segment in
// d.Scheme from d.Thresholds, applying §4.3's default of floor(0.2*length)
// to any category the caller left at the CLI's negative sentinel.
func (d *Decoder) resolveBudgets() {
	d.constantBudgets = make([]int, len(d.Scheme.Segments))
	d.barcodeBudgets = make([]int, len(d.Scheme.Segments))
	for i, seg := range d.Scheme.Segments {
		switch seg.Kind {
		case schemeparse.Constant:
			if d.Thresholds.MaxConstantErrors >= 0 {
				d.constantBudgets[i] = d.Thresholds.MaxConstantErrors
			} else {
				d.constantBudgets[i] = match.DefaultErrorBudget(seg.Len)
			}
		case schemeparse.Sample, schemeparse.Counted:
			if d.Thresholds.MaxBarcodeErrors >= 0 {
				d.barcodeBudgets[i] = d.Thresholds.MaxBarcodeErrors
			} else {
				d.barcodeBudgets[i] = match.DefaultErrorBudget(seg.Len)
			}
		}
	}
}

// precomputeKeys builds the dictionary key slices Decode consults, once,
// from SampleDict/CountedDict.
func (d *Decoder) precomputeKeys() {
	if d.SampleDict != nil {
		d.sampleKeys = make([]string, 0, len(d.SampleDict.ByBarcode))
		for k := range d.SampleDict.ByBarcode {
			d.sampleKeys = append(d.sampleKeys, k)
		}
	}
	if d.CountedDict != nil {
		d.countedKeysBySlot = make(map[int][]string, len(d.CountedDict.BySlot))
		for slot, entries := range d.CountedDict.BySlot {
			keys := make([]string, 0, len(entries))
			for k := range entries {
				keys = append(keys, k)
			}
			d.countedKeysBySlot[slot] = keys
		}
	}
}

// Decode classifies one FASTQ record (equal-length sequence and quality
// strings) per the state machine in §4.4.
func (d *Decoder) Decode(seq, qual string) (DecodedRead, Outcome) {
	spans, ok := d.Scheme.Locate(seq, d.constantBudgets)
	if !ok {
		return DecodedRead{}, ConstantMismatch
	}

	segs := d.Scheme.Segments
	counted := make([]string, 0, d.Scheme.NumCounted())
	sampleID := UnknownSampleName
	var random string
	// qualitySpans collects the [start,end) byte ranges of every barcode
	// slot (sample, counted, random -- never constant), checked together
	// in one final quality pass, matching the state machine's strict
	// ConstantsOk -> SampleOk -> CountedOk -> QualityOk ordering: a read
	// with a bad counted-barcode match is classified CountedMismatch even
	// if its sample slot also happens to be low quality.
	var qualitySpans [][2]int

	for i, seg := range segs {
		start, end := spans[i][0], spans[i][1]
		candidate := seq[start:end]

		switch seg.Kind {
		case schemeparse.Constant:
			if !match.Constant(candidate, seg.Pattern, d.constantBudgets[i]) {
				return DecodedRead{}, ConstantMismatch
			}

		case schemeparse.Sample:
			qualitySpans = append(qualitySpans, [2]int{start, end})
			if d.SampleDict == nil {
				break
			}
			res := match.Dict(candidate, d.sampleKeys, d.barcodeBudgets[i])
			if !res.Ok {
				return DecodedRead{}, SampleMismatch
			}
			sampleID = d.SampleDict.ByBarcode[res.Value]

		case schemeparse.Counted:
			qualitySpans = append(qualitySpans, [2]int{start, end})
			var res match.Result
			keys := d.countedKeysBySlot[seg.Index]
			if d.CountedDict == nil || len(keys) == 0 {
				res = match.Identity(candidate)
			} else {
				res = match.Dict(candidate, keys, d.barcodeBudgets[i])
			}
			if !res.Ok {
				return DecodedRead{}, CountedMismatch
			}
			counted = append(counted, res.Value)

		case schemeparse.Random:
			qualitySpans = append(qualitySpans, [2]int{start, end})
			random = candidate
		}
	}

	for _, span := range qualitySpans {
		if !d.qualityOk(qual, span[0], span[1]) {
			return DecodedRead{}, LowQuality
		}
	}

	return DecodedRead{SampleID: sampleID, Counted: counted, Random: random}, Matched
}

// qualityOk reports whether the mean Phred quality (byte-33) of
// qual[start:end] is at or above MinQuality. A MinQuality of zero disables
// the filter entirely, per §6's "--min-quality FLOAT (default 0 -> no
// filter)".
func (d *Decoder) qualityOk(qual string, start, end int) bool {
	if d.MinQuality <= 0 {
		return true
	}
	sum := 0
	for i := start; i < end; i++ {
		sum += int(qual[i]) - 33
	}
	mean := float64(sum) / float64(end-start)
	return mean >= d.MinQuality
}
