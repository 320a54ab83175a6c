// Package schemeparse compiles a barcode-count layout file into a Scheme: an
// ordered sequence of Segments together with a compiled locator that finds
// the layout within a read. It implements §4.1 of the design.
package schemeparse

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/grailbio/barcodecount/bcerrors"
	"github.com/grailbio/barcodecount/match"
)

// Kind identifies the role a Segment plays in a layout.
type Kind int

const (
	// Constant is a fixed anchor, possibly containing 'N' wildcards.
	Constant Kind = iota
	// Sample identifies the sample-barcode slot. At most one per Scheme.
	Sample
	// Counted identifies one of the K counted-barcode slots.
	Counted
	// Random identifies the UMI/deduplication slot. At most one per Scheme.
	Random
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "constant"
	case Sample:
		return "sample"
	case Counted:
		return "counted"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

// Segment is one token of a compiled layout.
type Segment struct {
	Kind Kind
	// Pattern holds the literal constant pattern (over A,C,G,T,N) when
	// Kind == Constant; empty otherwise.
	Pattern string
	// Len is the segment length in bases.
	Len int
	// Index is the 1-based slot number when Kind == Counted; zero otherwise.
	Index int
}

// Scheme is a compiled read layout: an ordered list of Segments plus the
// regular-expression locator used to find the layout within a read.
type Scheme struct {
	Segments []Segment
	locator  *regexp.Regexp
	// starts holds the byte offset of each Segment from the start of the
	// layout, parallel to Segments; used by Locate's window-scan fallback to
	// address a candidate segment within an arbitrary read offset.
	starts []int
}

// Length returns the total layout length L, the sum of all segment lengths.
func (s *Scheme) Length() int {
	total := 0
	for _, seg := range s.Segments {
		total += seg.Len
	}
	return total
}

// NumCounted returns K, the number of counted-barcode slots.
func (s *Scheme) NumCounted() int {
	n := 0
	for _, seg := range s.Segments {
		if seg.Kind == Counted {
			n++
		}
	}
	return n
}

// HasSample reports whether the Scheme has a Sample segment.
func (s *Scheme) HasSample() bool {
	for _, seg := range s.Segments {
		if seg.Kind == Sample {
			return true
		}
	}
	return false
}

// HasRandom reports whether the Scheme has a Random segment.
func (s *Scheme) HasRandom() bool {
	for _, seg := range s.Segments {
		if seg.Kind == Random {
			return true
		}
	}
	return false
}

// CountedLen returns the length of counted slot i (1-based), or 0 and false
// if no such slot exists.
func (s *Scheme) CountedLen(i int) (int, bool) {
	for _, seg := range s.Segments {
		if seg.Kind == Counted && seg.Index == i {
			return seg.Len, true
		}
	}
	return 0, false
}

// Locator returns the compiled regular expression that finds the layout
// within a read. It has exactly one capture group per Segment, in order,
// and matches the full layout span.
func (s *Scheme) Locator() *regexp.Regexp {
	return s.locator
}

// Locate finds the byte span of every Segment within seq. It first tries an
// exact match against Locator(); when the read's constant anchors carry
// enough substitution errors that the literal regex misses entirely, it
// falls back to a window scan that tolerates up to constantBudgets[i]
// mismatches in constant segment i, the same recovery
// original_source/src/parse_sequences.rs performs in fix_constant_region
// when its own regex search fails. constantBudgets must have one entry per
// Segment; entries for non-Constant segments are ignored.
func (s *Scheme) Locate(seq string, constantBudgets []int) ([][2]int, bool) {
	if m := s.locator.FindStringSubmatchIndex(seq); m != nil {
		spans := make([][2]int, len(s.Segments))
		for i := range s.Segments {
			spans[i] = [2]int{m[2*(i+1)], m[2*(i+1)+1]}
		}
		return spans, true
	}
	return s.scanWindow(seq, constantBudgets)
}

// scanWindow slides a window the length of the full layout across seq and
// scores each position by its total constant-segment mismatch count,
// discarding any position where a constant segment exceeds its own budget.
// It accepts the uniquely lowest-scoring position, rejecting on a tie the
// same way fix_error in the original rejects an ambiguous best match.
func (s *Scheme) scanWindow(seq string, constantBudgets []int) ([][2]int, bool) {
	layoutLen := s.Length()
	if len(seq) < layoutLen {
		return nil, false
	}

	bestScore := -1
	bestStart := -1
	tied := false
	for start := 0; start+layoutLen <= len(seq); start++ {
		score := 0
		fits := true
		for i, seg := range s.Segments {
			if seg.Kind != Constant {
				continue
			}
			p := start + s.starts[i]
			d := match.ConstantDistance(seq[p:p+seg.Len], seg.Pattern)
			if d > constantBudgets[i] {
				fits = false
				break
			}
			score += d
		}
		if !fits {
			continue
		}
		switch {
		case bestScore < 0 || score < bestScore:
			bestScore, bestStart, tied = score, start, false
		case score == bestScore:
			tied = true
		}
	}
	if bestStart < 0 || tied {
		return nil, false
	}

	spans := make([][2]int, len(s.Segments))
	for i, seg := range s.Segments {
		p := bestStart + s.starts[i]
		spans[i] = [2]int{p, p + seg.Len}
	}
	return spans, true
}

// Serialize renders the Scheme back to its one-token-per-line text form, the
// inverse of Parse (P3: parse(serialize(scheme)) == scheme).
func (s *Scheme) Serialize() string {
	var b strings.Builder
	for _, seg := range s.Segments {
		switch seg.Kind {
		case Constant:
			b.WriteString(seg.Pattern)
		case Sample:
			fmt.Fprintf(&b, "[%d]", seg.Len)
		case Counted:
			fmt.Fprintf(&b, "{%d}", seg.Len)
		case Random:
			fmt.Fprintf(&b, "(%d)", seg.Len)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var constantToken = regexp.MustCompile(`^[ACGTN]+$`)
var bracketToken = regexp.MustCompile(`^([\[{(])(\d+)([\]})])$`)

// Parse compiles the token stream read from r into a Scheme. Tokens are one
// per line: a run of {A,C,G,T,N} for a Constant segment, "[n]" for Sample,
// "{n}" for the next Counted slot, "(n)" for Random. Blank lines are
// ignored.
func Parse(r io.Reader) (*Scheme, error) {
	scanner := bufio.NewScanner(r)
	var segments []Segment
	nextCounted := 1
	countedLens := map[int]int{}
	sawSample := false
	sawRandom := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if constantToken.MatchString(line) {
			segments = append(segments, Segment{Kind: Constant, Pattern: line, Len: len(line)})
			continue
		}
		m := bracketToken.FindStringSubmatch(line)
		if m == nil {
			return nil, bcerrors.E(bcerrors.InvalidScheme, fmt.Sprintf("malformed token %q", line))
		}
		n, err := strconv.Atoi(m[2])
		if err != nil || n <= 0 {
			return nil, bcerrors.E(bcerrors.InvalidScheme, fmt.Sprintf("invalid length in token %q", line))
		}
		switch m[1] {
		case "[":
			if sawSample {
				return nil, bcerrors.E(bcerrors.InvalidScheme, "more than one sample segment")
			}
			sawSample = true
			segments = append(segments, Segment{Kind: Sample, Len: n})
		case "{":
			idx := nextCounted
			if existing, ok := countedLens[idx]; ok && existing != n {
				return nil, bcerrors.E(bcerrors.InvalidScheme,
					fmt.Sprintf("counted slot %d has inconsistent lengths %d and %d", idx, existing, n))
			}
			countedLens[idx] = n
			nextCounted++
			segments = append(segments, Segment{Kind: Counted, Len: n, Index: idx})
		case "(":
			if sawRandom {
				return nil, bcerrors.E(bcerrors.InvalidScheme, "more than one random segment")
			}
			sawRandom = true
			segments = append(segments, Segment{Kind: Random, Len: n})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, bcerrors.E(bcerrors.IoError, err)
	}
	if nextCounted == 1 {
		return nil, bcerrors.E(bcerrors.InvalidScheme, "scheme must contain at least one counted segment")
	}

	locator, err := compileLocator(segments)
	if err != nil {
		return nil, err
	}
	starts := make([]int, len(segments))
	offset := 0
	for i, seg := range segments {
		starts[i] = offset
		offset += seg.Len
	}
	return &Scheme{Segments: segments, locator: locator, starts: starts}, nil
}

// compileLocator builds the regular-expression locator: each Constant
// segment becomes a literal pattern with 'N' expanded to the wildcard class
// [ACGTN], and each variable segment becomes a capturing wildcard run of its
// length. Every segment gets exactly one capture group.
func compileLocator(segments []Segment) (*regexp.Regexp, error) {
	// Deliberately unanchored: the layout need not start at position 0 (a
	// read may carry extra bases before or after it), so the leftmost match
	// Go's regexp engine finds is exactly the leftmost layout occurrence
	// §4.1 and §4.4 step 1 call for.
	var b strings.Builder
	for _, seg := range segments {
		switch seg.Kind {
		case Constant:
			b.WriteByte('(')
			for _, c := range seg.Pattern {
				if c == 'N' {
					b.WriteString("[ACGTN]")
				} else {
					b.WriteRune(c)
				}
			}
			b.WriteByte(')')
		default:
			fmt.Fprintf(&b, "([ACGTN]{%d})", seg.Len)
		}
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, bcerrors.E(bcerrors.InvalidScheme, err)
	}
	return re, nil
}
