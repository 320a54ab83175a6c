// Package match implements the bounded-Hamming-distance matcher of §4.3:
// constant-region verification against a wildcard pattern, and
// dictionary-barcode correction with unique-best-match tie-breaking.
package match

// Thresholds holds the CLI-level error-budget overrides for constant and
// barcode segments. A negative value means "no override" -- decode.New
// falls back to each segment's own length-derived default (DefaultErrorBudget)
// per §4.3 instead of applying one value across every segment of that kind.
type Thresholds struct {
	MaxConstantErrors int
	MaxBarcodeErrors  int
}

// DefaultErrorBudget returns floor(0.2 * length), the default error budget
// for a segment of the given length, shared by constants and barcodes.
func DefaultErrorBudget(length int) int {
	return (2 * length) / 10
}

// hamming returns the number of positions at which a and b differ. a and b
// must have equal length; callers that compare equal-length dictionary
// keys or same-length constant patterns rely on this precondition instead
// of checking it on every call on this hot path.
func hamming(a, b string) int {
	n := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// ConstantDistance returns the number of non-wildcard mismatches between
// candidate and pattern (over {A,C,G,T,N}, where N in pattern is a wildcard
// matching any base). candidate and pattern must have equal length; this is
// the scoring primitive the window scan in schemeparse.Scheme.Locate uses to
// find the best-fit layout position when the literal locator regex misses.
func ConstantDistance(candidate, pattern string) int {
	mismatches := 0
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == 'N' {
			continue
		}
		if candidate[i] != pattern[i] {
			mismatches++
		}
	}
	return mismatches
}

// Constant reports whether candidate matches pattern (over {A,C,G,T,N},
// where N in pattern is a wildcard matching any base) within maxErrors
// mismatches, ignoring wildcard positions. candidate and pattern must have
// equal length.
func Constant(candidate, pattern string, maxErrors int) bool {
	if len(candidate) != len(pattern) {
		return false
	}
	return ConstantDistance(candidate, pattern) <= maxErrors
}

// Result is the outcome of a dictionary match: either a uniquely-best
// reference string within the error budget, or a rejection (Ambiguous when
// two or more keys tie for best and that tied distance is within budget,
// and !Ambiguous && !Ok when the best distance exceeds the budget).
type Result struct {
	Value     string
	Distance  int
	Ok        bool
	Ambiguous bool
}

// Dict finds the dictionary entries in keys minimizing Hamming distance to
// candidate and accepts the match iff exactly one key achieves that
// minimum and the minimum is within maxErrors. On a tie among two or more
// keys at the minimum distance, the match is rejected as ambiguous even if
// that distance is within maxErrors — this is the key correctness rule of
// §4.3 and must not be weakened into "accept the first tied key".
func Dict(candidate string, keys []string, maxErrors int) Result {
	if exact, ok := exactMember(candidate, keys); ok {
		return Result{Value: exact, Distance: 0, Ok: true}
	}

	best := maxErrors + 1
	count := 0
	var bestKey string
	for _, k := range keys {
		if len(k) != len(candidate) {
			continue
		}
		d := hamming(candidate, k)
		if d > maxErrors {
			continue
		}
		switch {
		case d < best:
			best = d
			bestKey = k
			count = 1
		case d == best:
			count++
		}
	}
	if count == 0 {
		return Result{}
	}
	if count > 1 {
		return Result{Ambiguous: true}
	}
	return Result{Value: bestKey, Distance: best, Ok: true}
}

// exactMember is the zero-mismatch fast path §4.3 allows implementations to
// use before falling back to a full linear scan.
func exactMember(candidate string, keys []string) (string, bool) {
	for _, k := range keys {
		if k == candidate {
			return k, true
		}
	}
	return "", false
}

// Identity builds the degenerate Result used when no dictionary is
// configured for a segment: the candidate is accepted verbatim (§4.3,
// "matching degenerates to identity").
func Identity(candidate string) Result {
	return Result{Value: candidate, Ok: true}
}
