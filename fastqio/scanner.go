// Package fastqio provides the FASTQ record model and scanner that feed the
// pipeline. The core treats decompression as an external collaborator
// (§1): Scanner reads whatever io.Reader it's given, plain or already
// decompressed, and never touches gzip itself.
package fastqio

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// Record is one FASTQ read: an ID line, a sequence, the "+" separator
// line, and a Phred+33 quality string of the same length as Seq.
type Record struct {
	ID, Seq, Sep, Qual string
}

var (
	// ErrShort is returned when a record is truncated mid-way through its
	// four lines.
	ErrShort = errors.New("short FASTQ record")
	// ErrInvalid is returned when a line doesn't carry the expected
	// leading marker ('@' for the ID line, '+' for the separator).
	ErrInvalid = errors.New("invalid FASTQ record")
)

var errEOF = errors.New("eof")

// Scanner reads Records from a stream of decompressed FASTQ text. It is
// not safe for concurrent use; the pipeline's single reader goroutine owns
// it (§4.6).
type Scanner struct {
	b   *bufio.Scanner
	err error
}

// NewScanner constructs a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Scanner{b: s}
}

// Scan reads the next record into rec. It returns false at end of stream
// or on error; call Err to tell the two apart.
func (s *Scanner) Scan(rec *Record) bool {
	if s.err != nil {
		return false
	}
	if !s.b.Scan() {
		if s.err = s.b.Err(); s.err == nil {
			s.err = errEOF
		}
		return false
	}
	id := s.b.Bytes()
	if len(id) == 0 || id[0] != '@' {
		s.err = errors.Wrap(ErrInvalid, "expected ID line starting with '@'")
		return false
	}
	rec.ID = string(id)

	if !s.scanLine() {
		return false
	}
	rec.Seq = s.b.Text()

	if !s.scanLine() {
		return false
	}
	sep := s.b.Bytes()
	if len(sep) == 0 || sep[0] != '+' {
		s.err = errors.Wrap(ErrInvalid, "expected separator line starting with '+'")
		return false
	}
	rec.Sep = string(sep)

	if !s.scanLine() {
		return false
	}
	rec.Qual = s.b.Text()

	if len(rec.Seq) != len(rec.Qual) {
		s.err = errors.Wrapf(ErrInvalid, "sequence/quality length mismatch in record %s", rec.ID)
		return false
	}
	return true
}

func (s *Scanner) scanLine() bool {
	ok := s.b.Scan()
	if !ok {
		if s.err = s.b.Err(); s.err == nil {
			s.err = errors.Wrap(ErrShort, "truncated FASTQ record")
		}
	}
	return ok
}

// Err returns the scanning error, if any. It is nil when Scan returned
// false because the stream ended cleanly on a record boundary.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}
