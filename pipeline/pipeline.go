// Package pipeline threads FASTQ records through one reader and many
// decoder workers, merging their results into a shared Counter. It
// implements §4.6 and the concurrency model of §5.
package pipeline

import (
	"context"
	"io"
	"runtime"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/barcodecount/bcerrors"
	"github.com/grailbio/barcodecount/count"
	"github.com/grailbio/barcodecount/decode"
	"github.com/grailbio/barcodecount/fastqio"
)

// Options configures a pipeline run. The zero value is not useful; use
// DefaultOptions to get sane defaults and override from there.
type Options struct {
	// Workers is the number of decoder goroutines. §4.6 default: logical
	// CPUs minus one for the reader, minimum 1.
	Workers int
	// QueueFactor sets the bounded channel's capacity to QueueFactor *
	// Workers records, the backpressure mechanism that bounds memory use.
	QueueFactor int
	// ProgressEvery logs a progress line every ProgressEvery processed
	// records. Zero disables progress logging.
	ProgressEvery uint64
}

// DefaultOptions returns the §4.6 defaults.
func DefaultOptions() Options {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return Options{Workers: workers, QueueFactor: 64, ProgressEvery: 1_000_000}
}

// Run reads FASTQ records from r, decodes each with decoder, and merges
// the results into counter. It returns when the input is exhausted and
// every worker has drained, or when a fatal error (an I/O failure on the
// read side, or a worker panic) occurs -- whichever comes first. On a
// fatal error, Run stops dispatching new records and returns promptly;
// any records already in flight are allowed to finish so the Counter
// never observes a half-applied record.
func Run(ctx context.Context, r io.Reader, decoder *decode.Decoder, counter *count.Counter, opts Options) error {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	queueCap := opts.QueueFactor * opts.Workers
	if queueCap < 1 {
		queueCap = opts.Workers
	}

	records := make(chan fastqio.Record, queueCap)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		errOnce sync.Once
		firstErr error
	)
	setErr := func(err error) {
		if err == nil {
			return
		}
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	var workerWG sync.WaitGroup
	var processed uint64
	var progressMu sync.Mutex

	for i := 0; i < opts.Workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					setErr(bcerrors.E(bcerrors.FatalRuntime, "worker panic", r))
				}
			}()
			for rec := range records {
				processRecord(decoder, counter, rec)
				if opts.ProgressEvery > 0 {
					progressMu.Lock()
					processed++
					if processed%opts.ProgressEvery == 0 {
						log.Printf("barcodecount: processed %d reads", processed)
					}
					progressMu.Unlock()
				}
			}
		}()
	}

	readErr := feed(ctx, r, records)
	workerWG.Wait()

	setErr(readErr)
	return firstErr
}

// feed is the reader: it scans records one at a time and sends them to the
// channel, closing it on end-of-input or on cancellation so workers drain
// and exit. It never decodes or counts a record itself.
func feed(ctx context.Context, r io.Reader, records chan<- fastqio.Record) error {
	defer close(records)
	scanner := fastqio.NewScanner(r)
	var rec fastqio.Record
	for scanner.Scan(&rec) {
		select {
		case records <- rec:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return bcerrors.E(bcerrors.IoError, err)
	}
	return nil
}

// processRecord decodes one record and applies it to counter. It is the
// only place a worker touches shared state, and it never blocks on I/O
// (§5).
func processRecord(decoder *decode.Decoder, counter *count.Counter, rec fastqio.Record) {
	counter.RecordTotal()
	result, outcome := decoder.Decode(rec.Seq, rec.Qual)
	switch outcome {
	case decode.Matched:
		counter.RecordMatched(result.SampleID, result.Counted, result.Random)
	case decode.ConstantMismatch:
		counter.RecordFailure(count.ConstantMismatch)
	case decode.SampleMismatch:
		counter.RecordFailure(count.SampleMismatch)
	case decode.CountedMismatch:
		counter.RecordFailure(count.CountedMismatch)
	case decode.LowQuality:
		counter.RecordFailure(count.LowQuality)
	}
}
