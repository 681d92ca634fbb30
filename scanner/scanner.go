// Package scanner runs submitted files (and, recursively, their archive
// members) through a signature store on a single worker goroutine: one
// long-lived worker consuming a bounded job channel rather than one
// goroutine per submission, so a slow scan applies backpressure to its
// producers instead of queueing unbounded work in memory.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/radkum/redr/archive"
	"github.com/radkum/redr/dcontext"
	"github.com/radkum/redr/internal/filelock"
	"github.com/radkum/redr/redrmetrics"
	"github.com/radkum/redr/rule"
	"github.com/radkum/redr/sigstore"
)

// queueCapacity bounds how many submissions can be pending before
// FileSubmit blocks, so a slow scan applies backpressure to the event loop.
const queueCapacity = 32

// MaxChildren bounds how many archive members (recursively, across the
// whole unpack tree) a single top-level submission will scan.
const MaxChildren = 255

// memberSizeLimit caps how much of a single archive member is read into
// memory for scanning; of a larger member only the first memberSizeLimit
// bytes are read and scanned, so a hostile archive cannot exhaust the
// process's memory.
const memberSizeLimit = 64 << 20

// ErrClosed is returned by FileSubmit after Close; callers treat it as
// graceful shutdown, not a scan failure.
var ErrClosed = errors.New("scanner: submission queue closed")

// Verdict is the result of scanning one submission: the root file plus
// every descendant unpacked from it. A malicious archive member makes the
// whole submission malicious; Member then names which one matched.
type Verdict struct {
	SubmissionID string
	Path         string
	Member       string
	Malicious    bool
	Rule         rule.Rule
}

// Report is the summary Close returns once the worker has drained: the
// paths of every submission scanned, split by outcome.
type Report struct {
	Clean     []string
	Malicious []string
}

// ReadSeekerAt is satisfied by an *os.File: the scanner needs both
// sequential Read/Seek for signature evaluation and ReaderAt for zip
// unpacking, without assuming a concrete type.
type ReadSeekerAt interface {
	io.ReadSeeker
	io.ReaderAt
}

type submission struct {
	id     string
	path   string
	file   ReadSeekerAt
	size   int64
	result chan<- Verdict

	// closeReq marks the queue's shutdown sentinel: the worker sends the
	// final report here and terminates. FIFO ordering guarantees every
	// submission enqueued before Close has been processed by then.
	closeReq chan<- Report
}

// Scanner owns the single worker goroutine and its job queue.
type Scanner struct {
	store  *sigstore.Store
	jobs   chan submission
	closed atomic.Bool
	report Report
}

// New builds a scanner backed by store. The caller must call Run to start
// the worker and must eventually cancel its context or Close the queue to
// stop it.
func New(store *sigstore.Store) *Scanner {
	return &Scanner{
		store: store,
		jobs:  make(chan submission, queueCapacity),
	}
}

// Run drives the single worker goroutine until ctx is canceled or a Close
// sentinel is consumed, whichever happens first.
func (s *Scanner) Run(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case job := <-s.jobs:
				if job.closeReq != nil {
					job.closeReq <- s.report
					s.drainAbandoned()
					return nil
				}
				s.process(groupCtx, job)
			}
		}
	})
	return g.Wait()
}

// Close enqueues the shutdown sentinel, waits for the worker to drain
// every earlier submission, and returns the final report.
func (s *Scanner) Close(ctx context.Context) (Report, error) {
	s.closed.Store(true)
	done := make(chan Report, 1)
	select {
	case s.jobs <- submission{closeReq: done}:
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// FileSubmit enqueues a file for scanning, blocking while the queue is
// full, and returns a channel that receives exactly one Verdict covering
// the file and every archive member unpacked from it, then closes.
func (s *Scanner) FileSubmit(ctx context.Context, path string, file ReadSeekerAt, size int64) (<-chan Verdict, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	id := uuid.NewString()
	result := make(chan Verdict, 1)
	job := submission{id: id, path: path, file: file, size: size, result: result}

	select {
	case s.jobs <- job:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drainAbandoned releases submissions that raced past the closed check and
// landed behind the shutdown sentinel: their result channels close without
// a verdict so no caller blocks forever.
func (s *Scanner) drainAbandoned() {
	for {
		select {
		case job := <-s.jobs:
			if job.closeReq != nil {
				job.closeReq <- s.report
				continue
			}
			if job.result != nil {
				close(job.result)
			}
			if closer, ok := job.file.(io.Closer); ok {
				closer.Close()
			}
		default:
			return
		}
	}
}

func (s *Scanner) process(ctx context.Context, job submission) {
	logger := dcontext.GetLogger(ctx)
	defer close(job.result)
	if closer, ok := job.file.(io.Closer); ok {
		defer closer.Close()
	}

	locked := filelock.New(job.file)

	verdict := Verdict{SubmissionID: job.id, Path: job.path}
	matched, ok, err := s.store.EvalFile(locked)
	if err != nil {
		// A single unreadable file is logged and treated as clean.
		logger.Errorf("scanner: %s: %v", job.path, err)
		s.report.Clean = append(s.report.Clean, job.path)
		job.result <- verdict
		return
	}
	redrmetrics.FilesScanned.Inc()
	verdict.Malicious, verdict.Rule = ok, matched

	if !verdict.Malicious {
		budget := MaxChildren
		member, matched, hit, err := s.scanChildren(locked, job.size, &budget)
		if err != nil {
			logger.Warnf("scanner: %s: archive unpack: %v", job.path, err)
		}
		if hit {
			verdict.Malicious, verdict.Rule, verdict.Member = true, matched, member
		}
	}

	if verdict.Malicious {
		redrmetrics.Detections.Inc()
		s.report.Malicious = append(s.report.Malicious, job.path)
	} else {
		s.report.Clean = append(s.report.Clean, job.path)
	}
	job.result <- verdict
}

// scanChildren unpacks r as an archive and evaluates each member,
// recursing into members that are themselves archives, until the budget
// across the whole tree is spent or a member matches.
func (s *Scanner) scanChildren(r io.ReaderAt, size int64, budget *int) (string, rule.Rule, bool, error) {
	var (
		member  string
		matched rule.Rule
		hit     bool
	)

	err := archive.Unpack(r, size, func(c archive.Child) error {
		if hit {
			return nil
		}
		if *budget <= 0 {
			return archive.ErrTooManyChildren{Limit: MaxChildren}
		}
		*budget--

		rc, err := c.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		data, err := io.ReadAll(io.LimitReader(rc, memberSizeLimit))
		if err != nil {
			return err
		}

		memberRS := bytes.NewReader(data)
		found, ok, err := s.store.EvalFile(memberRS)
		if err != nil {
			return err
		}
		redrmetrics.FilesScanned.Inc()
		if ok {
			member, matched, hit = c.Name, found, true
			return nil
		}

		childMember, childRule, childHit, err := s.scanChildren(memberRS, int64(len(data)), budget)
		if err != nil {
			return err
		}
		if childHit {
			member, matched, hit = c.Name+"/"+childMember, childRule, true
		}
		return nil
	})
	return member, matched, hit, err
}
