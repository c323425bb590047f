// SPDX-License-Identifier: MPL-2.0

package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/crossmod/crossmod/pkg/fspath"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout bounds a whole batch.
	DefaultTimeout = time.Hour
	// DefaultGrace bounds the wait for running jobs after a batch is aborted.
	DefaultGrace = 30 * time.Second
)

var (
	// ErrTimeout is returned when a batch outlives its timeout.
	ErrTimeout = errors.New("transform batch timed out")
	// ErrInterrupted is returned when the caller cancels a batch.
	ErrInterrupted = errors.New("transform batch interrupted")
	// ErrJob is the sentinel error wrapped by JobError.
	ErrJob = errors.New("transform job failed")
)

type (
	// Options configures a Scheduler.
	Options struct {
		WorkDir         string
		HostNamespace   string
		PlatformVersion string
		// Timeout bounds the batch; zero selects DefaultTimeout.
		Timeout time.Duration
		// Grace bounds how long an aborted batch waits for its running jobs
		// to return; zero selects DefaultGrace.
		Grace time.Duration
	}

	// Record is the outcome of one job.
	Record struct {
		Job    Job
		Output string
		// Cached is set when the output was already current and no work was done.
		Cached    bool
		Succeeded bool
		Err       error
		Audit     *AuditTrail
	}

	// JobError reports a failed job.
	JobError struct {
		ID  string
		Err error
	}

	// Scheduler runs batches of jobs.
	Scheduler struct {
		worker    Worker
		cache     *Cache
		generated *Generated
		opts      Options
		clock     Clock
		logger    *log.Logger
	}
)

// Error implements the error interface.
func (e *JobError) Error() string { return fmt.Sprintf("transforming %s: %v", e.ID, e.Err) }

// Unwrap returns the underlying error.
func (e *JobError) Unwrap() error { return e.Err }

// Is reports ErrJob as a match.
func (e *JobError) Is(target error) bool { return target == ErrJob }

// NewScheduler creates a scheduler. generated may be nil, in which case no
// adapter jar is written.
func NewScheduler(worker Worker, cache *Cache, generated *Generated, opts Options, clock Clock, logger *log.Logger) *Scheduler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Scheduler{worker: worker, cache: cache, generated: generated, opts: opts, clock: clock, logger: logger}
}

// OutputPath returns where the output of job is written.
func (s *Scheduler) OutputPath(job Job) string {
	name := fmt.Sprintf("%s_mapped_%s_%s.jar", fspath.Stem(job.Input), s.opts.HostNamespace, s.opts.PlatformVersion)
	return filepath.Join(s.opts.WorkDir, name)
}

// Run transforms jobs and returns one record per job in input order. Job
// failures are reported on their records. A timeout or cancellation of ctx
// aborts the batch with ErrTimeout or ErrInterrupted and nil records; outputs
// of an aborted batch are not recorded in the cache. An aborted Run returns
// once its jobs have, or after Options.Grace, whichever comes first.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) ([]Record, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, s.opts.Timeout, ErrTimeout)
	defer cancel()

	records := make([]Record, len(jobs))
	fingerprints := make([]string, len(jobs))
	var pending []int
	for i, job := range jobs {
		rec := &records[i]
		rec.Job, rec.Output = job, s.OutputPath(job)
		current, fingerprint, err := s.cache.IsUpToDate(job.Input, rec.Output)
		if err != nil {
			rec.Err = &JobError{ID: job.ID, Err: err}
			continue
		}
		fingerprints[i] = fingerprint
		if current {
			rec.Cached, rec.Succeeded = true, true
			s.logger.Debug("output up to date", "package", job.ID, "output", rec.Output)
			continue
		}
		pending = append(pending, i)
	}

	if err := s.runPending(ctx, records, pending); err != nil {
		return nil, err
	}

	var failed int
	for i := range records {
		rec := &records[i]
		if !rec.Succeeded {
			failed++
			continue
		}
		links := s.linksOf(rec)
		if !rec.Cached {
			s.cache.Save(rec.Job.Input, rec.Output, fingerprints[i], links)
		}
		if s.generated != nil {
			for class, targets := range links {
				s.generated.Link(class, targets)
			}
			s.generated.MixinPackages(rec.Job.ID, rec.Job.MixinPackages)
		}
	}

	if err := s.cache.Flush(); err != nil {
		return records, err
	}
	if s.generated != nil {
		if err := s.generated.Flush(filepath.Join(s.opts.WorkDir, GeneratedFileName)); err != nil {
			return records, err
		}
	}
	if err := WriteReport(filepath.Join(s.opts.WorkDir, ReportFileName), records, s.clock.Now()); err != nil {
		return records, err
	}
	s.logger.Info("transform batch finished", "jobs", len(jobs), "rewritten", len(pending), "failed", failed)
	return records, nil
}

func (s *Scheduler) runPending(ctx context.Context, records []Record, pending []int) error {
	if len(pending) == 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(len(pending))
	for _, i := range pending {
		g.Go(func() error {
			s.runJob(ctx, &records[i])
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.drain(done)
	}
	// Jobs observing the cancellation fail; the batch as a whole is aborted.
	if ctx.Err() == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), ErrTimeout) {
		s.logger.Error("transform batch timed out", "timeout", s.opts.Timeout)
		return fmt.Errorf("%w after %s", ErrTimeout, s.opts.Timeout)
	}
	s.logger.Warn("transform batch interrupted")
	return ErrInterrupted
}

// drain waits for the jobs of an aborted batch so that callers can release
// the archives those jobs read.
func (s *Scheduler) drain(done <-chan struct{}) {
	timer := time.NewTimer(s.opts.Grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("transform jobs still running after abort", "grace", s.opts.Grace)
	}
}

func (s *Scheduler) runJob(ctx context.Context, rec *Record) {
	defer func() {
		if r := recover(); r != nil {
			rec.Succeeded = false
			rec.Err = &JobError{ID: rec.Job.ID, Err: fmt.Errorf("panic: %v", r)}
			s.logger.Error("transform panicked", "package", rec.Job.ID, "panic", r)
		}
	}()

	if err := os.Remove(rec.Output); err != nil && !errors.Is(err, fs.ErrNotExist) {
		rec.Err = &JobError{ID: rec.Job.ID, Err: err}
		return
	}
	audit, err := s.worker.Transform(ctx, rec.Job, rec.Output)
	if err != nil {
		rec.Err = &JobError{ID: rec.Job.ID, Err: err}
		s.logger.Error("transform failed", "package", rec.Job.ID, "input", rec.Job.Input, "err", err)
		return
	}
	rec.Audit, rec.Succeeded = audit, true
}

func (s *Scheduler) linksOf(rec *Record) map[string][]string {
	if rec.Audit != nil {
		return rec.Audit.Links
	}
	if entry, ok := s.cache.Entry(rec.Job.Input); ok {
		return entry.Links
	}
	return nil
}
