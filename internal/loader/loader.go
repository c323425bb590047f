// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/crossmod/crossmod/internal/candidate"
	"github.com/crossmod/crossmod/internal/classpath"
	"github.com/crossmod/crossmod/internal/issue"
	"github.com/crossmod/crossmod/internal/locate"
	"github.com/crossmod/crossmod/internal/remap"
	"github.com/crossmod/crossmod/internal/resolver"
	"github.com/crossmod/crossmod/internal/transform"
	"github.com/crossmod/crossmod/pkg/descriptor"
	"github.com/crossmod/crossmod/pkg/fspath"
)

// nestedDir is the work dir subdirectory receiving extracted nested archives.
const nestedDir = "nested"

type (
	// Loader runs the stages of a load against a RunContext.
	Loader struct {
		rc       *RunContext
		resolver resolver.ConstraintResolver
		worker   transform.Worker
	}

	// Option configures a Loader.
	Option func(*Loader)

	// Plan is the outcome of resolution.
	Plan struct {
		Located    *locate.Result
		Graph      *candidate.Graph
		Resolution *resolver.Result
		// Packages are the archives to translate, dependencies first.
		Packages []*locate.Package
		// Hidden are accepted package ids left out by configuration.
		Hidden []string
	}

	// Outcome is the result of a complete run.
	Outcome struct {
		Plan    *Plan
		Records []transform.Record
		// Warnings collects non-fatal findings of every stage.
		Warnings []string
	}
)

// WithResolver replaces the reference backtracking resolver.
func WithResolver(r resolver.ConstraintResolver) Option {
	return func(l *Loader) { l.resolver = r }
}

// WithWorker replaces the jar transformer built from the mapping table.
func WithWorker(w transform.Worker) Option {
	return func(l *Loader) { l.worker = w }
}

// New creates a Loader.
func New(rc *RunContext, opts ...Option) *Loader {
	l := &Loader{rc: rc}
	for _, opt := range opts {
		opt(l)
	}
	if l.resolver == nil {
		l.resolver = resolver.NewBacktracking(rc.Aliases, rc.Logger)
	}
	return l
}

// Run resolves and translates the packages of the mods directory.
func (l *Loader) Run(ctx context.Context) (*Outcome, error) {
	plan, err := l.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return l.Transform(ctx, plan)
}

// Resolve locates the guest packages and selects the load set.
func (l *Loader) Resolve(ctx context.Context) (*Plan, error) {
	cfg := l.rc.Config
	logger := l.rc.Logger

	if info, err := os.Stat(cfg.ModsDir); err != nil || !info.IsDir() {
		return nil, issue.NewErrorContext().
			WithOperation("locate packages").
			WithIssue(issue.ModsDirNotFoundId).
			WithResource(cfg.ModsDir).
			WithSuggestion("Create the directory or set mods_dir in the configuration").
			Wrap(fmt.Errorf("%w: %s", ErrModsDirNotFound, cfg.ModsDir)).
			BuildError()
	}

	located, err := l.locator().Scan(ctx, cfg.ModsDir)
	if err != nil {
		return nil, describeLocateError(err)
	}

	graph := candidate.NewBuilder(logger).Build(located.ToLoad(), located.Embeddings)
	platform := candidate.Platform{RuntimeVersion: cfg.RuntimeVersion, LoaderVersion: cfg.LoaderVersion}
	if err := graph.WithHostPackages(l.rc.HostPackages, platform); err != nil {
		return nil, fmt.Errorf("adding host packages: %w", err)
	}

	result, err := l.resolver.Resolve(ctx, graph.All(), cfg.Environment, l.rc.Overrides)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error("resolution failed", "err", resolver.Explain(err))
		return nil, &AbortError{Stage: StageResolve, Err: err}
	}

	plan := &Plan{Located: located, Graph: graph, Resolution: result}
	byIdentity := make(map[descriptor.Identity][]*locate.Package)
	for _, p := range located.All() {
		id := p.Descriptor.Identity()
		byIdentity[id] = append(byIdentity[id], p)
	}
	seen := make(map[string]bool)
	for _, c := range result.Guest() {
		if slices.Contains(cfg.HiddenPackages, c.ID()) {
			logger.Info("hiding package", "id", c.ID())
			plan.Hidden = append(plan.Hidden, c.ID())
			continue
		}
		if !c.Descriptor.LoadsIn(cfg.Environment) {
			logger.Debug("package does not apply to environment", "id", c.ID(), "env", cfg.Environment)
			continue
		}
		for _, p := range byIdentity[c.Identity()] {
			if seen[p.Path] {
				continue
			}
			seen[p.Path] = true
			plan.Packages = append(plan.Packages, p)
		}
	}

	logger.Info("resolved load set", "accepted", len(result.Accepted), "translate", len(plan.Packages),
		"hidden", len(plan.Hidden), "disabled", len(result.Disabled))
	return plan, nil
}

// Explicit builds a plan of the given archives without resolution. The hidden
// list does not apply. Outputs are named after the archive file name, so two
// archives with the same name in different directories are rejected.
func (l *Loader) Explicit(paths []string) (*Plan, error) {
	stems := make(map[string]string, len(paths))
	for _, path := range paths {
		stem := fspath.Stem(path)
		if prev, ok := stems[stem]; ok {
			return nil, issue.NewErrorContext().
				WithOperation("plan translation").
				WithResource(path).
				WithSuggestion("Rename one of the archives or translate them in separate runs").
				Wrap(fmt.Errorf("%w: %s and %s", ErrDuplicateOutput, prev, path)).
				BuildError()
		}
		stems[stem] = path
	}

	locator := l.locator()
	plan := &Plan{}
	for _, path := range paths {
		p, _, err := locator.Read(path)
		if err != nil {
			return nil, describeLocateError(err)
		}
		plan.Packages = append(plan.Packages, p)
	}
	return plan, nil
}

func (l *Loader) locator() *locate.Locator {
	return locate.NewLocator(locate.Options{
		Environment: l.rc.Config.Environment,
		Aliases:     l.rc.Aliases.Table(),
		ExtractDir:  filepath.Join(l.rc.Config.WorkDir, nestedDir),
	}, l.rc.Logger)
}

// Transform translates the archives of plan into the work directory.
func (l *Loader) Transform(ctx context.Context, plan *Plan) (*Outcome, error) {
	cfg := l.rc.Config
	logger := l.rc.Logger

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("prepare work directory").
			WithResource(cfg.WorkDir).
			Wrap(err).
			BuildError()
	}

	worker := l.worker
	if worker == nil {
		classes, closeAll, err := openClasspath(plan.Packages, cfg.Libraries)
		if err != nil {
			return nil, err
		}
		defer closeAll()
		engine := remap.NewEngine(l.rc.Mapping, classes, logger)
		worker = transform.NewJarTransformer(engine, logger)
	}

	cache, err := transform.OpenCache(cfg.WorkDir, l.rc.cacheSalt(), l.rc.Clock, logger)
	if err != nil {
		return nil, fmt.Errorf("opening transform cache: %w", err)
	}
	scheduler := transform.NewScheduler(worker, cache, transform.NewGenerated(), transform.Options{
		WorkDir:         cfg.WorkDir,
		HostNamespace:   cfg.HostNamespace,
		PlatformVersion: cfg.PlatformVersion,
		Timeout:         cfg.TransformTimeout,
	}, l.rc.Clock, logger)

	jobs := make([]transform.Job, 0, len(plan.Packages))
	for _, p := range plan.Packages {
		jobs = append(jobs, transform.Job{
			ID:            p.Descriptor.ID,
			Input:         p.Path,
			Refmaps:       p.Refmaps,
			AccessWidener: p.AccessWidener,
			MixinPackages: p.MixinPackages,
			Generated:     p.Generated,
		})
	}

	records, err := scheduler.Run(ctx, jobs)
	if err != nil {
		if errors.Is(err, transform.ErrTimeout) || errors.Is(err, transform.ErrInterrupted) {
			return nil, &AbortError{Stage: StageTransform, Err: err}
		}
		return nil, err
	}

	out := &Outcome{Plan: plan, Records: records}
	if plan.Resolution != nil {
		out.Warnings = append(out.Warnings, plan.Resolution.Warnings...)
	}
	for _, rec := range records {
		if !rec.Succeeded {
			logger.Error("package translation failed", "id", rec.Job.ID, "input", rec.Job.Input, "err", rec.Err)
			out.Warnings = append(out.Warnings, rec.Err.Error())
			continue
		}
		if cfg.EnableWeavingSafeguard {
			out.Warnings = append(out.Warnings, safeguard(rec)...)
		}
	}
	return out, nil
}

// Failed returns the records of failed jobs.
func (o *Outcome) Failed() []transform.Record {
	var failed []transform.Record
	for _, rec := range o.Records {
		if !rec.Succeeded {
			failed = append(failed, rec)
		}
	}
	return failed
}

// safeguard reports weaving literals a rewrite left unchanged.
func safeguard(rec transform.Record) []string {
	if rec.Audit == nil || len(rec.Job.MixinPackages) == 0 {
		return nil
	}
	out := make([]string, 0, len(rec.Audit.Stats.Warnings))
	for _, w := range rec.Audit.Stats.Warnings {
		out = append(out, fmt.Sprintf("%s: weaving literal left untranslated: %s", rec.Job.ID, w))
	}
	return out
}

// openClasspath opens the archives consulted for class hierarchy lookups: the
// guest packages first, then the configured libraries.
func openClasspath(packages []*locate.Package, libraries []string) (classpath.Chain, func(), error) {
	var (
		chain classpath.Chain
		jars  []*classpath.Jar
	)
	closeAll := func() {
		for _, j := range jars {
			_ = j.Close()
		}
	}
	paths := make([]string, 0, len(packages)+len(libraries))
	for _, p := range packages {
		paths = append(paths, p.Path)
	}
	paths = append(paths, libraries...)
	for _, path := range paths {
		jar, err := classpath.OpenJar(path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		jars = append(jars, jar)
		chain = append(chain, jar)
	}
	return chain, closeAll, nil
}

// describeLocateError attaches guidance to descriptor and weaving config
// failures.
func describeLocateError(err error) error {
	var parseErr *descriptor.ParseError
	switch {
	case errors.As(err, &parseErr):
		return issue.NewErrorContext().
			WithOperation("read package descriptor").
			WithIssue(issue.DescriptorParseErrorId).
			WithResource(parseErr.Source).
			WithSuggestion("Check the descriptor against 'crossmod schema'").
			WithSuggestion("Remove or update the package").
			Wrap(err).
			BuildError()
	case errors.Is(err, locate.ErrMixinConfig):
		return issue.NewErrorContext().
			WithOperation("read weaving configuration").
			WithSuggestion("Remove or update the package").
			Wrap(err).
			BuildError()
	default:
		return err
	}
}
