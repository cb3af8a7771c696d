// Package pipeline sequences the analysis stages for each source module:
// conditional structure, preprocessing, function indexing, probe synthesis,
// the link probe, and mock resolution. Stages run strictly in order per
// module; modules run concurrently but never share scratch state, so one
// module's failure cannot disturb a sibling's.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mockprobe/mockprobe/internal/config"
	"github.com/mockprobe/mockprobe/internal/log"
	"github.com/mockprobe/mockprobe/internal/toolchain"
	"github.com/mockprobe/mockprobe/internal/workspace"
	"github.com/mockprobe/mockprobe/pkg/astdump"
	"github.com/mockprobe/mockprobe/pkg/cache"
	"github.com/mockprobe/mockprobe/pkg/conditional"
	"github.com/mockprobe/mockprobe/pkg/linkoracle"
	"github.com/mockprobe/mockprobe/pkg/mockresolve"
	"github.com/mockprobe/mockprobe/pkg/preproc"
	"github.com/mockprobe/mockprobe/pkg/probe"
	"github.com/mockprobe/mockprobe/pkg/types"
)

// guardCacheSize caps the in-memory guard cache. Guards recur heavily
// within a subsystem but the universe of distinct ones is small.
const guardCacheSize = 4096

// Options configure a Pipeline.
type Options struct {
	// Config supplies the platform baseline, scratch locations, and
	// concurrency settings. Defaults apply when nil.
	Config *config.Config

	// Toolchain, when set, bypasses discovery. Tests substitute fakes here.
	Toolchain *toolchain.Toolchain

	// Logger defaults to the process-wide logger.
	Logger log.Logger

	// Evaluator overrides the guard satisfiability evaluator.
	Evaluator conditional.Evaluator

	// CachePath persists guard satisfiability results between runs.
	// Empty disables persistence; the in-memory cache is still shared
	// across modules within a run.
	CachePath string

	// RegenProbe overwrites previously generated probe entry points
	// instead of reusing them.
	RegenProbe bool

	// ASTJSON retains each module's raw parse-tree JSON under
	// <scratch root>/ast/, outside the per-run directories.
	ASTJSON bool
}

// Pipeline drives the full analysis for one or more source modules.
type Pipeline struct {
	cfg       *config.Config
	tc        *toolchain.Toolchain
	log       log.Logger
	cache     *cache.GuardCache
	analyzer  *conditional.Analyzer
	norm      *preproc.Normalizer
	indexer   *astdump.Indexer
	oracle    *linkoracle.Oracle
	cachePath string
	regen     bool
	astJSON   bool
}

// New builds a Pipeline, discovering the external toolchain unless one was
// supplied. Discovery failure is fatal: no stage can run without it.
func New(opts Options) (*Pipeline, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	tc := opts.Toolchain
	if tc == nil {
		var err error
		tc, err = toolchain.Discover(toolchain.Options{
			Preprocessor: cfg.Preprocessor,
			ASTDumper:    cfg.ASTDumper,
			Linker:       cfg.Linker,
			Timeout:      cfg.Timeout(),
		})
		if err != nil {
			return nil, err
		}
	}

	guards := cache.New(guardCacheSize)
	if opts.CachePath != "" {
		if err := cache.LoadFromFile(guards, opts.CachePath); err != nil {
			logger.Warn("guard cache unreadable, starting empty", "path", opts.CachePath, "error", err)
		}
	}

	return &Pipeline{
		cfg: cfg,
		tc:  tc,
		log: logger,
		analyzer: conditional.New(conditional.Options{
			Evaluator:     opts.Evaluator,
			MaxGuardFlags: cfg.MaxGuardFlags,
			Cache:         guards,
		}),
		norm: preproc.New(preproc.Options{
			Toolchain: tc,
			Defines:   cfg.Defines,
			Includes:  cfg.IncludePaths(),
		}),
		indexer:   astdump.New(astdump.Options{Toolchain: tc, KeepDump: opts.ASTJSON}),
		oracle:    linkoracle.New(linkoracle.Options{Toolchain: tc}),
		cache:     guards,
		cachePath: opts.CachePath,
		regen:     opts.RegenProbe,
		astJSON:   opts.ASTJSON,
	}, nil
}

// Toolchain returns the resolved toolchain the pipeline runs with.
func (p *Pipeline) Toolchain() *toolchain.Toolchain { return p.tc }

// CacheStats reports guard cache usage for the run so far.
func (p *Pipeline) CacheStats() cache.Stats { return p.cache.Stats() }

// Run analyzes every source and returns one Result per source, in input
// order. Per-module failures land in their Result; the returned error is
// reserved for run-level setup problems. The scratch directory is removed
// on every exit path unless retention is configured.
func (p *Pipeline) Run(ctx context.Context, sources []string) ([]*types.Result, error) {
	ws, err := workspace.New(p.cfg.ScratchRoot(), p.cfg.KeepWork)
	if err != nil {
		return nil, err
	}
	defer func() {
		if ws.Kept() {
			p.log.Info("scratch directory retained", "dir", ws.Dir)
			return
		}
		if cerr := ws.Close(); cerr != nil {
			p.log.Warn("scratch cleanup failed", "dir", ws.Dir, "error", cerr)
		}
	}()

	jobs := p.cfg.Jobs
	if jobs < 1 {
		jobs = 1
	}

	results := make([]*types.Result, len(sources))

	var wg sync.WaitGroup
	sem := make(chan struct{}, jobs)
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src string) {
			sem <- struct{}{}
			defer wg.Done()
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				results[i] = &types.Result{
					Module:  src,
					RunID:   ws.RunID,
					Outcome: types.OutcomeFailed,
					Err:     ctx.Err(),
				}
				return
			default:
			}
			results[i] = p.runModule(ctx, ws, src)
		}(i, src)
	}
	wg.Wait()

	if p.cachePath != "" {
		if err := cache.PersistToFile(p.cache, p.cachePath); err != nil {
			p.log.Warn("guard cache not persisted", "path", p.cachePath, "error", err)
		}
	}

	return results, nil
}

// runModule executes the stage chain for one source file. Fatal stage
// errors stop the chain for this module only; everything produced up to
// that point stays on the result.
func (p *Pipeline) runModule(ctx context.Context, ws *workspace.Workspace, src string) *types.Result {
	res := &types.Result{Module: src, RunID: ws.RunID}

	if _, err := os.Stat(src); err != nil {
		return p.fail(res, fmt.Errorf("module source: %w", err))
	}

	p.log.Info("analyzing module", "source", src)

	dir, err := ws.ModuleDir(src)
	if err != nil {
		return p.fail(res, err)
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))

	// Conditional structure is advisory; a scan failure degrades to a
	// warning and the mock-resolution chain continues without the report.
	cond, diags, err := p.analyzer.AnalyzeFile(src)
	res.Diagnostics = append(res.Diagnostics, diags...)
	if err != nil {
		res.Warn(types.StageConditional, "conditional analysis failed", err.Error())
	} else {
		res.Conditional = cond
	}

	pre, err := p.norm.Normalize(ctx, src, dir)
	if err != nil {
		return p.fail(res, err)
	}

	idx, diags, err := p.indexer.Index(ctx, pre.VisiblePath)
	res.Diagnostics = append(res.Diagnostics, diags...)
	if err != nil {
		return p.fail(res, err)
	}
	res.Index = idx
	p.log.Debug("function index built", "source", src,
		"functions", idx.Len(), "local", len(idx.Local()))

	if p.astJSON {
		if err := p.persistDump(pre.VisiblePath, base); err != nil {
			res.Warn(types.StageASTIndex, "could not retain parse tree JSON", err.Error())
		}
	}

	prog := probe.Generate(idx, filepath.Base(src))
	probePath, err := p.probePath(base)
	if err != nil {
		return p.fail(res, err)
	}
	text, reused, err := probe.Emit(probePath, prog, p.regen)
	if err != nil {
		return p.fail(res, err)
	}
	if reused {
		res.Warn(types.StageProbe,
			"reusing existing probe entry point, pass --regen-probe to regenerate", probePath)
		prog = &types.ProbeProgram{Text: text}
	}
	res.Probe = prog

	link, diags, err := p.oracle.Probe(ctx, pre.Normal, text, dir, base)
	res.Diagnostics = append(res.Diagnostics, diags...)
	if err != nil {
		return p.fail(res, err)
	}
	res.Link = link

	resolution, diags := mockresolve.Resolve(link.Undefined, idx)
	res.Diagnostics = append(res.Diagnostics, diags...)
	res.Resolution = resolution

	switch {
	case link.Linked && len(link.Undefined) == 0:
		res.Outcome = types.OutcomeZeroDependencies
	case len(link.Undefined) == 0:
		res.Outcome = types.OutcomeIndeterminate
	default:
		res.Outcome = types.OutcomeResolved
	}

	p.log.Info("module analyzed", "source", src, "outcome", res.Outcome,
		"mocks", len(resolution.Matched()), "unresolved", len(resolution.Unresolved))
	return res
}

// persistDump copies a module's parse-tree JSON out of the run directory
// so it survives scratch cleanup, mirroring the probe layout.
func (p *Pipeline) persistDump(visiblePath, base string) error {
	data, err := os.ReadFile(visiblePath + ".ast.json")
	if err != nil {
		return err
	}
	dir := filepath.Join(p.cfg.ScratchRoot(), "ast")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, base+".json"), data, 0o644)
}

// probePath returns the persistent location of a module's probe entry
// point. Probes outlive run directories so hand-tuned ones can be reused
// across runs.
func (p *Pipeline) probePath(base string) (string, error) {
	dir := filepath.Join(p.cfg.ScratchRoot(), "probes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating probe dir: %w", err)
	}
	return filepath.Join(dir, base+"_main.c"), nil
}

// fail marks the module failed and logs it. Prior stage outputs remain on
// the result for inspection.
func (p *Pipeline) fail(res *types.Result, err error) *types.Result {
	res.Outcome = types.OutcomeFailed
	res.Err = err
	p.log.Error("module failed", "source", res.Module, "error", err)
	return res
}
