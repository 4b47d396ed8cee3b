// Package pipeline schedules the generation stages: per-file summaries and
// docs in a bounded worker pool, then the project summary and architecture
// overview once every file has finished. Only stale artifacts are generated;
// everything else is reused from the cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"plainsight/internal/config"
	"plainsight/internal/docs"
	"plainsight/internal/extract"
	"plainsight/internal/extract/languages"
	"plainsight/internal/index"
	"plainsight/internal/llm"
	"plainsight/internal/memory"
	"plainsight/internal/store"
	"plainsight/internal/walker"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ErrFlush is returned when the cache could not be saved at the end of a
// run. The previous cache is left as it was.
var ErrFlush = errors.New("cache flush failed")

// Config holds the pipeline configuration.
type Config struct {
	Root        string
	ProjectName string
	DocsRoot    string
	CachePath   string
	// Fingerprint identifies the settings that influence outputs.
	Fingerprint string
	Walk        walker.Options

	Extractor index.SymbolExtractor
	Generator llm.Generator
	// Workers bounds concurrent file-level stages.
	Workers  int
	Logger   hclog.Logger
	Observer Observer
}

// FromConfig builds a pipeline Config for the project at root.
func FromConfig(root string, cfg *config.Config, gen llm.Generator, logger hclog.Logger) Config {
	reg := extract.NewRegistry()
	languages.RegisterAll(reg)
	docsRoot, cachePath := cfg.DocsRoot(root), cfg.CachePath(root)
	walk := cfg.WalkerOptions(reg.Extensions())
	// Generated output and the cache never count as sources.
	for _, dir := range []string{docsRoot, filepath.Dir(cachePath)} {
		if rel, err := filepath.Rel(root, dir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			walk.Exclude = append(walk.Exclude, "/"+filepath.ToSlash(rel))
		}
	}
	return Config{
		Root:        root,
		ProjectName: cfg.ProjectName(root),
		DocsRoot:    docsRoot,
		CachePath:   cachePath,
		Fingerprint: cfg.Fingerprint(reg.Fingerprint()),
		Walk:        walk,
		Extractor:   extract.NewExtractor(reg, extract.WithBindings(cfg.Extract.Bindings)),
		Generator:   gen,
		Workers:     cfg.Pipeline.Workers,
		Logger:      logger,
	}
}

// Pipeline runs generation for one project.
type Pipeline struct {
	cfg     Config
	layout  docs.Layout
	indexer *index.Indexer
	logger  hclog.Logger

	observeMu sync.Mutex
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Pipeline{
		cfg:     cfg,
		layout:  docs.Layout{Root: cfg.DocsRoot},
		indexer: index.NewIndexer(index.Config{Extractor: cfg.Extractor, Logger: logger}),
		logger:  logger.Named("pipeline"),
	}
}

func (p *Pipeline) observe(ev Event) {
	if p.cfg.Observer == nil {
		return
	}
	p.observeMu.Lock()
	defer p.observeMu.Unlock()
	p.cfg.Observer(ev)
}

// run carries the state of one Run.
type run struct {
	id      string
	prev    *store.State
	pi      *index.ProjectIndex
	stats   index.BuildStats
	facts   memory.Facts
	mem     *memory.Memory
	sources map[string]string

	mu      sync.Mutex
	results map[string]*ArtifactResult
	tasks   map[llm.Task]bool
}

func (r *run) called(task llm.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task] = true
}

func (r *run) wasCalled(task llm.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[task]
}

func (r *run) record(res *ArtifactResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[res.ID] = res
}

func (r *run) result(id string) *ArtifactResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[id]
}

// Run indexes the project, generates every stale artifact, writes the
// outputs and flushes the cache. Generation failures are contained in the
// report. A cancelled context returns before anything is written. A cache
// flush failure returns ErrFlush together with the report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	r := &run{
		id:      uuid.NewString(),
		results: make(map[string]*ArtifactResult),
		tasks:   make(map[llm.Task]bool),
	}
	logger := p.logger.With("run_id", r.id)
	report := &Report{RunID: r.id, DocsRoot: p.cfg.DocsRoot}

	cache, prev, err := store.OpenState(ctx, p.cfg.CachePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer cache.Close()
	report.CacheCorruption = prev.Corruption
	r.prev = prev
	r.mem = prev.Memory.Clone()

	prevIndex := prev.Index
	if prev.Meta.SettingsFingerprint != "" && prev.Meta.SettingsFingerprint != p.cfg.Fingerprint {
		logger.Info("settings changed, re-extracting every file")
		prevIndex = nil
	}

	p.observe(Event{Phase: PhaseIndex})
	files, err := walker.Collect(p.cfg.Root, p.cfg.Walk)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	r.sources = make(map[string]string, len(files))
	for _, f := range files {
		r.sources[f.RelPath] = f.Path
	}
	r.pi, r.stats, err = p.indexer.Build(ctx, files, prevIndex)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	if prevIndex == nil && prev.Index != nil {
		// Removed files still need their outputs pruned.
		for _, path := range prev.Index.Paths() {
			if r.pi.File(path) == nil {
				r.stats.Removed = append(r.stats.Removed, path)
			}
		}
	}
	report.Index = r.stats
	r.facts = memory.Derive(r.pi)
	logger.Debug("indexed", "files", r.stats.Files, "reused", r.stats.Reused, "removed", len(r.stats.Removed))

	if err := p.runFileStages(ctx, r); err != nil {
		return nil, err
	}
	if len(r.pi.Files) > 0 {
		p.unload(ctx, r, fileTasks, projectTasks)
		if err := p.runProjectStages(ctx, r); err != nil {
			return nil, err
		}
		p.unload(ctx, r, projectTasks, nil)
	} else {
		logger.Warn("no source files found", "root", p.cfg.Root)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}

	report.Artifacts = r.results
	report.count()

	p.writeOutputs(r, report)

	p.observe(Event{Phase: PhaseFlush})
	next := p.nextState(r, start)
	if err := cache.Save(ctx, next); err != nil {
		report.Duration = time.Since(start)
		return report, fmt.Errorf("%w: %v", ErrFlush, err)
	}

	report.Duration = time.Since(start)
	logger.Info("run finished", "generated", report.Generated, "reused", report.Reused,
		"failed", report.Failed, "degraded", report.Degraded, "failed_writes", report.FailedWrites,
		"elapsed", report.Duration)
	return report, nil
}

// writeOutputs renders and writes every artifact with content, then prunes
// outputs of removed sources. Failures are collected in the report.
func (p *Pipeline) writeOutputs(r *run, report *Report) {
	var errs *multierror.Error
	ids := report.IDs()
	for i, id := range ids {
		res := r.results[id]
		if !res.State.hasOutput() {
			continue
		}
		path, err := p.layout.Path(id)
		if err == nil {
			_, err = docs.Write(path, docs.Render(docs.Artifact{
				ID:         id,
				Source:     res.Target,
				InputsHash: res.inputsHash,
				Status:     entryStatus(res.State),
				Body:       res.content,
				Missing:    res.Missing,
			}))
		}
		if err != nil {
			p.logger.Warn("write failed", "artifact", id, "error", err)
			errs = multierror.Append(errs, &docs.WriteError{Artifact: id, Path: path, Err: err})
			report.FailedWrites++
		}
		p.observe(Event{Phase: PhaseWrite, Artifact: id, State: res.State, Completed: i + 1, Total: len(ids)})
	}
	for _, rel := range r.stats.Removed {
		if err := p.layout.Remove(rel); err != nil {
			errs = multierror.Append(errs, &docs.WriteError{Artifact: rel, Path: filepath.Join(p.layout.Root, "files", rel), Err: err})
			report.FailedWrites++
		}
	}
	report.WriteErrors = errs.ErrorOrNil()
}

// nextState assembles the state flushed at the end of the run.
func (p *Pipeline) nextState(r *run, start time.Time) *store.State {
	st := store.NewState()
	st.Meta = store.Meta{
		ProjectName:         p.cfg.ProjectName,
		DocsRoot:            p.cfg.DocsRoot,
		LastRun:             start,
		SettingsFingerprint: p.cfg.Fingerprint,
		RunID:               r.id,
	}
	st.Memory = r.mem
	for _, path := range r.pi.Paths() {
		fi := r.pi.Files[path]
		hashes := make(map[string]string)
		for _, stage := range []string{docs.StageFileSummary, docs.StageFileDocs} {
			if res := r.results[docs.ID(stage, path)]; res != nil && (res.State == Done || res.State == Fresh) {
				hashes[stage] = res.outputHash
			}
		}
		st.Index.Files[path] = fi.WithArtifactHashes(hashes)
	}
	st.Index.Graph = r.pi.Graph
	for id, res := range r.results {
		st.Artifacts[id] = res.entry(r.prev.Artifacts[id])
	}
	return st
}
