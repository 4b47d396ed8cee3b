package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"plainsight/internal/docs"
	"plainsight/internal/index"
	"plainsight/internal/llm"
	"plainsight/internal/prompt"
	"plainsight/internal/store"

	"github.com/sourcegraph/conc/pool"
)

// errUpstream marks an artifact that was not attempted because an artifact
// it depends on failed.
var errUpstream = errors.New("upstream failed")

// hashParts digests parts unambiguously.
func hashParts(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func outputHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// fresh reports whether the cached entry can be reused: it completed, was
// produced from the same inputs, and the FileIndex (when given) still
// records its output.
func fresh(prev *store.CacheEntry, inputs string, fi *index.FileIndex, stage string) bool {
	if prev == nil || prev.Status != Done.String() || prev.InputsHash != inputs {
		return false
	}
	if fi != nil && fi.ArtifactHashes[stage] != prev.OutputHash {
		return false
	}
	return true
}

func reuse(res *ArtifactResult, prev *store.CacheEntry) *ArtifactResult {
	res.State = Fresh
	res.content = prev.Content
	res.outputHash = prev.OutputHash
	res.generated = prev.GeneratedAt
	res.Missing = nil
	return res
}

// generate performs one generation-service call for res. It returns an
// error only when ctx is done; every other failure marks res Failed.
func (p *Pipeline) generate(ctx context.Context, r *run, res *ArtifactResult, req llm.Request) error {
	r.called(req.Task)
	res.State = Generating
	p.observe(Event{Phase: phaseOf(res.Stage), Artifact: res.ID, State: Generating})
	start := time.Now()
	raw, err := p.cfg.Generator.Generate(ctx, req)
	res.Elapsed = time.Since(start)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		raw, err = prompt.Clean(req.Task, raw)
	}
	if err != nil {
		res.State = Failed
		res.Err = err
		p.logger.Warn("generation failed", "artifact", res.ID, "error", err, "elapsed", res.Elapsed)
		return nil
	}
	res.State = Done
	res.content = raw
	res.outputHash = outputHash(raw)
	res.generated = time.Now().UTC()
	p.logger.Debug("generated", "artifact", res.ID, "elapsed", res.Elapsed)
	return nil
}

func phaseOf(stage string) string {
	if stage == docs.StageFileSummary || stage == docs.StageFileDocs {
		return PhaseFiles
	}
	return PhaseProject
}

// runFileStages runs FileSummary then FileDocs for every file in a pool
// bounded by the configured workers and waits for all of them.
func (p *Pipeline) runFileStages(ctx context.Context, r *run) error {
	paths := r.pi.Paths()
	total := 2 * len(paths)
	var completed int
	done := func(res *ArtifactResult) {
		r.record(res)
		p.observeMu.Lock()
		completed++
		n := completed
		p.observeMu.Unlock()
		p.observe(Event{Phase: PhaseFiles, Artifact: res.ID, State: res.State, Completed: n, Total: total})
	}

	wp := pool.New().WithContext(ctx).WithMaxGoroutines(p.cfg.Workers)
	for _, path := range paths {
		wp.Go(func(ctx context.Context) error {
			return p.runFile(ctx, r, r.pi.Files[path], done)
		})
	}
	if err := wp.Wait(); err != nil {
		return fmt.Errorf("file stages: %w", err)
	}
	return ctx.Err()
}

func (p *Pipeline) runFile(ctx context.Context, r *run, fi *index.FileIndex, done func(*ArtifactResult)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	symbols, _ := json.Marshal(fi.Symbols)

	sumID := docs.ID(docs.StageFileSummary, fi.Path)
	sum := &ArtifactResult{ID: sumID, Stage: docs.StageFileSummary, Target: fi.Path, State: Stale}
	sum.inputsHash = hashParts(p.cfg.Fingerprint, docs.StageFileSummary, fi.ContentHash, string(symbols))

	var src []byte
	loadSource := func() error {
		if src != nil {
			return nil
		}
		var err error
		src, err = os.ReadFile(r.sources[fi.Path])
		return err
	}

	in := prompt.FileInput{
		Path:     fi.Path,
		Language: fi.Language,
		File:     fi,
		Graph:    r.pi.Graph,
		Facts:    r.facts.ForFile(fi.Path),
		Memory:   r.mem,
	}

	if prev := r.prev.Artifacts[sumID]; fresh(prev, sum.inputsHash, fi, docs.StageFileSummary) {
		reuse(sum, prev)
	} else if err := loadSource(); err != nil {
		sum.State, sum.Err = Failed, fmt.Errorf("read source: %w", err)
	} else {
		in.Source = src
		if err := p.generate(ctx, r, sum, prompt.FileSummary(in)); err != nil {
			return err
		}
	}
	done(sum)

	docID := docs.ID(docs.StageFileDocs, fi.Path)
	doc := &ArtifactResult{ID: docID, Stage: docs.StageFileDocs, Target: fi.Path, State: Stale}
	doc.inputsHash = hashParts(p.cfg.Fingerprint, docs.StageFileDocs, fi.ContentHash, sum.outputHash)

	switch prev := r.prev.Artifacts[docID]; {
	case sum.State == Failed:
		doc.State, doc.Err = Failed, errUpstream
	case sum.State == Fresh && fresh(prev, doc.inputsHash, fi, docs.StageFileDocs):
		reuse(doc, prev)
	default:
		if err := loadSource(); err != nil {
			doc.State, doc.Err = Failed, fmt.Errorf("read source: %w", err)
			break
		}
		in.Source = src
		in.Summary = sum.content
		if err := p.generate(ctx, r, doc, prompt.FileDocs(in)); err != nil {
			return err
		}
	}
	done(doc)
	return nil
}

// runProjectStages runs ProjectSummary then Architecture on the calling
// goroutine. Memory is updated only after a stage reaches Done.
func (p *Pipeline) runProjectStages(ctx context.Context, r *run) error {
	paths := r.pi.Paths()

	var digests []prompt.FileDigest
	var missing []string
	upstreamChanged := len(r.stats.Removed) > 0
	parts := []string{p.cfg.Fingerprint, docs.StageProjectSummary}
	for _, path := range paths {
		res := r.result(docs.ID(docs.StageFileSummary, path))
		switch res.State {
		case Failed:
			missing = append(missing, res.ID)
			upstreamChanged = true
		case Done:
			upstreamChanged = true
		}
		// A failed summary already covers its docs.
		if doc := r.result(docs.ID(docs.StageFileDocs, path)); res.State != Failed && doc != nil && doc.State == Failed {
			missing = append(missing, doc.ID)
			upstreamChanged = true
		}
		parts = append(parts, path, res.outputHash)
		digests = append(digests, prompt.Digest(r.pi.Files[path], res.content))
	}
	graphHash := r.pi.Graph.Hash()
	parts = append(parts, graphHash)

	in := prompt.ProjectInput{
		Name:    p.cfg.ProjectName,
		Files:   digests,
		Graph:   r.pi.Graph,
		Facts:   r.facts,
		Memory:  r.mem,
		Missing: missing,
	}

	ps := &ArtifactResult{ID: docs.StageProjectSummary, Stage: docs.StageProjectSummary, State: Stale}
	ps.inputsHash = hashParts(parts...)
	if prev := r.prev.Artifacts[ps.ID]; !upstreamChanged && fresh(prev, ps.inputsHash, nil, "") {
		reuse(ps, prev)
	} else {
		if err := p.generate(ctx, r, ps, prompt.ProjectSummary(in)); err != nil {
			return err
		}
		p.settle(r, ps, missing)
	}
	p.observe(Event{Phase: PhaseProject, Artifact: ps.ID, State: ps.State, Completed: 1, Total: 2})
	r.record(ps)

	arch := &ArtifactResult{ID: docs.StageArchitecture, Stage: docs.StageArchitecture, State: Stale}
	arch.inputsHash = hashParts(p.cfg.Fingerprint, docs.StageArchitecture, ps.outputHash, graphHash)
	var archMissing []string
	switch ps.State {
	case Failed:
		archMissing = append(append(archMissing, missing...), ps.ID)
	case Degraded:
		archMissing = append(archMissing, ps.Missing...)
	}
	sort.Strings(archMissing)

	if prev := r.prev.Artifacts[arch.ID]; ps.State == Fresh && fresh(prev, arch.inputsHash, nil, "") {
		reuse(arch, prev)
	} else {
		in.ProjectSummary = ps.content
		in.Missing = archMissing
		if err := p.generate(ctx, r, arch, prompt.Architecture(in)); err != nil {
			return err
		}
		p.settle(r, arch, archMissing)
	}
	p.observe(Event{Phase: PhaseProject, Artifact: arch.ID, State: arch.State, Completed: 2, Total: 2})
	r.record(arch)
	return nil
}

// settle turns a generated project artifact into Degraded when some of its
// inputs are missing, and records it in memory when it is Done.
func (p *Pipeline) settle(r *run, res *ArtifactResult, missing []string) {
	if res.State != Done {
		return
	}
	if len(missing) > 0 {
		res.State = Degraded
		res.Missing = missing
		p.logger.Warn("artifact degraded", "artifact", res.ID, "missing", missing)
		return
	}
	r.mem.Record(res.Stage, r.id, res.content, res.generated)
}


var (
	fileTasks    = []llm.Task{llm.TaskSummarize, llm.TaskDocumentation}
	projectTasks = []llm.Task{llm.TaskProjectSummary, llm.TaskArchitecture}
)

// unload frees the models of the tasks this run called, keeping those the
// keep tasks still need. Failures are logged only.
func (p *Pipeline) unload(ctx context.Context, r *run, tasks, keep []llm.Task) {
	u, ok := p.cfg.Generator.(llm.Unloader)
	if !ok || ctx.Err() != nil {
		return
	}
	var used []llm.Task
	for _, t := range tasks {
		if r.wasCalled(t) {
			used = append(used, t)
		}
	}
	if len(used) == 0 {
		return
	}
	if err := u.UnloadTasks(ctx, used, keep); err != nil {
		p.logger.Warn("model unload failed", "run_id", r.id, "error", err)
	}
}
