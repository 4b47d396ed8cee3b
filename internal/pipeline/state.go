package pipeline

import (
	"sort"
	"time"

	"plainsight/internal/index"
	"plainsight/internal/store"
)

// State is the lifecycle position of one artifact within a run.
type State int

const (
	Fresh State = iota
	Stale
	Generating
	Done
	Failed
	Degraded
)

var stateNames = [...]string{"fresh", "stale", "generating", "done", "failed", "degraded"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether s ends an artifact's run.
func (s State) Terminal() bool {
	return s == Fresh || s == Done || s == Failed || s == Degraded
}

// hasOutput reports whether an artifact in state s carries content to write.
func (s State) hasOutput() bool {
	return s == Fresh || s == Done || s == Degraded
}

// ArtifactResult is the outcome for one artifact.
type ArtifactResult struct {
	ID      string
	Stage   string
	Target  string
	State   State
	Missing []string
	Err     error
	Elapsed time.Duration

	content    string
	inputsHash string
	outputHash string
	generated  time.Time
}

// Content returns the artifact body, either generated in this run or
// reused from the cache.
func (r *ArtifactResult) Content() string { return r.content }

// Report summarises a run.
type Report struct {
	RunID     string
	DocsRoot  string
	Artifacts map[string]*ArtifactResult

	Generated int
	Reused    int
	Failed    int
	Degraded  int

	// FailedWrites counts output files that could not be written or
	// removed; WriteErrors holds their errors.
	FailedWrites int
	WriteErrors  error

	Index           index.BuildStats
	CacheCorruption error
	Duration        time.Duration
}

// IDs returns the artifact ids in sorted order.
func (r *Report) IDs() []string {
	ids := make([]string, 0, len(r.Artifacts))
	for id := range r.Artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OK reports whether every artifact is usable and every write succeeded.
func (r *Report) OK() bool {
	return r.Failed == 0 && r.FailedWrites == 0
}

func (r *Report) count() {
	r.Generated, r.Reused, r.Failed, r.Degraded = 0, 0, 0, 0
	for _, a := range r.Artifacts {
		switch a.State {
		case Fresh:
			r.Reused++
		case Done:
			r.Generated++
		case Degraded:
			r.Generated++
			r.Degraded++
		case Failed:
			r.Failed++
		}
	}
}

// Phase names reported to the Observer.
const (
	PhaseIndex   = "index"
	PhaseFiles   = "files"
	PhaseProject = "project"
	PhaseWrite   = "write"
	PhaseFlush   = "flush"
)

// Event is a progress notification.
type Event struct {
	Phase    string
	Artifact string
	State    State
	// Completed and Total count artifacts within the phase.
	Completed int
	Total     int
}

// Observer receives progress events. Calls are serialised.
type Observer func(Event)

// entryStatus maps a terminal state to the status persisted in the cache.
func entryStatus(s State) string {
	if s == Fresh {
		return Done.String()
	}
	return s.String()
}

func (r *ArtifactResult) entry(prev *store.CacheEntry) *store.CacheEntry {
	e := &store.CacheEntry{
		ID:          r.ID,
		Stage:       r.Stage,
		Target:      r.Target,
		InputsHash:  r.inputsHash,
		OutputHash:  r.outputHash,
		Status:      entryStatus(r.State),
		Content:     r.content,
		Missing:     r.Missing,
		GeneratedAt: r.generated,
	}
	if r.State == Fresh && prev != nil {
		return prev
	}
	if r.State == Failed && prev != nil {
		// The previous output stays on disk; keep it readable.
		e.Content = prev.Content
		e.OutputHash = prev.OutputHash
		e.GeneratedAt = prev.GeneratedAt
	}
	return e
}
