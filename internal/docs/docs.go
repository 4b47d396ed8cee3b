// Package docs lays out, renders and writes the generated Markdown files.
package docs

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stage names, also used as artifact id prefixes.
const (
	StageFileSummary    = "file_summary"
	StageFileDocs       = "file_docs"
	StageProjectSummary = "project_summary"
	StageArchitecture   = "architecture"
)

// Disclaimer precedes every generated body.
const Disclaimer = "> **AI-generated content:** May contain inaccuracies. Verify against source code."

// ID returns the artifact id for stage and target. Project stages have no
// target.
func ID(stage, target string) string {
	if target == "" {
		return stage
	}
	return stage + ":" + target
}

// ParseID splits an artifact id into stage and target.
func ParseID(id string) (stage, target string, err error) {
	stage, target, _ = strings.Cut(id, ":")
	switch stage {
	case StageFileSummary, StageFileDocs:
		if target == "" {
			return "", "", fmt.Errorf("artifact %q: missing file path", id)
		}
	case StageProjectSummary, StageArchitecture:
		if target != "" {
			return "", "", fmt.Errorf("artifact %q: unexpected target", id)
		}
	default:
		return "", "", fmt.Errorf("unknown artifact %q", id)
	}
	return stage, target, nil
}

// Layout maps artifacts to files under Root.
type Layout struct {
	Root string
}

// Path returns where the artifact with the given id is written.
func (l Layout) Path(id string) (string, error) {
	stage, target, err := ParseID(id)
	if err != nil {
		return "", err
	}
	switch stage {
	case StageFileSummary:
		return filepath.Join(l.fileDir(target), "summary.md"), nil
	case StageFileDocs:
		return filepath.Join(l.fileDir(target), "docs.md"), nil
	case StageProjectSummary:
		return filepath.Join(l.Root, "summary.md"), nil
	default:
		return filepath.Join(l.Root, "architecture.md"), nil
	}
}

// FileOutputs returns every path generated for the source file rel.
func (l Layout) FileOutputs(rel string) []string {
	dir := l.fileDir(rel)
	return []string{filepath.Join(dir, "summary.md"), filepath.Join(dir, "docs.md")}
}

func (l Layout) fileDir(rel string) string {
	return filepath.Join(l.Root, "files", filepath.FromSlash(rel))
}

// Artifact is one generated document ready to render.
type Artifact struct {
	ID         string
	Source     string
	InputsHash string
	Status     string
	Body       string
	// Missing lists the inputs a degraded artifact was generated without.
	Missing []string
}

type frontMatter struct {
	Artifact   string   `yaml:"artifact"`
	Source     string   `yaml:"source,omitempty"`
	InputsHash string   `yaml:"inputs_hash"`
	Status     string   `yaml:"status"`
	Missing    []string `yaml:"missing,omitempty"`
}

// Render produces the file contents for a. The output depends only on a.
func Render(a Artifact) []byte {
	var buf bytes.Buffer
	fm, err := yaml.Marshal(frontMatter{
		Artifact:   a.ID,
		Source:     a.Source,
		InputsHash: a.InputsHash,
		Status:     a.Status,
		Missing:    a.Missing,
	})
	if err != nil {
		// Plain strings always marshal.
		panic(fmt.Sprintf("marshal front matter: %v", err))
	}
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(Body(a))
	return buf.Bytes()
}

// Body renders a without its front matter: the disclaimer, the incomplete
// marker when inputs were missing, and the generated text.
func Body(a Artifact) string {
	var sb strings.Builder
	sb.WriteString(Disclaimer)
	sb.WriteString("\n\n")
	if len(a.Missing) > 0 {
		fmt.Fprintf(&sb, "> **Incomplete:** generated without %s.\n\n", strings.Join(a.Missing, ", "))
	}
	sb.WriteString(strings.TrimSpace(a.Body))
	sb.WriteString("\n")
	return sb.String()
}

// Parse splits a rendered document into its front matter and body. The
// disclaimer and incomplete marker are dropped from the body.
func Parse(raw []byte) (Artifact, error) {
	const delimiter = "---"
	s := string(raw)
	if !strings.HasPrefix(s, delimiter+"\n") {
		return Artifact{}, fmt.Errorf("missing opening front matter delimiter")
	}
	rest := s[len(delimiter)+1:]
	idx := strings.Index(rest, "\n"+delimiter+"\n")
	if idx < 0 {
		return Artifact{}, fmt.Errorf("missing closing front matter delimiter")
	}
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil {
		return Artifact{}, fmt.Errorf("parse front matter: %w", err)
	}
	body := strings.TrimSpace(rest[idx+len(delimiter)+2:])
	body = strings.TrimSpace(strings.TrimPrefix(body, Disclaimer))
	if strings.HasPrefix(body, "> **Incomplete:**") {
		if _, after, ok := strings.Cut(body, "\n"); ok {
			body = strings.TrimSpace(after)
		} else {
			body = ""
		}
	}
	return Artifact{
		ID:         fm.Artifact,
		Source:     fm.Source,
		InputsHash: fm.InputsHash,
		Status:     fm.Status,
		Missing:    fm.Missing,
		Body:       body,
	}, nil
}
