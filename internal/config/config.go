// Package config loads plainsight.toml.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"plainsight/internal/llm"
	"plainsight/internal/prompt"
	"plainsight/internal/walker"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up in the project root.
const FileName = "plainsight.toml"

// Config represents the top-level configuration.
type Config struct {
	Project   ProjectConfig   `toml:"project"`
	Ollama    OllamaConfig    `toml:"ollama"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Extract   ExtractConfig   `toml:"extract"`
}

// ProjectConfig names the project and where outputs go. Relative paths are
// resolved against the project root.
type ProjectConfig struct {
	Name      string `toml:"name"`
	DocsRoot  string `toml:"docs_root"`
	CachePath string `toml:"cache_path"`
}

// OllamaConfig holds the generation service settings.
type OllamaConfig struct {
	URL               string                     `toml:"url"`
	Model             string                     `toml:"model"`
	RequestsPerMinute int                        `toml:"requests_per_minute"`
	Tasks             map[string]llm.TaskOptions `toml:"tasks"`
}

// PipelineConfig holds scheduler settings.
type PipelineConfig struct {
	Workers int `toml:"workers"`
}

// DiscoveryConfig controls which files are indexed.
type DiscoveryConfig struct {
	// Extensions restricts discovery; empty means every supported language.
	Extensions   []string `toml:"extensions"`
	Exclude      []string `toml:"exclude"`
	MaxFileBytes int64    `toml:"max_file_bytes"`
}

// ExtractConfig holds symbol extraction settings.
type ExtractConfig struct {
	Bindings bool `toml:"bindings"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			DocsRoot:  "docs/plainsight",
			CachePath: filepath.Join(".plainsight", "cache.db"),
		},
		Ollama: OllamaConfig{
			URL:   llm.DefaultBaseURL,
			Model: llm.DefaultModel,
		},
		Pipeline: PipelineConfig{Workers: 2},
		Discovery: DiscoveryConfig{
			MaxFileBytes: walker.DefaultMaxFileBytes,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and task names.
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must not be negative")
	}
	if c.Discovery.MaxFileBytes < 0 {
		return fmt.Errorf("discovery.max_file_bytes must not be negative")
	}
	if c.Ollama.RequestsPerMinute < 0 {
		return fmt.Errorf("ollama.requests_per_minute must not be negative")
	}
	if u, err := url.Parse(c.Ollama.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ollama.url %q is not an absolute URL", c.Ollama.URL)
	}
	for name := range c.Ollama.Tasks {
		if !knownTask(name) {
			return fmt.Errorf("ollama.tasks.%s: unknown task", name)
		}
	}
	return nil
}

func knownTask(name string) bool {
	for _, t := range llm.Tasks {
		if string(t) == name {
			return true
		}
	}
	return false
}

// ProjectName returns the configured name or the root directory's name.
func (c *Config) ProjectName(root string) string {
	if c.Project.Name != "" {
		return c.Project.Name
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	return filepath.Base(abs)
}

// DocsRoot returns the output directory for the project at root.
func (c *Config) DocsRoot(root string) string {
	return resolve(root, c.Project.DocsRoot)
}

// CachePath returns the cache file for the project at root.
func (c *Config) CachePath(root string) string {
	return resolve(root, c.Project.CachePath)
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// ClientConfig returns the generation client settings.
func (c *Config) ClientConfig() llm.ClientConfig {
	tasks := make(map[llm.Task]llm.TaskOptions, len(c.Ollama.Tasks))
	for name, opts := range c.Ollama.Tasks {
		tasks[llm.Task(name)] = opts
	}
	return llm.ClientConfig{
		BaseURL:           c.Ollama.URL,
		Model:             c.Ollama.Model,
		Tasks:             tasks,
		RequestsPerMinute: c.Ollama.RequestsPerMinute,
	}
}

// WalkerOptions returns the discovery options. supported is the extension
// set of every registered language.
func (c *Config) WalkerOptions(supported map[string]bool) walker.Options {
	exts := supported
	if len(c.Discovery.Extensions) > 0 {
		exts = make(map[string]bool)
		for _, e := range c.Discovery.Extensions {
			e = strings.TrimPrefix(strings.ToLower(e), ".")
			if supported[e] {
				exts[e] = true
			}
		}
	}
	return walker.Options{
		Extensions:       exts,
		Exclude:          c.Discovery.Exclude,
		MaxFileBytes:     c.Discovery.MaxFileBytes,
		CreateIgnoreFile: true,
	}
}

// Fingerprint digests every setting that changes extracted symbols or
// generated text. rules identifies the registered rule sets.
func (c *Config) Fingerprint(rules string) string {
	client := llm.NewOllamaClient(c.ClientConfig())
	type taskEntry struct {
		Task    llm.Task        `json:"task"`
		Options llm.TaskOptions `json:"options"`
	}
	entries := make([]taskEntry, 0, len(llm.Tasks))
	for _, t := range llm.Tasks {
		entries = append(entries, taskEntry{Task: t, Options: client.Options(t)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Task < entries[j].Task })

	data, _ := json.Marshal(struct {
		Tasks    []taskEntry `json:"tasks"`
		Rules    string      `json:"rules"`
		Bindings bool        `json:"bindings"`
		Prompt   string      `json:"prompt"`
	}{entries, rules, c.Extract.Bindings, prompt.Version})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
