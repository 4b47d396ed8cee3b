package config

import (
	"os"
	"path/filepath"
	"testing"

	"plainsight/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, llm.DefaultBaseURL, cfg.Ollama.URL)
	assert.Equal(t, llm.DefaultModel, cfg.Ollama.Model)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.False(t, cfg.Extract.Bindings)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	content := `
[project]
name = "demo"
docs_root = "out"

[ollama]
model = "llama3.2"
requests_per_minute = 30

[ollama.tasks.architecture]
model = "qwen2.5-coder:14b"
num_ctx = 8192

[pipeline]
workers = 4

[discovery]
extensions = [".rs", "GO", "cobol"]
exclude = ["generated/"]

[extract]
bindings = true
`
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, filepath.Join("root", "out"), cfg.DocsRoot("root"))
	assert.Equal(t, filepath.Join("root", ".plainsight", "cache.db"), cfg.CachePath("root"))
	assert.Equal(t, llm.DefaultBaseURL, cfg.Ollama.URL)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.True(t, cfg.Extract.Bindings)

	cc := cfg.ClientConfig()
	assert.Equal(t, "llama3.2", cc.Model)
	assert.Equal(t, 30, cc.RequestsPerMinute)
	assert.Equal(t, "qwen2.5-coder:14b", cc.Tasks[llm.TaskArchitecture].Model)

	opts := cfg.WalkerOptions(map[string]bool{"rs": true, "go": true, "py": true})
	assert.Equal(t, map[string]bool{"rs": true, "go": true}, opts.Extensions)
	assert.Equal(t, []string{"generated/"}, opts.Exclude)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "[pipeline]\nthreads = 3\n",
		"bad task":     "[ollama.tasks.translate]\nmodel = \"x\"\n",
		"negative":     "[pipeline]\nworkers = -1\n",
		"bad url":      "[ollama]\nurl = \"localhost\"\n",
		"invalid toml": "[project\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestProjectNameFallsBackToDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widget")
	assert.Equal(t, "widget", Default().ProjectName(dir))
}

func TestFingerprint(t *testing.T) {
	base := Default()
	fp := base.Fingerprint("rust@3")
	assert.Equal(t, fp, Default().Fingerprint("rust@3"))

	assert.NotEqual(t, fp, base.Fingerprint("rust@4"))

	bindings := Default()
	bindings.Extract.Bindings = true
	assert.NotEqual(t, fp, bindings.Fingerprint("rust@3"))

	model := Default()
	model.Ollama.Tasks = map[string]llm.TaskOptions{"summarize": {Temperature: 0.7}}
	assert.NotEqual(t, fp, model.Fingerprint("rust@3"))

	workers := Default()
	workers.Pipeline.Workers = 16
	workers.Project.DocsRoot = "elsewhere"
	assert.Equal(t, fp, workers.Fingerprint("rust@3"))
}
