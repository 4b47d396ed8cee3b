package docs

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

// WriteError reports an artifact that could not be written.
type WriteError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s (%s): %v", e.Artifact, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Write stores data at path unless the file already holds exactly data. The
// new content is written to a temporary file in the same directory and
// renamed into place, so readers never see a partial file. It reports
// whether the file changed.
func Write(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	return true, nil
}

// Remove deletes the generated outputs of a source file that no longer
// exists, then any directories left empty up to the layout root.
func (l Layout) Remove(rel string) error {
	var result *multierror.Error
	for _, p := range l.FileOutputs(rel) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	root := filepath.Clean(l.Root)
	for dir := l.fileDir(rel); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		// Fails on non-empty directories, which ends the walk.
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return result.ErrorOrNil()
}

// Read loads and parses the written artifact with the given id.
func (l Layout) Read(id string) (Artifact, error) {
	path, err := l.Path(id)
	if err != nil {
		return Artifact{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, err
	}
	a, err := Parse(raw)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}
