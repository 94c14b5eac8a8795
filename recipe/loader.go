package recipe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/sonusflow/spark-vllm-docker/errors"
)

// Loader resolves recipe identifiers to files and loads them
type Loader struct {
	// RecipesDir is where bare recipe names are looked up
	RecipesDir string

	// Warnings receives non-fatal load diagnostics, such as an
	// unsupported schema version. Defaults to stdout.
	Warnings io.Writer
}

// NewLoader creates a Loader over the given recipes directory
func NewLoader(recipesDir string) *Loader {
	return &Loader{
		RecipesDir: recipesDir,
		Warnings:   os.Stdout,
	}
}

// Resolve maps a path-or-name to an existing recipe file. A path that
// exists is used as given; otherwise the recipes directory is searched
// with the bare name, then .yaml and .yml suffixes, then the stem with
// a .yaml suffix.
func (l *Loader) Resolve(nameOrPath string) (string, error) {
	if fileExists(nameOrPath) {
		return nameOrPath, nil
	}

	base := filepath.Base(nameOrPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	candidates := []string{
		filepath.Join(l.RecipesDir, base),
		filepath.Join(l.RecipesDir, base+".yaml"),
		filepath.Join(l.RecipesDir, base+".yml"),
		filepath.Join(l.RecipesDir, stem+".yaml"),
	}
	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", apperrors.Newf(apperrors.ErrNotFound,
		"recipe not found: %s (searched in: %s, %s)", nameOrPath, nameOrPath, l.RecipesDir)
}

// Load resolves, parses and validates a recipe
func (l *Loader) Load(nameOrPath string) (*Recipe, error) {
	path, err := l.Resolve(nameOrPath)
	if err != nil {
		return nil, err
	}
	return l.loadFile(path)
}

func (l *Loader) loadFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfig, "failed to read recipe")
	}

	r := &Recipe{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfig, "failed to parse recipe YAML")
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	r.Path = path

	if !r.VersionSupported() {
		fmt.Fprintf(l.warnings(), "Warning: Recipe uses schema version '%s', but this run-recipe supports: %v\n", r.Version, SupportedVersions)
		fmt.Fprintln(l.warnings(), "Some features may not work correctly. Consider updating run-recipe.")
	}

	return r, nil
}

func (l *Loader) warnings() io.Writer {
	if l.Warnings == nil {
		return io.Discard
	}
	return l.Warnings
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
