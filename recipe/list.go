package recipe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// List prints every recipe in the recipes directory with its metadata.
// Recipes that fail to load are reported inline and do not stop the
// listing.
func (l *Loader) List(out io.Writer) {
	if _, err := os.Stat(l.RecipesDir); err != nil {
		fmt.Fprintln(out, "No recipes directory found.")
		return
	}

	// Glob returns sorted paths
	paths, _ := filepath.Glob(filepath.Join(l.RecipesDir, "*.yaml"))
	if len(paths) == 0 {
		fmt.Fprintln(out, "No recipes found in recipes/ directory.")
		return
	}

	fmt.Fprintln(out, "Available recipes:")
	fmt.Fprintln(out)
	for _, path := range paths {
		r, err := l.loadFile(path)
		if err != nil {
			fmt.Fprintf(out, "  %s (error loading: %v)\n\n", filepath.Base(path), err)
			continue
		}

		fmt.Fprintf(out, "  %s\n", filepath.Base(path))
		fmt.Fprintf(out, "    Name: %s\n", r.Name)
		if r.Description != "" {
			fmt.Fprintf(out, "    Description: %s\n", r.Description)
		}
		if r.Model != "" {
			fmt.Fprintf(out, "    Model: %s\n", r.Model)
		}
		if r.ClusterOnly {
			fmt.Fprintln(out, "    Cluster only: Yes")
		}
		fmt.Fprintf(out, "    Container: %s\n", r.Container)
		if len(r.BuildArgs) > 0 {
			fmt.Fprintf(out, "    Build args: %s\n", strings.Join(r.BuildArgs, " "))
		}
		if len(r.Mods) > 0 {
			fmt.Fprintf(out, "    Mods: %s\n", strings.Join(r.Mods, ", "))
		}
		fmt.Fprintln(out)
	}
}
