// Package config provides the filesystem layout shared by the deployment pipeline
package config

import (
	"os"
	"path/filepath"
)

// Names of the external tools and local state files, all resolved
// relative to the script directory.
const (
	recipesDirName     = "recipes"
	launchScriptName   = "launch-cluster.sh"
	buildScriptName    = "build-and-copy.sh"
	downloadScriptName = "hf-download.sh"
	autodiscoverName   = "autodiscover.sh"
	envFileName        = ".env"
)

// Config holds every path the tool needs. It is built once at startup
// and passed explicitly to each component.
type Config struct {
	// ScriptDir is the directory holding the external tools, the
	// recipes directory, and the .env cluster cache
	ScriptDir string

	// RecipesDir contains the recipe YAML files
	RecipesDir string

	// LaunchScript is the multi-node container launcher
	LaunchScript string

	// BuildScript builds the container image and copies it to workers
	BuildScript string

	// DownloadScript downloads a model and syncs it to workers
	DownloadScript string

	// AutodiscoverScript detects cluster topology
	AutodiscoverScript string

	// EnvFile caches discovered cluster configuration
	EnvFile string

	// ModelCacheDir is the HuggingFace hub cache used for model
	// existence checks. Empty when no home directory is available.
	ModelCacheDir string
}

// New builds a Config rooted at the given script directory.
func New(scriptDir string) *Config {
	return &Config{
		ScriptDir:          scriptDir,
		RecipesDir:         filepath.Join(scriptDir, recipesDirName),
		LaunchScript:       filepath.Join(scriptDir, launchScriptName),
		BuildScript:        filepath.Join(scriptDir, buildScriptName),
		DownloadScript:     filepath.Join(scriptDir, downloadScriptName),
		AutodiscoverScript: filepath.Join(scriptDir, autodiscoverName),
		EnvFile:            filepath.Join(scriptDir, envFileName),
		ModelCacheDir:      defaultModelCacheDir(),
	}
}

// DefaultScriptDir resolves the directory containing the running
// executable, following symlinks. Falls back to the working directory
// when the executable path cannot be determined.
func DefaultScriptDir() string {
	exe, err := os.Executable()
	if err == nil {
		if resolved, rerr := filepath.EvalSymlinks(exe); rerr == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, werr := os.Getwd(); werr == nil {
		return wd
	}
	return "."
}

func defaultModelCacheDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".cache", "huggingface", "hub")
}
