package recipe

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sonusflow/spark-vllm-docker/errors"
)

const validRecipe = `name: glm-4.7-nvfp4
recipe_version: "1"
container: vllm-node-nvfp4
description: GLM 4.7 NVFP4 quantized
model: Salyut1/GLM-4.7-NVFP4
command: |
  vllm serve Salyut1/GLM-4.7-NVFP4 \
    --port {port} \
    --tensor-parallel-size {tensor_parallel}
defaults:
  port: 8000
  tensor_parallel: 8
env:
  VLLM_USE_V1: "1"
  NCCL_DEBUG: WARN
  NCCL_IB_TIMEOUT: 22
mods:
  - mods/fix-glm
build_args: ["-f", "Dockerfile.nvfp4"]
cluster_only: true
`

// writeRecipe creates a recipe file under dir and returns its path
func writeRecipe(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	recipesDir := filepath.Join(t.TempDir(), "recipes")
	require.NoError(t, os.MkdirAll(recipesDir, 0755))
	l := NewLoader(recipesDir)
	l.Warnings = io.Discard
	return l, recipesDir
}

func TestResolve(t *testing.T) {
	l, recipesDir := newTestLoader(t)
	writeRecipe(t, recipesDir, "minimax-m2.yaml", validRecipe)
	writeRecipe(t, recipesDir, "legacy.yml", validRecipe)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare name", "minimax-m2", filepath.Join(recipesDir, "minimax-m2.yaml")},
		{"name with yaml extension", "minimax-m2.yaml", filepath.Join(recipesDir, "minimax-m2.yaml")},
		{"name with yml extension", "legacy", filepath.Join(recipesDir, "legacy.yml")},
		{"wrong extension falls back to stem", "minimax-m2.yml", filepath.Join(recipesDir, "minimax-m2.yaml")},
		{"path prefix ignored for lookup", "elsewhere/minimax-m2.yaml", filepath.Join(recipesDir, "minimax-m2.yaml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Resolve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveLiteralPathWins(t *testing.T) {
	l, recipesDir := newTestLoader(t)
	writeRecipe(t, recipesDir, "direct.yaml", validRecipe)
	direct := writeRecipe(t, t.TempDir(), "direct.yaml", validRecipe)

	got, err := l.Resolve(direct)
	require.NoError(t, err)
	assert.Equal(t, direct, got)
}

func TestResolveExactNameBeforeSuffixed(t *testing.T) {
	l, recipesDir := newTestLoader(t)
	// Both "exact" and "exact.yaml" exist; the bare name wins
	writeRecipe(t, recipesDir, "exact", validRecipe)
	writeRecipe(t, recipesDir, "exact.yaml", validRecipe)

	got, err := l.Resolve("exact")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(recipesDir, "exact"), got)
}

func TestResolveNotFound(t *testing.T) {
	l, recipesDir := newTestLoader(t)

	_, err := l.Resolve("no-such-recipe")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "no-such-recipe")
	assert.Contains(t, err.Error(), recipesDir)
}

func TestLoadValidRecipe(t *testing.T) {
	l, recipesDir := newTestLoader(t)
	path := writeRecipe(t, recipesDir, "glm.yaml", validRecipe)

	r, err := l.Load("glm")
	require.NoError(t, err)

	assert.Equal(t, "glm-4.7-nvfp4", r.Name)
	assert.Equal(t, "1", r.Version)
	assert.Equal(t, "vllm-node-nvfp4", r.Container)
	assert.Contains(t, r.Command, "--port {port}")
	assert.Equal(t, "Salyut1/GLM-4.7-NVFP4", r.Model)
	assert.Equal(t, []string{"mods/fix-glm"}, r.Mods)
	assert.Equal(t, []string{"-f", "Dockerfile.nvfp4"}, r.BuildArgs)
	assert.True(t, r.ClusterOnly)
	assert.Equal(t, path, r.Path)
	assert.Equal(t, 8000, r.Defaults["port"])
}

func TestLoadEnvPreservesDeclarationOrder(t *testing.T) {
	l, recipesDir := newTestLoader(t)
	writeRecipe(t, recipesDir, "glm.yaml", validRecipe)

	r, err := l.Load("glm")
	require.NoError(t, err)

	// Non-alphabetical in the file; must stay that way
	require.Len(t, r.Env, 3)
	assert.Equal(t, EnvVar{Name: "VLLM_USE_V1", Value: "1"}, r.Env[0])
	assert.Equal(t, EnvVar{Name: "NCCL_DEBUG", Value: "WARN"}, r.Env[1])
	assert.Equal(t, EnvVar{Name: "NCCL_IB_TIMEOUT", Value: "22"}, r.Env[2])
}

func TestLoadMissingRequiredField(t *testing.T) {
	fields := map[string]string{
		"name":           "recipe_version: \"1\"\ncontainer: img\ncommand: run\n",
		"recipe_version": "name: x\ncontainer: img\ncommand: run\n",
		"container":      "name: x\nrecipe_version: \"1\"\ncommand: run\n",
		"command":        "name: x\nrecipe_version: \"1\"\ncontainer: img\n",
	}

	for field, content := range fields {
		t.Run(field, func(t *testing.T) {
			l, recipesDir := newTestLoader(t)
			writeRecipe(t, recipesDir, "partial.yaml", content)

			_, err := l.Load("partial")
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrConfig, apperrors.GetCode(err))
			assert.Contains(t, err.Error(), "recipe missing required field: "+field)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	l, recipesDir := newTestLoader(t)
	writeRecipe(t, recipesDir, "broken.yaml", "name: [unclosed\n")

	_, err := l.Load("broken")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConfig, apperrors.GetCode(err))
}

func TestLoadVersionWarning(t *testing.T) {
	t.Run("unsupported version warns but loads", func(t *testing.T) {
		l, recipesDir := newTestLoader(t)
		var warnings bytes.Buffer
		l.Warnings = &warnings
		writeRecipe(t, recipesDir, "future.yaml",
			"name: x\nrecipe_version: \"2\"\ncontainer: img\ncommand: run\n")

		r, err := l.Load("future")
		require.NoError(t, err)
		assert.Equal(t, "2", r.Version)
		assert.Contains(t, warnings.String(), "schema version '2'")
		assert.Contains(t, warnings.String(), "Some features may not work correctly")
	})

	t.Run("supported version is silent", func(t *testing.T) {
		l, recipesDir := newTestLoader(t)
		var warnings bytes.Buffer
		l.Warnings = &warnings
		writeRecipe(t, recipesDir, "current.yaml", validRecipe)

		_, err := l.Load("current")
		require.NoError(t, err)
		assert.Empty(t, warnings.String())
	})

	t.Run("unquoted version reads as its text", func(t *testing.T) {
		l, recipesDir := newTestLoader(t)
		var warnings bytes.Buffer
		l.Warnings = &warnings
		writeRecipe(t, recipesDir, "bare.yaml",
			"name: x\nrecipe_version: 1\ncontainer: img\ncommand: run\n")

		r, err := l.Load("bare")
		require.NoError(t, err)
		assert.Equal(t, "1", r.Version)
		assert.Empty(t, warnings.String())
	})
}
