// Package recipe loads and validates the YAML deployment recipes
package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"

	apperrors "github.com/sonusflow/spark-vllm-docker/errors"
)

// SupportedVersions lists the recipe schema versions this tool
// understands. Declaring another version is a warning, not an error.
var SupportedVersions = []string{"1"}

// Recipe is a declarative model deployment configuration. It is
// loaded once per invocation and never written back.
type Recipe struct {
	// Name is the human-readable recipe name
	Name string `yaml:"name" json:"name"`

	// Version is the recipe schema version, checked against
	// SupportedVersions
	Version string `yaml:"recipe_version" json:"recipe_version"`

	// Container is the Docker image tag to deploy
	Container string `yaml:"container" json:"container"`

	// Command is the serve command template with {placeholders}
	Command string `yaml:"command" json:"command"`

	// Description is shown by the recipe listing
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Model is the HuggingFace model ID downloaded during setup
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Mods lists mod directories applied by the launcher
	Mods []string `yaml:"mods,omitempty" json:"mods,omitempty"`

	// Defaults holds default values for command placeholders; unknown
	// keys pass straight through to template substitution
	Defaults map[string]interface{} `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	// Env lists environment variables exported by the launch script,
	// in declaration order
	Env EnvVars `yaml:"env,omitempty" json:"env,omitempty"`

	// BuildArgs are extra arguments for the build tool
	BuildArgs []string `yaml:"build_args,omitempty" json:"build_args,omitempty"`

	// ClusterOnly marks recipes that cannot run on a single node
	ClusterOnly bool `yaml:"cluster_only,omitempty" json:"cluster_only,omitempty"`

	// Path is the file the recipe was resolved to
	Path string `yaml:"-" json:"-"`
}

// VersionSupported reports whether the declared schema version is one
// this tool fully understands.
func (r *Recipe) VersionSupported() bool {
	for _, v := range SupportedVersions {
		if r.Version == v {
			return true
		}
	}
	return false
}

func (r *Recipe) validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"name", r.Name},
		{"recipe_version", r.Version},
		{"container", r.Container},
		{"command", r.Command},
	}
	for _, f := range fields {
		if f.value == "" {
			return apperrors.Newf(apperrors.ErrConfig, "recipe missing required field: %s", f.name)
		}
	}
	return nil
}

// EnvVar is a single environment variable exported before the serve
// command runs
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EnvVars preserves the declaration order of the recipe's env mapping.
// A plain map would lose it, and the generated script must export
// variables in the order the recipe author wrote them.
type EnvVars []EnvVar

// UnmarshalYAML implements yaml.Unmarshaler
func (e *EnvVars) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("env must be a mapping, got %s", nodeKind(value.Kind))
	}

	vars := make(EnvVars, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]

		var val string
		if err := valNode.Decode(&val); err != nil {
			return fmt.Errorf("env %s: %w", keyNode.Value, err)
		}
		vars = append(vars, EnvVar{Name: keyNode.Value, Value: val})
	}

	*e = vars
	return nil
}

func nodeKind(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
