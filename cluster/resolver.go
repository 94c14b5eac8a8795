package cluster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sonusflow/spark-vllm-docker/prompt"
)

// Resolver determines the ordered node list for a run. Source
// priority: explicit CLI list, then the cached .env file, then
// interactive auto-discovery.
type Resolver struct {
	// EnvFile is the cached cluster configuration path
	EnvFile string

	Discovery *Discovery
	Prompter  prompt.Prompter

	// Out receives resolution progress messages
	Out io.Writer
}

// Resolve returns the node list and whether it came from the cache or
// discovery rather than the command line. A failed or declined
// mid-run discovery resolves to no nodes (the run proceeds solo)
// rather than failing the invocation.
func (r *Resolver) Resolve(ctx context.Context, explicit string, solo bool) (nodes []string, cached bool, err error) {
	if nodes = ParseNodes(explicit); len(nodes) > 0 {
		return nodes, false, nil
	}
	if solo {
		return nil, false, nil
	}

	env := LoadEnvCache(r.EnvFile)
	if env[EnvKeyNodes] != "" {
		nodes = ParseNodes(env[EnvKeyNodes])
		if len(nodes) > 0 {
			fmt.Fprintf(r.Out, "Using cluster nodes from .env: %s\n", strings.Join(nodes, ", "))
			fmt.Fprintln(r.Out)
		}
		return nodes, true, nil
	}

	fmt.Fprintln(r.Out, "No cluster nodes configured. Running autodiscover...")
	fmt.Fprintln(r.Out)

	discovered, derr := r.Discovery.Run(ctx)
	if derr != nil || discovered[EnvKeyNodes] == "" {
		// Messages were already printed by discovery; continue solo
		slog.Debug("discovery yielded no nodes", "err", derr)
		return nil, false, nil
	}

	nodes = ParseNodes(discovered[EnvKeyNodes])
	if len(nodes) == 0 {
		return nil, true, nil
	}

	fmt.Fprintln(r.Out)
	if r.Prompter.Confirm("Save this configuration to .env for future use? [Y/n]: ", true) {
		if err := SaveEnvCache(r.EnvFile, discovered); err != nil {
			return nil, true, err
		}
		fmt.Fprintf(r.Out, "Saved to %s\n", r.EnvFile)
	}
	fmt.Fprintln(r.Out)

	return nodes, true, nil
}
