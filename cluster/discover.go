package cluster

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/sonusflow/spark-vllm-docker/errors"
	"github.com/sonusflow/spark-vllm-docker/prompt"
	"github.com/sonusflow/spark-vllm-docker/runner"
)

// Discovery runs the external topology-detection tool and the
// interactive node selection that follows it.
type Discovery struct {
	// Script is the autodiscover tool path
	Script string

	Runner   runner.CommandRunner
	Prompter prompt.Prompter

	// Out receives the tool's progress output and selection dialog
	Out io.Writer
}

// Run executes the discovery tool, lets the user pick nodes when more
// than one was found, and returns the discovered configuration keyed
// by the .env cache keys. Progress and failure details are printed to
// Out; the returned error only signals the outcome.
func (d *Discovery) Run(ctx context.Context) (map[string]string, error) {
	if _, err := os.Stat(d.Script); err != nil {
		fmt.Fprintf(d.Out, "Error: Autodiscover script not found: %s\n", d.Script)
		return nil, apperrors.Reported(apperrors.Newf(apperrors.ErrNotFound,
			"autodiscover script not found: %s", d.Script))
	}

	fmt.Fprintln(d.Out, "Running autodiscover...")
	fmt.Fprintln(d.Out)

	// Source the tool in a subshell and echo the variables we need
	script := strings.Join([]string{
		fmt.Sprintf("source '%s'", d.Script),
		"detect_interfaces",
		"detect_local_ip",
		"detect_nodes",
		`echo "CLUSTER_NODES=$NODES_ARG"`,
		`echo "LOCAL_IP=$LOCAL_IP"`,
		`echo "ETH_IF=$ETH_IF"`,
		`echo "IB_IF=$IB_IF"`,
	}, "\n")

	stdout, stderr, err := d.Runner.Output(ctx, "bash", "-c", script)
	if err != nil {
		fmt.Fprintln(d.Out, "Autodiscover output:")
		fmt.Fprintln(d.Out, string(stdout))
		if len(stderr) > 0 {
			fmt.Fprintln(d.Out, string(stderr))
		}
		fmt.Fprintln(d.Out, "Error: Autodiscover failed")
		return nil, apperrors.Reported(apperrors.Wrap(err, apperrors.ErrDiscovery, "autodiscover failed"))
	}

	// Variable lines populate the result; everything else is the
	// tool talking to the user
	env := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(stdout)), "\n") {
		if key, value, found := cutDiscoveryVar(line); found {
			env[key] = value
		} else {
			fmt.Fprintln(d.Out, line)
		}
	}
	fmt.Fprintln(d.Out)

	if env[EnvKeyNodes] != "" {
		selected, err := d.selectNodes(ParseNodes(env[EnvKeyNodes]), env[EnvKeyLocalIP])
		if err != nil {
			return nil, err
		}
		if selected != nil {
			env[EnvKeyNodes] = strings.Join(selected, ",")
		}
	}

	return env, nil
}

// selectNodes asks per node whether to include it. Returns nil when
// there was nothing to choose (zero or one candidate).
func (d *Discovery) selectNodes(allNodes []string, localIP string) ([]string, error) {
	if len(allNodes) <= 1 {
		return nil, nil
	}

	fmt.Fprintln(d.Out, "Select which nodes to include in the cluster:")
	fmt.Fprintln(d.Out)

	var selected []string
	for _, node := range allNodes {
		label := node
		if node == localIP {
			label = node + " (this machine)"
		}
		if d.Prompter.ConfirmStrict(fmt.Sprintf("  Include %s? [Y/n]: ", label), true) {
			selected = append(selected, node)
		}
	}
	fmt.Fprintln(d.Out)

	switch len(selected) {
	case 0:
		fmt.Fprintln(d.Out, "No nodes selected. Aborting.")
		return nil, apperrors.Reported(apperrors.New(apperrors.ErrDeclined, "no nodes selected"))
	case 1:
		fmt.Fprintf(d.Out, "Only one node selected: %s\n", selected[0])
		fmt.Fprintln(d.Out, "This will run in solo mode (single node).")
	default:
		fmt.Fprintf(d.Out, "Selected %d nodes: %s\n", len(selected), strings.Join(selected, ", "))
	}
	fmt.Fprintln(d.Out)

	return selected, nil
}

func cutDiscoveryVar(line string) (key, value string, found bool) {
	for _, k := range []string{EnvKeyNodes, EnvKeyLocalIP, EnvKeyEthInterface, EnvKeyIBInterface} {
		if strings.HasPrefix(line, k+"=") {
			return k, strings.TrimPrefix(line, k+"="), true
		}
	}
	return "", "", false
}
