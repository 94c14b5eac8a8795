package cluster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sonusflow/spark-vllm-docker/errors"
)

// mockRunner implements runner.CommandRunner for testing
type mockRunner struct {
	// Responses maps "name arg1 arg2" (or just "name") to a canned result
	Responses map[string]mockResponse
	Calls     []mockCall
}

type mockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

type mockCall struct {
	Name string
	Args []string
}

func (m *mockRunner) lookup(name string, args ...string) mockResponse {
	m.Calls = append(m.Calls, mockCall{Name: name, Args: args})

	key := name
	for _, arg := range args {
		key += " " + arg
	}
	if resp, ok := m.Responses[key]; ok {
		return resp
	}
	// Fall back to the bare command name
	return m.Responses[name]
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) error {
	return m.lookup(name, args...).Err
}

func (m *mockRunner) Output(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	resp := m.lookup(name, args...)
	return resp.Stdout, resp.Stderr, resp.Err
}

// fakePrompter answers questions from a script and records them
type fakePrompter struct {
	Answers   []bool
	Questions []string
}

func (p *fakePrompter) pop(question string, defaultYes bool) bool {
	p.Questions = append(p.Questions, question)
	if len(p.Answers) == 0 {
		return defaultYes
	}
	answer := p.Answers[0]
	p.Answers = p.Answers[1:]
	return answer
}

func (p *fakePrompter) Confirm(q string, defaultYes bool) bool {
	return p.pop(q, defaultYes)
}

func (p *fakePrompter) ConfirmStrict(q string, defaultYes bool) bool {
	return p.pop(q, defaultYes)
}

func writeScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "autodiscover.sh")
	require.NoError(t, os.WriteFile(path, []byte("# stub\n"), 0755))
	return path
}

const discoveryOutput = `Detecting network interfaces...
Found 2 candidate nodes
CLUSTER_NODES=10.0.0.1,10.0.0.2
LOCAL_IP=10.0.0.1
ETH_IF=eth0
IB_IF=ibp12s0
`

func newTestDiscovery(t *testing.T, stdout string, runErr error) (*Discovery, *mockRunner, *fakePrompter, *bytes.Buffer) {
	t.Helper()
	r := &mockRunner{Responses: map[string]mockResponse{
		"bash": {Stdout: []byte(stdout), Err: runErr},
	}}
	p := &fakePrompter{}
	out := &bytes.Buffer{}
	d := &Discovery{
		Script:   writeScript(t, t.TempDir()),
		Runner:   r,
		Prompter: p,
		Out:      out,
	}
	return d, r, p, out
}

func TestDiscoveryParsesVariables(t *testing.T) {
	d, r, p, out := newTestDiscovery(t, discoveryOutput, nil)
	p.Answers = []bool{true, true}

	env, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1,10.0.0.2", env[EnvKeyNodes])
	assert.Equal(t, "10.0.0.1", env[EnvKeyLocalIP])
	assert.Equal(t, "eth0", env[EnvKeyEthInterface])
	assert.Equal(t, "ibp12s0", env[EnvKeyIBInterface])

	// Non-variable lines are echoed to the user
	assert.Contains(t, out.String(), "Detecting network interfaces...")
	assert.Contains(t, out.String(), "Found 2 candidate nodes")
	assert.NotContains(t, out.String(), "CLUSTER_NODES=")

	// The tool is sourced in a subshell
	require.Len(t, r.Calls, 1)
	assert.Equal(t, "bash", r.Calls[0].Name)
	require.Len(t, r.Calls[0].Args, 2)
	assert.Equal(t, "-c", r.Calls[0].Args[0])
	assert.Contains(t, r.Calls[0].Args[1], "source '"+d.Script+"'")
	assert.Contains(t, r.Calls[0].Args[1], "detect_nodes")
}

func TestDiscoveryLabelsLocalMachine(t *testing.T) {
	d, _, p, _ := newTestDiscovery(t, discoveryOutput, nil)
	p.Answers = []bool{true, true}

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, p.Questions, 2)
	assert.Equal(t, "  Include 10.0.0.1 (this machine)? [Y/n]: ", p.Questions[0])
	assert.Equal(t, "  Include 10.0.0.2? [Y/n]: ", p.Questions[1])
}

func TestDiscoverySelectionNarrowsNodes(t *testing.T) {
	d, _, p, out := newTestDiscovery(t, discoveryOutput, nil)
	p.Answers = []bool{true, false}

	env, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", env[EnvKeyNodes])
	assert.Contains(t, out.String(), "Only one node selected: 10.0.0.1")
	assert.Contains(t, out.String(), "solo mode")
}

func TestDiscoveryNoneSelected(t *testing.T) {
	d, _, p, out := newTestDiscovery(t, discoveryOutput, nil)
	p.Answers = []bool{false, false}

	_, err := d.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsDeclined(err))
	assert.Contains(t, out.String(), "No nodes selected. Aborting.")
}

func TestDiscoverySingleNodeSkipsSelection(t *testing.T) {
	stdout := "CLUSTER_NODES=10.0.0.1\nLOCAL_IP=10.0.0.1\nETH_IF=eth0\nIB_IF=\n"
	d, _, p, _ := newTestDiscovery(t, stdout, nil)

	env, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, p.Questions)
	assert.Equal(t, "10.0.0.1", env[EnvKeyNodes])
}

func TestDiscoveryToolFailure(t *testing.T) {
	d, _, _, out := newTestDiscovery(t, "partial output\n", fmt.Errorf("exit status 1"))

	_, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrDiscovery, apperrors.GetCode(err))
	assert.Contains(t, out.String(), "Autodiscover output:")
	assert.Contains(t, out.String(), "partial output")
	assert.Contains(t, out.String(), "Error: Autodiscover failed")
}

func TestDiscoveryScriptMissing(t *testing.T) {
	d, r, _, out := newTestDiscovery(t, "", nil)
	d.Script = filepath.Join(t.TempDir(), "nope.sh")

	_, err := d.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, r.Calls)
	assert.True(t, strings.HasPrefix(out.String(), "Error: Autodiscover script not found:"))
}
