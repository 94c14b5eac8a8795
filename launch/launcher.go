package launch

import (
	"os"
	"path/filepath"
	"strings"
)

// Request describes one invocation of the cluster launcher.
type Request struct {
	Container string
	Mods      []string
	Solo      bool
	Daemon    bool
	Nodes     []string
	NCCLDebug string
}

// LauncherArgs assembles the launcher's argument list. Mod paths
// resolve relative to scriptDir and are passed through even when
// missing; the returned missing list lets the caller warn. The
// launcher itself decides what a missing mod means.
func LauncherArgs(scriptDir string, req Request, scriptPath string) (args []string, missingMods []string) {
	args = []string{"-t", req.Container}
	for _, mod := range req.Mods {
		modPath := filepath.Join(scriptDir, mod)
		if _, err := os.Stat(modPath); err != nil {
			missingMods = append(missingMods, modPath)
		}
		args = append(args, "--apply-mod", modPath)
	}
	if req.Solo {
		args = append(args, "--solo")
	}
	if req.Daemon {
		args = append(args, "-d")
	}
	if len(req.Nodes) > 0 {
		args = append(args, "-n", strings.Join(req.Nodes, ","))
	}
	if req.NCCLDebug != "" {
		args = append(args, "--nccl-debug", req.NCCLDebug)
	}
	args = append(args, "--launch-script", scriptPath)
	return args, missingMods
}

// PreviewCommand renders the launcher invocation for dry runs. Mods
// stay relative and the script path is a placeholder, since nothing
// was written.
func PreviewCommand(req Request) string {
	parts := []string{"   ./launch-cluster.sh", "-t", req.Container}
	for _, mod := range req.Mods {
		parts = append(parts, "--apply-mod", mod)
	}
	if req.Solo {
		parts = append(parts, "--solo")
	}
	if req.Daemon {
		parts = append(parts, "-d")
	}
	if len(req.Nodes) > 0 {
		parts = append(parts, "-n", strings.Join(req.Nodes, ","))
	}
	if req.NCCLDebug != "" {
		parts = append(parts, "--nccl-debug", req.NCCLDebug)
	}
	parts = append(parts, "\\", "\n      --launch-script", "/tmp/tmpXXXXXX.sh")
	return strings.Join(parts, " ")
}
