// Package deploy sequences the build, download and run phases of a
// recipe deployment
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/sonusflow/spark-vllm-docker/cluster"
	"github.com/sonusflow/spark-vllm-docker/config"
	"github.com/sonusflow/spark-vllm-docker/container"
	apperrors "github.com/sonusflow/spark-vllm-docker/errors"
	"github.com/sonusflow/spark-vllm-docker/launch"
	"github.com/sonusflow/spark-vllm-docker/prompt"
	"github.com/sonusflow/spark-vllm-docker/recipe"
	"github.com/sonusflow/spark-vllm-docker/runner"
)

// Controller drives a deployment end to end: the optional build and
// download phases, then the launcher handoff. All collaborators are
// interfaces so tests can script them.
type Controller struct {
	Cfg      *config.Config
	Runner   runner.CommandRunner
	Images   container.ImageChecker
	Prompter prompt.Prompter
	Out      io.Writer
}

// Request is one resolved deployment: the loaded recipe plus
// everything the CLI decided on the way in.
type Request struct {
	Recipe *recipe.Recipe

	// RecipeArg and Prog reproduce the user's invocation in usage hints.
	RecipeArg string
	Prog      string

	// Container is the effective image tag after any -t override.
	Container string

	Nodes          []string
	NodesFromCache bool
	Solo           bool
	Daemon         bool
	NCCLDebug      string

	Overrides launch.Overrides
	ExtraArgs []string

	DryRun        bool
	Setup         bool
	BuildOnly     bool
	DownloadOnly  bool
	ForceBuild    bool
	ForceDownload bool
}

// LaunchExitError carries the launcher's exit status through to the
// process exit code.
type LaunchExitError struct {
	Code int
	Err  error
}

func (e *LaunchExitError) Error() string {
	return fmt.Sprintf("launcher exited with status %d", e.Code)
}

func (e *LaunchExitError) Unwrap() error {
	return e.Err
}

// Run executes the deployment. Errors whose message was already shown
// to the user come back marked reported.
func (c *Controller) Run(ctx context.Context, req Request) error {
	workers := cluster.WorkerNodes(req.Nodes)
	isCluster := cluster.IsCluster(req.Nodes)
	solo := req.Solo || !isCluster

	if req.Recipe.ClusterOnly && solo {
		c.errorf("Error: Recipe '%s' requires cluster mode.\n", req.Recipe.Name)
		c.printf("This model is too large to run on a single node.\n")
		c.printf("\n")
		c.printf("Options:\n")
		c.printf("  1. Specify nodes directly:  %s %s -n node1,node2\n", req.Prog, req.RecipeArg)
		c.printf("  2. Auto-discover and save:  %s --discover\n", req.Prog)
		c.printf("     Then run:                %s %s\n", req.Prog, req.RecipeArg)
		return apperrors.Reported(apperrors.Newf(apperrors.ErrConfig,
			"recipe '%s' requires cluster mode", req.Recipe.Name))
	}

	var copyTargets []string
	if isCluster {
		copyTargets = workers
	}

	if req.DryRun {
		c.printDryRunHeader(req, workers, solo)
	}

	if req.BuildOnly || req.Setup || req.ForceBuild {
		if err := c.buildPhase(ctx, req, copyTargets); err != nil {
			return err
		}
		if req.BuildOnly {
			if req.DryRun {
				c.printf("\n")
			} else {
				c.printf("Build complete.\n")
			}
			return nil
		}
	}

	if req.Recipe.Model != "" && (req.DownloadOnly || req.Setup || req.ForceDownload) {
		if err := c.downloadPhase(ctx, req, copyTargets); err != nil {
			return err
		}
		if req.DownloadOnly {
			if req.DryRun {
				c.printf("\n")
			} else {
				c.printf("Download complete.\n")
			}
			return nil
		}
	}

	if req.BuildOnly || req.DownloadOnly {
		return nil
	}

	return c.runPhase(ctx, req, copyTargets, solo, isCluster)
}

func (c *Controller) printDryRunHeader(req Request, workers []string, solo bool) {
	c.banner("=== Dry Run ===")
	c.printf("Container: %s\n", req.Container)
	if len(req.Recipe.BuildArgs) > 0 {
		c.printf("Build args: %s\n", strings.Join(req.Recipe.BuildArgs, " "))
	}
	if req.Recipe.Model != "" {
		c.printf("Model: %s\n", req.Recipe.Model)
	}
	if req.Recipe.ClusterOnly {
		c.printf("Cluster only: Yes (model too large for single node)\n")
	}
	if len(req.Nodes) > 0 {
		if req.NodesFromCache {
			c.printf("Nodes: %s (from .env)\n", strings.Join(req.Nodes, ", "))
		} else {
			c.printf("Nodes: %s\n", strings.Join(req.Nodes, ", "))
		}
		c.printf("  Head: %s\n", req.Nodes[0])
		if len(workers) > 0 {
			c.printf("  Workers: %s\n", strings.Join(workers, ", "))
		}
	}
	c.printf("Solo mode: %v\n", solo)
	c.printf("\n")
}

func (c *Controller) buildPhase(ctx context.Context, req Request, copyTargets []string) error {
	exists := c.Images.Exists(ctx, req.Container)

	if req.DryRun {
		if req.ForceBuild || !exists {
			c.printf("Would build container: %s\n", req.Container)
			if len(copyTargets) > 0 {
				c.printf("  Would copy to: %s\n", strings.Join(copyTargets, ", "))
			}
		} else {
			c.printf("Container '%s' already exists locally.\n", req.Container)
			if len(copyTargets) > 0 {
				c.printf("  Would check/copy to workers: %s\n", strings.Join(copyTargets, ", "))
			}
		}
		c.printf("\n")
		return nil
	}

	if req.ForceBuild || !exists {
		c.banner("=== Building Container ===")
		if err := c.buildImage(ctx, req.Container, copyTargets, req.Recipe.BuildArgs); err != nil {
			c.errorf("Error: Failed to build container\n")
			return apperrors.Reported(err)
		}
		c.printf("\n")
		return nil
	}

	c.printf("Container '%s' already exists locally.\n", req.Container)
	if len(copyTargets) > 0 {
		var missingOn []string
		for _, worker := range copyTargets {
			if !c.Images.ExistsOnHost(ctx, req.Container, worker) {
				missingOn = append(missingOn, worker)
			}
		}
		if len(missingOn) > 0 {
			c.printf("Container missing on workers: %s\n", strings.Join(missingOn, ", "))
			c.printf("Building and copying...\n")
			if err := c.buildImage(ctx, req.Container, missingOn, req.Recipe.BuildArgs); err != nil {
				c.errorf("Error: Failed to build/copy container\n")
				return apperrors.Reported(err)
			}
		}
	}
	c.printf("\n")
	return nil
}

func (c *Controller) downloadPhase(ctx context.Context, req Request, copyTargets []string) error {
	model := req.Recipe.Model
	exists := c.modelExists(model)

	if req.DryRun {
		if req.ForceDownload || !exists {
			c.printf("Would download model: %s\n", model)
			if len(copyTargets) > 0 {
				c.printf("  Would copy to: %s\n", strings.Join(copyTargets, ", "))
			}
		} else {
			c.printf("Model '%s' already exists in cache.\n", model)
		}
		c.printf("\n")
		return nil
	}

	if req.ForceDownload || !exists {
		c.banner("=== Downloading Model ===")
		if err := c.downloadModel(ctx, model, copyTargets); err != nil {
			c.errorf("Error: Failed to download model\n")
			return apperrors.Reported(err)
		}
		c.printf("\n")
		return nil
	}

	c.printf("Model '%s' already exists in cache.\n", model)
	c.printf("\n")
	return nil
}

func (c *Controller) runPhase(ctx context.Context, req Request, copyTargets []string, solo, isCluster bool) error {
	if !req.DryRun && !req.Setup && !c.Images.Exists(ctx, req.Container) {
		c.printf("Container image '%s' not found locally.\n", req.Container)
		c.printf("\n")
		c.printf("Options:\n")
		c.printf("  1. Use --setup to build and run\n")
		c.printf("  2. Build manually: ./build-and-copy.sh -t %s\n", req.Container)
		c.printf("\n")
		if !c.Prompter.Confirm("Build now? [y/N] ", false) {
			c.printf("Aborting.\n")
			return apperrors.Reported(apperrors.New(apperrors.ErrDeclined, "build declined"))
		}
		if err := c.buildImage(ctx, req.Container, copyTargets, req.Recipe.BuildArgs); err != nil {
			c.errorf("Error: Failed to build image\n")
			return apperrors.Reported(err)
		}
	}

	for _, dup := range launch.DuplicateFlags(req.ExtraArgs, req.Overrides.Params(solo)) {
		c.warnf("Warning: '%s' in extra args duplicates %s override\n", dup.Arg, dup.Override)
		c.printf("         vLLM uses last value; extra args appear after template substitution\n")
	}

	script, err := launch.Generate(req.Recipe, req.Overrides, solo, req.ExtraArgs)
	if err != nil {
		return err
	}

	launchReq := launch.Request{
		Container: req.Container,
		Mods:      req.Recipe.Mods,
		Solo:      solo,
		Daemon:    req.Daemon,
		Nodes:     req.Nodes,
		NCCLDebug: req.NCCLDebug,
	}

	if req.DryRun {
		c.banner("=== Generated Launch Script ===")
		c.printf("%s\n", script)
		c.banner("=== What would be executed ===")
		c.printf("\n")
		c.printf("1. The above script is saved to a temporary file\n")
		c.printf("\n")
		c.printf("2. launch-cluster.sh is called with:\n")
		c.printf("%s\n", launch.PreviewCommand(launchReq))
		c.printf("\n")
		c.printf("3. The launch script runs inside the container\n")
		return nil
	}

	scriptPath, cleanup, err := launch.WriteTempScript(script)
	if err != nil {
		return err
	}
	defer cleanup()

	args, missingMods := launch.LauncherArgs(c.Cfg.ScriptDir, launchReq, scriptPath)
	for _, mod := range missingMods {
		c.warnf("Warning: Mod path not found: %s\n", mod)
	}

	c.banner("=== Launching ===")
	c.printf("Container: %s\n", req.Container)
	if len(req.Recipe.Mods) > 0 {
		c.printf("Mods: %s\n", strings.Join(req.Recipe.Mods, ", "))
	}
	if isCluster {
		c.printf("Cluster: %d nodes\n", len(req.Nodes))
	} else {
		c.printf("Mode: Solo\n")
	}
	c.printf("\n")

	if err := c.Runner.Run(ctx, c.Cfg.LaunchScript, args...); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			c.errorf("Error: %v\n", err)
		}
		return apperrors.Reported(&LaunchExitError{Code: runner.ExitCode(err), Err: err})
	}
	return nil
}

// buildImage invokes the build tool. The caller owns the phase-level
// failure message; this prints only the tool-missing diagnostic.
func (c *Controller) buildImage(ctx context.Context, image string, copyTo, buildArgs []string) error {
	if _, err := os.Stat(c.Cfg.BuildScript); err != nil {
		c.errorf("Error: Build script not found: %s\n", c.Cfg.BuildScript)
		return apperrors.Newf(apperrors.ErrNotFound, "build script not found: %s", c.Cfg.BuildScript)
	}

	args := []string{"-t", image}
	args = append(args, buildArgs...)
	if len(copyTo) > 0 {
		args = append(args, "--copy-to", strings.Join(copyTo, ","))
	}

	c.printf("Building image '%s'...\n", image)
	if len(buildArgs) > 0 {
		c.printf("Build args: %s\n", strings.Join(buildArgs, " "))
	}
	if len(copyTo) > 0 {
		c.printf("Will copy to: %s\n", strings.Join(copyTo, ", "))
	}

	if err := c.Runner.Run(ctx, c.Cfg.BuildScript, args...); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTool, "build failed")
	}
	return nil
}

func (c *Controller) downloadModel(ctx context.Context, model string, copyTo []string) error {
	if _, err := os.Stat(c.Cfg.DownloadScript); err != nil {
		c.errorf("Error: Download script not found: %s\n", c.Cfg.DownloadScript)
		return apperrors.Newf(apperrors.ErrNotFound, "download script not found: %s", c.Cfg.DownloadScript)
	}

	args := []string{model}
	if len(copyTo) > 0 {
		args = append(args, "--copy-to", strings.Join(copyTo, ","))
	}

	c.printf("Downloading model '%s'...\n", model)
	if len(copyTo) > 0 {
		c.printf("Will copy to: %s\n", strings.Join(copyTo, ", "))
	}

	if err := c.Runner.Run(ctx, c.Cfg.DownloadScript, args...); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTool, "download failed")
	}
	return nil
}

// modelExists reports whether the model has a populated snapshot in
// the local HuggingFace cache.
func (c *Controller) modelExists(model string) bool {
	if c.Cfg.ModelCacheDir == "" {
		return false
	}
	cacheName := "models--" + strings.ReplaceAll(model, "/", "--")
	snapshots := filepath.Join(c.Cfg.ModelCacheDir, cacheName, "snapshots")
	entries, err := os.ReadDir(snapshots)
	return err == nil && len(entries) > 0
}

func (c *Controller) printf(format string, a ...interface{}) {
	fmt.Fprintf(c.Out, format, a...)
}

func (c *Controller) banner(text string) {
	color.New(color.Bold).Fprintln(c.Out, text)
}

func (c *Controller) warnf(format string, a ...interface{}) {
	color.New(color.FgYellow).Fprintf(c.Out, format, a...)
}

func (c *Controller) errorf(format string, a ...interface{}) {
	color.New(color.FgRed).Fprintf(c.Out, format, a...)
}
