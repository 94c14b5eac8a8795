// Package main implements the run-recipe CLI tool
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sonusflow/spark-vllm-docker/cluster"
	"github.com/sonusflow/spark-vllm-docker/config"
	"github.com/sonusflow/spark-vllm-docker/container"
	"github.com/sonusflow/spark-vllm-docker/deploy"
	apperrors "github.com/sonusflow/spark-vllm-docker/errors"
	"github.com/sonusflow/spark-vllm-docker/launch"
	"github.com/sonusflow/spark-vllm-docker/prompt"
	"github.com/sonusflow/spark-vllm-docker/recipe"
	"github.com/sonusflow/spark-vllm-docker/runner"
)

var (
	rootCmd = &cobra.Command{
		Use:   "run-recipe [recipe] [flags] [-- vllm-args...]",
		Short: "Run a vLLM model using a YAML recipe",
		Long: `run-recipe deploys vLLM models described by YAML recipes: it resolves
cluster nodes, builds the container image and downloads the model when
asked to, renders the recipe command into a launch script and hands it
to launch-cluster.sh.`,
		Example: `  # Basic usage
  run-recipe glm-4.7-nvfp4
  run-recipe glm-4.7-nvfp4 --port 9000 --solo

  # Full setup (build container + download model + run)
  run-recipe glm-4.7-nvfp4 --setup

  # Cluster deployment (manual)
  run-recipe glm-4.7-nvfp4 -n 192.168.1.1,192.168.1.2 --setup

  # Cluster deployment (auto-discover)
  run-recipe --discover              # Detect nodes and save to .env
  run-recipe glm-4.7-nvfp4 --setup   # Uses nodes from .env

  # Just build/download without running
  run-recipe glm-4.7-nvfp4 --build-only
  run-recipe glm-4.7-nvfp4 --download-only

  # Pass extra arguments to vLLM (after --)
  run-recipe glm-4.7-nvfp4 --solo -- --load-format safetensors
  run-recipe glm-4.7-nvfp4 --solo -- --served-model-name my-api

  # List available recipes
  run-recipe --list

  # Show current .env configuration
  run-recipe --show-env`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flagList bool

	// Setup options
	flagSetup         bool
	flagBuildOnly     bool
	flagDownloadOnly  bool
	flagForceBuild    bool
	flagForceDownload bool
	flagDryRun        bool

	// Recipe overrides
	flagPort           int
	flagHost           string
	flagTensorParallel int
	flagTP             int
	flagGPUMemUtil     float64
	flagGPUMem         float64
	flagMaxModelLen    int

	// Launch options (passed to launch-cluster.sh)
	flagSolo      bool
	flagNodes     string
	flagDaemon    bool
	flagContainer string
	flagNCCLDebug string

	// Cluster discovery
	flagDiscover bool
	flagShowEnv  bool

	flagSchema   bool
	flagLogLevel string
)

func init() {
	flags := rootCmd.Flags()

	flags.BoolVarP(&flagList, "list", "l", false, "List available recipes")

	flags.BoolVar(&flagSetup, "setup", false, "Full setup: build container (if missing) + download model (if missing) + run")
	flags.BoolVar(&flagBuildOnly, "build-only", false, "Only build/copy the container image, don't run")
	flags.BoolVar(&flagDownloadOnly, "download-only", false, "Only download/copy the model, don't run")
	flags.BoolVar(&flagForceBuild, "force-build", false, "Force rebuild even if image exists")
	flags.BoolVar(&flagForceDownload, "force-download", false, "Force re-download even if model exists")
	flags.BoolVar(&flagDryRun, "dry-run", false, "Show what would be executed without running")

	flags.IntVar(&flagPort, "port", 0, "Override port")
	flags.StringVar(&flagHost, "host", "", "Override host")
	flags.IntVar(&flagTensorParallel, "tensor-parallel", 0, "Override tensor parallelism")
	flags.IntVar(&flagTP, "tp", 0, "Alias for --tensor-parallel")
	flags.Float64Var(&flagGPUMemUtil, "gpu-memory-utilization", 0, "Override GPU memory utilization")
	flags.Float64Var(&flagGPUMem, "gpu-mem", 0, "Alias for --gpu-memory-utilization")
	flags.IntVar(&flagMaxModelLen, "max-model-len", 0, "Override max model length")

	flags.BoolVar(&flagSolo, "solo", false, "Run in solo mode (single node, no Ray)")
	flags.StringVarP(&flagNodes, "nodes", "n", "", "Comma-separated list of node IPs (first is head node)")
	flags.BoolVarP(&flagDaemon, "daemon", "d", false, "Run in daemon mode")
	flags.StringVarP(&flagContainer, "container", "t", "", "Override container image from recipe")
	flags.StringVar(&flagNCCLDebug, "nccl-debug", "", "NCCL debug level (VERSION, WARN, INFO or TRACE)")

	flags.BoolVar(&flagDiscover, "discover", false, "Auto-detect cluster nodes and save to .env file")
	flags.BoolVar(&flagShowEnv, "show-env", false, "Show current .env configuration")

	flags.BoolVar(&flagSchema, "schema", false, "Print the recipe JSON schema")
	flags.StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	// The launcher's exit status passes through verbatim
	var launchErr *deploy.LaunchExitError
	if errors.As(err, &launchErr) {
		os.Exit(launchErr.Code)
	}

	if !apperrors.IsReported(err) {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func run(cmd *cobra.Command, args []string) error {
	var extraArgs []string
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		extraArgs = args[dash:]
		args = args[:dash]
	}
	if len(args) > 1 {
		return fmt.Errorf("expected at most one recipe argument, got: %s", strings.Join(args, " "))
	}
	var recipeArg string
	if len(args) == 1 {
		recipeArg = args[0]
	}

	if err := setupLogging(flagLogLevel); err != nil {
		return err
	}
	if err := validateNCCLDebug(flagNCCLDebug); err != nil {
		return err
	}

	cfg := config.New(config.DefaultScriptDir())
	out := os.Stdout
	ctx := cmd.Context()

	// A single prompter instance so stdin is buffered exactly once
	nativeRunner := &runner.NativeRunner{}
	prompter := prompt.NewTerminal(os.Stdin, out)
	discovery := &cluster.Discovery{
		Script:   cfg.AutodiscoverScript,
		Runner:   nativeRunner,
		Prompter: prompter,
		Out:      out,
	}

	if flagDiscover {
		if err := discoverAndSave(ctx, cfg, discovery, out); err != nil {
			return err
		}
		if recipeArg == "" {
			return nil
		}
	}

	if flagShowEnv {
		showEnv(cfg, out)
		if recipeArg == "" {
			return nil
		}
		fmt.Fprintln(out)
	}

	if flagSchema {
		schema, err := recipe.Schema()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(schema))
		return nil
	}

	loader := recipe.NewLoader(cfg.RecipesDir)

	if flagList {
		loader.List(out)
		return nil
	}

	if recipeArg == "" {
		_ = cmd.Help()
		return apperrors.Reported(apperrors.New(apperrors.ErrConfig, "no recipe specified"))
	}

	r, err := loader.Load(recipeArg)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Recipe: %s\n", r.Name)
	if r.Description != "" {
		fmt.Fprintf(out, "  %s\n", r.Description)
	}
	fmt.Fprintln(out)

	containerImage := r.Container
	if flagContainer != "" {
		containerImage = flagContainer
	}

	resolver := &cluster.Resolver{
		EnvFile:   cfg.EnvFile,
		Discovery: discovery,
		Prompter:  prompter,
		Out:       out,
	}
	nodes, nodesFromCache, err := resolver.Resolve(ctx, flagNodes, flagSolo)
	if err != nil {
		return err
	}

	ctrl := &deploy.Controller{
		Cfg:      cfg,
		Runner:   nativeRunner,
		Images:   container.NewDockerChecker(nativeRunner),
		Prompter: prompter,
		Out:      out,
	}
	return ctrl.Run(ctx, deploy.Request{
		Recipe:         r,
		RecipeArg:      recipeArg,
		Prog:           os.Args[0],
		Container:      containerImage,
		Nodes:          nodes,
		NodesFromCache: nodesFromCache,
		Solo:           flagSolo,
		Daemon:         flagDaemon,
		NCCLDebug:      flagNCCLDebug,
		Overrides:      buildOverrides(cmd),
		ExtraArgs:      extraArgs,
		DryRun:         flagDryRun,
		Setup:          flagSetup,
		BuildOnly:      flagBuildOnly,
		DownloadOnly:   flagDownloadOnly,
		ForceBuild:     flagForceBuild,
		ForceDownload:  flagForceDownload,
	})
}

// buildOverrides collects only the template parameters the user
// explicitly set, so recipe defaults stay in charge otherwise.
func buildOverrides(cmd *cobra.Command) launch.Overrides {
	flags := cmd.Flags()

	var o launch.Overrides
	if flags.Changed("port") {
		o.Port = &flagPort
	}
	if flags.Changed("host") {
		o.Host = &flagHost
	}
	switch {
	case flags.Changed("tp"):
		o.TensorParallel = &flagTP
	case flags.Changed("tensor-parallel"):
		o.TensorParallel = &flagTensorParallel
	}
	switch {
	case flags.Changed("gpu-mem"):
		o.GPUMemoryUtilization = &flagGPUMem
	case flags.Changed("gpu-memory-utilization"):
		o.GPUMemoryUtilization = &flagGPUMemUtil
	}
	if flags.Changed("max-model-len") {
		o.MaxModelLen = &flagMaxModelLen
	}
	return o
}

func discoverAndSave(ctx context.Context, cfg *config.Config, discovery *cluster.Discovery, out io.Writer) error {
	env, err := discovery.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Discovered configuration:")
	for _, key := range sortedKeys(env) {
		fmt.Fprintf(out, "  %s=%s\n", key, env[key])
	}
	fmt.Fprintln(out)

	if err := cluster.SaveEnvCache(cfg.EnvFile, env); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved to %s\n", cfg.EnvFile)
	return nil
}

func showEnv(cfg *config.Config, out io.Writer) {
	env := cluster.LoadEnvCache(cfg.EnvFile)
	if len(env) == 0 {
		fmt.Fprintf(out, "No .env file found at %s\n", cfg.EnvFile)
		fmt.Fprintln(out, "Run with --discover to auto-detect cluster nodes.")
		return
	}

	fmt.Fprintf(out, "Current .env configuration (%s):\n", cfg.EnvFile)
	for _, key := range sortedKeys(env) {
		fmt.Fprintf(out, "  %s=%s\n", key, env[key])
	}
}

func sortedKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func validateNCCLDebug(level string) error {
	switch level {
	case "", "VERSION", "WARN", "INFO", "TRACE":
		return nil
	}
	return fmt.Errorf("invalid --nccl-debug value %q (choose from VERSION, WARN, INFO, TRACE)", level)
}
