// Command parley is an interactive terminal chat for local inference
// engines. It streams model output token by token and keeps the
// conversation going across context-window resets.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"

	"github.com/parleyhq/parley/pkg/config"
	"github.com/parleyhq/parley/pkg/engine"
	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/metrics"
	"github.com/parleyhq/parley/pkg/repl"
	"github.com/parleyhq/parley/pkg/transcript"
)

var version = "0.1.0"

var (
	// Global flags
	configFile string
	debugMode  bool

	// Engine flags
	engineType string
	binary     string
	endpoint   string
	ctxSize    int
	gpuLayers  int
	enableLog  bool

	// Chat flags
	templateFile string
	keepLogs     bool
	metricsAddr  string
)

func main() {
	// Load .env file if it exists
	gotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "parley <model>",
		Short: "Interactive terminal chat for local inference engines",
		Long: `Parley drives a local inference engine from your terminal: ask a
question, watch the answer stream in token by token, ask the next one.
When the conversation outgrows the engine's context window, parley
resets the conversation and carries on instead of dying.

The model argument names a model file for process engines, or a model
identifier for daemon and server engines.

Examples:
  # Chat with a local gguf model through llama-cli
  parley ./models/llama-2-7b-chat.Q5_K_M.gguf

  # Chat against a llama.cpp HTTP server
  parley --engine server --endpoint http://localhost:8080 llama-2-7b-chat

  # Larger window, everything on the GPU, against a token daemon
  parley --engine daemon --ctx-size 2048 --gpu-layers 99 llama2`,
		Args:    cobra.ExactArgs(1),
		Version: version,
		RunE:    runChat,
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: .parley.json, then ~/.parley.json)")
	rootCmd.Flags().BoolVarP(&debugMode, "debug", "d", false, "Enable debug logging and keep session logs")

	rootCmd.Flags().StringVar(&engineType, "engine", "", "Engine type: process, daemon or server")
	rootCmd.Flags().StringVar(&binary, "binary", "", "Engine binary for process engines")
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "", "Engine endpoint for daemon and server engines")
	rootCmd.Flags().IntVar(&ctxSize, "ctx-size", 0, "Context window size in tokens")
	rootCmd.Flags().IntVar(&gpuLayers, "gpu-layers", 0, "Number of model layers to offload to the GPU")
	rootCmd.Flags().BoolVar(&enableLog, "enable-log", false, "Let the engine write its native log to stderr")

	rootCmd.Flags().StringVar(&templateFile, "template", "", "Path to a YAML prompt template file")
	rootCmd.Flags().BoolVar(&keepLogs, "keep-logs", false, "Keep session logs in /tmp after exit")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for Prometheus metrics (disabled when empty)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	model := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(cfg.Logging.Debug)
	defer logging.Sync()

	metrics.Serve(cfg.Metrics.Addr)

	// Stale session logs from earlier runs are not worth failing over.
	_ = repl.CleanupOldSessions()

	tpl := transcript.DefaultTemplate()
	if cfg.REPL.TemplateFile != "" {
		tpl, err = transcript.LoadTemplateFile(cfg.REPL.TemplateFile)
		if err != nil {
			return fmt.Errorf("failed to load template: %w", err)
		}
	}

	graph, err := engine.Load(cfg, model)
	if err != nil {
		return fmt.Errorf("failed to load engine: %w", err)
	}
	defer graph.Close()

	session, err := repl.NewSession(repl.NewSessionID(), cfg, model, cfg.Logging.Debug)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	r, err := repl.NewREPL(session, graph, tpl)
	if err != nil {
		return fmt.Errorf("failed to start chat: %w", err)
	}
	return r.Run()
}

// loadConfig resolves the config file: an explicit --config path, else the
// default search order (cwd, then home, then built-ins).
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// applyFlags lays explicitly-set flags over the loaded config. Flags win
// over both the config file and the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("engine") {
		// Switching engine type invalidates an endpoint chosen for the
		// old one.
		if engineType != cfg.Engine.Type && !cmd.Flags().Changed("endpoint") {
			cfg.Engine.Endpoint = ""
		}
		cfg.Engine.Type = engineType
	}
	if cmd.Flags().Changed("binary") {
		cfg.Engine.Binary = binary
	}
	if cmd.Flags().Changed("endpoint") {
		cfg.Engine.Endpoint = endpoint
	}
	if cmd.Flags().Changed("ctx-size") {
		cfg.Engine.ContextSize = ctxSize
	}
	if cmd.Flags().Changed("gpu-layers") {
		cfg.Engine.GPULayers = gpuLayers
	}
	if cmd.Flags().Changed("enable-log") {
		cfg.Engine.EnableLog = enableLog
	}
	if cmd.Flags().Changed("template") {
		cfg.REPL.TemplateFile = templateFile
	}
	if cmd.Flags().Changed("keep-logs") {
		cfg.REPL.KeepLogs = keepLogs
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	if cmd.Flags().Changed("debug") {
		cfg.Logging.Debug = debugMode
	}
}
