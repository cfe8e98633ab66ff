package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattjoyce/milestone-hook/internal/config"
	"github.com/mattjoyce/milestone-hook/internal/doctor"
	"github.com/mattjoyce/milestone-hook/internal/lock"
	"github.com/mattjoyce/milestone-hook/internal/log"
	"github.com/mattjoyce/milestone-hook/internal/milestone"
	"github.com/mattjoyce/milestone-hook/internal/tracker"
	"github.com/mattjoyce/milestone-hook/internal/webhook"
	"gopkg.in/yaml.v3"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))

	// --- ROOT COMMANDS ---
	case "start":
		os.Exit(runStart(args))
	case "sign":
		if hasHelpFlag(args) {
			printSignHelp()
			os.Exit(0)
		}
		os.Exit(runSign(args))
	case "version":
		fmt.Printf("milestone-hook version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`milestone-hook - Label open issues when a GitHub milestone closes

Usage:
  milestone-hook <noun> <action> [flags]

Core Resources (Nouns):
  system    Webhook receiver lifecycle and health
  config    Configuration and integrity

System Commands:
  system start      Start the webhook receiver in foreground
  system status     Show whether the receiver is running and healthy

Config Commands:
  config lock       Authorize current state (update integrity hashes)
  config check      Validate syntax, policy, and integrity
  config show       Show resolved configuration (secrets redacted)

General:
  sign              Compute the signature header for a payload
  version           Show version information
  help              Show this help message

Use 'milestone-hook <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runStatus(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: milestone-hook system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: milestone-hook config <action> [flags]")
	fmt.Fprintln(w, "Actions: lock, check, show")
}

func printSystemStartHelp() {
	fmt.Println("Usage: milestone-hook system start [--config PATH]")
	fmt.Println("Start the webhook receiver in the foreground.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: milestone-hook system status [--config PATH] [--json]")
	fmt.Println("Report the instance lock holder and probe /healthz on the configured listener.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: milestone-hook config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: milestone-hook config check [--config PATH] [--format human|json] [--strict] [--json]")
	fmt.Println("Validate configuration syntax, policy, and integrity.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: milestone-hook config show [path] [--config PATH] [--json]")
	fmt.Println("Show full resolved configuration or a single dotted path. Secrets are redacted.")
}

func printSignHelp() {
	fmt.Println("Usage: milestone-hook sign [--config PATH | --secret-env VAR] [--file PAYLOAD]")
	fmt.Println("Print the signature header value for a payload read from --file or stdin.")
}

// --- ACTION IMPLEMENTATIONS ---

func loadConfigForTool(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("milestone-hook starting", "version", version, "config", cfg.SourcePath)

	if cfg.Service.PIDFile != "" {
		pidLock, err := lock.Acquire(cfg.Service.PIDFile)
		if err != nil {
			logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Service.PIDFile, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	client, err := tracker.New(cfg.Tracker)
	if err != nil {
		logger.Error("failed to create tracker client", "error", err)
		return 1
	}
	authMode := "token"
	if cfg.Tracker.App != nil {
		authMode = "app"
	}
	logger.Info("tracker client ready", "base_url", cfg.Tracker.BaseURL, "auth", authMode)

	engine := milestone.NewEngine(
		webhook.NewHMACVerifier([]byte(cfg.Webhook.Secret)),
		client,
		milestone.Config{
			Label:                cfg.Tracker.Label,
			Timeout:              cfg.Tracker.Timeout,
			MaxConcurrentUpdates: cfg.Tracker.MaxConcurrentUpdates,
		},
		log.WithComponent("milestone"),
	)

	webhookCfg, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("invalid webhook configuration", "error", err)
		return 1
	}
	server := webhook.New(webhookCfg, engine, log.WithComponent("webhook"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server failed", "error", err)
		return 1
	}

	logger.Info("milestone-hook stopped")
	return 0
}

// statusReport is the JSON shape of 'system status --json'.
type statusReport struct {
	Listen        string `json:"listen"`
	Healthy       bool   `json:"healthy"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	HealthError   string `json:"health_error,omitempty"`
	PIDFile       string `json:"pid_file,omitempty"`
	PID           int    `json:"pid,omitempty"`
	Locked        bool   `json:"locked"`
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	report := statusReport{Listen: cfg.Webhook.Listen, PIDFile: cfg.Service.PIDFile}

	if cfg.Service.PIDFile != "" {
		pid, held, err := lock.Holder(cfg.Service.PIDFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Lock error: %v\n", err)
			return 1
		}
		report.PID, report.Locked = pid, held
	}

	health, err := probeHealth(cfg.Webhook.Listen)
	if err != nil {
		report.HealthError = err.Error()
	} else {
		report.Healthy = health.Status == "ok"
		report.UptimeSeconds = health.UptimeSeconds
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		if report.Healthy {
			fmt.Printf("milestone-hook is healthy on %s (up %s)\n", report.Listen,
				time.Duration(report.UptimeSeconds)*time.Second)
		} else {
			fmt.Printf("milestone-hook is not responding on %s: %s\n", report.Listen, report.HealthError)
		}
		if report.PIDFile != "" {
			if report.Locked {
				fmt.Printf("Instance lock %s held by pid %d\n", report.PIDFile, report.PID)
			} else {
				fmt.Printf("Instance lock %s is free\n", report.PIDFile)
			}
		}
	}

	if !report.Healthy {
		return 1
	}
	return 0
}

func probeHealth(listen string) (*webhook.HealthResponse, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + listen + "/healthz")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("healthz returned %d", resp.StatusCode)
	}

	var health webhook.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode healthz: %w", err)
	}
	return &health, nil
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	// Handle -json alias for format=json
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}

	resolved, err := config.ResolveConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}

	// Locking must work even when the current manifest no longer matches,
	// so the file is parsed without integrity verification.
	cfg, err := config.LoadUnverified(resolved)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	dir := filepath.Dir(resolved)
	report, err := config.GenerateChecksumsWithReport(dir, config.IntegrityFiles(cfg), dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}

	if isVerbose {
		fmt.Printf("Processing directory: %s\n", dir)
		for _, file := range report.Files {
			name := filepath.Base(file.Path)
			if file.Exists {
				fmt.Printf("  HASH %s: %s\n", name, file.Hash)
				continue
			}
			fmt.Printf("  SKIP %s: not found\n", name)
		}
		if dryRun {
			fmt.Printf("  DRY-RUN %s: %s (not written)\n", config.ChecksumsFile, report.ChecksumPath)
		} else {
			fmt.Printf("  WROTE %s: %s\n", config.ChecksumsFile, report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed (no files written): %s\n", dir)
	} else {
		fmt.Printf("Successfully locked configuration: %s\n", dir)
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	var result any
	if fs.NArg() == 0 {
		m, err := cfg.RedactedMap()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		result = m
	} else {
		res, err := cfg.GetPath(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		result = res
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(result)
		fmt.Print(string(data))
	}
	return 0
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	secretEnv := fs.String("secret-env", "", "Read the secret from this environment variable instead of config")
	file := fs.String("file", "", "Payload file (default: stdin)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	var secret string
	if *secretEnv != "" {
		secret = os.Getenv(*secretEnv)
		if secret == "" {
			fmt.Fprintf(os.Stderr, "Environment variable %s is empty\n", *secretEnv)
			return 1
		}
	} else {
		cfg, err := loadConfigForTool(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
			return 1
		}
		secret = cfg.Webhook.Secret
	}

	var payload []byte
	var err error
	if *file != "" {
		payload, err = os.ReadFile(*file)
	} else {
		payload, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}

	fmt.Println(webhook.ComputeSignature(payload, []byte(secret)))
	return 0
}
