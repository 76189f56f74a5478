package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/VikingOwl91/pip-warden/internal/config"
	"github.com/VikingOwl91/pip-warden/internal/confine"
	"github.com/VikingOwl91/pip-warden/internal/gate"
	"github.com/VikingOwl91/pip-warden/internal/logging"
	"github.com/VikingOwl91/pip-warden/internal/pip"
	"github.com/VikingOwl91/pip-warden/internal/policy"
	"github.com/VikingOwl91/pip-warden/internal/requirements"
	"github.com/VikingOwl91/pip-warden/internal/trust"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// The confined re-exec sentinel must be handled before flag parsing
	// ever sees the argument list.
	if len(os.Args) >= 2 && os.Args[1] == confine.Sentinel {
		if err := confine.RunEntrypoint(); err != nil {
			fmt.Fprintf(os.Stderr, "confine: %v\n", err)
		}
		// RunEntrypoint replaces the process image on success.
		os.Exit(1)
	}

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pip-warden", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", defaultConfigPath(), "path to the config file")
	logLevel := fs.String("log-level", "", "override the configured log level")
	logFormat := fs.String("log-format", "", "override the configured log format")

	if err := fs.Parse(args); err != nil {
		// Flags we do not own belong to the delegate: hand the whole
		// invocation through untouched, pip's --version included.
		return delegateVerbatim(args)
	}

	explicitConfig := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})

	cfg, err := loadConfig(*configPath, explicitConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pip-warden: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pip-warden: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rest := fs.Args()
	if len(rest) == 0 {
		return passthrough(ctx, cfg, logger, nil)
	}

	switch rest[0] {
	case "install":
		return runInstall(ctx, cfg, logger, rest[1:])
	case "hash":
		return runHash(rest[1:])
	case "explain":
		return runExplain(cfg)
	default:
		return passthrough(ctx, cfg, logger, rest)
	}
}

func runInstall(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	paths, extra := requirements.SplitArgs(args)
	if len(paths) == 0 {
		fmt.Println("You have to specify one or more requirements files with the -r option, because")
		fmt.Println("otherwise there's nowhere for pip-warden to look up the hashes.")
		return gate.ExitUsage
	}

	records, err := requirements.ReadFiles(paths, logger)
	if err != nil {
		logger.Error("reading requirements", "error", err)
		return gate.ExitBlocked
	}

	var engine *policy.Engine
	if len(cfg.Policy.Rules) > 0 || cfg.Policy.Default == "deny" {
		engine, err = policy.New(cfg.Policy)
		if err != nil {
			logger.Error("loading policy", "error", err)
			return gate.ExitBlocked
		}
	}

	profile, err := confineProfile(cfg, logger)
	if err != nil {
		logger.Error("confinement unavailable", "error", err)
		return gate.ExitBlocked
	}

	session, err := pip.NewSession(pip.Options{
		Command:      cfg.Pip.Command,
		AllowedPaths: cfg.Pip.AllowedPaths,
		PinnedSHA256: cfg.Pip.PinnedSHA256,
		ExtraArgs:    extra,
		EnvAllowlist: cfg.Pip.EnvAllowlist,
		Confine:      profile,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("delegate unavailable", "error", err)
		return gate.ExitBlocked
	}

	g := gate.New(gate.Options{
		Delegate:   session,
		Policy:     engine,
		ScratchDir: cfg.Scratch.Dir,
		MinFreeMB:  int64(cfg.Scratch.MinFreeMB),
		Progress:   true,
		Logger:     logger,
		Stdout:     os.Stdout,
	})
	return g.Run(ctx, records)
}

func runHash(paths []string) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: pip-warden hash FILE [FILE ...]")
		return gate.ExitUsage
	}
	for _, path := range paths {
		digest, err := trust.FileDigest(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pip-warden: %v\n", err)
			return 1
		}
		fmt.Printf("# sha256: %s\n", digest)
	}
	return 0
}

// passthrough hands a non-install invocation to the delegate and forwards
// its exit code. The delegate is still resolved and pin-checked first: the
// warden never runs a binary it would refuse to download with.
func passthrough(ctx context.Context, cfg *config.Config, logger *slog.Logger, argv []string) int {
	session, err := pip.NewSession(pip.Options{
		Command:      cfg.Pip.Command,
		AllowedPaths: cfg.Pip.AllowedPaths,
		PinnedSHA256: cfg.Pip.PinnedSHA256,
		EnvAllowlist: cfg.Pip.EnvAllowlist,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("delegate unavailable", "error", err)
		return 1
	}
	code, err := session.Passthrough(ctx, argv)
	if err != nil {
		logger.Error("delegate invocation failed", "error", err)
		return 1
	}
	return code
}

func delegateVerbatim(args []string) int {
	cfg, err := loadConfig(defaultConfigPath(), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pip-warden: %v\n", err)
		return 1
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pip-warden: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return passthrough(ctx, cfg, logger, args)
}

// confineProfile decides whether downloads run under Landlock. A nil
// profile means unconfined; that is an error only when config says
// confinement is required.
func confineProfile(cfg *config.Config, logger *slog.Logger) (*confine.Profile, error) {
	if !cfg.Confine.Enabled {
		return nil, nil
	}

	caps := confine.Probe()
	if !caps.Landlock {
		if cfg.Confine.Required {
			return nil, errors.New("confinement required but Landlock is unavailable on this kernel")
		}
		logger.Warn("Landlock unavailable, downloads will run unconfined")
		return nil, nil
	}

	self, err := os.Executable()
	if err != nil {
		if cfg.Confine.Required {
			return nil, fmt.Errorf("resolving own executable: %w", err)
		}
		logger.Warn("resolving own executable failed, downloads will run unconfined", "error", err)
		return nil, nil
	}

	return &confine.Profile{
		SelfPath:     self,
		WritePaths:   writePaths(cfg),
		EnvAllowlist: cfg.Pip.EnvAllowlist,
	}, nil
}

// writePaths lists the directories a confined download may write to: the
// scratch parent, the system temp dir, pip's own cache, and any extras
// from config.
func writePaths(cfg *config.Config) []string {
	paths := []string{os.TempDir()}
	if cfg.Scratch.Dir != "" {
		paths = append(paths, cfg.Scratch.Dir)
	}
	if cache, err := os.UserCacheDir(); err == nil {
		paths = append(paths, filepath.Join(cache, "pip"))
	}
	return append(paths, cfg.Confine.ExtraWritePaths...)
}

func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".pip-warden", "config.yaml")
	}
	return filepath.Join(home, ".pip-warden", "config.yaml")
}
