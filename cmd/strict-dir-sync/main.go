package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/yuya-takeyama/strict-dir-sync/internal/config"
	"github.com/yuya-takeyama/strict-dir-sync/internal/logging"
	"github.com/yuya-takeyama/strict-dir-sync/internal/progress"
	"github.com/yuya-takeyama/strict-dir-sync/internal/s3client"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/logger"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

const (
	missingListLimit = 20
	progressTTL      = 24 * time.Hour
)

func main() {
	cfg := config.New()

	rootCmd := &cobra.Command{
		Use:   "strict-dir-sync <SourceDir> <TargetDir>",
		Short: "Find source files whose content is missing from a target directory",
		Long: `strict-dir-sync compares two directory trees by SHA-256 content digest.
Files whose content exists nowhere in the target are listed in missing_files.txt
at the source root and can be copied into the target without overwriting anything.`,
		Version:       fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, cfg, args)
		},
	}

	copyCmd := &cobra.Command{
		Use:   "copy <SourceDir> <TargetDir>",
		Short: "Copy the files listed in an existing manifest without scanning again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopy(cmd, cfg, args)
		},
	}
	copyCmd.Flags().StringVar(&cfg.ManifestPath, "manifest", "", "Manifest to copy from (default <SourceDir>/missing_files.txt)")
	rootCmd.AddCommand(copyCmd)

	rootCmd.Flags().StringSliceVar(&cfg.Excludes, "exclude", nil, "Exclude patterns (multiple allowed)")
	rootCmd.Flags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Number of files fingerprinted at once")
	rootCmd.Flags().BoolVar(&cfg.Copy, "copy", false, "Copy missing files into the target after the scan")
	rootCmd.Flags().StringVar(&cfg.PlanJSONFile, "plan-json-file", "", "Path to output the missing files as JSON")

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&cfg.Yes, "yes", false, "Copy without asking for confirmation")
	flags.IntVar(&cfg.ConfirmDelaySeconds, "confirm-delay", cfg.ConfirmDelaySeconds, "Seconds before the confirmation prompt accepts an answer")
	flags.IntVar(&cfg.CopyConcurrency, "copy-concurrency", cfg.CopyConcurrency, "Number of files copied at once")
	flags.BoolVar(&cfg.Quiet, "quiet", false, "Suppress non-error output")
	flags.BoolVar(&cfg.Verbose, "verbose", false, "Log every file")
	flags.BoolVar(&cfg.NoProgress, "no-progress", false, "Disable the progress bar")
	flags.StringVar(&cfg.ResultJSONFile, "result-json-file", "", "Path to output the copy result as JSON")
	flags.StringVar(&cfg.ManifestS3URI, "manifest-s3-uri", "", "Upload the manifest and results to s3://bucket/prefix")
	flags.StringVar(&cfg.Profile, "profile", "", "AWS profile to use")
	flags.StringVar(&cfg.Region, "region", "", "AWS region (uses default if not specified)")
	flags.StringVar(&cfg.RedisAddr, "progress-redis-addr", "", "Publish progress snapshots to this redis server")
	flags.StringVar(&cfg.RedisKey, "progress-redis-key", cfg.RedisKey, "Redis key for progress snapshots")
	flags.StringVar(&cfg.EnvFile, "env-file", "", "Load environment variables from a dotenv file")

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what one command invocation needs
type app struct {
	cfg      *config.Config
	fs       afero.Fs
	printer  *logging.Printer
	session  *session.Session
	reporter *progress.RedisReporter
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.reporter != nil && a.reporter.Err() != nil {
		a.printer.Warning("progress snapshots were not published: %v", a.reporter.Err())
	}
}

func newApp(ctx context.Context, cmd *cobra.Command, cfg *config.Config, args []string) (*app, error) {
	if err := config.LoadEnvFile(cfg.EnvFile); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(cmd.Flags().Changed); err != nil {
		return nil, err
	}
	cfg.SourceDir = args[0]
	cfg.TargetDir = args[1]
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		fs:      afero.NewOsFs(),
		printer: logging.NewPrinter(os.Stdout, os.Stderr, cfg.Quiet),
	}

	showBar := !cfg.Quiet && !cfg.Verbose && !cfg.NoProgress

	var log logger.Logger
	switch {
	case cfg.Verbose:
		zl := logger.NewConsoleLogger(os.Stderr, zapcore.DebugLevel)
		a.closers = append(a.closers, func() { _ = zl.Sync() })
		log = zl
	case cfg.Quiet:
		log = &logger.QuietLogger{Out: io.Discard, ErrOut: os.Stderr}
	case showBar:
		// The bar prints errors itself
		log = &logger.NullLogger{}
	default:
		log = &logger.QuietLogger{Out: os.Stdout, ErrOut: os.Stderr}
	}

	var observers session.Observers
	if showBar {
		bar := progress.NewBar(os.Stderr)
		a.closers = append(a.closers, bar.Stop)
		observers = append(observers, bar)
	}
	if cfg.RedisAddr != "" {
		client, err := progress.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.reporter = progress.NewRedisReporter(client, cfg.RedisKey, progressTTL)
		observers = append(observers, a.reporter)
	}

	a.session = session.New(a.fs,
		session.WithLogger(log),
		session.WithObserver(observers),
		session.WithConcurrency(cfg.Concurrency),
		session.WithCopyConcurrency(cfg.CopyConcurrency),
		session.WithExcludes(cfg.Excludes),
	)
	return a, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScan(cmd *cobra.Command, cfg *config.Config, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd, cfg, args)
	if err != nil {
		return err
	}
	defer a.Close()

	a.printer.Info("Scanning %s and %s", cfg.SourceDir, cfg.TargetDir)
	result, err := a.session.Scan(ctx, cfg.SourceDir, cfg.TargetDir)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	a.printer.ScanSummary(result)
	limit := missingListLimit
	if cfg.Verbose {
		limit = 0
	}
	a.printer.MissingFiles(result.Missing, limit)

	if cfg.PlanJSONFile != "" {
		plan, err := buildPlanResult(result)
		if err != nil {
			return err
		}
		if err := writeJSON(cfg.PlanJSONFile, plan); err != nil {
			return fmt.Errorf("failed to write plan JSON: %w", err)
		}
	}

	if cfg.ManifestS3URI != "" && result.ManifestErr == nil {
		publisher, err := newPublisher(ctx, cfg)
		if err != nil {
			return err
		}
		uri, err := publisher.PublishFile(ctx, a.fs, result.ManifestPath, result.RunID)
		if err != nil {
			return fmt.Errorf("failed to publish manifest: %w", err)
		}
		a.printer.Info("Manifest uploaded to %s", uri)
	}

	if !cfg.Copy {
		return nil
	}
	return a.replicate(ctx, result)
}

func runCopy(cmd *cobra.Command, cfg *config.Config, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd, cfg, args)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.session.LoadManifest(cfg.SourceDir, cfg.TargetDir, cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	for _, failure := range result.Failures {
		a.printer.Warning("skipping %v", failure)
	}
	a.printer.Info("%d files listed in %s", len(result.Missing), result.ManifestPath)

	return a.replicate(ctx, result)
}

func (a *app) replicate(ctx context.Context, result *session.ScanResult) error {
	if len(result.Missing) == 0 {
		a.printer.Success("Target already contains every source file")
		return a.writeResult(ctx, result.RunID, buildSyncResult(result.RunID, &executor.Report{}))
	}

	var gate session.Gate = session.AlwaysConfirm
	if !a.cfg.Yes {
		gate = newPromptGate(os.Stdin, os.Stdout, a.cfg.ConfirmDelay())
	}

	startedAt := time.Now()
	report, err := a.session.Replicate(ctx, gate)
	if errors.Is(err, session.ErrNotConfirmed) {
		a.printer.Info("Copy cancelled; nothing was written")
		return nil
	}
	if report == nil {
		return fmt.Errorf("copy failed: %w", err)
	}

	a.printer.CopySummary(report, time.Since(startedAt))
	if werr := a.writeResult(ctx, result.RunID, buildSyncResult(result.RunID, report)); werr != nil {
		return werr
	}
	if err != nil {
		return fmt.Errorf("copy interrupted: %w", err)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d operations failed", report.Failed)
	}
	return nil
}

func (a *app) writeResult(ctx context.Context, runID string, syncResult SyncResult) error {
	if a.cfg.ResultJSONFile != "" {
		if err := writeJSON(a.cfg.ResultJSONFile, syncResult); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	if a.cfg.ManifestS3URI != "" {
		data, err := marshalJSON(syncResult)
		if err != nil {
			return err
		}
		publisher, err := newPublisher(ctx, a.cfg)
		if err != nil {
			return err
		}
		uri, err := publisher.Publish(ctx, "result.json", runID, data)
		if err != nil {
			return fmt.Errorf("failed to publish result: %w", err)
		}
		a.printer.Info("Result uploaded to %s", uri)
	}
	return nil
}

func newPublisher(ctx context.Context, cfg *config.Config) (*s3client.Publisher, error) {
	awsCfg, err := s3client.LoadAWSConfig(ctx, cfg.Profile, cfg.Region)
	if err != nil {
		return nil, err
	}
	return s3client.NewPublisher(s3client.NewClient(awsCfg), cfg.ManifestS3URI)
}
