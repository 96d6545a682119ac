package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/update-branch/internal/cfg"
	"github.com/simplesurance/update-branch/internal/condition"
	"github.com/simplesurance/update-branch/internal/githubclt"
	"github.com/simplesurance/update-branch/internal/logfields"
	"github.com/simplesurance/update-branch/internal/merger"
	"github.com/simplesurance/update-branch/internal/record"
	"github.com/simplesurance/update-branch/internal/runner"
)

const appName = "update-branch"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

type arguments struct {
	Verbose         *bool
	ConfigFile      *string
	DryRun          *bool
	MetricsTextfile *string
	ShowVersion     *bool
}

var args arguments

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			"",
			"path to an optional configuration file, GitHub Action inputs overwrite its values",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"do not merge, update or enable auto-merge for pull requests, only log what would be done",
		),
		MetricsTextfile: pflag.String(
			"metrics-textfile",
			"",
			"write prometheus metrics on exit to this file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nMerge the next ready pull request of a GitHub repository, update its branch if it is behind.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	config := cfg.Default()

	if *args.ConfigFile != "" {
		file, err := os.Open(*args.ConfigFile)
		exitOnErr("could not open configuration files", err)
		defer file.Close()

		config, err = cfg.Load(file)
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	exitOnErr("could not read GitHub Action inputs", config.ApplyActionInputs(os.Getenv))
	exitOnErr("invalid configuration", config.Validate())

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

// reportFailure marks the workflow step as failed when running as GitHub
// Action.
func reportFailure(action *githubactions.Action, err error) {
	if action.Getenv("GITHUB_ACTIONS") != "true" {
		return
	}

	action.Errorf("%s", err)
}

func writeMetrics() {
	if *args.MetricsTextfile == "" {
		return
	}

	if err := prometheus.WriteToTextfile(*args.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
		logger.Warn(
			"writing metrics textfile failed",
			logfields.Event("metrics_textfile_write_failed"),
			zap.String("path", *args.MetricsTextfile),
			zap.Error(err),
		)
	}
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	mergeMethod, err := githubclt.ParseMergeMethod(config.AutoMergeMethod)
	exitOnErr("invalid merge method", err)

	cond, err := condition.New(config.RequiredApprovals, config.RequiredStatusChecks, config.RequiredLabels, config.FilterQuery)
	exitOnErr("invalid condition", err)

	logger.Info(
		"loaded configuration",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		logfields.RepositoryOwner(config.Repository.Owner),
		logfields.Repository(config.Repository.RepositoryName),
		logfields.MergeMethod(string(mergeMethod)),
		zap.Stringer("condition", cond),
		zap.Bool("dry_run", *args.DryRun),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
	)

	githubClient := githubclt.New(config.GithubAPIToken)

	var prClient merger.GithubClient = githubClient
	if *args.DryRun {
		prClient = merger.NewDryGithubClient(githubClient, logger)
	}

	r := runner.New(
		githubClient,
		func(author string) record.Lock {
			return record.NewStore(githubClient, config.Repository.Owner, config.Repository.RepositoryName, author)
		},
		merger.NewCoordinator(
			prClient,
			config.Repository.Owner,
			config.Repository.RepositoryName,
			cond,
			mergeMethod,
		),
	)

	err = r.Run(context.Background())
	writeMetrics()

	if err != nil {
		logger.Error("run failed", logfields.Event("run_failed"), zap.Error(err))
		reportFailure(githubactions.New(), err)
		goodbye.Exit(context.Background(), 1)
	}

	logger.Info("run finished", logfields.Event("run_finished"))
	goodbye.Exit(context.Background(), 0)
}
