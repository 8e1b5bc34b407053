// Package main provides the exac-annotator command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/exac-annotator/internal/annotate"
	"github.com/inodb/exac-annotator/internal/duckdb"
	"github.com/inodb/exac-annotator/internal/exac"
	"github.com/inodb/exac-annotator/internal/output"
	"github.com/inodb/exac-annotator/internal/vcf"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	appName        = "exac-annotator"
	configFileName = ".exac-annotator.yaml"
	envPrefix      = "EXAC_ANNOTATOR"
)

// usageError marks command-line mistakes that exit with ExitUsage.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	viper.Reset()
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "Error: %v\n\n", ue.err)
		fmt.Fprint(stderr, root.UsageString())
		return ExitUsage
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "Hint: Check that the file path is correct\n")
	}
	return ExitError
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   appName + " [flags] <input.vcf> <output.tsv>",
		Short: "Annotate VCF variants with ExAC population frequencies and consequences",
		Long: `Annotate every alternate allele of a VCF file with the ExAC consequence,
transcripts, rsID, allele counts and frequency, and write an 18-column TSV.

Input files ending in .gz are decompressed on the fly.`,
		Example: `  exac-annotator input.vcf output.tsv
  exac-annotator --single input.vcf.gz output.tsv
  exac-annotator --cache ~/.exac-annotator/cache.duckdb --batch-size 500 input.vcf output.tsv`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return &usageError{fmt.Errorf("expected <input.vcf> <output.tsv>, got %d argument(s)", len(args))}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(cmd.Context(), args[0], args[1], stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/"+configFileName+")")

	f := root.Flags()
	f.String("exac-url", exac.DefaultBaseURL, "ExAC REST service base URL")
	f.String("browser-url", annotate.DefaultBrowserURL, "base of the ExAC browser link column")
	f.Duration("timeout", exac.DefaultTimeout, "timeout for a single ExAC request")
	f.Int("retries", exac.DefaultRetries, "attempts per ExAC request for transient failures")
	f.Int("batch-size", annotate.DefaultBatchLimit, "VCF lines per bulk request")
	f.Bool("single", false, "query ExAC once per allele instead of in bulk")
	f.String("cache", "", "DuckDB file caching ExAC answers (empty disables)")
	f.Bool("no-cache", false, "ignore the annotation cache")
	f.String("metrics-file", "", "write run counters in Prometheus text format to this file")
	f.String("log-level", "info", "log level: debug, info, warn, error")
	f.BoolP("verbose", "v", false, "log at debug level")

	for key, flag := range map[string]string{
		"exac.url":         "exac-url",
		"exac.browser_url": "browser-url",
		"exac.timeout":     "timeout",
		"exac.retries":     "retries",
		"batch.size":       "batch-size",
		"batch.single":     "single",
		"cache.path":       "cache",
		"metrics.file":     "metrics-file",
		"log.level":        "log-level",
	} {
		viper.BindPFlag(key, f.Lookup(flag))
	}
	viper.SetDefault("cache.enabled", true)

	root.AddCommand(newConfigCmd(stdout))
	root.AddCommand(newCacheCmd(stdout))
	root.AddCommand(newVersionCmd(stdout))

	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "%s version %s (%s) built %s\n", appName, version, commit, date)
		},
	}
}

// initConfig reads the config file and environment into viper.
func initConfig(cmd *cobra.Command, cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigFile(filepath.Join(home, configFileName))
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if !missing || cfgFile != "" {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	if v, _ := cmd.Flags().GetBool("verbose"); v {
		viper.Set("log.level", "debug")
	}
	if v, _ := cmd.Flags().GetBool("no-cache"); v {
		viper.Set("cache.enabled", false)
	}
	return nil
}

// newLogger builds a console logger on w at the given level.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

func runAnnotate(ctx context.Context, inputPath, outputPath string, stderr io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runID := uuid.NewString()
	logger, err := newLogger(viper.GetString("log.level"), stderr)
	if err != nil {
		return &usageError{err}
	}
	logger = logger.With(zap.String("run_id", runID))
	defer logger.Sync()

	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("input file: %w", err)
	}

	reader, err := vcf.Open(inputPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	header := reader.Header()
	logger.Info("opened input",
		zap.String("path", inputPath),
		zap.Int("meta_lines", len(header.Meta)),
		zap.Int("samples", header.SampleCount()))

	client := exac.NewClient(viper.GetString("exac.url"))
	client.SetTimeout(viper.GetDuration("exac.timeout"))
	client.SetRetries(viper.GetInt("exac.retries"))
	client.SetLogger(logger.Named("exac"))
	logger.Debug("exac client ready",
		zap.String("url", client.BaseURL()),
		zap.Int("retries", viper.GetInt("exac.retries")))

	var service annotate.Service = client
	var cached *duckdb.CachingService
	if cachePath := viper.GetString("cache.path"); cachePath != "" && viper.GetBool("cache.enabled") {
		store, err := duckdb.Open(cachePath)
		if err != nil {
			return fmt.Errorf("open annotation cache: %w", err)
		}
		defer store.Close()
		cached = duckdb.NewCachingService(store, client, runID)
		cached.SetLogger(logger.Named("cache"))
		service = cached
		logger.Info("using annotation cache", zap.String("path", store.Path()))
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output file: %w", cerr)
		}
	}()

	ann := annotate.NewAnnotator(service)
	ann.SetBulk(!viper.GetBool("batch.single"))
	ann.SetBatchLimit(viper.GetInt("batch.size"))
	ann.SetBrowserURL(viper.GetString("exac.browser_url"))
	ann.SetLogger(logger)

	writer := output.NewTabWriter(out)
	if err := writer.WriteHeader(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	start := time.Now()
	if err := ann.AnnotateAll(ctx, reader, writer); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("output", outputPath),
		zap.Duration("elapsed", time.Since(start)),
		zap.Any("counts", ann.Metrics().Summary()),
	}
	if cached != nil {
		hits, misses := cached.Stats()
		fields = append(fields, zap.Int64("cache_hits", hits), zap.Int64("cache_misses", misses))
	}
	logger.Info("annotation finished", fields...)

	if path := viper.GetString("metrics.file"); path != "" {
		if err := ann.Metrics().WriteToTextfile(path); err != nil {
			return fmt.Errorf("writing metrics file: %w", err)
		}
	}
	return nil
}
