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
	"strconv"
	"strings"
	"time"

	"tschart/internal/charts"
	"tschart/internal/config"
	"tschart/internal/dataprocessing"
	apperrors "tschart/internal/errors"
	"tschart/internal/infrastructure"
	"tschart/internal/operations"
	"tschart/internal/smoothing"
)

const usageHeader = `Usage: tschart [flags] <input_file>

Smooths the value column of a time series file and writes one chart per
computed column.

--windows and --spans take one or more integers: "-w 2 3", "-w 2,3" and
"-w 2 -w 3" are the same. Put "--" before an input file whose name starts
with a dash or reads as a number.

Flags:
`

// Set at build time with -ldflags "-X main.Version=... -X main.BuildTime=..."
var (
	Version   = "dev"
	BuildTime = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// intList is a flag.Value accepting a comma separated list, repeatable
type intList []int

func (l *intList) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, len(*l))
	for i, n := range *l {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid integer %q", part)
		}
		*l = append(*l, n)
	}
	return nil
}

// cliOptions holds the parsed command line. set records which flags were
// given explicitly, keyed by their long name.
type cliOptions struct {
	input      string
	configPath string

	outputDir   string
	windows     intList
	spans       intList
	format      string
	dateCol     string
	valueCol    string
	movAvg      string
	ewmAvg      string
	ewmAdjust   bool
	ewmIgnoreNA bool
	logLevel    string

	set map[string]bool
}

// shortFlags maps short aliases to their long names
var shortFlags = map[string]string{
	"o": "output",
	"w": "windows",
	"s": "spans",
}

// listFlags are the flags whose integers may run over several arguments
var listFlags = map[string]bool{
	"windows": true,
	"w":       true,
	"spans":   true,
	"s":       true,
}

// expandLists rewrites "-w 2 3" as "-w 2 -w 3" so the flag set sees every
// integer. Nothing after "--" is touched.
func expandLists(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		out = append(out, arg)
		if arg == "--" {
			return append(out, args[i+1:]...)
		}

		name, inline := flagName(arg)
		if !listFlags[name] {
			continue
		}
		if !inline {
			if i+1 == len(args) {
				break
			}
			i++
			out = append(out, args[i])
		}
		for i+1 < len(args) && isIntList(args[i+1]) {
			i++
			out = append(out, "-"+name, args[i])
		}
	}
	return out
}

// flagName returns the name of a flag argument and whether it carries its
// value after "="
func flagName(arg string) (string, bool) {
	if len(arg) < 2 || arg[0] != '-' || arg == "--" {
		return "", false
	}
	name := strings.TrimPrefix(arg[1:], "-")
	if i := strings.IndexByte(name, '='); i >= 0 {
		return name[:i], true
	}
	return name, false
}

func isIntList(arg string) bool {
	for _, part := range strings.Split(arg, ",") {
		if _, err := strconv.Atoi(strings.TrimSpace(part)); err != nil {
			return false
		}
	}
	return true
}

func newFlagSet(opts *cliOptions, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("tschart", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageHeader)
		fs.PrintDefaults()
	}

	defaults := config.DefaultConfig()

	fs.StringVar(&opts.outputDir, "output", defaults.Pipeline.OutputDir, "output directory")
	fs.StringVar(&opts.outputDir, "o", defaults.Pipeline.OutputDir, "shorthand for --output")
	fs.Var(&opts.windows, "windows", "rolling windows, comma separated or repeated (default 5)")
	fs.Var(&opts.windows, "w", "shorthand for --windows")
	fs.Var(&opts.spans, "spans", "EWM spans, comma separated or repeated (default 5)")
	fs.Var(&opts.spans, "s", "shorthand for --spans")
	fs.StringVar(&opts.format, "format", defaults.Chart.Format, "chart format: png, pdf or jpg")
	fs.StringVar(&opts.dateCol, "date-col", defaults.Pipeline.DateColumn, "date column name")
	fs.StringVar(&opts.valueCol, "value-col", defaults.Pipeline.ValueColumn, "value column name")
	fs.StringVar(&opts.movAvg, "mov-avg", "", "rolling mean base name; the family is skipped when empty")
	fs.StringVar(&opts.ewmAvg, "ewm-avg", "", "EWM base name; the family is skipped when empty")
	fs.BoolVar(&opts.ewmAdjust, "ewm-adjust", defaults.Pipeline.EWMAdjust, "bias-corrected EWM weights")
	fs.BoolVar(&opts.ewmIgnoreNA, "ewm-ignore-na", defaults.Pipeline.EWMIgnoreNA, "ignore missing values when weighting EWM observations")
	fs.StringVar(&opts.configPath, "config", "", "YAML config file (default $"+config.ConfigFileEnv+")")
	fs.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "log level: debug, info, warn or error")
	return fs
}

// parseArgs parses flags and the single positional input file, which may
// appear anywhere among the flags. Everything after "--" is positional.
func parseArgs(args []string, stderr io.Writer) (*cliOptions, error) {
	opts := &cliOptions{set: make(map[string]bool)}
	fs := newFlagSet(opts, stderr)

	args = expandLists(args)
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			positional = append(positional, rest...)
			break
		}
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}

	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if long, ok := shortFlags[name]; ok {
			name = long
		}
		opts.set[name] = true
	})

	switch len(positional) {
	case 0:
		return nil, apperrors.InvalidParameter("cli", "input file is required")
	case 1:
		opts.input = positional[0]
	default:
		return nil, apperrors.InvalidParameter("cli", fmt.Sprintf("expected one input file, got %d: %s", len(positional), strings.Join(positional, " ")))
	}
	return opts, nil
}

// apply overlays the explicitly set flags onto cfg
func (o *cliOptions) apply(cfg *config.Config) {
	if o.set["output"] {
		cfg.Pipeline.OutputDir = o.outputDir
	}
	if o.set["windows"] {
		cfg.Pipeline.Windows = o.windows
	}
	if o.set["spans"] {
		cfg.Pipeline.Spans = o.spans
	}
	if o.set["format"] {
		cfg.Chart.Format = string(charts.ParseFormat(o.format))
	}
	if o.set["date-col"] {
		cfg.Pipeline.DateColumn = o.dateCol
	}
	if o.set["value-col"] {
		cfg.Pipeline.ValueColumn = o.valueCol
	}
	if o.set["mov-avg"] {
		cfg.Pipeline.MovingAverage = o.movAvg
	}
	if o.set["ewm-avg"] {
		cfg.Pipeline.EWMAverage = o.ewmAvg
	}
	if o.set["ewm-adjust"] {
		cfg.Pipeline.EWMAdjust = o.ewmAdjust
	}
	if o.set["ewm-ignore-na"] {
		cfg.Pipeline.EWMIgnoreNA = o.ewmIgnoreNA
	}
	if o.set["log-level"] {
		cfg.Logging.Level = o.logLevel
	}
}

// loadConfig layers defaults, file, environment and flags, then validates
func loadConfig(opts *cliOptions) (*config.Config, error) {
	cfg, err := config.Load(config.FilePath(opts.configPath))
	if err != nil {
		return nil, err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRequest maps the configuration onto a pipeline request
func newRequest(input string, cfg *config.Config) operations.Request {
	p := cfg.Pipeline
	return operations.Request{
		InputPath:     input,
		OutputDir:     p.OutputDir,
		DateColumn:    p.DateColumn,
		ValueColumn:   p.ValueColumn,
		Windows:       p.Windows,
		Spans:         p.Spans,
		MovingAverage: p.MovingAverage,
		EWMAverage:    p.EWMAverage,
		EWMOptions: smoothing.EWMOptions{
			Adjust:   p.EWMAdjust,
			IgnoreNA: p.EWMIgnoreNA,
		},
		Format: charts.ParseFormat(cfg.Chart.Format),
	}
}

func chartOptions(c config.ChartConfig) charts.Options {
	return charts.Options{
		Width:       c.Width,
		Height:      c.Height,
		DPI:         c.DPI,
		JPEGQuality: c.JPEGQuality,
	}
}

// run executes the command and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if apperrors.KindOf(err) == apperrors.KindUnknown {
			// flag parse errors are already printed by the flag set
			return 2
		}
		fmt.Fprintf(stderr, "tschart: %v\n", err)
		return apperrors.ExitCode(err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "tschart: %v\n", err)
		return apperrors.ExitCode(err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "tschart: %v\n", apperrors.Configuration("failed to initialize logger", err))
		return 2
	}
	defer infrastructure.ShutdownLogger()

	logger.Debug("tschart starting",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("input", opts.input))

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, stderr, logger)
	if err != nil {
		fmt.Fprintf(stderr, "tschart: %v\n", apperrors.Configuration("failed to initialize telemetry", err))
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	tracer, err := operations.NewOperationTracer(nil)
	if err != nil {
		fmt.Fprintf(stderr, "tschart: %v\n", operations.NewFatalError("failed to create tracer", err))
		return 1
	}

	pipeline, err := operations.NewPipeline(
		dataprocessing.NewLoader(infrastructure.WithComponent(logger, "loader")),
		charts.NewRenderer(chartOptions(cfg.Chart), infrastructure.WithComponent(logger, "charts")),
		tracer,
		infrastructure.WithComponent(logger, "pipeline"),
	)
	if err != nil {
		fmt.Fprintf(stderr, "tschart: %v\n", err)
		return 1
	}

	resp, err := pipeline.Execute(ctx, newRequest(opts.input, cfg))
	if err != nil {
		fmt.Fprintf(stderr, "tschart: %v\n", err)
		return apperrors.ExitCode(err)
	}

	for _, path := range resp.ChartPaths() {
		fmt.Fprintln(stdout, path)
	}
	return 0
}
