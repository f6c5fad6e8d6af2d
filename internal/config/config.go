package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"tschart/internal/charts"
	apperrors "tschart/internal/errors"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "TSCHART"

// ConfigFileEnv names the environment variable holding the config file path
const ConfigFileEnv = "TSCHART_CONFIG"

// Config represents the complete application configuration
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Chart     ChartConfig     `yaml:"chart" envconfig:"CHART"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// PipelineConfig selects the input columns and the smoothing families to run
type PipelineConfig struct {
	OutputDir   string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	DateColumn  string `yaml:"date_column" envconfig:"DATE_COLUMN" validate:"required"`
	ValueColumn string `yaml:"value_column" envconfig:"VALUE_COLUMN" validate:"required"`
	Windows     []int  `yaml:"windows" envconfig:"WINDOWS" validate:"dive,min=1"`
	Spans       []int  `yaml:"spans" envconfig:"SPANS" validate:"dive,min=1"`

	// MovingAverage and EWMAverage are the base names of the computed
	// columns. An empty name disables that family.
	MovingAverage string `yaml:"moving_average" envconfig:"MOVING_AVERAGE"`
	EWMAverage    string `yaml:"ewm_average" envconfig:"EWM_AVERAGE"`

	EWMAdjust   bool `yaml:"ewm_adjust" envconfig:"EWM_ADJUST"`
	EWMIgnoreNA bool `yaml:"ewm_ignore_na" envconfig:"EWM_IGNORE_NA"`
}

// ChartConfig contains chart output configuration
type ChartConfig struct {
	Format      string  `yaml:"format" envconfig:"FORMAT" validate:"chart_format"`
	Width       int     `yaml:"width" envconfig:"WIDTH" validate:"min=200,max=10000"`
	Height      int     `yaml:"height" envconfig:"HEIGHT" validate:"min=100,max=10000"`
	DPI         float64 `yaml:"dpi" envconfig:"DPI" validate:"min=36,max=600"`
	JPEGQuality int     `yaml:"jpeg_quality" envconfig:"JPEG_QUALITY" validate:"min=1,max=100"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=none prometheus"`
	MetricsFile    string  `yaml:"metrics_file" envconfig:"METRICS_FILE"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"min=0,max=1"`
}

// DefaultConfig returns the built-in defaults, the lowest precedence layer
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			OutputDir:   "output",
			DateColumn:  "date",
			ValueColumn: "value",
			Windows:     []int{5},
			Spans:       []int{5},
			EWMAdjust:   true,
		},
		Chart: ChartConfig{
			Format:      "png",
			Width:       1200,
			Height:      600,
			DPI:         100,
			JPEGQuality: 90,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/tschart.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "tschart",
			TraceExporter:  "none",
			MetricExporter: "none",
			SampleRatio:    1.0,
		},
	}
}

// Load builds the configuration from the defaults, the YAML file at path (if
// path is not empty) and TSCHART_* environment variables, in that order of
// precedence. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, apperrors.Configuration(fmt.Sprintf("failed to load config file %s", path), err)
		}
	}

	// no default tags, so unset variables leave the file values alone
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.Configuration("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FilePath returns flagValue, or the value of TSCHART_CONFIG when the flag
// was not given
func FilePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(ConfigFileEnv)
}

// loadFromFile overlays the YAML file at path onto cfg. Unknown keys are
// rejected.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report YAML key names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("chart_format", func(fl validator.FieldLevel) bool {
		return charts.ParseFormat(fl.Field().String()).Supported()
	})
	return v
}

// Validate checks every field against its validation tags
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Configuration("config validation failed", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return apperrors.Configuration("config validation failed: "+strings.Join(msgs, "; "), err)
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_unless":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "chart_format":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, strings.Join(charts.FormatNames(), " "), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
