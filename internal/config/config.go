package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/query"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval            = 2 * time.Second
	DefaultHistorySize         = 500
	DefaultLogLevel            = string(LogLevelWarning)
	DefaultSort                = "cpu"
	DefaultMetricsDB           = "/var/lib/procwatch/metrics.db"
	DefaultMetricsBatchSize    = 30
	DefaultMetricsBatchTimeout = time.Minute

	defaultEnvPrefix = "PROCWATCH"
	configEnvVar     = "CONFIG"
	configName       = "procwatch"
)

type Config struct {
	Interval            time.Duration `mapstructure:"interval"`
	SampleTimeout       time.Duration `mapstructure:"sample_timeout"`
	HistorySize         int           `mapstructure:"history_size"`
	LogLevel            string        `mapstructure:"log_level"`
	Debug               bool          `mapstructure:"debug"`
	Verbose             bool          `mapstructure:"verbose"`
	Rows                int           `mapstructure:"rows"`
	Search              string        `mapstructure:"search"`
	CPUMin              float64       `mapstructure:"cpu_min"`
	MemMin              float64       `mapstructure:"mem_min"`
	Sort                string        `mapstructure:"sort"`
	Ascending           bool          `mapstructure:"ascending"`
	Metrics             bool          `mapstructure:"metrics"`
	MetricsDB           string        `mapstructure:"metrics_db"`
	MetricsBatchSize    int           `mapstructure:"metrics_batch_size"`
	MetricsBatchTimeout time.Duration `mapstructure:"metrics_batch_timeout"`
	PIDFile             string        `mapstructure:"pid_file"`

	// Args holds positional arguments left after flag parsing.
	Args []string `mapstructure:"-"`
}

// Load builds the configuration from defaults, the config file, the
// environment and args, in increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrParseFlags, err)
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if path == "" {
		path, _ = fs.GetString("config")
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_" + configEnvVar)
	}
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.Args = fs.Args()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("sample_timeout", time.Duration(0))
	v.SetDefault("history_size", DefaultHistorySize)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("rows", 0)
	v.SetDefault("search", "")
	v.SetDefault("cpu_min", 0.0)
	v.SetDefault("mem_min", 0.0)
	v.SetDefault("sort", DefaultSort)
	v.SetDefault("ascending", false)
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", DefaultMetricsDB)
	v.SetDefault("metrics_batch_size", DefaultMetricsBatchSize)
	v.SetDefault("metrics_batch_timeout", DefaultMetricsBatchTimeout)
	v.SetDefault("pid_file", "")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	// Flags end at the first command word, so "renice PID -5" keeps -5.
	fs.SetInterspersed(false)
	fs.String("config", "", "Path to a TOML configuration file")
	fs.Duration("interval", DefaultInterval, "Interval between process table samples")
	fs.Duration("sample-timeout", 0, "Upper bound for one sampling pass (0 uses the interval)")
	fs.Int("history-size", DefaultHistorySize, "Number of snapshots kept in history")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Int("rows", 0, "Rows to display (0 fits the terminal)")
	fs.String("search", "", "Only show processes whose name contains this text")
	fs.Float64("cpu-min", 0, "Only show processes at or above this CPU percentage")
	fs.Float64("mem-min", 0, "Only show processes at or above this memory percentage")
	fs.String("sort", DefaultSort, "Sort column: pid, name, cpu, memory, threads")
	fs.Bool("ascending", false, "Sort ascending instead of descending")
	fs.Bool("metrics", false, "Record sampler metrics to a sqlite database")
	fs.String("metrics-db", DefaultMetricsDB, "Path to the metrics database")
	fs.String("pid-file", "", "Path to the monitor pid file (default in the temp directory)")
	return fs
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Name == "config" {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return bindErr
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", configName))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.SampleTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.SampleTimeout)
	}
	if c.HistorySize < 1 {
		return errFactory.WithData(errors.ErrInvalidHistorySize, c.HistorySize)
	}
	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.CPUMin < 0 || c.MemMin < 0 {
		return errFactory.WithData(errors.ErrInvalidThreshold, struct {
			CPUMin float64
			MemMin float64
		}{c.CPUMin, c.MemMin})
	}
	if _, err := query.ParseColumn(c.Sort); err != nil {
		return err
	}
	if c.Metrics && c.MetricsDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "metrics enabled without a database path")
	}

	return nil
}

// EffectiveLogLevel resolves --debug and --verbose against log_level.
func (c *Config) EffectiveLogLevel() string {
	level := strings.ToLower(c.LogLevel)
	switch {
	case c.Debug:
		return string(LogLevelDebug)
	case c.Verbose && LogLevel(level) != LogLevelDebug:
		return string(LogLevelInfo)
	default:
		return level
	}
}

// EffectiveSampleTimeout returns the per-pass bound, defaulting to the interval.
func (c *Config) EffectiveSampleTimeout() time.Duration {
	if c.SampleTimeout > 0 {
		return c.SampleTimeout
	}
	return c.Interval
}
