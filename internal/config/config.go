package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Data       DataConfig       `mapstructure:"data"`
	Columns    ColumnsConfig    `mapstructure:"columns"`
	Study      StudyConfig      `mapstructure:"study"`
	Estimation EstimationConfig `mapstructure:"estimation"`
	Plot       PlotConfig       `mapstructure:"plot"`
	Export     ExportConfig     `mapstructure:"export"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DataConfig locates the input dataset. Dir is also where the chart is written.
type DataConfig struct {
	Dir  string `mapstructure:"dir"`
	File string `mapstructure:"file"`
}

// ColumnsConfig names the dataset columns the study reads.
type ColumnsConfig struct {
	Outcome           string   `mapstructure:"outcome"`
	Baseline          string   `mapstructure:"baseline"`
	Cluster           string   `mapstructure:"cluster"`
	IndicatorPrefix   string   `mapstructure:"indicator_prefix"`
	InteractionPrefix string   `mapstructure:"interaction_prefix"`
	StatePrefix       string   `mapstructure:"state_prefix"`
	TimePrefix        string   `mapstructure:"time_prefix"`
	Controls          []string `mapstructure:"controls"`
	IncludeBaseline   bool     `mapstructure:"include_baseline"`
}

// StudyConfig describes the event-time layout.
type StudyConfig struct {
	Periods         int `mapstructure:"periods"`
	ReferencePeriod int `mapstructure:"reference_period"`
	// PlotMin and PlotMax are exclusive bounds on event time for the plotted set.
	PlotMin int `mapstructure:"plot_min"`
	PlotMax int `mapstructure:"plot_max"`
}

// EstimationConfig holds OLS settings.
type EstimationConfig struct {
	VarianceThreshold float64 `mapstructure:"variance_threshold"`
	ConfidenceLevel   float64 `mapstructure:"confidence_level"`
	Inference         string  `mapstructure:"inference"` // "normal" or "t"
	DropCollinear     bool    `mapstructure:"drop_collinear"`
}

// PlotConfig holds chart styling. Axis ranges and ticks are fixed, never derived from data.
type PlotConfig struct {
	Output   string    `mapstructure:"output"`
	Title    string    `mapstructure:"title"`
	XLabel   string    `mapstructure:"x_label"`
	YLabel   string    `mapstructure:"y_label"`
	XMin     float64   `mapstructure:"x_min"`
	XMax     float64   `mapstructure:"x_max"`
	YMin     float64   `mapstructure:"y_min"`
	YMax     float64   `mapstructure:"y_max"`
	XTicks   []float64 `mapstructure:"x_ticks"`
	YTicks   []float64 `mapstructure:"y_ticks"`
	WidthIn  float64   `mapstructure:"width_in"`
	HeightIn float64   `mapstructure:"height_in"`
	DPI      int       `mapstructure:"dpi"`
	Display  bool      `mapstructure:"display"`
}

// ExportConfig controls the spreadsheet export of the effect table.
type ExportConfig struct {
	TablePath string `mapstructure:"table_path"`
}

// StorageConfig holds run history persistence configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path, or a path that does not exist, yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("EVENTSTUDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", ".")
	v.SetDefault("data.file", "inc_rate_ES.dta")

	v.SetDefault("columns.outcome", "Measles")
	v.SetDefault("columns.baseline", "avg_12yr_measles_rate")
	v.SetDefault("columns.cluster", "statefip")
	v.SetDefault("columns.indicator_prefix", "_Texp_")
	v.SetDefault("columns.interaction_prefix", "exp_Mpre_")
	v.SetDefault("columns.state_prefix", "_Istatefip_")
	v.SetDefault("columns.time_prefix", "_Texp_")
	v.SetDefault("columns.controls", []string{"population"})
	v.SetDefault("columns.include_baseline", true)

	v.SetDefault("study.periods", 18)
	v.SetDefault("study.reference_period", 6)
	v.SetDefault("study.plot_min", -6)
	v.SetDefault("study.plot_max", 11)

	v.SetDefault("estimation.variance_threshold", 1e-10)
	v.SetDefault("estimation.confidence_level", 0.95)
	v.SetDefault("estimation.inference", "normal")
	v.SetDefault("estimation.drop_collinear", false)

	v.SetDefault("plot.output", "Figure3.png")
	v.SetDefault("plot.title", "Measles rate by year (per 100,000)")
	v.SetDefault("plot.x_label", "Years relative to measles vaccine availability")
	v.SetDefault("plot.y_label", "Measles rate by year (per 100,000)")
	v.SetDefault("plot.x_min", -5.0)
	v.SetDefault("plot.x_max", 10.0)
	v.SetDefault("plot.y_min", -1.5)
	v.SetDefault("plot.y_max", 1.0)
	v.SetDefault("plot.x_ticks", []float64{-5, 0, 5, 10})
	v.SetDefault("plot.y_ticks", []float64{-1.5, -1, -0.5, 0, 0.5, 1})
	v.SetDefault("plot.width_in", 10.0)
	v.SetDefault("plot.height_in", 6.0)
	v.SetDefault("plot.dpi", 300)
	v.SetDefault("plot.display", true)

	v.SetDefault("export.table_path", "")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.db_path", "./data/eventstudy.db")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Data.File == "" {
		return fmt.Errorf("data.file is required")
	}

	if c.Columns.Outcome == "" || c.Columns.Baseline == "" || c.Columns.Cluster == "" {
		return fmt.Errorf("columns.outcome, columns.baseline and columns.cluster are required")
	}
	if c.Columns.IndicatorPrefix == "" || c.Columns.InteractionPrefix == "" {
		return fmt.Errorf("columns.indicator_prefix and columns.interaction_prefix are required")
	}
	if c.Columns.StatePrefix == "" || c.Columns.TimePrefix == "" {
		return fmt.Errorf("columns.state_prefix and columns.time_prefix are required")
	}

	if c.Study.Periods < 2 {
		return fmt.Errorf("study.periods must be at least 2")
	}
	if c.Study.ReferencePeriod < 1 || c.Study.ReferencePeriod > c.Study.Periods {
		return fmt.Errorf("study.reference_period must be between 1 and study.periods")
	}
	if c.Study.PlotMin >= c.Study.PlotMax {
		return fmt.Errorf("study.plot_min must be less than study.plot_max")
	}

	if c.Estimation.VarianceThreshold < 0 {
		return fmt.Errorf("estimation.variance_threshold must not be negative")
	}
	if c.Estimation.ConfidenceLevel <= 0 || c.Estimation.ConfidenceLevel >= 1 {
		return fmt.Errorf("estimation.confidence_level must be between 0 and 1 (exclusive)")
	}
	if c.Estimation.Inference != "normal" && c.Estimation.Inference != "t" {
		return fmt.Errorf("estimation.inference must be one of: normal, t")
	}

	if c.Plot.Output == "" {
		return fmt.Errorf("plot.output is required")
	}
	if c.Plot.XMin >= c.Plot.XMax || c.Plot.YMin >= c.Plot.YMax {
		return fmt.Errorf("plot axis minimums must be less than maximums")
	}
	if c.Plot.WidthIn <= 0 || c.Plot.HeightIn <= 0 {
		return fmt.Errorf("plot.width_in and plot.height_in must be positive")
	}
	if c.Plot.DPI < 1 {
		return fmt.Errorf("plot.dpi must be at least 1")
	}

	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when storage is enabled")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// DataPath returns the dataset location.
func (c *Config) DataPath() string {
	return filepath.Join(c.Data.Dir, c.Data.File)
}

// ChartPath returns where the chart is written.
func (c *Config) ChartPath() string {
	return filepath.Join(c.Data.Dir, c.Plot.Output)
}
