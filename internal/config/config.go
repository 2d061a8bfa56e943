package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Scan    ScanConfig    `yaml:"scan" mapstructure:"scan"`
	Promote PromoteConfig `yaml:"promote" mapstructure:"promote"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ScanConfig configures directory traversal and artifact output.
type ScanConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	Recursive bool   `yaml:"recursive" mapstructure:"recursive"`
	Workers   int    `yaml:"workers" mapstructure:"workers"`
}

// PromoteConfig configures field promotion rules.
type PromoteConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// ReportConfig configures the run summary workbook.
type ReportConfig struct {
	Workbook     bool   `yaml:"workbook" mapstructure:"workbook"`
	WorkbookName string `yaml:"workbook_name" mapstructure:"workbook_name"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("IMGMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("scan.workers", 1)
	v.SetDefault("report.workbook", true)
	v.SetDefault("report.workbook_name", "metadata_summary.xlsx")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks configuration values before a run.
func (c *Config) Validate() error {
	var problems []string

	if c.Scan.Workers < 1 || c.Scan.Workers > 64 {
		problems = append(problems, "scan.workers must be between 1 and 64")
	}
	if c.Report.Workbook && c.Report.WorkbookName == "" {
		problems = append(problems, "report.workbook_name is required when report.workbook is enabled")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
