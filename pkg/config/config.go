package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/retail-analytics/rfm-segments/pkg/segment"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig          `yaml:"store" mapstructure:"store"`
	Source      SourceConfig         `yaml:"source" mapstructure:"source"`
	Filter      FilterConfig         `yaml:"filter" mapstructure:"filter"`
	Analysis    AnalysisConfig       `yaml:"analysis" mapstructure:"analysis"`
	Output      OutputConfig         `yaml:"output" mapstructure:"output"`
	Schedule    ScheduleConfig       `yaml:"schedule" mapstructure:"schedule"`
	Log         LogConfig            `yaml:"log" mapstructure:"log"`
	CohortsFile string               `yaml:"cohorts_file" mapstructure:"cohorts_file"`
	Cohorts     []segment.Definition `yaml:"cohorts" mapstructure:"cohorts"`
}

// StoreConfig configures the retail database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// SourceConfig selects where transactions are loaded from.
type SourceConfig struct {
	Kind        string `yaml:"kind" mapstructure:"kind"`
	CSVPath     string `yaml:"csv_path" mapstructure:"csv_path"`
	CSVEncoding string `yaml:"csv_encoding" mapstructure:"csv_encoding"`
}

// FilterConfig restricts the transactions to one market.
type FilterConfig struct {
	Country string `yaml:"country" mapstructure:"country"`
}

// AnalysisConfig fixes the analysis window and reference date.
type AnalysisConfig struct {
	Year       int    `yaml:"year" mapstructure:"year"`
	StartMonth string `yaml:"start_month" mapstructure:"start_month"`
	EndMonth   string `yaml:"end_month" mapstructure:"end_month"`
	AsOf       string `yaml:"as_of" mapstructure:"as_of"`
	Workers    int    `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig configures the scored table and report files.
type OutputConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	Format      string `yaml:"format" mapstructure:"format"`
	CohortsPath string `yaml:"cohorts_path" mapstructure:"cohorts_path"`
	TopN        int    `yaml:"top_n" mapstructure:"top_n"`
}

// ScheduleConfig configures periodic batch runs.
type ScheduleConfig struct {
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Source kinds.
const (
	SourceDatabase = "database"
	SourceCSV      = "csv"
)

// Load reads configuration from file and environment. An empty path looks
// for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RFM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "retail_data.db")
	v.SetDefault("store.table", "retail")
	v.SetDefault("source.kind", SourceDatabase)
	v.SetDefault("source.csv_path", "Retail_in_UK.csv")
	v.SetDefault("source.csv_encoding", "iso-8859-1")
	v.SetDefault("filter.country", "United Kingdom")
	v.SetDefault("analysis.year", 2023)
	v.SetDefault("analysis.start_month", "")
	v.SetDefault("analysis.end_month", "")
	v.SetDefault("analysis.as_of", "2023-12-09")
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("output.path", "out/rfm_segmentation.csv")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.cohorts_path", "out/rfm_report.yaml")
	v.SetDefault("output.top_n", 10)
	v.SetDefault("schedule.cron", "0 0 6 * * 1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cohorts_file", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// CohortDefinitions resolves the cohorts to report: the cohorts file when
// set, else the inline list, else the defaults.
func (c *Config) CohortDefinitions() ([]segment.Definition, error) {
	if c.CohortsFile != "" {
		defs, err := segment.LoadDefinitions(c.CohortsFile)
		if err != nil {
			return nil, eris.Wrap(err, "config: cohorts file")
		}
		return defs, nil
	}
	if len(c.Cohorts) > 0 {
		return c.Cohorts, nil
	}
	return segment.DefaultDefinitions(), nil
}

// Validate checks the settings a command needs. mode is the command name.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch c.Store.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite, mysql or postgres")
	}
	if c.Filter.Country == "" {
		problems = append(problems, "filter.country is required")
	}

	switch mode {
	case "run", "schedule":
		switch c.Source.Kind {
		case SourceDatabase:
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required")
			}
		case SourceCSV:
			if c.Source.CSVPath == "" {
				problems = append(problems, "source.csv_path is required")
			}
		default:
			problems = append(problems, "source.kind must be database or csv")
		}
		if c.Analysis.Year <= 0 && (c.Analysis.StartMonth == "" || c.Analysis.EndMonth == "") {
			problems = append(problems, "analysis.year or analysis.start_month/end_month is required")
		}
		if c.Analysis.Workers < 1 {
			problems = append(problems, "analysis.workers must be at least 1")
		}
		switch strings.ToLower(c.Output.Format) {
		case "csv", "xlsx", "json":
		default:
			problems = append(problems, "output.format must be csv, xlsx or json")
		}
		if c.Output.Path == "" {
			problems = append(problems, "output.path is required")
		}
		if mode == "schedule" && c.Schedule.Cron == "" {
			problems = append(problems, "schedule.cron is required")
		}
	case "extract":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
