// Package config loads pagetree settings from a yaml file, PAGETREE_*
// environment variables and built-in defaults, in increasing order of
// precedence: defaults < file < environment.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	File   string `mapstructure:"file"`
	Degree int    `mapstructure:"degree"`
	Logger Logger `mapstructure:"logger"`
	Bench  Bench  `mapstructure:"bench"`
}

// Logger configures the zap logger and its rotating file.
type Logger struct {
	LogLevel    string `mapstructure:"log_level"`
	FileLogName string `mapstructure:"file_log_name"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	MaxSize     int    `mapstructure:"max_size"`
	Compress    bool   `mapstructure:"compress"`
}

// Bench configures the benchmark command.
type Bench struct {
	Records    int    `mapstructure:"records"`
	LSMDir     string `mapstructure:"lsm_dir"`
	ResultsDir string `mapstructure:"results_dir"`
	Degrees    []int  `mapstructure:"degrees"`
	MemTable   int    `mapstructure:"memtable"` // in-memory LSM flush threshold
}

var ErrInvalid = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("file", "pagetree.db")
	v.SetDefault("degree", 4)

	v.SetDefault("logger.log_level", "info")
	v.SetDefault("logger.file_log_name", "")
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.compress", false)

	v.SetDefault("bench.records", 10000)
	v.SetDefault("bench.lsm_dir", "pagetree-lsm")
	v.SetDefault("bench.results_dir", "results")
	v.SetDefault("bench.degrees", []int{4, 16, 64})
	v.SetDefault("bench.memtable", 1000)
}

// Load reads the configuration. An explicit path must exist; without one,
// pagetree.yaml is searched in ., ./config and $HOME/.pagetree and a missing
// file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pagetree")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.pagetree")
	}

	setDefaults(v)

	// Allow environment variables, PAGETREE_LOGGER_LOG_LEVEL for logger.log_level
	v.SetEnvPrefix("PAGETREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, "config: read")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the tree and the benchmark depend on.
func (c *Config) Validate() error {
	if c.File == "" {
		return errors.Wrap(ErrInvalid, "file must not be empty")
	}
	if c.Degree < 2 {
		return errors.Wrapf(ErrInvalid, "degree %d, need at least 2", c.Degree)
	}
	if c.Bench.Records < 0 {
		return errors.Wrapf(ErrInvalid, "bench.records %d", c.Bench.Records)
	}
	if c.Bench.MemTable < 0 {
		return errors.Wrapf(ErrInvalid, "bench.memtable %d", c.Bench.MemTable)
	}
	for _, d := range c.Bench.Degrees {
		if d < 2 {
			return errors.Wrapf(ErrInvalid, "bench degree %d, need at least 2", d)
		}
	}
	return nil
}
