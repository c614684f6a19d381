package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all flowgraph configuration.
// Priority: flags > FLOWGRAPH_* env vars > settings file > defaults.
type Config struct {
	DBPath             string        `mapstructure:"db_path"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	SchedulerInterval  time.Duration `mapstructure:"scheduler_interval"`
	PoolSize           int           `mapstructure:"pool_size"`
	MaxSteps           int           `mapstructure:"max_steps"`
	RedisAddr          string        `mapstructure:"redis_addr"`
	DefinitionCacheTTL time.Duration `mapstructure:"definition_cache_ttl"`
	DefinitionsDir     string        `mapstructure:"definitions_dir"`
	SealedKey          string        `mapstructure:"sealed_key"`
	SealedSalt         string        `mapstructure:"sealed_salt"`
}

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"config":      "",
	"db-path":     "db_path",
	"log-level":   "log_level",
	"log-format":  "log_format",
	"redis-addr":  "redis_addr",
	"max-steps":   "max_steps",
	"pool-size":   "pool_size",
	"sched-every": "scheduler_interval",
	"defs-dir":    "definitions_dir",
	"cache-ttl":   "definition_cache_ttl",
	"sealed-key":  "sealed_key",
	"sealed-salt": "sealed_salt",
}

func flowgraphDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowgraph"
	}
	return filepath.Join(home, ".flowgraph")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "file:"+filepath.Join(flowgraphDir(), "flowgraph.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("scheduler_interval", 10*time.Second)
	v.SetDefault("pool_size", 4)
	v.SetDefault("max_steps", 10_000)
	v.SetDefault("redis_addr", "")
	v.SetDefault("definition_cache_ttl", 5*time.Minute)
	v.SetDefault("definitions_dir", "")
	v.SetDefault("sealed_key", "")
	v.SetDefault("sealed_salt", "flowgraph")
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a settings file (default: ~/.flowgraph/settings.{yaml,json})")
	fs.String("db-path", "", "libSQL database URI")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: text or json")
	fs.String("redis-addr", "", "comma separated redis host:port list; enables the redis instance lock")
	fs.Int("max-steps", 0, "maximum activities executed per call")
	fs.Int("pool-size", 0, "timer scheduler worker pool size")
	fs.Duration("sched-every", 0, "timer scheduler poll interval")
	fs.String("defs-dir", "", "directory of definitions published on serve")
	fs.Duration("cache-ttl", 0, "definition cache TTL")
	fs.String("sealed-key", "", "passphrase for sealed variables")
	fs.String("sealed-salt", "", "salt for the sealed variable key")
}

// loadConfig layers the settings file, env vars and changed flags over the
// defaults. A missing settings file is not an error.
func loadConfig(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := ""
	if fs != nil {
		configFile, _ = fs.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(flowgraphDir())
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("FLOWGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if key == "" || f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// redisAddrs splits the configured redis address list.
func (c Config) redisAddrs() []string {
	var addrs []string
	for _, a := range strings.Split(c.RedisAddr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}
