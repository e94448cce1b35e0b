package main

import (
	"flag"
	"time"

	"github.com/matst80/warppipe/internal/config"
	"github.com/matst80/warppipe/internal/obs"
)

// Config holds all relay runtime configuration. Flags win over the YAML
// file, the file wins over defaults.
type Config struct {
	PublicAddr    string
	AuxAddr       string
	MetricsAddr   string
	AwaitTimeout  time.Duration
	SweepInterval time.Duration
	AcceptRate    float64
	AcceptBurst   int64
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Debug         bool
	ConfigFile    string
}

// fileConfig is the YAML shape of the optional -config file.
type fileConfig struct {
	Public        string          `yaml:"public,omitempty"`
	Aux           string          `yaml:"aux,omitempty"`
	Metrics       string          `yaml:"metrics,omitempty"`
	AwaitTimeout  config.Duration `yaml:"await_timeout,omitempty"`
	SweepInterval config.Duration `yaml:"sweep_interval,omitempty"`
	AcceptRate    float64         `yaml:"accept_rate,omitempty"`
	AcceptBurst   int64           `yaml:"accept_burst,omitempty"`
	RedisAddr     string          `yaml:"redis_addr,omitempty"`
	RedisPassword string          `yaml:"redis_password,omitempty"`
	RedisDB       int             `yaml:"redis_db,omitempty"`
	Debug         bool            `yaml:"debug,omitempty"`
	Log           *logFileConfig  `yaml:"log,omitempty"`
}

type logFileConfig struct {
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size,omitempty"` // megabytes
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAge     int    `yaml:"max_age,omitempty"` // days
	Compress   bool   `yaml:"compress,omitempty"`
}

var cfg Config

func init() {
	flag.StringVar(&cfg.PublicAddr, "public", ":25565", "public listener address for player connections")
	flag.StringVar(&cfg.AuxAddr, "aux", ":25566", "auxiliary listener address for forwarder control and data connections")
	flag.StringVar(&cfg.MetricsAddr, "metrics", ":9100", "metrics and health listen address")
	flag.DurationVar(&cfg.AwaitTimeout, "await-timeout", 10*time.Second, "time limit for the forwarder to establish a data connection")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", 5*time.Second, "interval for sweeping expired awaiting sessions")
	flag.Float64Var(&cfg.AcceptRate, "accept-rate", 0, "player connections per second allowed per remote IP (0 = unlimited)")
	flag.Int64Var(&cfg.AcceptBurst, "accept-burst", 10, "player connection burst allowed per remote IP")
	flag.StringVar(&cfg.RedisAddr, "redis", "", "optional redis address for fleet-visible session state")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logs")
	flag.StringVar(&cfg.ConfigFile, "config", "", "optional YAML config file; explicit flags override it")
}

// applyConfigFile overlays the YAML file onto cfg for every flag the user
// did not set explicitly, and wires up the rotating log file if configured.
func applyConfigFile() error {
	if cfg.ConfigFile == "" {
		return nil
	}
	var fc fileConfig
	if err := config.Load(cfg.ConfigFile, &fc); err != nil {
		return err
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["public"] && fc.Public != "" {
		cfg.PublicAddr = fc.Public
	}
	if !set["aux"] && fc.Aux != "" {
		cfg.AuxAddr = fc.Aux
	}
	if !set["metrics"] && fc.Metrics != "" {
		cfg.MetricsAddr = fc.Metrics
	}
	if !set["await-timeout"] && fc.AwaitTimeout != 0 {
		cfg.AwaitTimeout = fc.AwaitTimeout.Duration()
	}
	if !set["sweep-interval"] && fc.SweepInterval != 0 {
		cfg.SweepInterval = fc.SweepInterval.Duration()
	}
	if !set["accept-rate"] && fc.AcceptRate != 0 {
		cfg.AcceptRate = fc.AcceptRate
	}
	if !set["accept-burst"] && fc.AcceptBurst != 0 {
		cfg.AcceptBurst = fc.AcceptBurst
	}
	if !set["redis"] && fc.RedisAddr != "" {
		cfg.RedisAddr = fc.RedisAddr
	}
	if !set["redis-password"] && fc.RedisPassword != "" {
		cfg.RedisPassword = fc.RedisPassword
	}
	if !set["redis-db"] && fc.RedisDB != 0 {
		cfg.RedisDB = fc.RedisDB
	}
	if !set["debug"] && fc.Debug {
		cfg.Debug = true
	}
	if fc.Log != nil && fc.Log.Filename != "" {
		obs.FileOutput(fc.Log.Filename, fc.Log.MaxSize, fc.Log.MaxBackups, fc.Log.MaxAge, fc.Log.Compress)
	}
	return nil
}
