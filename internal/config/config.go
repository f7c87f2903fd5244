package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverCassandra = "cassandra"
	DriverMySQL     = "mysql"
	DriverSQLite    = "sqlite"
)

type Config struct {
	Driver            string   `yaml:"driver"`
	Hosts             []string `yaml:"hosts"`
	Port              int      `yaml:"port"`
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	DSN               string   `yaml:"dsn"`
	Keyspace          string   `yaml:"keyspace"`
	EnsureKeyspace    bool     `yaml:"ensure_keyspace"`
	UseKeyspace       bool     `yaml:"use_keyspace"`
	ReplicationFactor int      `yaml:"replication_factor"`
	Consistency       string   `yaml:"consistency"`
	TimeoutSec        int      `yaml:"timeout_sec"`
	Dir               string   `yaml:"dir"`
	MigrationsTable   string   `yaml:"migrations_table"`
	JSON              bool     `yaml:"json"`
	Verbose           bool     `yaml:"verbose"`
	MetricsFile       string   `yaml:"metrics_file"`
}

func Default() *Config {
	return &Config{
		Driver:            DriverCassandra,
		Hosts:             []string{"127.0.0.1"},
		Port:              9042,
		ReplicationFactor: 1,
		Consistency:       "quorum",
		TimeoutSec:        30,
		Dir:               "./migrations",
		MigrationsTable:   "migration_history",
	}
}

func LoadYAML(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func MergeEnv(cfg *Config) *Config {
	if v := os.Getenv("SHIFT_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("SHIFT_HOSTS"); v != "" {
		cfg.Hosts = SplitList(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("SHIFT_KEYSPACE"); v != "" {
		cfg.Keyspace = v
	}
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		cfg.Dir = v
	}
	if v := os.Getenv("MIGRATIONS_TABLE"); v != "" {
		cfg.MigrationsTable = v
	}
	if v := os.Getenv("SHIFT_CONSISTENCY"); v != "" {
		cfg.Consistency = v
	}
	if v := os.Getenv("SHIFT_TIMEOUT_SEC"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSec = i
		}
	}
	return cfg
}

// SplitList splits a comma separated host list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverCassandra:
		if len(c.Hosts) == 0 {
			errs = append(errs, errors.New("hosts: at least one host is required for cassandra"))
		}
	case DriverMySQL, DriverSQLite:
		if c.DSN == "" {
			errs = append(errs, fmt.Errorf("dsn: required for %s", c.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("driver: unknown %q", c.Driver))
	}
	if (c.EnsureKeyspace || c.UseKeyspace) && c.Keyspace == "" {
		errs = append(errs, errors.New("keyspace: required when ensuring or using a keyspace"))
	}
	if c.Dir == "" {
		errs = append(errs, errors.New("dir: migrations directory is required"))
	}
	if c.MigrationsTable == "" {
		errs = append(errs, errors.New("migrations_table: must not be empty"))
	}
	if c.ReplicationFactor < 1 {
		errs = append(errs, errors.New("replication_factor: must be at least 1"))
	}
	return errors.Join(errs...)
}
