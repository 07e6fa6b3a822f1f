package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits are the resource limits applied to every container at creation
// time. They are immutable for the container's lifetime.
type Limits struct {
	MemLimit  string `yaml:"mem_limit"`  // docker size string, e.g. "512m"
	CPUPeriod int64  `yaml:"cpu_period"` // microseconds
	CPUQuota  int64  `yaml:"cpu_quota"`  // microseconds per period
}

type PoolConfig struct {
	Capacity       int           `yaml:"capacity"`
	Image          string        `yaml:"image"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	MemLimit       string        `yaml:"mem_limit"`
	CPUPeriod      int64         `yaml:"cpu_period"`
	CPUQuota       int64         `yaml:"cpu_quota"`
}

type SandboxConfig struct {
	BaseImage       string        `yaml:"base_image"`
	PersistentName  string        `yaml:"persistent_name"`
	NetworkMode     string        `yaml:"network_mode"`
	DNS             []string      `yaml:"dns"`
	Limits          Limits        `yaml:"limits"`
	StartRetries    int           `yaml:"start_retries"`
	StartInterval   time.Duration `yaml:"start_interval"`
	StopGracePeriod time.Duration `yaml:"stop_grace_period"`
}

type WorkerConfig struct {
	BashTimeout time.Duration `yaml:"bash_timeout"`
}

type Config struct {
	DBPath  string        `yaml:"db_path"`
	Pool    PoolConfig    `yaml:"pool"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Worker  WorkerConfig  `yaml:"worker"`
}

// Load reads cfgPath (optional) and applies KAPSEL_* env overrides on
// top of the defaults. A missing file is not an error.
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		DBPath: ":memory:",
		Pool: PoolConfig{
			Capacity:       2,
			Image:          "python:3.9-slim",
			PollInterval:   100 * time.Millisecond,
			AcquireTimeout: 30 * time.Second,
			MemLimit:       "100m",
			CPUPeriod:      100000,
			CPUQuota:       50000,
		},
		Sandbox: SandboxConfig{
			BaseImage:       "python:3.9-slim",
			PersistentName:  "kapsel-persistent",
			NetworkMode:     "bridge",
			DNS:             []string{"8.8.8.8", "8.8.4.4"},
			Limits:          Limits{MemLimit: "512m", CPUPeriod: 100000, CPUQuota: 50000},
			StartRetries:    10,
			StartInterval:   500 * time.Millisecond,
			StopGracePeriod: 10 * time.Second,
		},
		Worker: WorkerConfig{
			BashTimeout: 30 * time.Second,
		},
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KAPSEL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("KAPSEL_POOL_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Capacity = n
		}
	}
	if v := os.Getenv("KAPSEL_POOL_IMAGE"); v != "" {
		cfg.Pool.Image = v
	}
	if v := os.Getenv("KAPSEL_POOL_ACQUIRE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pool.AcquireTimeout = d
		}
	}
	if v := os.Getenv("KAPSEL_BASE_IMAGE"); v != "" {
		cfg.Sandbox.BaseImage = v
	}
	if v := os.Getenv("KAPSEL_PERSISTENT_NAME"); v != "" {
		cfg.Sandbox.PersistentName = v
	}
	if v := os.Getenv("KAPSEL_NETWORK_MODE"); v != "" {
		cfg.Sandbox.NetworkMode = v
	}
	if v := os.Getenv("KAPSEL_DNS"); v != "" {
		cfg.Sandbox.DNS = strings.Split(v, ",")
	}
	if v := os.Getenv("KAPSEL_MEM_LIMIT"); v != "" {
		cfg.Sandbox.Limits.MemLimit = v
	}
	if v := os.Getenv("KAPSEL_CPU_PERIOD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sandbox.Limits.CPUPeriod = n
		}
	}
	if v := os.Getenv("KAPSEL_CPU_QUOTA"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sandbox.Limits.CPUQuota = n
		}
	}
	if v := os.Getenv("KAPSEL_BASH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.BashTimeout = d
		}
	}
}
