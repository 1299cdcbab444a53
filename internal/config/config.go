package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is looked up in the working directory and its parents
const LocalConfigName = ".vibe-builder.toml"

// Config holds all application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Server    ServerConfig    `toml:"server"`
	Worker    WorkerConfig    `toml:"worker"`
	DevServer DevServerConfig `toml:"devserver"`
	LLM       LLMConfig       `toml:"llm"`
	Logs      LogsConfig      `toml:"logs"`
	Janitor   JanitorConfig   `toml:"janitor"`
}

// GeneralConfig holds storage locations
type GeneralConfig struct {
	DataDir      string `toml:"data_dir"`
	WorkspaceDir string `toml:"workspace_dir"`
	RegistryFile string `toml:"registry_file"`
	DatabasePath string `toml:"database_path"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// WorkerConfig holds job processing settings
type WorkerConfig struct {
	Concurrency  int      `toml:"concurrency"`
	Timeout      Duration `toml:"timeout"`
	PollInterval Duration `toml:"poll_interval"`
}

// DevServerConfig bounds the ports handed to dev servers
type DevServerConfig struct {
	PortMin int `toml:"port_min"`
	PortMax int `toml:"port_max"`
}

// LLMConfig holds chat completion settings
type LLMConfig struct {
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	Temperature float64 `toml:"temperature"`
	PromptsDir  string  `toml:"prompts_dir"`
}

// LogsConfig holds job log retention settings
type LogsConfig struct {
	TTL       Duration `toml:"ttl"`
	TailLines int      `toml:"tail_lines"`
}

// JanitorConfig holds housekeeping settings
type JanitorConfig struct {
	Schedule        string `toml:"schedule"`
	PruneDeadOnLoad bool   `toml:"prune_dead_on_load"`
}

// Duration is a time.Duration written as a string like "20m" in TOML
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".vibe-builder")
	return &Config{
		General: GeneralConfig{
			DataDir:      filepath.Join(base, "data"),
			WorkspaceDir: filepath.Join(base, "workspace"),
			RegistryFile: filepath.Join(base, "running-jobs.json"),
			DatabasePath: filepath.Join(base, "jobs.db"),
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Worker: WorkerConfig{
			Concurrency:  1,
			Timeout:      Duration{20 * time.Minute},
			PollInterval: Duration{time.Second},
		},
		DevServer: DevServerConfig{
			PortMin: 5200,
			PortMax: 5399,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4.1-mini",
			Temperature: 0.1,
		},
		Logs: LogsConfig{
			TTL:       Duration{24 * time.Hour},
			TailLines: 200,
		},
		Janitor: JanitorConfig{
			Schedule: "@every 10m",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults, and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.WorkspaceDir = ExpandPath(cfg.General.WorkspaceDir)
	cfg.General.RegistryFile = ExpandPath(cfg.General.RegistryFile)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.LLM.PromptsDir = ExpandPath(cfg.LLM.PromptsDir)

	return cfg, cfg.Validate()
}

// applyEnv lets the environment override the file. The unprefixed worker
// variables are accepted for compatibility with older deployments.
func (c *Config) applyEnv() error {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	if v := firstEnv("VIBE_WORKER_TIMEOUT_MS", "WORKER_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid worker timeout %q", v)
		}
		c.Worker.Timeout = Duration{time.Duration(ms) * time.Millisecond}
	}

	if v := firstEnv("VIBE_WORKER_CONCURRENCY", "WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid worker concurrency %q", v)
		}
		c.Worker.Concurrency = n
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.Timeout.Duration <= 0 {
		return fmt.Errorf("worker.timeout must be positive")
	}
	if c.DevServer.PortMin < 1 || c.DevServer.PortMax > 65535 || c.DevServer.PortMin > c.DevServer.PortMax {
		return fmt.Errorf("invalid devserver port range [%d, %d]", c.DevServer.PortMin, c.DevServer.PortMax)
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "vibe-builder", "config.toml")
}

// FindLocalConfig walks up from dir looking for .vibe-builder.toml
func FindLocalConfig(dir string) string {
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Resolve picks the config file: an explicit path wins, then a local
// .vibe-builder.toml, then the default location.
func Resolve(explicit string) string {
	if explicit != "" {
		return ExpandPath(explicit)
	}
	if cwd, err := os.Getwd(); err == nil {
		if local := FindLocalConfig(cwd); local != "" {
			return local
		}
	}
	return DefaultConfigPath()
}
