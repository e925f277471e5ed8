package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alucardeht/memvault/internal/watcher"
)

type MemuConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MemorizeTimeout time.Duration `yaml:"memorize_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	WaitOnUpload    bool          `yaml:"wait_on_upload"`
}

type RewriteConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	BaseDir      string                `yaml:"base_dir"`
	SocketPath   string                `yaml:"socket_path"`
	DatabasePath string                `yaml:"database_path"`
	StorageDir   string                `yaml:"storage_dir"`
	DefaultStore string                `yaml:"default_storage_dir"`
	DownloadsDir string                `yaml:"downloads_dir"`
	Scenarios    string                `yaml:"scenarios_path"`
	UserID       string                `yaml:"user_id"`
	AgentID      string                `yaml:"agent_id"`
	LogLevel     string                `yaml:"log_level"`
	LogFormat    string                `yaml:"log_format"`
	Memu         MemuConfig            `yaml:"memu"`
	Rewrite      RewriteConfig         `yaml:"rewrite"`
	Watcher      watcher.WatcherConfig `yaml:"watcher"`
}

func defaultBaseDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".memvault")
}

func Default() *Config {
	baseDir := defaultBaseDir()
	storageDir := filepath.Join(baseDir, "storage")

	return &Config{
		BaseDir:      baseDir,
		SocketPath:   filepath.Join(baseDir, "daemon.sock"),
		DatabasePath: filepath.Join(baseDir, "records.db"),
		StorageDir:   storageDir,
		DefaultStore: storageDir,
		DownloadsDir: filepath.Join(baseDir, "downloads"),
		Scenarios:    filepath.Join(baseDir, "config", "memu_scenarios.json"),
		UserID:       "merge_user",
		AgentID:      DefaultAgent,
		LogLevel:     "info",
		LogFormat:    "text",
		Memu: MemuConfig{
			BaseURL:         "https://api.memu.so",
			RequestTimeout:  30 * time.Second,
			PollInterval:    2 * time.Second,
			MemorizeTimeout: 120 * time.Second,
			RateLimit:       5,
			WaitOnUpload:    true,
		},
		Rewrite: RewriteConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4o-mini",
			Timeout: 15 * time.Second,
		},
		Watcher: watcher.DefaultWatcherConfig(),
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file in the working directory, and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// a missing .env is the normal case outside development
	_ = godotenv.Load()

	cfg.applyEnv()

	if cfg.DefaultStore == "" {
		cfg.DefaultStore = cfg.StorageDir
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Memu.APIKey, "MEMU_API_KEY")
	setString(&c.Memu.BaseURL, "MEMU_BASE_URL")
	setString(&c.UserID, "MEMU_USER_ID")
	setString(&c.AgentID, "MEMU_AGENT_ID")
	setString(&c.StorageDir, "MEMVAULT_STORAGE_DIR")
	setString(&c.DatabasePath, "MEMVAULT_DB")
	setString(&c.SocketPath, "MEMVAULT_SOCKET")
	setString(&c.Scenarios, "MEMVAULT_SCENARIOS")
	setString(&c.LogLevel, "MEMVAULT_LOG_LEVEL")
	setString(&c.LogFormat, "MEMVAULT_LOG_FORMAT")
	setString(&c.Rewrite.APIKey, "OPENROUTER_API_KEY")
	setString(&c.Rewrite.BaseURL, "OPENROUTER_BASE_URL")

	if v := strings.TrimSpace(os.Getenv("MEMVAULT_QUERY_REWRITE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Rewrite.Enabled = b
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.BaseDir, c.StorageDir, c.DownloadsDir, filepath.Dir(c.DatabasePath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
