package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/waveframe/internal/media"
	"github.com/waveframe/pkg/logger"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Output  OutputConfig  `mapstructure:"output"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Apprise AppriseConfig `mapstructure:"apprise"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type OutputConfig struct {
	// Directory overrides where videos are written. Empty means "beside
	// the source file".
	Directory string `mapstructure:"directory"`
	// PreserveMetadata copies source tags into the output container.
	PreserveMetadata bool `mapstructure:"preserve_metadata"`
	// Quality: "low", "medium", or "high".
	Quality string `mapstructure:"quality"`
}

type QueueConfig struct {
	// MaxConcurrentJobs bounds simultaneous conversions (1-5).
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`
	// MaxPendingJobs bounds the queued backlog.
	MaxPendingJobs int `mapstructure:"max_pending_jobs"`
	// CompletedCapacity bounds the recently-completed history.
	CompletedCapacity int `mapstructure:"completed_capacity"`
}

type ToolsConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
}

type AppriseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Key     string `mapstructure:"key"`
	Tag     string `mapstructure:"tag"`
}

func setDefaults() {
	viper.SetDefault("server.port", 8570)
	viper.SetDefault("output.directory", "")
	viper.SetDefault("output.preserve_metadata", true)
	viper.SetDefault("output.quality", "medium")
	viper.SetDefault("queue.max_concurrent_jobs", 1)
	viper.SetDefault("queue.max_pending_jobs", 50)
	viper.SetDefault("queue.completed_capacity", 20)
	viper.SetDefault("tools.ffmpeg_path", "ffmpeg")
	viper.SetDefault("tools.ffprobe_path", "ffprobe")
}

// Validate rejects configurations that would break the controller.
func (c *Config) Validate() error {
	if c.Queue.MaxConcurrentJobs < 1 || c.Queue.MaxConcurrentJobs > 5 {
		return fmt.Errorf("queue.max_concurrent_jobs must be between 1 and 5, got %d", c.Queue.MaxConcurrentJobs)
	}
	if c.Queue.MaxPendingJobs < 1 {
		return fmt.Errorf("queue.max_pending_jobs must be positive, got %d", c.Queue.MaxPendingJobs)
	}
	if c.Queue.CompletedCapacity < 1 {
		return fmt.Errorf("queue.completed_capacity must be positive, got %d", c.Queue.CompletedCapacity)
	}
	return nil
}

// ChangeCallback is called when config changes.
type ChangeCallback func(old, new *Config)

// Manager handles config loading and hot-reload.
type Manager struct {
	mu        sync.RWMutex
	cfg       *Config
	callbacks []ChangeCallback
	stop      chan struct{}

	path        string
	lastModTime time.Time
}

// NewManager creates a config manager with hot-reload support via polling.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	var lastMod time.Time
	if stat, err := os.Stat(path); err == nil {
		lastMod = stat.ModTime()
	}

	m := &Manager{
		cfg:         cfg,
		stop:        make(chan struct{}),
		path:        path,
		lastModTime: lastMod,
	}

	go m.pollForChanges(10 * time.Second)

	return m, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) OnChange(cb ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Manager) Stop() {
	close(m.stop)
}

func (m *Manager) pollForChanges(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			stat, err := os.Stat(m.path)
			if err != nil {
				continue
			}

			m.mu.RLock()
			lastMod := m.lastModTime
			m.mu.RUnlock()

			if stat.ModTime().After(lastMod) {
				logger.Infof("Config file changed, reloading")

				m.mu.Lock()
				m.lastModTime = stat.ModTime()
				m.mu.Unlock()

				m.reload()
			}
		}
	}
}

func (m *Manager) reload() {
	newCfg, err := Load(m.path)
	if err != nil {
		logger.Errorf("Failed to reload config, keeping previous: %v", err)
		return
	}

	m.mu.Lock()
	oldCfg := m.cfg
	m.cfg = newCfg
	callbacks := m.callbacks
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(oldCfg, newCfg)
	}
}

// Load reads and validates a config file once.
func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("WAVEFRAME")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Unknown quality degrades rather than refusing to start.
	if _, err := media.ParseQuality(cfg.Output.Quality); err != nil {
		logger.Warnf("Unknown output.quality %q, using medium", cfg.Output.Quality)
		cfg.Output.Quality = string(media.QualityMedium)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
