package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	StatusAddr string
	LogLevel   string

	DBPath string // Directory to store the committed-path log in. Should exist and be writable.

	// Per-domain quota on owned tree nodes. Zero disables the limit.
	MaxNodesPerDomain int
	// Largest accepted entry value, in bytes. Zero disables the limit.
	MaxEntrySize int
	// How many transactions one session may hold open at once.
	MaxTxnPerSession int

	// Watch delivery tuning: queue length per subscriber and the event
	// rate/burst above which events are dropped.
	WatchQueueLen   int
	WatchEventRate  float64
	WatchEventBurst int

	// TestConflict forces roughly one in three otherwise-successful commits
	// to report conflict, for exercising retry logic in calling code. Never
	// enable outside tests.
	TestConflict bool
}

func (c *Config) Validate() error {
	if c.MaxTxnPerSession <= 0 {
		return fmt.Errorf("max transactions per session must be greater than 0")
	}
	if c.WatchQueueLen <= 0 {
		return fmt.Errorf("watch queue length must be greater than 0")
	}
	if c.WatchEventRate <= 0 || c.WatchEventBurst <= 0 {
		return fmt.Errorf("watch event rate and burst must be greater than 0")
	}
	return nil
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		StatusAddr:        "127.0.0.1:20018",
		LogLevel:          getLogLevel(),
		DBPath:            "/tmp/tinyxs",
		MaxNodesPerDomain: 1000,
		MaxEntrySize:      2048,
		MaxTxnPerSession:  10,
		WatchQueueLen:     128,
		WatchEventRate:    100,
		WatchEventBurst:   200,
	}
}

func NewTestConfig() *Config {
	return &Config{
		LogLevel:          getLogLevel(),
		DBPath:            "/tmp/tinyxs",
		MaxNodesPerDomain: 100,
		MaxEntrySize:      512,
		MaxTxnPerSession:  10,
		WatchQueueLen:     16,
		WatchEventRate:    1000,
		WatchEventBurst:   1000,
	}
}

// LoadFromFile overlays the toml file at path onto the default config.
func LoadFromFile(path string) (*Config, error) {
	conf := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
