package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/avi3tal/flowscope/internal/client"
	"github.com/avi3tal/flowscope/internal/graph"
	"github.com/avi3tal/flowscope/internal/log"
	"github.com/avi3tal/flowscope/internal/poller"
)

const DefaultBaseURL = "http://localhost:8000"

type ServerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PollingConfig struct {
	Interval          time.Duration `yaml:"interval"`
	TerminalThreshold int           `yaml:"terminal_threshold"`
}

type LayoutConfig struct {
	graph.Geometry `yaml:",inline"`
	Padding        float64 `yaml:"padding"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Config holds every setting of the console and the example programs.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Polling PollingConfig `yaml:"polling"`
	Layout  LayoutConfig  `yaml:"layout"`
	Log     LogConfig     `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: DefaultBaseURL,
			Timeout: client.DefaultTimeout,
		},
		Polling: PollingConfig{
			Interval:          poller.DefaultInterval,
			TerminalThreshold: poller.DefaultTerminalThreshold,
		},
		Layout: LayoutConfig{
			Geometry: graph.DefaultGeometry(),
			Padding:  graph.DefaultPadding,
		},
		Log: LogConfig{Level: log.DefaultLevel},
	}
}

// LoadConfig reads a YAML file. Settings the file leaves out keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer file.Close()

	return Decode(file)
}

// Parse is LoadConfig for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads YAML from r, fills unset values from Default and validates
// the result. An empty document yields the defaults.
func Decode(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, errors.Wrap(err, "apply config defaults")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Server.BaseURL == "":
		return errors.New("server.base_url is required")
	case c.Server.Timeout < 0:
		return errors.New("server.timeout must not be negative")
	case c.Polling.Interval <= 0:
		return errors.New("polling.interval must be positive")
	case c.Polling.TerminalThreshold < 1:
		return errors.New("polling.terminal_threshold must be at least 1")
	case c.Layout.NodeWidth <= 0 || c.Layout.NodeHeight <= 0:
		return errors.New("layout node size must be positive")
	case c.Layout.HGap < 0 || c.Layout.VGap < 0 || c.Layout.Padding < 0:
		return errors.New("layout gaps must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LayoutOptions converts the layout section into graph options.
func (c *Config) LayoutOptions() []graph.LayoutOption {
	return []graph.LayoutOption{
		graph.WithGeometry(c.Layout.Geometry),
		graph.WithPadding(c.Layout.Padding),
	}
}

// ClientOptions converts the server section into client options.
func (c *Config) ClientOptions() []client.Option {
	return []client.Option{client.WithTimeout(c.Server.Timeout)}
}

// PollerOptions converts the polling section into poller options.
func (c *Config) PollerOptions() []poller.Option {
	return []poller.Option{
		poller.WithInterval(c.Polling.Interval),
		poller.WithTerminalThreshold(c.Polling.TerminalThreshold),
	}
}
