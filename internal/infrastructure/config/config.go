package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/davarch/ci-tracker/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCachePath = "~/.cache/ci_tracker.json"
	DefaultPauseFile = "~/.cache/ci_tracker_paused"
	DefaultListen    = "127.0.0.1:7878"
)

type Repo struct {
	URL          string `yaml:"url"`
	BaseURL      string `yaml:"base_url"`
	ProjectPath  string `yaml:"project_path"`
	PipelinesURL string `yaml:"pipelines_url,omitempty"`
	Enabled      bool   `yaml:"enabled"`
}

type GitLab struct {
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	RateLimit float64       `yaml:"rate_limit,omitempty"`
	Burst     int           `yaml:"burst,omitempty"`
}

type Tracking struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	DeleteAfter     time.Duration `yaml:"delete_after"`
	Items           []string      `yaml:"items,omitempty"`
}

type AutoTrack struct {
	Enabled         bool   `yaml:"enabled"`
	PollingInterval int    `yaml:"polling_interval"`
	Repos           []Repo `yaml:"repos"`
	PauseFile       string `yaml:"pause_file,omitempty"`
}

type Config struct {
	GitLab    GitLab    `yaml:"gitlab"`
	Tracking  Tracking  `yaml:"tracking"`
	AutoTrack AutoTrack `yaml:"auto_track"`

	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`

	Notify struct {
		Disabled bool `yaml:"disabled"`
	} `yaml:"notify"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file,omitempty"`
	} `yaml:"log"`

	API struct {
		Listen string `yaml:"listen"`
	} `yaml:"api"`
}

// ConfigError reports a config file that exists but could not be parsed.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %v", e.Path, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

func Default() Config {
	var c Config
	c.GitLab.Timeout = 10 * time.Second
	c.Tracking.RefreshInterval = 10 * time.Second
	c.Tracking.DeleteAfter = 10 * time.Minute
	c.AutoTrack.PollingInterval = domain.DefaultPollingInterval
	c.AutoTrack.PauseFile = DefaultPauseFile
	c.Cache.Path = DefaultCachePath
	c.Log.Level = "info"
	c.API.Listen = DefaultListen
	return c
}

// Load reads path, applies environment overrides and fills defaults. A
// corrupt file yields the defaults together with a *ConfigError.
func Load(path string) (Config, error) {
	c, err := LoadFile(path)
	if err != nil {
		c = Default()
	}
	applyEnv(&c)
	normalize(&c)
	return c, err
}

// LoadFile reads path without environment overrides. A missing file is not
// an error.
func LoadFile(path string) (Config, error) {
	c := Default()
	if path == "" {
		normalize(&c)
		return c, nil
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		normalize(&c)
		return c, nil
	case err != nil:
		return Default(), &ConfigError{Path: path, Err: err}
	}

	if len(bytes.TrimSpace(b)) > 0 {
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Default(), &ConfigError{Path: path, Err: err}
		}
	}
	normalize(&c)
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("GITLAB_TOKEN"); v != "" {
		c.GitLab.Token = v
	}

	if v := os.Getenv("GITLAB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GitLab.Timeout = d
		}
	}

	if n, ok := envPollingInterval(); ok {
		c.AutoTrack.PollingInterval = n
	}

	if v := os.Getenv("CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if v := os.Getenv("CI_TRACKER_LISTEN"); v != "" {
		c.API.Listen = v
	}
}

func envPollingInterval() (int, bool) {
	n, err := strconv.Atoi(os.Getenv("AUTO_TRACK_INTERVAL"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func normalize(c *Config) {
	if c.GitLab.Timeout <= 0 {
		c.GitLab.Timeout = 10 * time.Second
	}
	if c.GitLab.Retries < 0 {
		c.GitLab.Retries = 0
	}
	if c.Tracking.RefreshInterval <= 0 {
		c.Tracking.RefreshInterval = 10 * time.Second
	}
	if c.Tracking.DeleteAfter <= 0 {
		c.Tracking.DeleteAfter = 10 * time.Minute
	}
	if c.AutoTrack.PollingInterval <= 0 {
		c.AutoTrack.PollingInterval = domain.DefaultPollingInterval
	}
	if c.AutoTrack.PauseFile == "" {
		c.AutoTrack.PauseFile = DefaultPauseFile
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Cache.Path = expandHome(c.Cache.Path)
	c.AutoTrack.PauseFile = expandHome(c.AutoTrack.PauseFile)
	c.Log.File = expandHome(c.Log.File)
}

func (c Config) AutoTrackConfig() domain.AutoTrackConfig {
	out := domain.AutoTrackConfig{
		Enabled:         c.AutoTrack.Enabled,
		PollingInterval: c.AutoTrack.PollingInterval,
		Repos:           make([]domain.WatchedRepo, 0, len(c.AutoTrack.Repos)),
	}
	for _, r := range c.AutoTrack.Repos {
		out.Repos = append(out.Repos, domain.WatchedRepo{
			SourceURL:    r.URL,
			BaseURL:      r.BaseURL,
			ProjectPath:  r.ProjectPath,
			PipelinesURL: r.PipelinesURL,
			Enabled:      r.Enabled,
		})
	}
	return out
}

func (c *Config) SetAutoTrack(at domain.AutoTrackConfig) {
	c.AutoTrack.Enabled = at.Enabled
	c.AutoTrack.PollingInterval = at.PollingInterval
	c.AutoTrack.Repos = make([]Repo, 0, len(at.Repos))
	for _, r := range at.Repos {
		c.AutoTrack.Repos = append(c.AutoTrack.Repos, Repo{
			URL:          r.SourceURL,
			BaseURL:      r.BaseURL,
			ProjectPath:  r.ProjectPath,
			PipelinesURL: r.PipelinesURL,
			Enabled:      r.Enabled,
		})
	}
}

func Save(path string, c Config) error {
	unlock, err := lock(path)
	if err != nil {
		return err
	}
	defer unlock()
	return write(path, c)
}

// Update applies fn to the on-disk config under the file lock. Environment
// overrides are never written back.
func Update(path string, fn func(*Config) error) error {
	unlock, err := lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := LoadFile(path)
	if err != nil {
		return err
	}
	if err := fn(&c); err != nil {
		return err
	}
	return write(path, c)
}

func lock(path string) (func(), error) {
	if path == "" {
		return nil, errors.New("empty config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	lf, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			_ = lf.Close()
			return nil, err
		}
	}

	return func() {
		if runtime.GOOS != "windows" {
			_ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
		}
		_ = lf.Close()
	}, nil
}

func write(path string, c Config) error {
	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
