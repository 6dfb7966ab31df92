package config

import (
	"errors"
	"strings"

	"github.com/davarch/ci-tracker/internal/domain"
)

// Store persists the auto-track section and the token into a config file.
type Store struct {
	Path string
}

func NewStore(path string) *Store { return &Store{Path: path} }

func (s *Store) LoadAutoTrack() (domain.AutoTrackConfig, error) {
	c, err := LoadFile(s.Path)
	if err != nil {
		return domain.AutoTrackConfig{}, err
	}
	return c.AutoTrackConfig(), nil
}

// SaveAutoTrack keeps the file's polling interval while at carries the
// AUTO_TRACK_INTERVAL override.
func (s *Store) SaveAutoTrack(at domain.AutoTrackConfig) error {
	return Update(s.Path, func(c *Config) error {
		interval := c.AutoTrack.PollingInterval
		c.SetAutoTrack(at)
		if n, ok := envPollingInterval(); ok && at.PollingInterval == n {
			c.AutoTrack.PollingInterval = interval
		}
		return nil
	})
}

func (s *Store) SaveToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	return Update(s.Path, func(c *Config) error {
		c.GitLab.Token = token
		return nil
	})
}
