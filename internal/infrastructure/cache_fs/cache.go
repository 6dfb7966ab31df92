package cache_fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davarch/ci-tracker/internal/domain"
)

// FSCache writes a status-bar friendly summary of the tracked items.
type FSCache struct {
	path string
}

func New(path string) *FSCache { return &FSCache{path: path} }

type item struct {
	Key    string `json:"key"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Ref    string `json:"ref"`
	Status string `json:"status"`
	Stage  string `json:"stage,omitempty"`
	URL    string `json:"url"`
	Auto   bool   `json:"auto"`
}

type out struct {
	Text      string `json:"text"`
	Running   int    `json:"running"`
	Failed    int    `json:"failed"`
	Items     []item `json:"items"`
	Retrieved int64  `json:"retrieved"`
}

func (c *FSCache) Write(_ context.Context, r domain.StatusReport) error {
	if c.path == "" {
		return errors.New("cache path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(summarize(r), "", "  ")
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func summarize(r domain.StatusReport) out {
	o := out{Items: make([]item, 0, len(r.Items)), Retrieved: r.Retrieved}
	for _, it := range r.Items {
		s := it.Snapshot
		switch {
		case domain.IsActive(s.Status):
			o.Running++
		case s.Status == domain.StatusFailed:
			o.Failed++
		}

		name := s.Name
		if s.Kind == domain.KindPipeline {
			name = fmt.Sprintf("#%d", s.ID)
		}
		url := s.WebURL
		if url == "" {
			url = it.SourceURL
		}
		o.Items = append(o.Items, item{
			Key:    it.Key,
			Kind:   string(it.Kind),
			Name:   name,
			Ref:    s.Ref,
			Status: string(s.Status),
			Stage:  s.Stage,
			URL:    url,
			Auto:   it.AutoDiscovered,
		})
	}

	switch {
	case len(o.Items) == 0:
		o.Text = ""
	case o.Failed > 0:
		o.Text = fmt.Sprintf("CI ▶%d ✗%d", o.Running, o.Failed)
	default:
		o.Text = fmt.Sprintf("CI ▶%d", o.Running)
	}
	return o
}
