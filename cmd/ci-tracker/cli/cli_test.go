package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/davarch/ci-tracker/internal/application"
	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/davarch/ci-tracker/internal/infrastructure/config"
)

func execute(t *testing.T, path string, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append([]string{"--config", path}, args...))
	return rootCmd.Execute()
}

func TestRepoCommandsEditConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := execute(t, path, "repo", "add", "https://gitlab.example.com/group/app/-/pipelines"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := execute(t, path, "repo", "add", "https://gitlab.example.com/group/app"); !errors.Is(err, application.ErrDuplicateRepo) {
		t.Errorf("duplicate add: %v", err)
	}
	if err := execute(t, path, "repo", "add", "https://gitlab.example.com/other/svc"); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, path, "repo", "disable", "group/app"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := execute(t, path, "repo", "remove", "1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := execute(t, path, "repo", "remove", "7"); !errors.Is(err, application.ErrRepoIndex) {
		t.Errorf("remove bad index: %v", err)
	}

	c, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	repos := c.AutoTrack.Repos
	if len(repos) != 1 || repos[0].ProjectPath != "group/app" || repos[0].Enabled {
		t.Errorf("repos = %+v", repos)
	}
}

func TestAutotrackCommandsEditConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := execute(t, path, "autotrack", "enable"); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, path, "autotrack", "interval", "45"); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, path, "autotrack", "interval", "0"); err == nil {
		t.Error("zero interval accepted")
	}
	if err := execute(t, path, "token", "set", "glpat-1"); err != nil {
		t.Fatal(err)
	}

	c, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !c.AutoTrack.Enabled || c.AutoTrack.PollingInterval != 45 || c.GitLab.Token != "glpat-1" {
		t.Errorf("config = %+v %+v", c.AutoTrack, c.GitLab)
	}
}

func TestResolveRepo(t *testing.T) {
	repos := []domain.WatchedRepo{
		{BaseURL: "https://a.example.com", ProjectPath: "g/app"},
		{BaseURL: "https://b.example.com", ProjectPath: "g/app"},
		{BaseURL: "https://a.example.com", ProjectPath: "g/lib"},
	}

	if i, err := resolveRepo(repos, "2"); err != nil || i != 2 {
		t.Errorf("index: %d %v", i, err)
	}
	if i, err := resolveRepo(repos, "/g/lib/"); err != nil || i != 2 {
		t.Errorf("path: %d %v", i, err)
	}
	if _, err := resolveRepo(repos, "g/app"); err == nil {
		t.Error("ambiguous path accepted")
	}
	if _, err := resolveRepo(repos, "-1"); !errors.Is(err, application.ErrRepoIndex) {
		t.Errorf("negative index: %v", err)
	}
}
