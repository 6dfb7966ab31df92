package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/davarch/ci-tracker/internal/application"
	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/davarch/ci-tracker/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	listOnlyEnabled  bool
	listOnlyDisabled bool
	listJSON         bool
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the repositories watched by auto-track",
}

var repoAddCmd = &cobra.Command{
	Use:   "add <repo-url>",
	Short: "Watch a repository for new jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := domain.ClassifyRepo(args[0])
		if err != nil {
			return err
		}

		err = editAutoTrack(func(at *domain.AutoTrackConfig) error {
			for _, r := range at.Repos {
				if r.SameProject(repo) {
					return fmt.Errorf("%s: %w", repo.ProjectPath, application.ErrDuplicateRepo)
				}
			}
			at.Repos = append(at.Repos, repo)
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Printf("added: %s (%s)\n", repo.ProjectPath, repo.BaseURL)
		return nil
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <index|project_path>",
	Short: "Stop watching a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var removed domain.WatchedRepo
		err := editAutoTrack(func(at *domain.AutoTrackConfig) error {
			i, err := resolveRepo(at.Repos, args[0])
			if err != nil {
				return err
			}
			removed = at.Repos[i]
			at.Repos = append(at.Repos[:i], at.Repos[i+1:]...)
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Printf("removed: %s\n", removed.ProjectPath)
		return nil
	},
}

func repoToggleCmd(enable bool) *cobra.Command {
	verb := "disable"
	if enable {
		verb = "enable"
	}

	c := &cobra.Command{
		Use:   verb + " <index|project_path>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a watched repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := false
			var path string
			err := editAutoTrack(func(at *domain.AutoTrackConfig) error {
				i, err := resolveRepo(at.Repos, args[0])
				if err != nil {
					return err
				}
				path = at.Repos[i].ProjectPath
				if at.Repos[i].Enabled != enable {
					at.Repos[i].Enabled = enable
					changed = true
				}
				return nil
			})
			if err != nil {
				return err
			}

			if !changed {
				fmt.Printf("no change (repo %q already %sd)\n", path, verb)
				return nil
			}
			fmt.Printf("%sd: %s\n", verb, path)
			return nil
		},
	}

	c.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := config.LoadFile(cfgPath)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		out := make([]string, 0, len(cfg.AutoTrack.Repos))
		for _, r := range cfg.AutoTrack.Repos {
			if r.Enabled == enable {
				continue
			}
			if strings.HasPrefix(r.ProjectPath, toComplete) {
				out = append(out, r.ProjectPath)
			}
		}

		return out, cobra.ShellCompDirectiveNoFileComp
	}

	return c
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched repositories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(cfgPath)
		if err != nil {
			return err
		}

		type row struct {
			Index int `json:"index"`
			domain.WatchedRepo
		}

		at := cfg.AutoTrackConfig()
		items := make([]row, 0, len(at.Repos))
		for i, r := range at.Repos {
			if listOnlyEnabled && !r.Enabled {
				continue
			}
			if listOnlyDisabled && r.Enabled {
				continue
			}
			items = append(items, row{Index: i, WatchedRepo: r})
		}

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "#\tPROJECT\tHOST\tENABLED")
		for _, r := range items {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", r.Index, r.ProjectPath, r.BaseURL, r.Enabled)
		}
		_ = w.Flush()
		return nil
	},
}

// editAutoTrack rewrites the auto_track section in place; a running tracker
// picks the change up through its config watcher.
func editAutoTrack(fn func(*domain.AutoTrackConfig) error) error {
	return config.Update(cfgPath, func(c *config.Config) error {
		at := c.AutoTrackConfig()
		if err := fn(&at); err != nil {
			return err
		}
		c.SetAutoTrack(at)
		return nil
	})
}

// resolveRepo accepts a list index or a project path.
func resolveRepo(repos []domain.WatchedRepo, arg string) (int, error) {
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 0 || i >= len(repos) {
			return 0, fmt.Errorf("%d: %w", i, application.ErrRepoIndex)
		}
		return i, nil
	}

	match := -1
	for i, r := range repos {
		if r.ProjectPath == strings.Trim(arg, "/") {
			if match >= 0 {
				return 0, errors.New("project path is watched on several hosts; use the index")
			}
			match = i
		}
	}
	if match < 0 {
		return 0, fmt.Errorf("%s: %w", arg, application.ErrRepoIndex)
	}
	return match, nil
}

func init() {
	repoListCmd.Flags().BoolVar(&listOnlyEnabled, "enabled", false, "show only enabled repos")
	repoListCmd.Flags().BoolVar(&listOnlyDisabled, "disabled", false, "show only disabled repos")
	repoListCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	repoListCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if listOnlyEnabled && listOnlyDisabled {
			return fmt.Errorf("flags --enabled and --disabled are mutually exclusive")
		}
		return nil
	}

	repoCmd.AddCommand(repoAddCmd, repoRemoveCmd, repoToggleCmd(true), repoToggleCmd(false), repoListCmd)
	rootCmd.AddCommand(repoCmd)
}
