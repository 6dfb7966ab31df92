package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/davarch/ci-tracker/internal/infrastructure/config"
	"github.com/davarch/ci-tracker/internal/infrastructure/gitlab_http"
	"github.com/davarch/ci-tracker/internal/infrastructure/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:           "ci-tracker",
	Short:         "GitLab job and pipeline tracker (polling + notifications + auto-discovery)",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to config.yaml")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version)
		},
	})

	comp := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				return rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				return rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	rootCmd.AddCommand(comp)
}

// loadConfig tolerates a corrupt file: the defaults are used and the problem
// is logged once the logger exists.
func loadConfig() (config.Config, *config.ConfigError, error) {
	cfg, err := config.Load(cfgPath)
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return cfg, ce, nil
	}
	return cfg, nil, err
}

func newLogger(cfg config.Config, console bool) (*zap.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Console: console})
}

func newGateway(cfg config.Config) *gitlab_http.Client {
	return gitlab_http.New(cfg.GitLab.Token, gitlab_http.Options{
		Timeout:   cfg.GitLab.Timeout,
		Retries:   cfg.GitLab.Retries,
		RateLimit: cfg.GitLab.RateLimit,
		Burst:     cfg.GitLab.Burst,
	})
}
