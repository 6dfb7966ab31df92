package cli

import (
	"fmt"
	"strconv"

	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/davarch/ci-tracker/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var autotrackCmd = &cobra.Command{
	Use:   "autotrack",
	Short: "Configure discovery of the current user's running jobs",
}

func autotrackToggleCmd(enable bool) *cobra.Command {
	verb := "disable"
	if enable {
		verb = "enable"
	}
	return &cobra.Command{
		Use:   verb,
		Short: verb + " auto-track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := editAutoTrack(func(at *domain.AutoTrackConfig) error {
				at.Enabled = enable
				return nil
			}); err != nil {
				return err
			}
			fmt.Printf("auto-track %sd\n", verb)
			return nil
		},
	}
}

var autotrackIntervalCmd = &cobra.Command{
	Use:   "interval <seconds>",
	Short: "Set the repository polling interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("interval must be a positive number of seconds, got %q", args[0])
		}
		if err := editAutoTrack(func(at *domain.AutoTrackConfig) error {
			at.PollingInterval = n
			return nil
		}); err != nil {
			return err
		}
		fmt.Printf("polling every %ds\n", n)
		return nil
	},
}

var autotrackShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the auto-track settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(cfgPath)
		if err != nil {
			return err
		}
		at := cfg.AutoTrackConfig()

		enabled := 0
		for _, r := range at.Repos {
			if r.Enabled {
				enabled++
			}
		}
		fmt.Printf("enabled:    %t\ninterval:   %ds\nrepos:      %d (%d enabled)\npause file: %s\n",
			at.Enabled, at.PollingInterval, len(at.Repos), enabled, cfg.AutoTrack.PauseFile)
		return nil
	},
}

func init() {
	autotrackCmd.AddCommand(autotrackToggleCmd(true), autotrackToggleCmd(false), autotrackIntervalCmd, autotrackShowCmd)
	rootCmd.AddCommand(autotrackCmd)
}
